// Package universe defines the fixed set of tracked leveraged/underlying
// instrument pairs and their per-pair thresholds.
package universe

import "strings"

// Pair maps a leveraged ETF to the underlying index it amplifies.
type Pair struct {
	LeveragedTicker  string  `json:"leveraged_ticker"`
	UnderlyingTicker string  `json:"underlying_ticker"`
	Name             string  `json:"name"`
	Leverage         float64 `json:"leverage"`
	EntryThreshold   float64 `json:"entry_threshold"` // drawdown fraction that opens a SIGNAL
	AlertThreshold   float64 `json:"alert_threshold"` // drawdown fraction that opens an ALERT
	ProfitTarget     float64 `json:"profit_target"`   // P/L fraction that marks TARGET
}

// Sector derives the sector label from the pair name ("Tech 3x Bull" -> "tech").
func (p Pair) Sector() string {
	fields := strings.Fields(p.Name)
	if len(fields) == 0 {
		return "other"
	}
	return strings.ToLower(fields[0])
}

// Pairs is the tracked universe. Thresholds are wider for the more volatile
// sectors (biotech, oil) than for the broad indexes.
var Pairs = []Pair{
	{"TQQQ", "QQQ", "Nasdaq-100 3x Bull", 3.0, 0.05, 0.03, 0.10},
	{"UPRO", "SPY", "S&P-500 3x Bull", 3.0, 0.05, 0.03, 0.10},
	{"SOXL", "SOXX", "Semiconductors 3x Bull", 3.0, 0.08, 0.05, 0.10},
	{"TNA", "IWM", "Russell-2000 3x Bull", 3.0, 0.07, 0.04, 0.10},
	{"TECL", "XLK", "Tech 3x Bull", 3.0, 0.07, 0.04, 0.10},
	{"FAS", "XLF", "Financials 3x Bull", 3.0, 0.07, 0.04, 0.10},
	{"LABU", "XBI", "Biotech 3x Bull", 3.0, 0.10, 0.07, 0.10},
	{"UCO", "USO", "Oil 2x Bull", 2.0, 0.10, 0.07, 0.10},
}

// Get looks up a pair by leveraged ticker. Returns false when untracked.
func Get(leveragedTicker string) (Pair, bool) {
	upper := strings.ToUpper(leveragedTicker)
	for _, p := range Pairs {
		if p.LeveragedTicker == upper {
			return p, true
		}
	}
	return Pair{}, false
}

// GetByUnderlying looks up a pair by underlying ticker.
func GetByUnderlying(underlyingTicker string) (Pair, bool) {
	upper := strings.ToUpper(underlyingTicker)
	for _, p := range Pairs {
		if p.UnderlyingTicker == upper {
			return p, true
		}
	}
	return Pair{}, false
}

// Sector returns the sector for a leveraged ticker, "other" when untracked.
func Sector(leveragedTicker string) string {
	if p, ok := Get(leveragedTicker); ok {
		return p.Sector()
	}
	return "other"
}

// UnderlyingTickers returns the deduplicated underlying tickers in universe order.
func UnderlyingTickers() []string {
	seen := make(map[string]bool, len(Pairs))
	result := make([]string, 0, len(Pairs))
	for _, p := range Pairs {
		if !seen[p.UnderlyingTicker] {
			seen[p.UnderlyingTicker] = true
			result = append(result, p.UnderlyingTicker)
		}
	}
	return result
}
