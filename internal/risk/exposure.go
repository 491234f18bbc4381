package risk

import (
	"fmt"
	"sort"
)

// correlations holds long-run daily return correlations between the
// leveraged tickers in the trading universe. Pairs absent from the table
// are treated as uncorrelated. Keys are ordered alphabetically.
var correlations = map[[2]string]float64{
	{"TECL", "TQQQ"}: 0.95,
	{"TQQQ", "UPRO"}: 0.92,
	{"TECL", "UPRO"}: 0.90,
	{"SOXL", "TQQQ"}: 0.88,
	{"SOXL", "TECL"}: 0.87,
	{"SOXL", "UPRO"}: 0.82,
	{"TNA", "UPRO"}:  0.85,
	{"TNA", "TQQQ"}:  0.78,
	{"FAS", "TNA"}:   0.80,
	{"FAS", "UPRO"}:  0.76,
	{"LABU", "TNA"}:  0.65,
	{"TQQQ", "UCO"}:  0.35,
}

// Correlation returns the tabulated correlation between two leveraged
// tickers, 1.0 for a ticker with itself, 0 when unknown.
func Correlation(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a > b {
		a, b = b, a
	}
	return correlations[[2]string{a, b}]
}

// SectorExposure is one sector's slice of the portfolio.
type SectorExposure struct {
	Sector string  `json:"sector"`
	Value  float64 `json:"value"`
	Pct    float64 `json:"pct"`
}

// ExposureReport summarizes current portfolio concentration against the
// configured limits.
type ExposureReport struct {
	PositionCount     int              `json:"position_count"`
	MaxPositions      int              `json:"max_positions"`
	TotalValue        float64          `json:"total_value"`
	Cash              float64          `json:"cash"`
	CashPct           float64          `json:"cash_pct"`
	DeployedPct       float64          `json:"deployed_pct"`
	LeveragedMultiple float64          `json:"leveraged_multiple"`
	LargestPosition   string           `json:"largest_position,omitempty"`
	LargestPct        float64          `json:"largest_pct"`
	Sectors           []SectorExposure `json:"sectors"`
	Warnings          []string         `json:"warnings,omitempty"`
}

// BuildReport computes the exposure summary for the current portfolio and
// attaches warnings for limits within 10% of their bound.
func BuildReport(state PortfolioState, limits Limits) ExposureReport {
	r := ExposureReport{
		PositionCount: len(state.Positions),
		MaxPositions:  limits.MaxConcurrentPositions,
		TotalValue:    state.TotalValue,
		Cash:          state.Cash,
	}
	if state.TotalValue <= 0 {
		return r
	}

	r.CashPct = state.Cash / state.TotalValue

	var deployed, notional float64
	sectors := map[string]float64{}
	for _, p := range state.Positions {
		deployed += p.Value
		notional += p.Value * p.Leverage
		sectors[p.Sector] += p.Value
		pct := p.Value / state.TotalValue
		if pct > r.LargestPct {
			r.LargestPct = pct
			r.LargestPosition = p.Ticker
		}
	}
	r.DeployedPct = deployed / state.TotalValue
	r.LeveragedMultiple = notional / state.TotalValue

	for sector, value := range sectors {
		r.Sectors = append(r.Sectors, SectorExposure{
			Sector: sector,
			Value:  value,
			Pct:    value / state.TotalValue,
		})
	}
	sort.Slice(r.Sectors, func(i, j int) bool { return r.Sectors[i].Value > r.Sectors[j].Value })

	if r.LargestPct > limits.MaxSinglePositionPct*0.9 {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("position %s at %.1f%% of portfolio, limit %.1f%%",
				r.LargestPosition, r.LargestPct*100, limits.MaxSinglePositionPct*100))
	}
	for _, s := range r.Sectors {
		if s.Pct > limits.MaxSectorExposurePct*0.9 {
			r.Warnings = append(r.Warnings,
				fmt.Sprintf("sector %s at %.1f%% of portfolio, limit %.1f%%",
					s.Sector, s.Pct*100, limits.MaxSectorExposurePct*100))
		}
	}
	if r.LeveragedMultiple > limits.MaxLeveragedExposure*0.9 {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("leveraged exposure %.2fx, limit %.2fx",
				r.LeveragedMultiple, limits.MaxLeveragedExposure))
	}
	if r.CashPct < limits.MinCashReservePct*1.1 {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("cash reserve %.1f%%, floor %.1f%%",
				r.CashPct*100, limits.MinCashReservePct*100))
	}
	return r
}
