// Package learning records closed-trade outcomes and recomputes the
// per-factor predictive weights that feed back into confidence scoring.
package learning

import (
	"time"

	"github.com/google/uuid"

	"etf-reversion-bot/internal/confidence"
	"etf-reversion-bot/internal/sizing"
)

// TradeOutcome is one closed trade with the confidence factor map captured
// at entry time. Immutable once created.
type TradeOutcome struct {
	ID         string                           `json:"id"`
	Ticker     string                           `json:"ticker"`
	EntryDate  time.Time                        `json:"entry_date"`
	ExitDate   time.Time                        `json:"exit_date"`
	EntryPrice float64                          `json:"entry_price"`
	ExitPrice  float64                          `json:"exit_price"`
	PLFraction float64                          `json:"pl_fraction"`
	Win        bool                             `json:"win"`
	Factors    map[string]confidence.Assessment `json:"factors"`
	CreatedAt  time.Time                        `json:"created_at"`
}

// NewOutcome builds the outcome record for a just-closed trade.
func NewOutcome(ticker string, entryDate, exitDate time.Time, entryPrice, exitPrice float64, factors map[string]confidence.Assessment) *TradeOutcome {
	pl := 0.0
	if entryPrice > 0 {
		pl = (exitPrice - entryPrice) / entryPrice
	}
	return &TradeOutcome{
		ID:         uuid.New().String(),
		Ticker:     ticker,
		EntryDate:  entryDate,
		ExitDate:   exitDate,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		PLFraction: pl,
		Win:        pl > 0,
		Factors:    factors,
		CreatedAt:  time.Now().UTC(),
	}
}

// ComputeStats summarizes the closed-trade history for one ticker in the
// shape the Kelly sizer consumes. An empty ticker aggregates all trades.
func ComputeStats(outcomes []TradeOutcome, ticker string) sizing.Stats {
	var trades, wins, losses int
	var winSum, lossSum float64
	for _, o := range outcomes {
		if ticker != "" && o.Ticker != ticker {
			continue
		}
		trades++
		if o.Win {
			wins++
			winSum += o.PLFraction
		} else {
			losses++
			lossSum += -o.PLFraction
		}
	}

	stats := sizing.Stats{Trades: trades}
	if trades == 0 {
		return stats
	}
	stats.WinRate = float64(wins) / float64(trades)
	if wins > 0 && losses > 0 && lossSum > 0 {
		avgWin := winSum / float64(wins)
		avgLoss := lossSum / float64(losses)
		stats.AvgWinLossRatio = avgWin / avgLoss
	}
	return stats
}
