// Package sizing recommends notional position sizes for approved entries.
package sizing

import (
	"errors"
	"fmt"

	"etf-reversion-bot/config"
)

// ErrInsufficientTradeHistory means Kelly sizing was requested with fewer
// closed trades than the configured minimum. The caller decides the
// fallback, typically fixed-fraction.
var ErrInsufficientTradeHistory = errors.New("insufficient trade history for kelly sizing")

const (
	MethodFixedFraction = "fixed_fraction"
	MethodHalfKelly     = "half_kelly"
)

// Stats summarizes closed-trade history for one ticker or strategy.
type Stats struct {
	Trades          int     `json:"trades"`
	WinRate         float64 `json:"win_rate"`
	AvgWinLossRatio float64 `json:"avg_win_loss_ratio"`
}

// Recommendation is a sizing result. Fraction is the share of portfolio
// value committed before the leverage division, Notional the dollar size
// actually recommended.
type Recommendation struct {
	Method   string  `json:"method"`
	Fraction float64 `json:"fraction"`
	Notional float64 `json:"notional"`
	Reason   string  `json:"reason"`
}

// Sizer computes recommended sizes from the configured method parameters.
type Sizer struct {
	cfg config.SizingConfig
}

func NewSizer(cfg config.SizingConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// FixedFraction sizes at the configured risk fraction of portfolio value
// divided by the instrument's leverage multiplier. An EXTREME volatility
// regime cuts the size by the configured reduction.
func (s *Sizer) FixedFraction(portfolioValue, leverage float64, volRegime string) Recommendation {
	frac := s.cfg.RiskPerTradePct
	reason := fmt.Sprintf("%.1f%% of portfolio over %gx leverage", frac*100, leverage)
	if volRegime == "EXTREME" {
		frac *= 1 - s.cfg.ExtremeVolReduction
		reason += fmt.Sprintf(", reduced %.0f%% for extreme volatility", s.cfg.ExtremeVolReduction*100)
	}
	return Recommendation{
		Method:   MethodFixedFraction,
		Fraction: frac,
		Notional: frac * portfolioValue / leverage,
		Reason:   reason,
	}
}

// HalfKelly sizes from the Kelly criterion, f* = (p*b - q) / b, scaled by
// the configured Kelly fraction and floored at zero. Errors with
// ErrInsufficientTradeHistory below the minimum trade count.
func (s *Sizer) HalfKelly(portfolioValue, leverage float64, stats Stats) (Recommendation, error) {
	if stats.Trades < s.cfg.MinTradesForKelly {
		return Recommendation{}, fmt.Errorf("%w: %d trades, need %d",
			ErrInsufficientTradeHistory, stats.Trades, s.cfg.MinTradesForKelly)
	}
	if stats.AvgWinLossRatio <= 0 {
		return Recommendation{}, fmt.Errorf("%w: no winning trades to estimate win/loss ratio",
			ErrInsufficientTradeHistory)
	}

	p := stats.WinRate
	b := stats.AvgWinLossRatio
	q := 1 - p
	kelly := (p*b - q) / b
	frac := kelly * s.cfg.KellyFraction
	if frac < 0 {
		frac = 0
	}
	return Recommendation{
		Method:   MethodHalfKelly,
		Fraction: frac,
		Notional: frac * portfolioValue / leverage,
		Reason: fmt.Sprintf("kelly %.3f at %.0f%% from %d trades (p=%.2f, b=%.2f)",
			kelly, s.cfg.KellyFraction*100, stats.Trades, p, b),
	}, nil
}

// Recommend dispatches on the configured method. Kelly errors propagate so
// the caller can choose its fallback.
func (s *Sizer) Recommend(portfolioValue, leverage float64, volRegime string, stats Stats) (Recommendation, error) {
	switch s.cfg.Method {
	case MethodHalfKelly:
		return s.HalfKelly(portfolioValue, leverage, stats)
	default:
		return s.FixedFraction(portfolioValue, leverage, volRegime), nil
	}
}
