// Package risk gates trade entries against portfolio concentration and
// liquidity limits, and reports current exposure.
package risk

import "etf-reversion-bot/config"

// Criterion names, in the fixed order the gate evaluates them.
const (
	CriterionPositionCount     = "position_count"
	CriterionSinglePosition    = "single_position"
	CriterionSectorExposure    = "sector_exposure"
	CriterionLeveragedExposure = "leveraged_exposure"
	CriterionCashReserve       = "cash_reserve"
)

// Limits holds the hard portfolio constraints the veto gate enforces.
type Limits struct {
	MaxConcurrentPositions int
	MaxSinglePositionPct   float64
	MaxSectorExposurePct   float64
	MaxLeveragedExposure   float64
	MinCashReservePct      float64
	CorrelationThreshold   float64
}

func LimitsFromConfig(cfg config.RiskConfig) Limits {
	return Limits{
		MaxConcurrentPositions: cfg.MaxConcurrentPositions,
		MaxSinglePositionPct:   cfg.MaxSinglePositionPct,
		MaxSectorExposurePct:   cfg.MaxSectorExposurePct,
		MaxLeveragedExposure:   cfg.MaxLeveragedExposure,
		MinCashReservePct:      cfg.MinCashReservePct,
		CorrelationThreshold:   cfg.CorrelationThreshold,
	}
}

// Position is the slice of portfolio state the gate needs per holding.
type Position struct {
	Ticker   string  `json:"ticker"`
	Sector   string  `json:"sector"`
	Leverage float64 `json:"leverage"`
	Value    float64 `json:"value"`
}

// PortfolioState is the valuation snapshot a check runs against. TotalValue
// is cash plus the market value of all positions.
type PortfolioState struct {
	TotalValue float64    `json:"total_value"`
	Cash       float64    `json:"cash"`
	Positions  []Position `json:"positions"`
}

// Proposed describes an entry under consideration.
type Proposed struct {
	Ticker   string  `json:"ticker"`
	Sector   string  `json:"sector"`
	Leverage float64 `json:"leverage"`
	Value    float64 `json:"value"`
}
