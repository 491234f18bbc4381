// Package signal tracks the per-pair signal lifecycle for the mean-reversion
// strategy: WATCH -> ALERT -> SIGNAL -> ACTIVE -> TARGET.
package signal

import (
	"time"

	"etf-reversion-bot/internal/universe"
)

// State is a signal lifecycle state
type State string

const (
	StateWatch  State = "WATCH"  // no meaningful drawdown
	StateAlert  State = "ALERT"  // drawdown past the alert threshold
	StateSignal State = "SIGNAL" // drawdown past the entry threshold, entry candidate
	StateActive State = "ACTIVE" // position open
	StateTarget State = "TARGET" // position open and profit target reached
)

// HasPosition reports whether the state carries an open position.
func (s State) HasPosition() bool {
	return s == StateActive || s == StateTarget
}

// Signal is the tracked record for one leveraged/underlying pair.
// EntryPrice and EntryDate are set if and only if the state carries a
// position.
type Signal struct {
	LeveragedTicker  string     `json:"leveraged_ticker"`
	UnderlyingTicker string     `json:"underlying_ticker"`
	Name             string     `json:"name"`
	Leverage         float64    `json:"leverage"`
	State            State      `json:"state"`
	Drawdown         float64    `json:"drawdown"` // fraction from underlying ATH
	ATHPrice         float64    `json:"ath_price"`
	ATHDate          time.Time  `json:"ath_date"`
	UnderlyingPrice  float64    `json:"underlying_price"`
	EntryThreshold   float64    `json:"entry_threshold"`
	AlertThreshold   float64    `json:"alert_threshold"`
	ProfitTarget     float64    `json:"profit_target"`
	EntryPrice       *float64   `json:"entry_price,omitempty"`
	EntryDate        *time.Time `json:"entry_date,omitempty"`
	CurrentPrice     float64    `json:"current_price"` // leveraged instrument
	UnrealizedPL     float64    `json:"unrealized_pl"` // fraction, zero without a position
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// New creates a WATCH-state signal for a universe pair.
func New(p universe.Pair) *Signal {
	now := time.Now().UTC()
	return &Signal{
		LeveragedTicker:  p.LeveragedTicker,
		UnderlyingTicker: p.UnderlyingTicker,
		Name:             p.Name,
		Leverage:         p.Leverage,
		State:            StateWatch,
		EntryThreshold:   p.EntryThreshold,
		AlertThreshold:   p.AlertThreshold,
		ProfitTarget:     p.ProfitTarget,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Sector returns the signal's sector classification.
func (s *Signal) Sector() string {
	return universe.Sector(s.LeveragedTicker)
}
