// Package portfolio owns the cash and open-position ledger. All monetary
// amounts are decimals so repeated re-persistence never accumulates
// floating-point drift.
package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"etf-reversion-bot/internal/risk"
)

var (
	ErrPositionExists   = errors.New("position already open for ticker")
	ErrPositionNotFound = errors.New("no open position for ticker")
	ErrInsufficientCash = errors.New("insufficient cash for entry")
)

// Position is one open holding.
type Position struct {
	Ticker       string          `json:"ticker"`
	Sector       string          `json:"sector"`
	Leverage     float64         `json:"leverage"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Notional     decimal.Decimal `json:"notional"`
	EntryDate    time.Time       `json:"entry_date"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// MarketValue is the position's value at the last marked price.
func (p *Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// UnrealizedPL is the gain over entry notional at the last marked price.
func (p *Position) UnrealizedPL() decimal.Decimal {
	return p.MarketValue().Sub(p.Notional)
}

// Snapshot is a read-only copy of the full portfolio state.
type Snapshot struct {
	Cash         decimal.Decimal `json:"cash"`
	InitialValue decimal.Decimal `json:"initial_value"`
	RealizedPL   decimal.Decimal `json:"realized_pl"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Positions    []Position      `json:"positions"`
	Version      int64           `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Allocation is one slice of the allocation breakdown.
type Allocation struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Pct   float64 `json:"pct"`
}

// Tracker is the single writer of portfolio state. Reads take the same
// lock, so callers always see a consistent cash/position pair.
type Tracker struct {
	mu           sync.RWMutex
	cash         decimal.Decimal
	initialValue decimal.Decimal
	realizedPL   decimal.Decimal
	positions    map[string]*Position
	version      int64
	updatedAt    time.Time
	log          zerolog.Logger
}

func NewTracker(initialValue decimal.Decimal, log zerolog.Logger) *Tracker {
	return &Tracker{
		cash:         initialValue,
		initialValue: initialValue,
		positions:    make(map[string]*Position),
		updatedAt:    time.Now().UTC(),
		log:          log.With().Str("component", "portfolio").Logger(),
	}
}

// Restore rebuilds a tracker from persisted state.
func Restore(snap Snapshot, log zerolog.Logger) *Tracker {
	t := NewTracker(snap.InitialValue, log)
	t.cash = snap.Cash
	t.realizedPL = snap.RealizedPL
	t.version = snap.Version
	t.updatedAt = snap.UpdatedAt
	for i := range snap.Positions {
		p := snap.Positions[i]
		t.positions[p.Ticker] = &p
	}
	return t
}

// Enter opens a position, debiting cash by the notional.
func (t *Tracker) Enter(ticker, sector string, leverage float64, price, notional decimal.Decimal, at time.Time) (*Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.positions[ticker]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionExists, ticker)
	}
	if notional.GreaterThan(t.cash) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, notional, t.cash)
	}
	if !price.IsPositive() || !notional.IsPositive() {
		return nil, fmt.Errorf("entry price and notional must be positive")
	}

	pos := &Position{
		Ticker:       ticker,
		Sector:       sector,
		Leverage:     leverage,
		EntryPrice:   price,
		Quantity:     notional.Div(price),
		Notional:     notional,
		EntryDate:    at,
		CurrentPrice: price,
	}
	t.positions[ticker] = pos
	t.cash = t.cash.Sub(notional)
	t.bump()

	t.log.Info().
		Str("ticker", ticker).
		Str("notional", notional.StringFixed(2)).
		Str("price", price.StringFixed(2)).
		Msg("opened position")
	return pos, nil
}

// Close liquidates a position at the given price and returns the realized
// P/L amount and its fraction of entry notional.
func (t *Tracker) Close(ticker string, price decimal.Decimal) (decimal.Decimal, float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[ticker]
	if !ok {
		return decimal.Zero, 0, fmt.Errorf("%w: %s", ErrPositionNotFound, ticker)
	}

	proceeds := pos.Quantity.Mul(price)
	realized := proceeds.Sub(pos.Notional)
	plFraction, _ := realized.Div(pos.Notional).Float64()

	t.cash = t.cash.Add(proceeds)
	t.realizedPL = t.realizedPL.Add(realized)
	delete(t.positions, ticker)
	t.bump()

	t.log.Info().
		Str("ticker", ticker).
		Str("realized_pl", realized.StringFixed(2)).
		Float64("pl_fraction", plFraction).
		Msg("closed position")
	return realized, plFraction, nil
}

// MarkPrice updates a position's valuation price.
func (t *Tracker) MarkPrice(ticker string, price decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[ticker]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, ticker)
	}
	pos.CurrentPrice = price
	t.bump()
	return nil
}

// TotalValue is cash plus the market value of all open positions.
func (t *Tracker) TotalValue() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalValueLocked()
}

func (t *Tracker) totalValueLocked() decimal.Decimal {
	total := t.cash
	for _, p := range t.positions {
		total = total.Add(p.MarketValue())
	}
	return total
}

// Snapshot returns a consistent copy of the full state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Cash:         t.cash,
		InitialValue: t.initialValue,
		RealizedPL:   t.realizedPL,
		TotalValue:   t.totalValueLocked(),
		Version:      t.version,
		UpdatedAt:    t.updatedAt,
	}
	for _, p := range t.positions {
		snap.Positions = append(snap.Positions, *p)
	}
	return snap
}

// RiskState projects the portfolio into the shape the veto gate evaluates.
func (t *Tracker) RiskState() risk.PortfolioState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state := risk.PortfolioState{
		Cash: t.cash.InexactFloat64(),
	}
	total := t.cash
	for _, p := range t.positions {
		value := p.MarketValue()
		total = total.Add(value)
		state.Positions = append(state.Positions, risk.Position{
			Ticker:   p.Ticker,
			Sector:   p.Sector,
			Leverage: p.Leverage,
			Value:    value.InexactFloat64(),
		})
	}
	state.TotalValue = total.InexactFloat64()
	return state
}

// Allocations breaks the portfolio into cash plus one slice per position.
func (t *Tracker) Allocations() []Allocation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := t.totalValueLocked()
	if !total.IsPositive() {
		return nil
	}

	allocs := []Allocation{{
		Label: "cash",
		Value: t.cash.InexactFloat64(),
		Pct:   t.cash.Div(total).InexactFloat64(),
	}}
	for _, p := range t.positions {
		value := p.MarketValue()
		allocs = append(allocs, Allocation{
			Label: p.Ticker,
			Value: value.InexactFloat64(),
			Pct:   value.Div(total).InexactFloat64(),
		})
	}
	return allocs
}

// Version returns the optimistic-lock counter for persistence.
func (t *Tracker) Version() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *Tracker) bump() {
	t.version++
	t.updatedAt = time.Now().UTC()
}
