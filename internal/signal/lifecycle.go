package signal

import (
	"errors"
	"fmt"
	"time"

	"etf-reversion-bot/internal/drawdown"
)

// ErrInvalidTransition is returned when Enter or Close is requested against
// a signal whose state does not permit it. The signal is left unchanged.
var ErrInvalidTransition = errors.New("invalid signal transition")

// Transition is one recorded state change, kept for the audit trail.
type Transition struct {
	Ticker string    `json:"ticker"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// ApplyDrawdown updates a signal with a fresh drawdown reading and applies
// the drawdown-driven transitions. Position states ignore drawdown entirely;
// only P/L moves them. The persisted ATH is merged monotonically first, so a
// gapped re-fetch can never lower it.
//
// A reading may jump from below the alert threshold straight past the entry
// threshold between refreshes. The machine still records the intermediate
// ALERT hop so the audit trail shows the full path.
func ApplyDrawdown(s *Signal, r drawdown.Result) []Transition {
	r = drawdown.MergeATH(r, s.ATHPrice, s.ATHDate)

	s.Drawdown = r.Drawdown
	s.ATHPrice = r.ATHPrice
	s.ATHDate = r.ATHDate
	s.UnderlyingPrice = r.CurrentPrice
	s.UpdatedAt = time.Now().UTC()

	if s.State.HasPosition() {
		return nil
	}

	var transitions []Transition
	step := func(to State, reason string) {
		transitions = append(transitions, Transition{
			Ticker: s.LeveragedTicker,
			From:   s.State,
			To:     to,
			Reason: reason,
			At:     s.UpdatedAt,
		})
		s.State = to
	}

	switch {
	case r.Drawdown >= s.EntryThreshold:
		if s.State == StateWatch {
			step(StateAlert, fmt.Sprintf("drawdown %.2f%% passed alert threshold", r.Drawdown*100))
		}
		if s.State == StateAlert {
			step(StateSignal, fmt.Sprintf("drawdown %.2f%% >= entry threshold %.2f%%", r.Drawdown*100, s.EntryThreshold*100))
		}
	case r.Drawdown >= s.AlertThreshold:
		if s.State == StateWatch {
			step(StateAlert, fmt.Sprintf("drawdown %.2f%% >= alert threshold %.2f%%", r.Drawdown*100, s.AlertThreshold*100))
		} else if s.State == StateSignal {
			step(StateAlert, fmt.Sprintf("drawdown %.2f%% back below entry threshold", r.Drawdown*100))
		}
	default:
		if s.State == StateAlert || s.State == StateSignal {
			step(StateWatch, fmt.Sprintf("drawdown %.2f%% recovered below alert threshold", r.Drawdown*100))
		}
	}

	return transitions
}

// ApplyPrice updates the leveraged instrument price. For position states it
// recomputes unrealized P/L and promotes ACTIVE to TARGET when the profit
// target is reached. TARGET is sticky until an explicit close.
func ApplyPrice(s *Signal, leveragedPrice float64) []Transition {
	s.CurrentPrice = leveragedPrice
	s.UpdatedAt = time.Now().UTC()

	if !s.State.HasPosition() || s.EntryPrice == nil || *s.EntryPrice <= 0 {
		return nil
	}

	s.UnrealizedPL = (leveragedPrice - *s.EntryPrice) / *s.EntryPrice

	if s.State == StateActive && s.UnrealizedPL >= s.ProfitTarget {
		t := Transition{
			Ticker: s.LeveragedTicker,
			From:   StateActive,
			To:     StateTarget,
			Reason: fmt.Sprintf("unrealized P/L %.2f%% >= target %.2f%%", s.UnrealizedPL*100, s.ProfitTarget*100),
			At:     s.UpdatedAt,
		}
		s.State = StateTarget
		return []Transition{t}
	}
	return nil
}

// Enter transitions SIGNAL to ACTIVE at the given fill price. Entry from any
// other state is rejected without mutation. Veto approval is the caller's
// responsibility; the lifecycle only enforces state compatibility.
func Enter(s *Signal, price float64, at time.Time) (Transition, error) {
	if s.State != StateSignal {
		return Transition{}, fmt.Errorf("%w: enter requires SIGNAL state, %s is %s", ErrInvalidTransition, s.LeveragedTicker, s.State)
	}
	if price <= 0 {
		return Transition{}, fmt.Errorf("%w: enter price must be positive, got %v", ErrInvalidTransition, price)
	}

	entry := price
	entryAt := at.UTC()
	s.EntryPrice = &entry
	s.EntryDate = &entryAt
	s.CurrentPrice = price
	s.UnrealizedPL = 0
	s.UpdatedAt = time.Now().UTC()

	t := Transition{
		Ticker: s.LeveragedTicker,
		From:   StateSignal,
		To:     StateActive,
		Reason: fmt.Sprintf("entered at %.2f", price),
		At:     s.UpdatedAt,
	}
	s.State = StateActive
	return t, nil
}

// Close exits an open position at the given price, returning the realized
// P/L fraction. The signal returns to WATCH with entry fields cleared; the
// next drawdown reading will re-grade it.
func Close(s *Signal, price float64) (float64, Transition, error) {
	if !s.State.HasPosition() {
		return 0, Transition{}, fmt.Errorf("%w: close requires ACTIVE or TARGET state, %s is %s", ErrInvalidTransition, s.LeveragedTicker, s.State)
	}
	if s.EntryPrice == nil || *s.EntryPrice <= 0 {
		return 0, Transition{}, fmt.Errorf("%w: %s has no entry price", ErrInvalidTransition, s.LeveragedTicker)
	}

	pl := (price - *s.EntryPrice) / *s.EntryPrice

	t := Transition{
		Ticker: s.LeveragedTicker,
		From:   s.State,
		To:     StateWatch,
		Reason: fmt.Sprintf("closed at %.2f, P/L %.2f%%", price, pl*100),
		At:     time.Now().UTC(),
	}

	s.State = StateWatch
	s.EntryPrice = nil
	s.EntryDate = nil
	s.UnrealizedPL = 0
	s.CurrentPrice = price
	s.UpdatedAt = t.At
	return pl, t, nil
}
