package signal

import (
	"errors"
	"testing"
	"time"

	"etf-reversion-bot/internal/drawdown"
	"etf-reversion-bot/internal/universe"
)

func testPair() universe.Pair {
	p, _ := universe.Get("TQQQ") // entry 5%, alert 3%, target 10%
	return p
}

func reading(athPrice, current float64) drawdown.Result {
	dd := 0.0
	if athPrice > 0 {
		dd = (athPrice - current) / athPrice
	}
	if dd < 0 {
		dd = 0
	}
	return drawdown.Result{
		Ticker:       "QQQ",
		CurrentPrice: current,
		ATHPrice:     athPrice,
		ATHDate:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Drawdown:     dd,
	}
}

// TestWatchToAlert tests the first drawdown-driven transition
func TestWatchToAlert(t *testing.T) {
	s := New(testPair())

	ApplyDrawdown(s, reading(100, 99)) // 1%
	if s.State != StateWatch {
		t.Errorf("Expected WATCH at 1%% drawdown, got %s", s.State)
	}

	trs := ApplyDrawdown(s, reading(100, 96.5)) // 3.5%
	if s.State != StateAlert {
		t.Errorf("Expected ALERT at 3.5%% drawdown, got %s", s.State)
	}
	if len(trs) != 1 || trs[0].From != StateWatch || trs[0].To != StateAlert {
		t.Errorf("Expected one WATCH->ALERT transition, got %+v", trs)
	}
}

// TestAlertHysteresis verifies recovery uses the alert bound, not the entry bound
func TestAlertHysteresis(t *testing.T) {
	s := New(testPair())
	ApplyDrawdown(s, reading(100, 96)) // ALERT at 4%

	ApplyDrawdown(s, reading(100, 96.5)) // 3.5%, still above alert
	if s.State != StateAlert {
		t.Errorf("Expected ALERT to hold at 3.5%%, got %s", s.State)
	}

	ApplyDrawdown(s, reading(100, 97.5)) // 2.5%, below alert
	if s.State != StateWatch {
		t.Errorf("Expected WATCH after recovery below alert bound, got %s", s.State)
	}
}

// TestAlertToSignalAndBack tests the entry-threshold boundary
func TestAlertToSignalAndBack(t *testing.T) {
	s := New(testPair())
	ApplyDrawdown(s, reading(100, 96)) // ALERT

	ApplyDrawdown(s, reading(100, 94)) // 6%
	if s.State != StateSignal {
		t.Errorf("Expected SIGNAL at 6%% drawdown, got %s", s.State)
	}

	ApplyDrawdown(s, reading(100, 96)) // back to 4%
	if s.State != StateAlert {
		t.Errorf("Expected SIGNAL to fall back to ALERT at 4%%, got %s", s.State)
	}
}

// TestGapStraightToSignal checks the gapped-reading path records the ALERT hop
func TestGapStraightToSignal(t *testing.T) {
	s := New(testPair())

	trs := ApplyDrawdown(s, reading(100, 92)) // 8%, straight past both thresholds
	if s.State != StateSignal {
		t.Errorf("Expected SIGNAL after gap reading, got %s", s.State)
	}
	if len(trs) != 2 {
		t.Fatalf("Expected 2 audit transitions for the gap, got %d", len(trs))
	}
	if trs[0].To != StateAlert || trs[1].To != StateSignal {
		t.Errorf("Expected WATCH->ALERT->SIGNAL trail, got %+v", trs)
	}
}

// TestScenarioSixPercent covers the $100 ATH / $94 close / 5% threshold case
func TestScenarioSixPercent(t *testing.T) {
	s := New(testPair())
	ApplyDrawdown(s, reading(100, 97)) // prior ALERT
	ApplyDrawdown(s, reading(100, 94))
	if s.State != StateSignal {
		t.Errorf("Expected SIGNAL at 6%% drawdown with 5%% threshold, got %s", s.State)
	}
}

// TestEnterRequiresSignalState tests entry-state enforcement
func TestEnterRequiresSignalState(t *testing.T) {
	s := New(testPair())

	if _, err := Enter(s, 50, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition entering from WATCH, got %v", err)
	}
	if s.EntryPrice != nil {
		t.Error("Rejected enter must not mutate the signal")
	}

	ApplyDrawdown(s, reading(100, 94))
	if _, err := Enter(s, 50, time.Now()); err != nil {
		t.Fatalf("Unexpected error entering from SIGNAL: %v", err)
	}
	if s.State != StateActive {
		t.Errorf("Expected ACTIVE after enter, got %s", s.State)
	}
	if s.EntryPrice == nil || *s.EntryPrice != 50 {
		t.Error("Entry price should be set after enter")
	}
	if s.EntryDate == nil {
		t.Error("Entry date should be set after enter")
	}
}

// TestActivePositionIgnoresDrawdown verifies only P/L drives position states
func TestActivePositionIgnoresDrawdown(t *testing.T) {
	s := New(testPair())
	ApplyDrawdown(s, reading(100, 94))
	if _, err := Enter(s, 50, time.Now()); err != nil {
		t.Fatal(err)
	}

	ApplyDrawdown(s, reading(100, 100)) // full recovery
	if s.State != StateActive {
		t.Errorf("Drawdown recovery must not move an ACTIVE position, got %s", s.State)
	}
}

// TestActiveToTarget tests the profit-target promotion and its stickiness
func TestActiveToTarget(t *testing.T) {
	s := New(testPair())
	ApplyDrawdown(s, reading(100, 94))
	if _, err := Enter(s, 50, time.Now()); err != nil {
		t.Fatal(err)
	}

	ApplyPrice(s, 52) // +4%
	if s.State != StateActive {
		t.Errorf("Expected ACTIVE below target, got %s", s.State)
	}

	trs := ApplyPrice(s, 55.5) // +11%
	if s.State != StateTarget {
		t.Errorf("Expected TARGET at +11%%, got %s", s.State)
	}
	if len(trs) != 1 || trs[0].From != StateActive {
		t.Errorf("Expected ACTIVE->TARGET transition, got %+v", trs)
	}

	ApplyPrice(s, 51) // +2%, target already hit
	if s.State != StateTarget {
		t.Errorf("TARGET should be sticky until close, got %s", s.State)
	}
}

// TestClose tests the close operation and entry-field invariant
func TestClose(t *testing.T) {
	s := New(testPair())

	if _, _, err := Close(s, 55); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition closing from WATCH, got %v", err)
	}

	ApplyDrawdown(s, reading(100, 94))
	if _, err := Enter(s, 50, time.Now()); err != nil {
		t.Fatal(err)
	}

	pl, tr, err := Close(s, 55)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got, want := pl, 0.10; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("Expected 10%% realized P/L, got %f", pl)
	}
	if tr.To != StateWatch {
		t.Errorf("Expected transition back to WATCH, got %s", tr.To)
	}
	if s.State != StateWatch || s.EntryPrice != nil || s.EntryDate != nil {
		t.Error("Close must clear entry fields and return to WATCH")
	}
}

// TestEntryFieldInvariant checks entry fields track position states exactly
func TestEntryFieldInvariant(t *testing.T) {
	s := New(testPair())
	states := func() {
		hasEntry := s.EntryPrice != nil && s.EntryDate != nil
		if hasEntry != s.State.HasPosition() {
			t.Errorf("Entry-field invariant violated in state %s (hasEntry=%v)", s.State, hasEntry)
		}
	}

	states()
	ApplyDrawdown(s, reading(100, 94))
	states()
	if _, err := Enter(s, 50, time.Now()); err != nil {
		t.Fatal(err)
	}
	states()
	ApplyPrice(s, 56)
	states()
	if _, _, err := Close(s, 56); err != nil {
		t.Fatal(err)
	}
	states()
}
