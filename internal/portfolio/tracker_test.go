package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestTracker() *Tracker {
	return NewTracker(dec("10000"), zerolog.Nop())
}

var entryDate = time.Date(2025, 4, 1, 14, 30, 0, 0, time.UTC)

func TestEnterAndClose(t *testing.T) {
	tr := newTestTracker()

	pos, err := tr.Enter("TQQQ", "technology", 3, dec("50"), dec("2000"), entryDate)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.Quantity.Equal(dec("40")) {
		t.Errorf("quantity: got %s, want 40", pos.Quantity)
	}
	if !tr.Snapshot().Cash.Equal(dec("8000")) {
		t.Errorf("cash after entry: got %s, want 8000", tr.Snapshot().Cash)
	}
	// Entry at the mark-to-entry price leaves total value unchanged.
	if !tr.TotalValue().Equal(dec("10000")) {
		t.Errorf("total value after entry: got %s", tr.TotalValue())
	}

	realized, plFraction, err := tr.Close("TQQQ", dec("55"))
	if err != nil {
		t.Fatal(err)
	}
	if !realized.Equal(dec("200")) {
		t.Errorf("realized: got %s, want 200", realized)
	}
	if plFraction < 0.0999 || plFraction > 0.1001 {
		t.Errorf("pl fraction: got %v, want 0.10", plFraction)
	}

	snap := tr.Snapshot()
	if !snap.Cash.Equal(dec("10200")) {
		t.Errorf("cash after close: got %s, want 10200", snap.Cash)
	}
	if !snap.RealizedPL.Equal(dec("200")) {
		t.Errorf("realized P/L: got %s, want 200", snap.RealizedPL)
	}
	if len(snap.Positions) != 0 {
		t.Errorf("positions should be empty after close, got %d", len(snap.Positions))
	}
}

func TestEnterRejections(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Enter("TQQQ", "technology", 3, dec("50"), dec("2000"), entryDate); err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Enter("TQQQ", "technology", 3, dec("50"), dec("1000"), entryDate); !errors.Is(err, ErrPositionExists) {
		t.Errorf("duplicate entry: got %v", err)
	}
	if _, err := tr.Enter("SOXL", "technology", 3, dec("30"), dec("9000"), entryDate); !errors.Is(err, ErrInsufficientCash) {
		t.Errorf("over-cash entry: got %v", err)
	}

	// Rejections must not mutate state.
	snap := tr.Snapshot()
	if !snap.Cash.Equal(dec("8000")) || len(snap.Positions) != 1 {
		t.Errorf("state mutated by rejected entry: %+v", snap)
	}
}

func TestCloseUnknownTicker(t *testing.T) {
	tr := newTestTracker()
	if _, _, err := tr.Close("TQQQ", dec("50")); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestMarkPriceAndValuation(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Enter("TQQQ", "technology", 3, dec("50"), dec("2000"), entryDate); err != nil {
		t.Fatal(err)
	}

	if err := tr.MarkPrice("TQQQ", dec("45")); err != nil {
		t.Fatal(err)
	}
	// 40 shares at $45 plus $8,000 cash.
	if !tr.TotalValue().Equal(dec("9800")) {
		t.Errorf("marked total value: got %s, want 9800", tr.TotalValue())
	}

	snap := tr.Snapshot()
	if !snap.Positions[0].UnrealizedPL().Equal(dec("-200")) {
		t.Errorf("unrealized P/L: got %s, want -200", snap.Positions[0].UnrealizedPL())
	}

	if err := tr.MarkPrice("ZZZZ", dec("1")); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("marking unknown ticker: got %v", err)
	}
}

func TestRiskStateProjection(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Enter("TQQQ", "technology", 3, dec("50"), dec("2000"), entryDate); err != nil {
		t.Fatal(err)
	}

	state := tr.RiskState()
	if state.TotalValue != 10000 || state.Cash != 8000 {
		t.Errorf("risk state valuation: %+v", state)
	}
	if len(state.Positions) != 1 || state.Positions[0].Value != 2000 || state.Positions[0].Leverage != 3 {
		t.Errorf("risk state positions: %+v", state.Positions)
	}
}

func TestAllocations(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Enter("TQQQ", "technology", 3, dec("50"), dec("2500"), entryDate); err != nil {
		t.Fatal(err)
	}

	allocs := tr.Allocations()
	if len(allocs) != 2 {
		t.Fatalf("expected cash plus one position, got %d", len(allocs))
	}
	if allocs[0].Label != "cash" || allocs[0].Pct != 0.75 {
		t.Errorf("cash slice: %+v", allocs[0])
	}
	if allocs[1].Label != "TQQQ" || allocs[1].Pct != 0.25 {
		t.Errorf("position slice: %+v", allocs[1])
	}
}

func TestVersionBumpsAndRestore(t *testing.T) {
	tr := newTestTracker()
	if tr.Version() != 0 {
		t.Fatalf("fresh tracker version: got %d", tr.Version())
	}
	if _, err := tr.Enter("TQQQ", "technology", 3, dec("50"), dec("2000"), entryDate); err != nil {
		t.Fatal(err)
	}
	if err := tr.MarkPrice("TQQQ", dec("52")); err != nil {
		t.Fatal(err)
	}
	if tr.Version() != 2 {
		t.Errorf("version after two mutations: got %d", tr.Version())
	}

	restored := Restore(tr.Snapshot(), zerolog.Nop())
	if restored.Version() != 2 {
		t.Errorf("restored version: got %d", restored.Version())
	}
	if !restored.TotalValue().Equal(tr.TotalValue()) {
		t.Errorf("restored total value: got %s, want %s", restored.TotalValue(), tr.TotalValue())
	}
	snap := restored.Snapshot()
	if len(snap.Positions) != 1 || snap.Positions[0].Ticker != "TQQQ" {
		t.Errorf("restored positions: %+v", snap.Positions)
	}
}
