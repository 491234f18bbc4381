package risk

import (
	"math"
	"strings"
	"testing"
)

func testLimits() Limits {
	return Limits{
		MaxConcurrentPositions: 4,
		MaxSinglePositionPct:   0.30,
		MaxSectorExposurePct:   0.50,
		MaxLeveragedExposure:   3.0,
		MinCashReservePct:      0.20,
		CorrelationThreshold:   0.80,
	}
}

func approxEq(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// TestApproveWithHeadroom: a small entry into an idle portfolio passes
// every criterion and reports headroom for each.
func TestApproveWithHeadroom(t *testing.T) {
	g := NewGate(testLimits())
	state := PortfolioState{TotalValue: 10000, Cash: 10000}
	d := g.Evaluate(state, Proposed{Ticker: "TQQQ", Sector: "technology", Leverage: 3, Value: 2000})

	if !d.Approved {
		t.Fatalf("expected approval, got rejection: %s", d.Reason)
	}
	if len(d.Headroom) != 5 {
		t.Fatalf("expected headroom for 5 criteria, got %d", len(d.Headroom))
	}
	if !approxEq(d.Headroom[CriterionPositionCount], 3) {
		t.Errorf("position count headroom: got %v, want 3", d.Headroom[CriterionPositionCount])
	}
	if !approxEq(d.Headroom[CriterionSinglePosition], 0.10) {
		t.Errorf("single position headroom: got %v, want 0.10", d.Headroom[CriterionSinglePosition])
	}
	// Cash after entry is 80% against a 20% floor.
	if !approxEq(d.Headroom[CriterionCashReserve], 0.60) {
		t.Errorf("cash reserve headroom: got %v, want 0.60", d.Headroom[CriterionCashReserve])
	}
}

// TestSectorVeto reproduces the concentration case: a $2,000 technology
// entry on top of a $12,000 technology position in a $25,000 portfolio
// puts the sector at 56%, past the 50% cap.
func TestSectorVeto(t *testing.T) {
	g := NewGate(testLimits())
	state := PortfolioState{
		TotalValue: 25000,
		Cash:       13000,
		Positions: []Position{
			{Ticker: "TECL", Sector: "technology", Leverage: 3, Value: 12000},
		},
	}
	d := g.Evaluate(state, Proposed{Ticker: "SOXL", Sector: "technology", Leverage: 3, Value: 2000})

	if d.Approved {
		t.Fatal("expected sector veto")
	}
	if d.Criterion != CriterionSectorExposure {
		t.Fatalf("expected %s, got %s", CriterionSectorExposure, d.Criterion)
	}
	if !approxEq(d.Current, 0.56) {
		t.Errorf("current sector fraction: got %v, want 0.56", d.Current)
	}
	if !approxEq(d.Limit, 0.50) {
		t.Errorf("limit: got %v, want 0.50", d.Limit)
	}
	if d.Reason == "" || !strings.Contains(d.Reason, CriterionSectorExposure) {
		t.Errorf("reason should name the failed criterion: %q", d.Reason)
	}
}

// TestFirstFailureOrder: when several criteria would fail, the rejection
// cites the earliest one in the fixed order.
func TestFirstFailureOrder(t *testing.T) {
	g := NewGate(testLimits())
	// Four open positions (count full) all in one sector (sector full).
	positions := []Position{
		{Ticker: "TQQQ", Sector: "technology", Leverage: 3, Value: 4000},
		{Ticker: "UPRO", Sector: "technology", Leverage: 3, Value: 4000},
		{Ticker: "SOXL", Sector: "technology", Leverage: 3, Value: 4000},
		{Ticker: "TECL", Sector: "technology", Leverage: 3, Value: 4000},
	}
	state := PortfolioState{TotalValue: 20000, Cash: 4000, Positions: positions}
	d := g.Evaluate(state, Proposed{Ticker: "TNA", Sector: "technology", Leverage: 3, Value: 2000})

	if d.Approved {
		t.Fatal("expected rejection")
	}
	if d.Criterion != CriterionPositionCount {
		t.Errorf("expected first-order failure %s, got %s", CriterionPositionCount, d.Criterion)
	}
}

func TestSinglePositionVeto(t *testing.T) {
	g := NewGate(testLimits())
	state := PortfolioState{TotalValue: 10000, Cash: 10000}
	d := g.Evaluate(state, Proposed{Ticker: "TQQQ", Sector: "technology", Leverage: 3, Value: 3500})

	if d.Approved {
		t.Fatal("expected single-position veto")
	}
	if d.Criterion != CriterionSinglePosition {
		t.Fatalf("got criterion %s", d.Criterion)
	}
	if !approxEq(d.Current, 0.35) {
		t.Errorf("current: got %v, want 0.35", d.Current)
	}
}

func TestLeveragedExposureVeto(t *testing.T) {
	g := NewGate(testLimits())
	state := PortfolioState{
		TotalValue: 10000,
		Cash:       1000,
		Positions: []Position{
			{Ticker: "TQQQ", Sector: "technology", Leverage: 3, Value: 3000},
			{Ticker: "FAS", Sector: "financials", Leverage: 3, Value: 3000},
			{Ticker: "TNA", Sector: "smallcap", Leverage: 3, Value: 3000},
		},
	}
	// Notional after entry: (9000 + 1500) * 3 = 31500 on 10000, a 3.15x
	// multiple past the 3.0 cap. Earlier criteria all pass.
	d := g.Evaluate(state, Proposed{Ticker: "LABU", Sector: "biotech", Leverage: 3, Value: 1500})
	if d.Approved {
		t.Fatal("expected leveraged exposure veto")
	}
	if d.Criterion != CriterionLeveragedExposure {
		t.Fatalf("got criterion %s", d.Criterion)
	}
	if !approxEq(d.Current, 3.15) {
		t.Errorf("current multiple: got %v, want 3.15", d.Current)
	}
}

func TestCashReserveVeto(t *testing.T) {
	g := NewGate(testLimits())
	state := PortfolioState{
		TotalValue: 10000,
		Cash:       2500,
		Positions: []Position{
			{Ticker: "UPRO", Sector: "sp500", Leverage: 3, Value: 7500},
		},
	}
	d := g.Evaluate(state, Proposed{Ticker: "UCO", Sector: "crude", Leverage: 2, Value: 1000})

	if d.Approved {
		t.Fatal("expected cash reserve veto")
	}
	if d.Criterion != CriterionCashReserve {
		t.Fatalf("got criterion %s", d.Criterion)
	}
	// (2500-1000)/10000 = 15% against a 20% floor.
	if !approxEq(d.Current, 0.15) {
		t.Errorf("current cash fraction: got %v, want 0.15", d.Current)
	}
}

// TestCorrelationAdvisory: a highly correlated open position produces a
// warning but never a veto on its own.
func TestCorrelationAdvisory(t *testing.T) {
	g := NewGate(testLimits())
	state := PortfolioState{
		TotalValue: 20000,
		Cash:       17000,
		Positions: []Position{
			{Ticker: "TQQQ", Sector: "technology", Leverage: 3, Value: 3000},
		},
	}
	d := g.Evaluate(state, Proposed{Ticker: "TECL", Sector: "other", Leverage: 3, Value: 2000})

	if !d.Approved {
		t.Fatalf("correlation alone must not veto: %s", d.Reason)
	}
	if len(d.Warnings) != 1 {
		t.Fatalf("expected 1 correlation warning, got %d", len(d.Warnings))
	}
	if !strings.Contains(d.Warnings[0], "TQQQ") {
		t.Errorf("warning should name the correlated position: %q", d.Warnings[0])
	}

	// Uncorrelated entry: no warning.
	d = g.Evaluate(state, Proposed{Ticker: "UCO", Sector: "crude", Leverage: 2, Value: 2000})
	if len(d.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", d.Warnings)
	}
}

func TestCorrelationLookup(t *testing.T) {
	if got := Correlation("TQQQ", "TECL"); !approxEq(got, 0.95) {
		t.Errorf("order-insensitive lookup: got %v", got)
	}
	if got := Correlation("TECL", "TQQQ"); !approxEq(got, 0.95) {
		t.Errorf("reversed lookup: got %v", got)
	}
	if got := Correlation("TQQQ", "TQQQ"); !approxEq(got, 1.0) {
		t.Errorf("self correlation: got %v", got)
	}
	if got := Correlation("TQQQ", "ZZZZ"); got != 0 {
		t.Errorf("unknown pair: got %v", got)
	}
}

func TestExposureReport(t *testing.T) {
	limits := testLimits()
	state := PortfolioState{
		TotalValue: 20000,
		Cash:       9000,
		Positions: []Position{
			{Ticker: "TQQQ", Sector: "technology", Leverage: 3, Value: 8000},
			{Ticker: "FAS", Sector: "financials", Leverage: 3, Value: 3000},
		},
	}
	r := BuildReport(state, limits)

	if r.PositionCount != 2 {
		t.Errorf("position count: got %d", r.PositionCount)
	}
	if !approxEq(r.CashPct, 0.45) {
		t.Errorf("cash pct: got %v", r.CashPct)
	}
	if !approxEq(r.DeployedPct, 0.55) {
		t.Errorf("deployed pct: got %v", r.DeployedPct)
	}
	if !approxEq(r.LeveragedMultiple, 1.65) {
		t.Errorf("leveraged multiple: got %v", r.LeveragedMultiple)
	}
	if r.LargestPosition != "TQQQ" || !approxEq(r.LargestPct, 0.40) {
		t.Errorf("largest: got %s at %v", r.LargestPosition, r.LargestPct)
	}
	if len(r.Sectors) != 2 || r.Sectors[0].Sector != "technology" {
		t.Errorf("sectors should be sorted by value: %+v", r.Sectors)
	}
	// TQQQ at 40% breaches the 27% near-limit band for the 30% cap.
	found := false
	for _, w := range r.Warnings {
		if strings.Contains(w, "TQQQ") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected near-limit warning for TQQQ, got %v", r.Warnings)
	}
}

func TestExposureReportEmptyPortfolio(t *testing.T) {
	r := BuildReport(PortfolioState{}, testLimits())
	if r.PositionCount != 0 || r.TotalValue != 0 || len(r.Warnings) != 0 {
		t.Errorf("zero-value portfolio should produce an empty report: %+v", r)
	}
}
