package sizing

import (
	"errors"
	"math"
	"testing"

	"etf-reversion-bot/config"
)

func testConfig() config.SizingConfig {
	return config.SizingConfig{
		Method:              MethodFixedFraction,
		RiskPerTradePct:     0.02,
		ExtremeVolReduction: 0.25,
		KellyFraction:       0.5,
		MinTradesForKelly:   10,
	}
}

func approxEq(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFixedFraction(t *testing.T) {
	s := NewSizer(testConfig())
	// 2% of $10,000 over 3x leverage.
	r := s.FixedFraction(10000, 3, "NORMAL")
	if r.Method != MethodFixedFraction {
		t.Errorf("method: got %s", r.Method)
	}
	if !approxEq(r.Fraction, 0.02) {
		t.Errorf("fraction: got %v, want 0.02", r.Fraction)
	}
	if !approxEq(r.Notional, 200.0/3.0) {
		t.Errorf("notional: got %v, want %v", r.Notional, 200.0/3.0)
	}
}

func TestFixedFractionExtremeVol(t *testing.T) {
	s := NewSizer(testConfig())
	r := s.FixedFraction(10000, 3, "EXTREME")
	if !approxEq(r.Fraction, 0.015) {
		t.Errorf("reduced fraction: got %v, want 0.015", r.Fraction)
	}
	if !approxEq(r.Notional, 150.0/3.0) {
		t.Errorf("notional: got %v, want %v", r.Notional, 150.0/3.0)
	}
}

// TestHalfKelly covers the reference numbers: p=0.55, b=1.8 gives
// f* = 0.300 and a half-Kelly fraction of 0.150.
func TestHalfKelly(t *testing.T) {
	s := NewSizer(testConfig())
	stats := Stats{Trades: 20, WinRate: 0.55, AvgWinLossRatio: 1.8}
	r, err := s.HalfKelly(10000, 3, stats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approxEq(r.Fraction, 0.15) {
		t.Errorf("half-kelly fraction: got %v, want 0.15", r.Fraction)
	}
	if !approxEq(r.Notional, 1500.0/3.0) {
		t.Errorf("notional: got %v, want %v", r.Notional, 1500.0/3.0)
	}
}

// TestHalfKellyFloorsAtZero: a losing edge never recommends negative size.
func TestHalfKellyFloorsAtZero(t *testing.T) {
	s := NewSizer(testConfig())
	stats := Stats{Trades: 20, WinRate: 0.30, AvgWinLossRatio: 1.0}
	r, err := s.HalfKelly(10000, 3, stats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Fraction != 0 || r.Notional != 0 {
		t.Errorf("negative edge must size to zero, got fraction %v", r.Fraction)
	}
}

func TestHalfKellyInsufficientHistory(t *testing.T) {
	s := NewSizer(testConfig())
	_, err := s.HalfKelly(10000, 3, Stats{Trades: 9, WinRate: 0.6, AvgWinLossRatio: 2})
	if !errors.Is(err, ErrInsufficientTradeHistory) {
		t.Fatalf("expected ErrInsufficientTradeHistory, got %v", err)
	}

	// All losers: win/loss ratio cannot be estimated.
	_, err = s.HalfKelly(10000, 3, Stats{Trades: 12, WinRate: 0, AvgWinLossRatio: 0})
	if !errors.Is(err, ErrInsufficientTradeHistory) {
		t.Fatalf("expected ErrInsufficientTradeHistory for zero ratio, got %v", err)
	}
}

// TestRecommendDispatch: the configured method selects the sizer, and a
// Kelly shortfall surfaces to the caller instead of silently falling back.
func TestRecommendDispatch(t *testing.T) {
	cfg := testConfig()
	cfg.Method = MethodHalfKelly
	s := NewSizer(cfg)

	_, err := s.Recommend(10000, 3, "NORMAL", Stats{Trades: 2})
	if !errors.Is(err, ErrInsufficientTradeHistory) {
		t.Fatalf("kelly shortfall must propagate, got %v", err)
	}

	cfg.Method = MethodFixedFraction
	s = NewSizer(cfg)
	r, err := s.Recommend(10000, 3, "NORMAL", Stats{})
	if err != nil || r.Method != MethodFixedFraction {
		t.Fatalf("fixed-fraction dispatch: %v %s", err, r.Method)
	}
}
