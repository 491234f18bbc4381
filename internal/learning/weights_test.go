package learning

import (
	"context"
	"math"
	"testing"
	"time"

	"etf-reversion-bot/internal/confidence"
	"etf-reversion-bot/internal/logging"
)

// memStore is an in-memory Store for learner tests.
type memStore struct {
	outcomes []TradeOutcome
	weights  []FactorWeight
	replaces int
}

func (m *memStore) AppendOutcome(_ context.Context, o *TradeOutcome) error {
	m.outcomes = append(m.outcomes, *o)
	return nil
}

func (m *memStore) ListOutcomes(_ context.Context) ([]TradeOutcome, error) {
	return append([]TradeOutcome(nil), m.outcomes...), nil
}

func (m *memStore) ReplaceWeights(_ context.Context, weights []FactorWeight) error {
	m.weights = append([]FactorWeight(nil), weights...)
	m.replaces++
	return nil
}

func (m *memStore) ListWeights(_ context.Context) ([]FactorWeight, error) {
	return append([]FactorWeight(nil), m.weights...), nil
}

func approxEq(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func outcome(ticker string, win bool, factors map[string]confidence.Assessment) TradeOutcome {
	exit := 95.0
	if win {
		exit = 110.0
	}
	o := NewOutcome(ticker,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
		100.0, exit, factors)
	return *o
}

func TestNewOutcome(t *testing.T) {
	o := NewOutcome("TQQQ",
		time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
		50.0, 55.0, nil)
	if !approxEq(o.PLFraction, 0.10) {
		t.Errorf("pl fraction: got %v, want 0.10", o.PLFraction)
	}
	if !o.Win {
		t.Error("positive P/L must flag a win")
	}
	if o.ID == "" {
		t.Error("outcome ID should be set")
	}

	loser := NewOutcome("TQQQ", o.EntryDate, o.ExitDate, 50.0, 45.0, nil)
	if loser.Win {
		t.Error("negative P/L must not flag a win")
	}
}

// TestComputeWeights: the weight is the win-rate gap between the
// FAVORABLE-at-entry group and everything else.
func TestComputeWeights(t *testing.T) {
	fav := map[string]confidence.Assessment{confidence.FactorVolatilityRegime: confidence.Favorable}
	neu := map[string]confidence.Assessment{confidence.FactorVolatilityRegime: confidence.Neutral}
	outcomes := []TradeOutcome{
		// FAVORABLE group: 3 of 4 win.
		outcome("TQQQ", true, fav),
		outcome("TQQQ", true, fav),
		outcome("SOXL", true, fav),
		outcome("SOXL", false, fav),
		// Complement: 1 of 4 wins.
		outcome("TQQQ", true, neu),
		outcome("TQQQ", false, neu),
		outcome("UPRO", false, neu),
		outcome("UPRO", false, nil),
	}

	weights := ComputeWeights(outcomes)
	if len(weights) != len(confidence.FactorNames()) {
		t.Fatalf("expected a weight per registered factor, got %d", len(weights))
	}

	byName := map[string]FactorWeight{}
	for _, w := range weights {
		byName[w.Factor] = w
	}

	vol := byName[confidence.FactorVolatilityRegime]
	if !approxEq(vol.WinRateFavorable, 0.75) || !approxEq(vol.WinRateOther, 0.25) {
		t.Errorf("win rates: fav %v other %v", vol.WinRateFavorable, vol.WinRateOther)
	}
	if !approxEq(vol.Weight, 0.50) {
		t.Errorf("weight: got %v, want 0.50", vol.Weight)
	}
	if vol.Samples != 8 {
		t.Errorf("samples: got %d, want 8", vol.Samples)
	}

	// A factor never FAVORABLE has no favorable group and weighs zero.
	if w := byName[confidence.FactorSmartMoney]; w.Weight != 0 {
		t.Errorf("factor with empty favorable group: weight %v, want 0", w.Weight)
	}
}

func TestComputeWeightsEmptyLog(t *testing.T) {
	weights := ComputeWeights(nil)
	if len(weights) != len(confidence.FactorNames()) {
		t.Fatalf("expected a zero weight per factor, got %d", len(weights))
	}
	for _, w := range weights {
		if w.Weight != 0 || w.Samples != 0 {
			t.Errorf("%s: expected zero weight and samples, got %+v", w.Factor, w)
		}
	}
}

// TestRecomputeIdempotent: recomputing twice over the same log replaces the
// table with identical values.
func TestRecomputeIdempotent(t *testing.T) {
	store := &memStore{}
	l := NewLearner(store, logging.NewNop())
	ctx := context.Background()

	fav := map[string]confidence.Assessment{confidence.FactorYieldCurve: confidence.Favorable}
	for i := 0; i < 3; i++ {
		if err := l.Record(ctx, NewOutcome("TQQQ", time.Now(), time.Now(), 100, 108, fav)); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Record(ctx, NewOutcome("TQQQ", time.Now(), time.Now(), 100, 92, nil)); err != nil {
		t.Fatal(err)
	}

	first, err := l.Recompute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Recompute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if store.replaces != 2 {
		t.Fatalf("each recompute must replace the table, got %d replaces", store.replaces)
	}
	for i := range first {
		if first[i].Factor != second[i].Factor ||
			!approxEq(first[i].Weight, second[i].Weight) ||
			first[i].Samples != second[i].Samples {
			t.Errorf("factor %s differs between recomputes", first[i].Factor)
		}
	}
}

func TestWeightTable(t *testing.T) {
	store := &memStore{weights: []FactorWeight{
		{Factor: confidence.FactorYieldCurve, Weight: 0.3, Samples: 12},
	}}
	l := NewLearner(store, logging.NewNop())

	table, err := l.WeightTable(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	w, ok := table[confidence.FactorYieldCurve]
	if !ok || !approxEq(w.Value, 0.3) || w.Samples != 12 {
		t.Errorf("weight table conversion: %+v", table)
	}
}

func TestComputeStats(t *testing.T) {
	outcomes := []TradeOutcome{
		// TQQQ: two wins (+10%), one loss (-5%).
		outcome("TQQQ", true, nil),
		outcome("TQQQ", true, nil),
		outcome("TQQQ", false, nil),
		// Other ticker should be excluded by the filter.
		outcome("SOXL", false, nil),
	}

	stats := ComputeStats(outcomes, "TQQQ")
	if stats.Trades != 3 {
		t.Fatalf("trades: got %d, want 3", stats.Trades)
	}
	if !approxEq(stats.WinRate, 2.0/3.0) {
		t.Errorf("win rate: got %v", stats.WinRate)
	}
	// Wins are +10%, the loss is -5%: ratio 2.0.
	if !approxEq(stats.AvgWinLossRatio, 2.0) {
		t.Errorf("win/loss ratio: got %v, want 2.0", stats.AvgWinLossRatio)
	}

	all := ComputeStats(outcomes, "")
	if all.Trades != 4 {
		t.Errorf("aggregate trades: got %d, want 4", all.Trades)
	}

	empty := ComputeStats(nil, "TQQQ")
	if empty.Trades != 0 || empty.WinRate != 0 || empty.AvgWinLossRatio != 0 {
		t.Errorf("empty history should zero out: %+v", empty)
	}
}
