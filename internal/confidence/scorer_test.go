package confidence

import (
	"testing"

	"etf-reversion-bot/internal/signal"
	"etf-reversion-bot/internal/universe"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }
func boolp(v bool) *bool        { return &v }

func testSignal(drawdown float64) *signal.Signal {
	pair, _ := universe.Get("TQQQ")
	s := signal.New(pair)
	s.Drawdown = drawdown
	return s
}

// bullishSnapshot grades every snapshot-driven factor FAVORABLE except
// filing sentiment, which never grades better than NEUTRAL.
func bullishSnapshot() Snapshot {
	return Snapshot{
		VolatilityRegime: "ELEVATED",
		RateTrajectory:   "CUTTING",
		YieldCurve:       "NORMAL",
		MaterialFilings:  intp(0),
		Fundamentals:     "STRONG",
		DownturnProb:     floatp(0.10),
		DaysToEarnings:   intp(20),
		GeopoliticalRisk: "LOW",
		SocialSentiment:  "BEARISH",
		NewsSentiment:    "BEARISH",
		BreadthRegime:    "RISK_OFF",
		SmartMoneyFlow:   "BUYING",
		RiskCheckPassed:  boolp(true),
	}
}

// TestRegistryComplete pins the factor set: all fourteen factors run, in
// registration order, exactly once.
func TestRegistryComplete(t *testing.T) {
	want := []string{
		FactorDrawdownDepth, FactorVolatilityRegime, FactorRateTrajectory,
		FactorYieldCurve, FactorFilingSentiment, FactorFundamentals,
		FactorPredictionMarket, FactorEarningsProximity, FactorGeopoliticalRisk,
		FactorSocialSentiment, FactorNewsSentiment, FactorMarketBreadth,
		FactorSmartMoney, FactorPortfolioRisk,
	}
	got := FactorNames()
	if len(got) != 14 {
		t.Fatalf("expected 14 factors, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("factor %d: got %s, want %s", i, got[i], want[i])
		}
	}

	res := NewScorer(false, 0).Score(testSignal(0.08), bullishSnapshot())
	if len(res.Factors) != 14 || res.TotalFactors != 14 {
		t.Fatalf("score did not evaluate all factors: %d", len(res.Factors))
	}
	seen := map[string]bool{}
	for _, f := range res.Factors {
		if seen[f.Name] {
			t.Errorf("factor %s evaluated twice", f.Name)
		}
		seen[f.Name] = true
	}
}

// Eleven favorable factors with the rest neutral rates HIGH.
func TestHighRating(t *testing.T) {
	snap := bullishSnapshot()
	snap.SmartMoneyFlow = "NEUTRAL"  // neutral
	snap.RiskCheckPassed = nil       // neutral
	// drawdown 8% on a 5% entry threshold is >= 1.5x, favorable

	res := NewScorer(false, 0).Score(testSignal(0.08), snap)
	if res.FavorableCount != 11 {
		t.Fatalf("expected 11 favorable, got %d", res.FavorableCount)
	}
	if res.Level != High {
		t.Errorf("expected HIGH, got %s", res.Level)
	}
}

func TestMediumAndLowRatings(t *testing.T) {
	// Empty snapshot: only drawdown_depth can grade non-neutral.
	res := NewScorer(false, 0).Score(testSignal(0.08), Snapshot{})
	if res.FavorableCount != 1 {
		t.Fatalf("expected 1 favorable, got %d", res.FavorableCount)
	}
	if res.Level != Low {
		t.Errorf("1/14 favorable: expected LOW, got %s", res.Level)
	}

	snap := Snapshot{
		VolatilityRegime: "EXTREME",
		RateTrajectory:   "CUTTING",
		YieldCurve:       "NORMAL",
		SocialSentiment:  "BEARISH",
	}
	res = NewScorer(false, 0).Score(testSignal(0.08), snap)
	if res.FavorableCount != 5 {
		t.Fatalf("expected 5 favorable, got %d", res.FavorableCount)
	}
	if res.Level != Medium {
		t.Errorf("5/14 favorable: expected MEDIUM, got %s", res.Level)
	}
}

// TestMissingInputsNeutral verifies absent data never grades a factor
// UNFAVORABLE.
func TestMissingInputsNeutral(t *testing.T) {
	res := NewScorer(false, 0).Score(testSignal(0.10), Snapshot{})
	for _, f := range res.Factors {
		if f.Name == FactorDrawdownDepth {
			continue
		}
		if f.Assessment != Neutral {
			t.Errorf("%s with no data: got %s, want NEUTRAL", f.Name, f.Assessment)
		}
	}
}

func TestContrarianSentiment(t *testing.T) {
	snap := Snapshot{SocialSentiment: "BEARISH", NewsSentiment: "BEARISH"}
	res := NewScorer(false, 0).Score(testSignal(0.08), snap)
	m := res.FactorMap()
	if m[FactorSocialSentiment] != Favorable {
		t.Errorf("bearish social sentiment should be contrarian favorable, got %s", m[FactorSocialSentiment])
	}
	if m[FactorNewsSentiment] != Favorable {
		t.Errorf("bearish news sentiment should be contrarian favorable, got %s", m[FactorNewsSentiment])
	}

	snap = Snapshot{SocialSentiment: "BULLISH", NewsSentiment: "BULLISH"}
	m = NewScorer(false, 0).Score(testSignal(0.08), snap).FactorMap()
	if m[FactorSocialSentiment] == Favorable || m[FactorNewsSentiment] == Favorable {
		t.Error("bullish crowd sentiment must not be favorable")
	}
}

func TestFilingSentimentNeverFavorable(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4, 10} {
		snap := Snapshot{MaterialFilings: intp(n)}
		m := NewScorer(false, 0).Score(testSignal(0.08), snap).FactorMap()
		if m[FactorFilingSentiment] == Favorable {
			t.Errorf("%d filings: filing sentiment must never be favorable", n)
		}
		want := Neutral
		if n > 3 {
			want = Unfavorable
		}
		if m[FactorFilingSentiment] != want {
			t.Errorf("%d filings: got %s, want %s", n, m[FactorFilingSentiment], want)
		}
	}
}

func TestDrawdownDepthBands(t *testing.T) {
	// TQQQ entry threshold is 5%.
	cases := []struct {
		dd   float64
		want Assessment
	}{
		{0.04, Unfavorable},
		{0.05, Neutral},
		{0.074, Neutral},
		{0.075, Favorable},
		{0.12, Favorable},
	}
	for _, c := range cases {
		m := NewScorer(false, 0).Score(testSignal(c.dd), Snapshot{}).FactorMap()
		if m[FactorDrawdownDepth] != c.want {
			t.Errorf("drawdown %.3f: got %s, want %s", c.dd, m[FactorDrawdownDepth], c.want)
		}
	}
}

// TestWeightedScoring checks the learned-weight path: well-sampled weights
// scale factor contributions, under-sampled ones fall back to 1.0.
func TestWeightedScoring(t *testing.T) {
	sc := NewScorer(true, 5)
	weights := map[string]Weight{}
	// Zero out every factor except the sentiment pair.
	for _, name := range FactorNames() {
		weights[name] = Weight{Value: 0.0, Samples: 20}
	}
	weights[FactorSocialSentiment] = Weight{Value: 0.4, Samples: 20}
	weights[FactorNewsSentiment] = Weight{Value: 0.4, Samples: 20}
	sc.SetWeights(weights)

	// Both surviving factors favorable: full weighted share, HIGH.
	snap := Snapshot{SocialSentiment: "BEARISH", NewsSentiment: "BEARISH"}
	res := sc.Score(testSignal(0.04), snap)
	if !res.Weighted {
		t.Fatal("result should be marked weighted")
	}
	if res.Level != High {
		t.Errorf("all weighted mass favorable: expected HIGH, got %s", res.Level)
	}

	// Neither favorable: zero weighted share, LOW.
	res = sc.Score(testSignal(0.04), Snapshot{})
	if res.Level != Low {
		t.Errorf("no weighted mass favorable: expected LOW, got %s", res.Level)
	}
}

func TestWeightedUnderSampledFallsBack(t *testing.T) {
	sc := NewScorer(true, 5)
	weights := map[string]Weight{}
	for _, name := range FactorNames() {
		// Below the sample floor: every weight reverts to 1.0.
		weights[name] = Weight{Value: 0.0, Samples: 2}
	}
	sc.SetWeights(weights)

	snap := bullishSnapshot()
	res := sc.Score(testSignal(0.08), snap)
	if res.FavorableCount != 13 {
		t.Fatalf("expected 13 favorable, got %d", res.FavorableCount)
	}
	if res.Level != High {
		t.Errorf("under-sampled weights must score as unweighted: got %s", res.Level)
	}
}

// TestDeterminism: identical inputs give identical results.
func TestDeterminism(t *testing.T) {
	sc := NewScorer(false, 0)
	snap := bullishSnapshot()
	a := sc.Score(testSignal(0.06), snap)
	b := sc.Score(testSignal(0.06), snap)
	if a.Level != b.Level || a.FavorableCount != b.FavorableCount {
		t.Fatal("scoring is not deterministic")
	}
	for i := range a.Factors {
		if a.Factors[i] != b.Factors[i] {
			t.Errorf("factor %d differs between runs", i)
		}
	}
}
