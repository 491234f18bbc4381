package confidence

import (
	"time"

	"etf-reversion-bot/internal/signal"
)

// Rating thresholds are expressed as favorable share of the factor set so
// the same cutoffs hold under learned weighting.
const (
	highShare   = 10.0 / 14.0
	mediumShare = 5.0 / 14.0
)

// Weight is a learned per-factor multiplier with the sample count it was
// estimated from.
type Weight struct {
	Value   float64
	Samples int
}

// Result is one full confidence evaluation for a ticker.
type Result struct {
	Ticker         string         `json:"ticker"`
	Level          Level          `json:"level"`
	FavorableCount int            `json:"favorable_count"`
	TotalFactors   int            `json:"total_factors"`
	Weighted       bool           `json:"weighted"`
	Factors        []FactorResult `json:"factors"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}

// FactorMap returns the assessments keyed by factor name, the shape
// recorded on trade outcomes.
func (r *Result) FactorMap() map[string]Assessment {
	m := make(map[string]Assessment, len(r.Factors))
	for _, f := range r.Factors {
		m[f.Name] = f.Assessment
	}
	return m
}

// Scorer evaluates the registered factor rules against a snapshot.
// A zero-value Scorer counts factors unweighted.
type Scorer struct {
	useWeights bool
	minSamples int
	weights    map[string]Weight
}

func NewScorer(useWeights bool, minSamples int) *Scorer {
	return &Scorer{useWeights: useWeights, minSamples: minSamples}
}

// SetWeights replaces the learned weight table. Factors absent from the
// table, or estimated from fewer than the minimum sample count, score with
// weight 1.0 as if unweighted.
func (sc *Scorer) SetWeights(w map[string]Weight) {
	sc.weights = w
}

// Score runs every registered factor rule in order and rates the result.
// Rating is HIGH when at least 10/14 of the factor weight is favorable,
// MEDIUM from 5/14, LOW below. Unweighted mode is the same computation
// with every factor at weight 1.0.
func (sc *Scorer) Score(s *signal.Signal, snap Snapshot) *Result {
	res := &Result{
		Ticker:       s.LeveragedTicker,
		TotalFactors: len(rules),
		Weighted:     sc.useWeights,
		Factors:      make([]FactorResult, 0, len(rules)),
		EvaluatedAt:  time.Now().UTC(),
	}

	var favorableWeight, totalWeight float64
	for _, r := range rules {
		fr := r.classify(s, snap)
		res.Factors = append(res.Factors, fr)
		if fr.Assessment == Favorable {
			res.FavorableCount++
		}

		w := sc.factorWeight(r.name)
		totalWeight += w
		if fr.Assessment == Favorable {
			favorableWeight += w
		}
	}

	if totalWeight <= 0 {
		// Degenerate weight table, fall back to plain counts.
		favorableWeight = float64(res.FavorableCount)
		totalWeight = float64(res.TotalFactors)
	}

	share := favorableWeight / totalWeight
	switch {
	case share >= highShare:
		res.Level = High
	case share >= mediumShare:
		res.Level = Medium
	default:
		res.Level = Low
	}
	return res
}

func (sc *Scorer) factorWeight(name string) float64 {
	if !sc.useWeights {
		return 1.0
	}
	w, ok := sc.weights[name]
	if !ok || w.Samples < sc.minSamples {
		return 1.0
	}
	if w.Value < 0 {
		return 0
	}
	return w.Value
}
