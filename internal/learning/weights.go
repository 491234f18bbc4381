package learning

import (
	"context"
	"fmt"
	"time"

	"etf-reversion-bot/internal/confidence"
	"etf-reversion-bot/internal/logging"
)

// FactorWeight is one factor's learned predictive weight: the win-rate
// difference between trades entered with the factor FAVORABLE and the rest.
type FactorWeight struct {
	Factor           string    `json:"factor"`
	Weight           float64   `json:"weight"`
	Samples          int       `json:"samples"`
	WinRateFavorable float64   `json:"win_rate_favorable"`
	WinRateOther     float64   `json:"win_rate_other"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store is the persistence the learner needs: an append-only outcome log
// and an atomically replaceable weight table.
type Store interface {
	AppendOutcome(ctx context.Context, o *TradeOutcome) error
	ListOutcomes(ctx context.Context) ([]TradeOutcome, error)
	ReplaceWeights(ctx context.Context, weights []FactorWeight) error
	ListWeights(ctx context.Context) ([]FactorWeight, error)
}

// Learner closes the feedback loop from trade outcomes to factor weights.
type Learner struct {
	store Store
	log   *logging.Logger
}

func NewLearner(store Store, log *logging.Logger) *Learner {
	return &Learner{store: store, log: log.WithComponent("learner")}
}

// Record appends the outcome of a closed trade to the log.
func (l *Learner) Record(ctx context.Context, o *TradeOutcome) error {
	if err := l.store.AppendOutcome(ctx, o); err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", o.Ticker, err)
	}
	l.log.Info("recorded trade outcome",
		"ticker", o.Ticker, "pl_fraction", o.PLFraction, "win", o.Win)
	return nil
}

// Recompute rebuilds the weight table from the full outcome log and
// replaces the stored table in one step. Running it twice on the same log
// yields the same table.
func (l *Learner) Recompute(ctx context.Context) ([]FactorWeight, error) {
	outcomes, err := l.store.ListOutcomes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcome log: %w", err)
	}

	weights := ComputeWeights(outcomes)
	if err := l.store.ReplaceWeights(ctx, weights); err != nil {
		return nil, fmt.Errorf("failed to replace factor weights: %w", err)
	}
	l.log.Info("recomputed factor weights", "outcomes", len(outcomes), "factors", len(weights))
	return weights, nil
}

// Outcomes loads the full closed-trade log.
func (l *Learner) Outcomes(ctx context.Context) ([]TradeOutcome, error) {
	return l.store.ListOutcomes(ctx)
}

// WeightTable loads the stored weights in the shape the scorer consumes.
func (l *Learner) WeightTable(ctx context.Context) (map[string]confidence.Weight, error) {
	weights, err := l.store.ListWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load factor weights: %w", err)
	}
	table := make(map[string]confidence.Weight, len(weights))
	for _, w := range weights {
		table[w.Factor] = confidence.Weight{Value: w.Weight, Samples: w.Samples}
	}
	return table, nil
}

// ComputeWeights derives one weight per registered factor from the outcome
// log. For each factor the outcomes split into the trades entered with the
// factor FAVORABLE and the rest; the weight is the win-rate difference
// between the groups. Outcomes missing a factor count toward the
// complement. A factor with an empty group on either side weighs zero.
func ComputeWeights(outcomes []TradeOutcome) []FactorWeight {
	now := time.Now().UTC()
	names := confidence.FactorNames()
	weights := make([]FactorWeight, 0, len(names))

	for _, name := range names {
		var favTotal, favWins, otherTotal, otherWins int
		for _, o := range outcomes {
			if o.Factors[name] == confidence.Favorable {
				favTotal++
				if o.Win {
					favWins++
				}
			} else {
				otherTotal++
				if o.Win {
					otherWins++
				}
			}
		}

		fw := FactorWeight{Factor: name, Samples: len(outcomes), UpdatedAt: now}
		if favTotal > 0 && otherTotal > 0 {
			fw.WinRateFavorable = float64(favWins) / float64(favTotal)
			fw.WinRateOther = float64(otherWins) / float64(otherTotal)
			fw.Weight = fw.WinRateFavorable - fw.WinRateOther
		}
		weights = append(weights, fw)
	}
	return weights
}
