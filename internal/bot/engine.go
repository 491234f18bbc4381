// Package bot runs the decision engine: it refreshes drawdowns and signal
// states for the whole universe, scores confidence for triggered signals,
// gates entries through the risk checks, and feeds closed trades back into
// the factor weights.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"etf-reversion-bot/config"
	"etf-reversion-bot/internal/cache"
	"etf-reversion-bot/internal/confidence"
	"etf-reversion-bot/internal/drawdown"
	"etf-reversion-bot/internal/events"
	"etf-reversion-bot/internal/learning"
	"etf-reversion-bot/internal/logging"
	"etf-reversion-bot/internal/marketdata"
	"etf-reversion-bot/internal/notification"
	"etf-reversion-bot/internal/portfolio"
	"etf-reversion-bot/internal/risk"
	"etf-reversion-bot/internal/signal"
	"etf-reversion-bot/internal/sizing"
	"etf-reversion-bot/internal/universe"
)

// ErrUnknownTicker means the ticker is not part of the tracked universe.
var ErrUnknownTicker = errors.New("ticker not tracked")

const (
	historyDays  = 730
	cycleLockTTL = 2 * time.Minute
	priceTTL     = 10 * time.Minute
)

// Store is the persistence the engine needs. *database.Repository
// implements it.
type Store interface {
	UpsertSignal(ctx context.Context, s *signal.Signal) error
	ListSignals(ctx context.Context) ([]*signal.Signal, error)
	RecordTransition(ctx context.Context, tr signal.Transition) error
	SaveATH(ctx context.Context, ticker string, price float64, date time.Time) error
	GetATH(ctx context.Context, ticker string) (float64, time.Time, error)
	SavePortfolio(ctx context.Context, snap portfolio.Snapshot, expectedVersion int64) error
	LoadPortfolio(ctx context.Context) (portfolio.Snapshot, bool, error)
	SaveEntryFactors(ctx context.Context, ticker string, factors map[string]confidence.Assessment) error
	GetEntryFactors(ctx context.Context, ticker string) (map[string]confidence.Assessment, error)
	DeleteEntryFactors(ctx context.Context, ticker string) error
}

// Evaluation is the full decision bundle for one SIGNAL-state pair.
type Evaluation struct {
	Ticker      string                 `json:"ticker"`
	Signal      signal.Signal          `json:"signal"`
	Confidence  *confidence.Result     `json:"confidence,omitempty"`
	Veto        *risk.Decision         `json:"veto,omitempty"`
	Sizing      *sizing.Recommendation `json:"sizing,omitempty"`
	EvaluatedAt time.Time              `json:"evaluated_at"`
}

// CycleReport summarizes one refresh cycle.
type CycleReport struct {
	CycleID     string              `json:"cycle_id"`
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"duration"`
	Evaluated   int                 `json:"evaluated"`
	Skipped     int                 `json:"skipped"`
	Failures    map[string]string   `json:"failures,omitempty"`
	Transitions []signal.Transition `json:"transitions,omitempty"`
}

// Engine owns all mutable signal and portfolio state. Every operation
// takes the engine lock, so state changes are serialized.
type Engine struct {
	cfg      *config.Config
	log      *logging.Logger
	store    Store
	provider marketdata.Provider
	cache    *cache.Cache
	scorer   *confidence.Scorer
	gate     *risk.Gate
	sizer    *sizing.Sizer
	learner  *learning.Learner
	tracker  *portfolio.Tracker
	bus      *events.EventBus
	notifier *notification.Manager

	mu               sync.Mutex
	signals          map[string]*signal.Signal
	evaluations      map[string]*Evaluation
	factors          confidence.Snapshot
	lastSavedVersion int64
	lastCycle        *CycleReport
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Config   *config.Config
	Store    Store
	Provider marketdata.Provider
	Cache    *cache.Cache
	Learner  *learning.Learner
	Tracker  *portfolio.Tracker
	Bus      *events.EventBus
	Notifier *notification.Manager
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		cfg:         d.Config,
		log:         logging.Default().WithComponent("engine"),
		store:       d.Store,
		provider:    d.Provider,
		cache:       d.Cache,
		scorer:      confidence.NewScorer(d.Config.ConfidenceConfig.UseWeights, d.Config.ConfidenceConfig.MinFactorSamples),
		gate:        risk.NewGate(risk.LimitsFromConfig(d.Config.RiskConfig)),
		sizer:       sizing.NewSizer(d.Config.SizingConfig),
		learner:     d.Learner,
		tracker:     d.Tracker,
		bus:         d.Bus,
		notifier:    d.Notifier,
		signals:     make(map[string]*signal.Signal),
		evaluations: make(map[string]*Evaluation),
	}
}

// Init loads persisted signals for the configured universe, creating fresh
// WATCH-state records for pairs seen for the first time, and primes the
// scorer with the stored weight table.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	persisted, err := e.store.ListSignals(ctx)
	if err != nil {
		return fmt.Errorf("failed to load signals: %w", err)
	}
	byTicker := make(map[string]*signal.Signal, len(persisted))
	for _, s := range persisted {
		byTicker[s.LeveragedTicker] = s
	}

	for _, pair := range universe.Pairs {
		if s, ok := byTicker[pair.LeveragedTicker]; ok {
			e.signals[pair.LeveragedTicker] = s
			continue
		}
		s := signal.New(pair)
		if err := e.store.UpsertSignal(ctx, s); err != nil {
			return fmt.Errorf("failed to seed signal %s: %w", pair.LeveragedTicker, err)
		}
		e.signals[pair.LeveragedTicker] = s
	}

	weights, err := e.learner.WeightTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to load weight table: %w", err)
	}
	e.scorer.SetWeights(weights)

	e.lastSavedVersion = e.tracker.Version()
	e.log.Info("engine initialized",
		"pairs", len(e.signals), "weights", len(weights))
	return nil
}

// SetFactorSnapshot replaces the factor inputs used by subsequent
// evaluations. External collectors push snapshots here.
func (e *Engine) SetFactorSnapshot(ctx context.Context, snap confidence.Snapshot) error {
	e.mu.Lock()
	e.factors = snap
	e.mu.Unlock()
	return e.cache.SetFactorSnapshot(ctx, snap, time.Hour)
}

// FactorSnapshot returns the current factor inputs.
func (e *Engine) FactorSnapshot() confidence.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.factors
}

// RefreshCycle re-evaluates the whole universe: drawdowns, lifecycle
// transitions, and decision bundles for SIGNAL-state pairs. One pair's
// failure never stops the others.
func (e *Engine) RefreshCycle(ctx context.Context) (*CycleReport, error) {
	cycleID := uuid.New().String()
	if err := e.cache.AcquireCycleLock(ctx, cycleID, cycleLockTTL); err != nil {
		return nil, err
	}
	defer func() {
		if err := e.cache.ReleaseCycleLock(context.WithoutCancel(ctx), cycleID); err != nil {
			e.log.Warn("failed to release cycle lock", "error", err.Error())
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.log.WithCycleID(cycleID)
	report := &CycleReport{
		CycleID:   cycleID,
		StartedAt: time.Now().UTC(),
		Failures:  make(map[string]string),
	}
	log.Info("refresh cycle started", "pairs", len(e.signals))

	type pairResult struct {
		ticker      string
		transitions []signal.Transition
		skipped     bool
		err         error
	}

	results := make(chan pairResult, len(e.signals))
	var wg sync.WaitGroup
	for _, s := range e.signals {
		wg.Add(1)
		go func(s *signal.Signal) {
			defer wg.Done()
			transitions, skipped, err := e.evaluatePair(ctx, log, s)
			results <- pairResult{s.LeveragedTicker, transitions, skipped, err}
		}(s)
	}
	wg.Wait()
	close(results)

	for res := range results {
		switch {
		case res.err != nil:
			report.Failures[res.ticker] = res.err.Error()
			log.Error("pair evaluation failed", "ticker", res.ticker, "error", res.err.Error())
			e.bus.PublishError("refresh_cycle", fmt.Sprintf("%s: %v", res.ticker, res.err))
		case res.skipped:
			report.Skipped++
		default:
			report.Evaluated++
		}
		report.Transitions = append(report.Transitions, res.transitions...)
	}

	for _, tr := range report.Transitions {
		e.bus.PublishTransition(tr.Ticker, string(tr.From), string(tr.To), tr.Reason)
		if err := e.notifier.SendTransition(tr.Ticker, string(tr.From), string(tr.To), tr.Reason); err != nil {
			log.Warn("transition notification failed", "ticker", tr.Ticker, "error", err.Error())
		}
	}

	e.evaluateSignals(ctx, log, report.Transitions)
	e.persistPortfolio(ctx, log)

	report.Duration = time.Since(report.StartedAt)
	e.lastCycle = report
	log.Info("refresh cycle completed",
		"evaluated", report.Evaluated,
		"skipped", report.Skipped,
		"failures", len(report.Failures),
		"transitions", len(report.Transitions),
		"duration_ms", report.Duration.Milliseconds())
	e.bus.Publish(events.Event{
		Type: events.EventCycleCompleted,
		Data: map[string]interface{}{
			"cycle_id":  cycleID,
			"evaluated": report.Evaluated,
			"failures":  len(report.Failures),
		},
	})
	return report, nil
}

// evaluatePair refreshes one signal from price history. Insufficient
// history skips the pair and retains its prior state.
func (e *Engine) evaluatePair(ctx context.Context, log *logging.Logger, s *signal.Signal) ([]signal.Transition, bool, error) {
	history, err := e.history(ctx, s.UnderlyingTicker)
	if err != nil {
		return nil, false, fmt.Errorf("history fetch: %w", err)
	}

	result, err := drawdown.Compute(s.UnderlyingTicker, history)
	if err != nil {
		if errors.Is(err, drawdown.ErrInsufficientHistory) {
			log.Warn("skipping pair, insufficient history", "ticker", s.LeveragedTicker)
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("drawdown: %w", err)
	}

	athPrice, athDate, err := e.store.GetATH(ctx, s.UnderlyingTicker)
	if err != nil {
		return nil, false, err
	}
	result = drawdown.MergeATH(result, athPrice, athDate)
	if err := e.store.SaveATH(ctx, s.UnderlyingTicker, result.ATHPrice, result.ATHDate); err != nil {
		return nil, false, err
	}

	transitions := signal.ApplyDrawdown(s, result)

	price, err := e.provider.LatestPrice(ctx, s.LeveragedTicker)
	if err != nil {
		// Drawdown state is already updated; a missing leveraged quote
		// only stalls P/L marking.
		log.Warn("leveraged price fetch failed", "ticker", s.LeveragedTicker, "error", err.Error())
	} else {
		transitions = append(transitions, signal.ApplyPrice(s, price)...)
		if s.State.HasPosition() {
			if err := e.tracker.MarkPrice(s.LeveragedTicker, decimal.NewFromFloat(price)); err != nil &&
				!errors.Is(err, portfolio.ErrPositionNotFound) {
				log.Warn("mark price failed", "ticker", s.LeveragedTicker, "error", err.Error())
			}
		}
	}

	if err := e.store.UpsertSignal(ctx, s); err != nil {
		return transitions, false, err
	}
	for _, tr := range transitions {
		if err := e.store.RecordTransition(ctx, tr); err != nil {
			return transitions, false, err
		}
	}
	return transitions, false, nil
}

func (e *Engine) history(ctx context.Context, ticker string) ([]drawdown.Close, error) {
	cached, err := e.cache.GetPriceHistory(ctx, ticker)
	if err != nil {
		e.log.Warn("price cache read failed", "ticker", ticker, "error", err.Error())
	}
	if len(cached) > 0 {
		return cached, nil
	}

	days := e.cfg.MarketDataConfig.HistoryDays
	if days <= 0 {
		days = historyDays
	}
	history, err := e.provider.History(ctx, ticker, days)
	if err != nil {
		return nil, err
	}
	ttl := priceTTL
	if secs := e.cfg.MarketDataConfig.CacheTTLSecs; secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	if err := e.cache.SetPriceHistory(ctx, ticker, history, ttl); err != nil {
		e.log.Warn("price cache write failed", "ticker", ticker, "error", err.Error())
	}
	return history, nil
}

// evaluateSignals builds decision bundles for every SIGNAL-state pair and
// announces fresh triggers.
func (e *Engine) evaluateSignals(ctx context.Context, log *logging.Logger, transitions []signal.Transition) {
	triggered := make(map[string]bool)
	for _, tr := range transitions {
		if tr.To == signal.StateSignal {
			triggered[tr.Ticker] = true
		}
	}

	for ticker, s := range e.signals {
		if s.State != signal.StateSignal {
			delete(e.evaluations, ticker)
			continue
		}

		eval := e.buildEvaluation(ctx, s)
		e.evaluations[ticker] = eval

		if triggered[ticker] {
			level := string(eval.Confidence.Level)
			e.bus.PublishSignalTriggered(ticker, s.Drawdown, level)
			if err := e.notifier.SendSignal(ticker, s.Drawdown, level,
				fmt.Sprintf("%d of %d factors favorable", eval.Confidence.FavorableCount, eval.Confidence.TotalFactors)); err != nil {
				log.Warn("signal notification failed", "ticker", ticker, "error", err.Error())
			}
		}
	}
}

// buildEvaluation scores confidence, sizes the entry, and runs the veto
// gate for one SIGNAL-state pair. Callers hold the engine lock.
func (e *Engine) buildEvaluation(ctx context.Context, s *signal.Signal) *Evaluation {
	eval := &Evaluation{
		Ticker:      s.LeveragedTicker,
		Signal:      *s,
		Confidence:  e.scorer.Score(s, e.factors),
		EvaluatedAt: time.Now().UTC(),
	}

	rec, err := e.recommendSize(ctx, s)
	if err != nil {
		e.log.Warn("sizing failed", "ticker", s.LeveragedTicker, "error", err.Error())
		return eval
	}
	eval.Sizing = &rec

	decision := e.gate.Evaluate(e.tracker.RiskState(), risk.Proposed{
		Ticker:   s.LeveragedTicker,
		Sector:   s.Sector(),
		Leverage: s.Leverage,
		Value:    rec.Notional,
	})
	eval.Veto = &decision
	return eval
}

// recommendSize dispatches to the configured sizing method, falling back
// to fixed-fraction when Kelly lacks trade history.
func (e *Engine) recommendSize(ctx context.Context, s *signal.Signal) (sizing.Recommendation, error) {
	value := e.tracker.TotalValue().InexactFloat64()
	volRegime := e.factors.VolatilityRegime

	if e.cfg.SizingConfig.Method != sizing.MethodHalfKelly {
		return e.sizer.FixedFraction(value, s.Leverage, volRegime), nil
	}

	stats, err := e.tradeStats(ctx, s.LeveragedTicker)
	if err != nil {
		return sizing.Recommendation{}, err
	}
	rec, err := e.sizer.HalfKelly(value, s.Leverage, stats)
	if errors.Is(err, sizing.ErrInsufficientTradeHistory) {
		e.log.Debug("kelly sizing unavailable, using fixed fraction",
			"ticker", s.LeveragedTicker, "trades", stats.Trades)
		return e.sizer.FixedFraction(value, s.Leverage, volRegime), nil
	}
	return rec, err
}

func (e *Engine) tradeStats(ctx context.Context, ticker string) (sizing.Stats, error) {
	outcomes, err := e.learner.Outcomes(ctx)
	if err != nil {
		return sizing.Stats{}, err
	}
	return learning.ComputeStats(outcomes, ticker), nil
}

// Enter opens a position for a SIGNAL-state pair at the given price. The
// veto gate is consulted at execution time; a rejection returns the
// decision bundle with no state change.
func (e *Engine) Enter(ctx context.Context, ticker string, price float64) (*Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.signals[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	if s.State != signal.StateSignal {
		return nil, fmt.Errorf("%w: enter requires SIGNAL state, %s is %s",
			signal.ErrInvalidTransition, ticker, s.State)
	}

	eval := e.buildEvaluation(ctx, s)
	if eval.Veto == nil {
		return eval, fmt.Errorf("sizing unavailable for %s", ticker)
	}
	if !eval.Veto.Approved {
		e.log.Info("entry vetoed",
			"ticker", ticker, "criterion", eval.Veto.Criterion, "reason", eval.Veto.Reason)
		e.bus.PublishVetoRejected(ticker, eval.Veto.Criterion, eval.Veto.Reason)
		return eval, nil
	}

	now := time.Now().UTC()
	notional := decimal.NewFromFloat(eval.Sizing.Notional)
	if _, err := e.tracker.Enter(ticker, s.Sector(), s.Leverage,
		decimal.NewFromFloat(price), notional, now); err != nil {
		return eval, fmt.Errorf("portfolio entry failed: %w", err)
	}

	tr, err := signal.Enter(s, price, now)
	if err != nil {
		// Roll the cash movement back; the lifecycle rejected the entry.
		if _, _, cerr := e.tracker.Close(ticker, decimal.NewFromFloat(price)); cerr != nil {
			e.log.Error("rollback of rejected entry failed", "ticker", ticker, "error", cerr.Error())
		}
		return eval, err
	}

	factors := eval.Confidence.FactorMap()
	if err := e.store.SaveEntryFactors(ctx, ticker, factors); err != nil {
		e.log.Error("failed to persist entry factors", "ticker", ticker, "error", err.Error())
	}
	if err := e.store.UpsertSignal(ctx, s); err != nil {
		return eval, err
	}
	if err := e.store.RecordTransition(ctx, tr); err != nil {
		return eval, err
	}
	e.persistPortfolio(ctx, e.log)

	eval.Signal = *s
	delete(e.evaluations, ticker)
	e.log.Info("position opened",
		"ticker", ticker, "price", price, "notional", eval.Sizing.Notional)
	e.bus.PublishPositionOpened(ticker, price, eval.Sizing.Notional)
	if err := e.notifier.SendEntry(ticker, price, eval.Sizing.Notional); err != nil {
		e.log.Warn("entry notification failed", "ticker", ticker, "error", err.Error())
	}
	return eval, nil
}

// Close liquidates an ACTIVE or TARGET position, appends the trade
// outcome, and recomputes factor weights.
func (e *Engine) Close(ctx context.Context, ticker string, price float64) (*learning.TradeOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.signals[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}

	// Capture entry data before Close resets the signal.
	var entryPrice float64
	var entryDate time.Time
	if s.EntryPrice != nil {
		entryPrice = *s.EntryPrice
	}
	if s.EntryDate != nil {
		entryDate = *s.EntryDate
	}

	_, tr, err := signal.Close(s, price)
	if err != nil {
		return nil, err
	}

	realized, plFraction, err := e.tracker.Close(ticker, decimal.NewFromFloat(price))
	if err != nil {
		e.log.Error("portfolio close failed", "ticker", ticker, "error", err.Error())
	}

	factors, err := e.store.GetEntryFactors(ctx, ticker)
	if err != nil {
		e.log.Warn("entry factors unavailable for outcome", "ticker", ticker, "error", err.Error())
	}

	outcome := learning.NewOutcome(ticker, entryDate, time.Now().UTC(), entryPrice, price, factors)
	if err := e.learner.Record(ctx, outcome); err != nil {
		return nil, err
	}
	if _, err := e.learner.Recompute(ctx); err != nil {
		e.log.Error("weight recompute failed", "error", err.Error())
	} else if weights, err := e.learner.WeightTable(ctx); err == nil {
		e.scorer.SetWeights(weights)
		e.bus.Publish(events.Event{Type: events.EventWeightsUpdated, Data: map[string]interface{}{
			"outcome_id": outcome.ID,
		}})
	}

	if err := e.store.DeleteEntryFactors(ctx, ticker); err != nil {
		e.log.Warn("failed to clear entry factors", "ticker", ticker, "error", err.Error())
	}
	if err := e.store.UpsertSignal(ctx, s); err != nil {
		return outcome, err
	}
	if err := e.store.RecordTransition(ctx, tr); err != nil {
		return outcome, err
	}
	e.persistPortfolio(ctx, e.log)

	e.log.Info("position closed",
		"ticker", ticker, "price", price, "pl_fraction", plFraction)
	e.bus.PublishPositionClosed(ticker, price, realized.InexactFloat64(), plFraction)
	if err := e.notifier.SendClose(ticker, entryPrice, price, realized.InexactFloat64(), plFraction*100); err != nil {
		e.log.Warn("close notification failed", "ticker", ticker, "error", err.Error())
	}
	return outcome, nil
}

func (e *Engine) persistPortfolio(ctx context.Context, log *logging.Logger) {
	snap := e.tracker.Snapshot()
	if snap.Version == e.lastSavedVersion {
		return
	}
	if err := e.store.SavePortfolio(ctx, snap, e.lastSavedVersion); err != nil {
		log.Error("portfolio persistence failed", "error", err.Error())
		return
	}
	e.lastSavedVersion = snap.Version
}

// Signal returns a copy of one pair's signal record.
func (e *Engine) Signal(ticker string) (signal.Signal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.signals[ticker]
	if !ok {
		return signal.Signal{}, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return *s, nil
}

// Signals returns copies of all signal records.
func (e *Engine) Signals() []signal.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]signal.Signal, 0, len(e.signals))
	for _, s := range e.signals {
		out = append(out, *s)
	}
	return out
}

// Evaluation returns the latest decision bundle for a SIGNAL-state pair.
func (e *Engine) Evaluation(ticker string) (*Evaluation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eval, ok := e.evaluations[ticker]
	return eval, ok
}

// Evaluations returns all current decision bundles.
func (e *Engine) Evaluations() []*Evaluation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Evaluation, 0, len(e.evaluations))
	for _, eval := range e.evaluations {
		out = append(out, eval)
	}
	return out
}

// LastCycle returns the most recent cycle report.
func (e *Engine) LastCycle() *CycleReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCycle
}

// RecoveryStats computes drawdown episode statistics for one pair's
// underlying from its price history.
func (e *Engine) RecoveryStats(ctx context.Context, ticker string) (drawdown.RecoveryStats, error) {
	e.mu.Lock()
	s, ok := e.signals[ticker]
	if !ok {
		e.mu.Unlock()
		return drawdown.RecoveryStats{}, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	underlying := s.UnderlyingTicker
	threshold := s.EntryThreshold
	e.mu.Unlock()

	history, err := e.history(ctx, underlying)
	if err != nil {
		return drawdown.RecoveryStats{}, err
	}
	return drawdown.ComputeRecoveryStats(underlying, history, threshold)
}
