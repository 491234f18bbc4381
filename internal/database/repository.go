package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"etf-reversion-bot/internal/confidence"
	"etf-reversion-bot/internal/learning"
	"etf-reversion-bot/internal/portfolio"
	"etf-reversion-bot/internal/signal"
)

// ErrVersionConflict means the portfolio row changed under an optimistic
// write; the caller should reload and retry.
var ErrVersionConflict = errors.New("portfolio version conflict")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// SIGNALS
// ============================================================================

// UpsertSignal writes a signal record keyed by leveraged ticker
func (r *Repository) UpsertSignal(ctx context.Context, s *signal.Signal) error {
	query := `
		INSERT INTO signals (
			leveraged_ticker, underlying_ticker, name, leverage, state,
			drawdown, ath_price, ath_date, underlying_price,
			entry_threshold, alert_threshold, profit_target,
			entry_price, entry_date, current_price, unrealized_pl,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (leveraged_ticker) DO UPDATE SET
			state = EXCLUDED.state,
			drawdown = EXCLUDED.drawdown,
			ath_price = EXCLUDED.ath_price,
			ath_date = EXCLUDED.ath_date,
			underlying_price = EXCLUDED.underlying_price,
			entry_price = EXCLUDED.entry_price,
			entry_date = EXCLUDED.entry_date,
			current_price = EXCLUDED.current_price,
			unrealized_pl = EXCLUDED.unrealized_pl,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool.Exec(ctx, query,
		s.LeveragedTicker, s.UnderlyingTicker, s.Name, s.Leverage, string(s.State),
		s.Drawdown, s.ATHPrice, s.ATHDate, s.UnderlyingPrice,
		s.EntryThreshold, s.AlertThreshold, s.ProfitTarget,
		s.EntryPrice, s.EntryDate, s.CurrentPrice, s.UnrealizedPL,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert signal %s: %w", s.LeveragedTicker, err)
	}
	return nil
}

// GetSignal loads one signal by leveraged ticker
func (r *Repository) GetSignal(ctx context.Context, ticker string) (*signal.Signal, error) {
	query := `
		SELECT leveraged_ticker, underlying_ticker, name, leverage, state,
			drawdown, ath_price, ath_date, underlying_price,
			entry_threshold, alert_threshold, profit_target,
			entry_price, entry_date, current_price, unrealized_pl,
			created_at, updated_at
		FROM signals WHERE leveraged_ticker = $1
	`
	s, err := scanSignal(r.db.Pool.QueryRow(ctx, query, ticker))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load signal %s: %w", ticker, err)
	}
	return s, nil
}

// ListSignals loads all signal records
func (r *Repository) ListSignals(ctx context.Context) ([]*signal.Signal, error) {
	query := `
		SELECT leveraged_ticker, underlying_ticker, name, leverage, state,
			drawdown, ath_price, ath_date, underlying_price,
			entry_threshold, alert_threshold, profit_target,
			entry_price, entry_date, current_price, unrealized_pl,
			created_at, updated_at
		FROM signals ORDER BY leveraged_ticker
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var signals []*signal.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

func scanSignal(row pgx.Row) (*signal.Signal, error) {
	var s signal.Signal
	var state string
	var athDate *time.Time
	if err := row.Scan(
		&s.LeveragedTicker, &s.UnderlyingTicker, &s.Name, &s.Leverage, &state,
		&s.Drawdown, &s.ATHPrice, &athDate, &s.UnderlyingPrice,
		&s.EntryThreshold, &s.AlertThreshold, &s.ProfitTarget,
		&s.EntryPrice, &s.EntryDate, &s.CurrentPrice, &s.UnrealizedPL,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.State = signal.State(state)
	if athDate != nil {
		s.ATHDate = *athDate
	}
	return &s, nil
}

// RecordTransition appends one lifecycle transition to the audit trail
func (r *Repository) RecordTransition(ctx context.Context, tr signal.Transition) error {
	query := `
		INSERT INTO signal_transitions (ticker, from_state, to_state, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		tr.Ticker, string(tr.From), string(tr.To), tr.Reason, tr.At)
	if err != nil {
		return fmt.Errorf("failed to record transition for %s: %w", tr.Ticker, err)
	}
	return nil
}

// ListTransitions returns the most recent transitions for a ticker
func (r *Repository) ListTransitions(ctx context.Context, ticker string, limit int) ([]signal.Transition, error) {
	query := `
		SELECT ticker, from_state, to_state, reason, occurred_at
		FROM signal_transitions
		WHERE ticker = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions for %s: %w", ticker, err)
	}
	defer rows.Close()

	var transitions []signal.Transition
	for rows.Next() {
		var tr signal.Transition
		var from, to string
		if err := rows.Scan(&tr.Ticker, &from, &to, &tr.Reason, &tr.At); err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}
		tr.From = signal.State(from)
		tr.To = signal.State(to)
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}

// ============================================================================
// ENTRY FACTORS
// ============================================================================

// SaveEntryFactors records the factor map captured at entry time
func (r *Repository) SaveEntryFactors(ctx context.Context, ticker string, factors map[string]confidence.Assessment) error {
	data, err := json.Marshal(factors)
	if err != nil {
		return fmt.Errorf("failed to encode entry factors: %w", err)
	}
	query := `
		INSERT INTO entry_factors (ticker, factors, recorded_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (ticker) DO UPDATE SET
			factors = EXCLUDED.factors,
			recorded_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.Pool.Exec(ctx, query, ticker, data); err != nil {
		return fmt.Errorf("failed to save entry factors for %s: %w", ticker, err)
	}
	return nil
}

// GetEntryFactors loads the factor map captured at entry, or nil when none
// is recorded
func (r *Repository) GetEntryFactors(ctx context.Context, ticker string) (map[string]confidence.Assessment, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT factors FROM entry_factors WHERE ticker = $1`, ticker,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry factors for %s: %w", ticker, err)
	}
	var factors map[string]confidence.Assessment
	if err := json.Unmarshal(data, &factors); err != nil {
		return nil, fmt.Errorf("failed to decode entry factors for %s: %w", ticker, err)
	}
	return factors, nil
}

// DeleteEntryFactors drops the captured map once the trade has closed
func (r *Repository) DeleteEntryFactors(ctx context.Context, ticker string) error {
	if _, err := r.db.Pool.Exec(ctx,
		`DELETE FROM entry_factors WHERE ticker = $1`, ticker); err != nil {
		return fmt.Errorf("failed to delete entry factors for %s: %w", ticker, err)
	}
	return nil
}

// ============================================================================
// ALL-TIME HIGHS
// ============================================================================

// SaveATH persists a ticker's running all-time high. The stored value only
// moves upward.
func (r *Repository) SaveATH(ctx context.Context, ticker string, price float64, date time.Time) error {
	query := `
		INSERT INTO ath_records (ticker, ath_price, ath_date, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (ticker) DO UPDATE SET
			ath_price = EXCLUDED.ath_price,
			ath_date = EXCLUDED.ath_date,
			updated_at = CURRENT_TIMESTAMP
		WHERE ath_records.ath_price < EXCLUDED.ath_price
	`
	if _, err := r.db.Pool.Exec(ctx, query, ticker, price, date); err != nil {
		return fmt.Errorf("failed to save ATH for %s: %w", ticker, err)
	}
	return nil
}

// GetATH loads a ticker's persisted all-time high. Returns zero values when
// none is recorded.
func (r *Repository) GetATH(ctx context.Context, ticker string) (float64, time.Time, error) {
	var price float64
	var date time.Time
	err := r.db.Pool.QueryRow(ctx,
		`SELECT ath_price, ath_date FROM ath_records WHERE ticker = $1`, ticker,
	).Scan(&price, &date)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to load ATH for %s: %w", ticker, err)
	}
	return price, date, nil
}

// ============================================================================
// PORTFOLIO
// ============================================================================

// SavePortfolio writes the portfolio aggregate and its positions in one
// transaction, guarded by the snapshot's version. expectedVersion is the
// version the caller loaded; the stored row must still carry it.
func (r *Repository) SavePortfolio(ctx context.Context, snap portfolio.Snapshot, expectedVersion int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin portfolio transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO portfolio (id, cash, initial_value, realized_pl, version, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			cash = EXCLUDED.cash,
			initial_value = EXCLUDED.initial_value,
			realized_pl = EXCLUDED.realized_pl,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE portfolio.version = $6
	`, snap.Cash.String(), snap.InitialValue.String(), snap.RealizedPL.String(),
		snap.Version, snap.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, `DELETE FROM portfolio_positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}
	for _, p := range snap.Positions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO portfolio_positions (
				ticker, sector, leverage, entry_price, quantity, notional, entry_date, current_price
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.Ticker, p.Sector, p.Leverage, p.EntryPrice.String(), p.Quantity.String(),
			p.Notional.String(), p.EntryDate, p.CurrentPrice.String()); err != nil {
			return fmt.Errorf("failed to save position %s: %w", p.Ticker, err)
		}
	}

	return tx.Commit(ctx)
}

// LoadPortfolio reads the portfolio aggregate and positions. found is false
// when no portfolio row has been persisted yet.
func (r *Repository) LoadPortfolio(ctx context.Context) (portfolio.Snapshot, bool, error) {
	var snap portfolio.Snapshot
	var cash, initial, realized string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT cash::text, initial_value::text, realized_pl::text, version, updated_at
		FROM portfolio WHERE id = 1
	`).Scan(&cash, &initial, &realized, &snap.Version, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if snap.Cash, err = decimal.NewFromString(cash); err != nil {
		return snap, false, fmt.Errorf("failed to parse cash: %w", err)
	}
	if snap.InitialValue, err = decimal.NewFromString(initial); err != nil {
		return snap, false, fmt.Errorf("failed to parse initial value: %w", err)
	}
	if snap.RealizedPL, err = decimal.NewFromString(realized); err != nil {
		return snap, false, fmt.Errorf("failed to parse realized P/L: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT ticker, sector, leverage, entry_price::text, quantity::text,
			notional::text, entry_date, current_price::text
		FROM portfolio_positions ORDER BY ticker
	`)
	if err != nil {
		return snap, false, fmt.Errorf("failed to load positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p portfolio.Position
		var entry, qty, notional, current string
		if err := rows.Scan(&p.Ticker, &p.Sector, &p.Leverage, &entry, &qty,
			&notional, &p.EntryDate, &current); err != nil {
			return snap, false, fmt.Errorf("failed to scan position row: %w", err)
		}
		if p.EntryPrice, err = decimal.NewFromString(entry); err != nil {
			return snap, false, fmt.Errorf("failed to parse entry price: %w", err)
		}
		if p.Quantity, err = decimal.NewFromString(qty); err != nil {
			return snap, false, fmt.Errorf("failed to parse quantity: %w", err)
		}
		if p.Notional, err = decimal.NewFromString(notional); err != nil {
			return snap, false, fmt.Errorf("failed to parse notional: %w", err)
		}
		if p.CurrentPrice, err = decimal.NewFromString(current); err != nil {
			return snap, false, fmt.Errorf("failed to parse current price: %w", err)
		}
		snap.Positions = append(snap.Positions, p)
	}
	if err := rows.Err(); err != nil {
		return snap, false, err
	}

	// Derive total value rather than trusting a stored aggregate.
	snap.TotalValue = snap.Cash
	for _, p := range snap.Positions {
		snap.TotalValue = snap.TotalValue.Add(p.Quantity.Mul(p.CurrentPrice))
	}
	return snap, true, nil
}

// ============================================================================
// TRADE OUTCOMES AND FACTOR WEIGHTS (learning.Store)
// ============================================================================

// AppendOutcome writes one closed-trade record to the append-only log
func (r *Repository) AppendOutcome(ctx context.Context, o *learning.TradeOutcome) error {
	factors, err := json.Marshal(o.Factors)
	if err != nil {
		return fmt.Errorf("failed to encode factor map: %w", err)
	}
	query := `
		INSERT INTO trade_outcomes (
			id, ticker, entry_date, exit_date, entry_price, exit_price,
			pl_fraction, win, factors, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.db.Pool.Exec(ctx, query,
		o.ID, o.Ticker, o.EntryDate, o.ExitDate, o.EntryPrice, o.ExitPrice,
		o.PLFraction, o.Win, factors, o.CreatedAt); err != nil {
		return fmt.Errorf("failed to append outcome for %s: %w", o.Ticker, err)
	}
	return nil
}

// ListOutcomes loads the full outcome log in exit-date order
func (r *Repository) ListOutcomes(ctx context.Context) ([]learning.TradeOutcome, error) {
	query := `
		SELECT id, ticker, entry_date, exit_date, entry_price, exit_price,
			pl_fraction, win, factors, created_at
		FROM trade_outcomes ORDER BY exit_date, created_at
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []learning.TradeOutcome
	for rows.Next() {
		var o learning.TradeOutcome
		var factors []byte
		if err := rows.Scan(&o.ID, &o.Ticker, &o.EntryDate, &o.ExitDate,
			&o.EntryPrice, &o.ExitPrice, &o.PLFraction, &o.Win, &factors, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		if len(factors) > 0 {
			if err := json.Unmarshal(factors, &o.Factors); err != nil {
				return nil, fmt.Errorf("failed to decode factor map: %w", err)
			}
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// ReplaceWeights swaps the whole factor-weight table in one transaction
func (r *Repository) ReplaceWeights(ctx context.Context, weights []learning.FactorWeight) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin weights transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM factor_weights`); err != nil {
		return fmt.Errorf("failed to clear factor weights: %w", err)
	}
	for _, w := range weights {
		if _, err := tx.Exec(ctx, `
			INSERT INTO factor_weights (
				factor, weight, samples, win_rate_favorable, win_rate_other, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6)
		`, w.Factor, w.Weight, w.Samples, w.WinRateFavorable, w.WinRateOther, w.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert weight for %s: %w", w.Factor, err)
		}
	}

	return tx.Commit(ctx)
}

// ListWeights loads the factor-weight table
func (r *Repository) ListWeights(ctx context.Context) ([]learning.FactorWeight, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT factor, weight, samples, win_rate_favorable, win_rate_other, updated_at
		FROM factor_weights ORDER BY factor
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list factor weights: %w", err)
	}
	defer rows.Close()

	var weights []learning.FactorWeight
	for rows.Next() {
		var w learning.FactorWeight
		if err := rows.Scan(&w.Factor, &w.Weight, &w.Samples,
			&w.WinRateFavorable, &w.WinRateOther, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan weight row: %w", err)
		}
		weights = append(weights, w)
	}
	return weights, rows.Err()
}

// compile-time check that the repository satisfies the learner's store
var _ learning.Store = (*Repository)(nil)
