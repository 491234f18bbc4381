// Package marketdata supplies closing-price history and latest prices for
// the tracked tickers.
package marketdata

import (
	"context"

	"etf-reversion-bot/internal/drawdown"
)

// Provider is the price source the engine evaluates against.
type Provider interface {
	// History returns daily closes for a ticker, oldest first.
	History(ctx context.Context, ticker string, days int) ([]drawdown.Close, error)
	// LatestPrice returns the most recent traded price.
	LatestPrice(ctx context.Context, ticker string) (float64, error)
}
