// Package drawdown computes declines from running all-time highs over
// closing-price history.
package drawdown

import (
	"errors"
	"time"
)

// ErrInsufficientHistory is returned when fewer than two closing prices are
// available. Callers skip the pair for the cycle and retain prior state.
var ErrInsufficientHistory = errors.New("insufficient price history")

// Close is one closing price observation.
type Close struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// Result of a drawdown calculation for one underlying instrument.
type Result struct {
	Ticker       string    `json:"ticker"`
	CurrentPrice float64   `json:"current_price"`
	ATHPrice     float64   `json:"ath_price"`
	ATHDate      time.Time `json:"ath_date"`
	Drawdown     float64   `json:"drawdown"` // fraction in [0,1)
	AsOf         time.Time `json:"as_of"`
}

// Compute calculates the drawdown of the final close from the running
// all-time high. Ties for the high resolve to the most recent occurrence.
// The result is clamped to zero when the last close is the high itself.
func Compute(ticker string, history []Close) (Result, error) {
	if len(history) < 2 {
		return Result{}, ErrInsufficientHistory
	}

	athPrice := history[0].Price
	athDate := history[0].Date
	for _, c := range history[1:] {
		if c.Price >= athPrice {
			athPrice = c.Price
			athDate = c.Date
		}
	}

	last := history[len(history)-1]
	dd := 0.0
	if athPrice > 0 {
		dd = (athPrice - last.Price) / athPrice
	}
	if dd < 0 {
		dd = 0
	}

	return Result{
		Ticker:       ticker,
		CurrentPrice: last.Price,
		ATHPrice:     athPrice,
		ATHDate:      athDate,
		Drawdown:     dd,
		AsOf:         time.Now().UTC(),
	}, nil
}

// MergeATH reconciles a freshly computed result with the ATH previously
// persisted for the pair. The persisted high only moves up: re-fetched
// history with gaps must not lower it.
func MergeATH(r Result, persistedATH float64, persistedDate time.Time) Result {
	if persistedATH <= r.ATHPrice {
		return r
	}
	r.ATHPrice = persistedATH
	r.ATHDate = persistedDate
	if r.ATHPrice > 0 {
		r.Drawdown = (r.ATHPrice - r.CurrentPrice) / r.ATHPrice
	}
	if r.Drawdown < 0 {
		r.Drawdown = 0
	}
	return r
}
