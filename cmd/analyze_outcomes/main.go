// Command analyze_outcomes prints per-ticker trade statistics and the
// learned factor weight table from the outcome log.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"etf-reversion-bot/config"
	"etf-reversion-bot/internal/database"
	"etf-reversion-bot/internal/learning"
	"etf-reversion-bot/internal/universe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewDB(cfg.DatabaseConfig)
	if err != nil {
		fmt.Printf("failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	outcomes, err := repo.ListOutcomes(ctx)
	if err != nil {
		fmt.Printf("failed to load outcomes: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("TRADE OUTCOME ANALYSIS")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("\nClosed trades: %d\n", len(outcomes))
	if len(outcomes) == 0 {
		fmt.Println("Nothing to analyze yet.")
		return
	}

	printTickerStats(outcomes)
	printWeightTable(outcomes)
}

func printTickerStats(outcomes []learning.TradeOutcome) {
	fmt.Println("\nPER-TICKER STATISTICS")
	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("%-8s %8s %10s %12s %12s\n", "TICKER", "TRADES", "WIN RATE", "AVG W/L", "TOTAL P/L")

	tickers := make([]string, 0, len(universe.Pairs))
	for _, pair := range universe.Pairs {
		tickers = append(tickers, pair.LeveragedTicker)
	}

	for _, ticker := range tickers {
		stats := learning.ComputeStats(outcomes, ticker)
		if stats.Trades == 0 {
			continue
		}
		var totalPL float64
		for _, o := range outcomes {
			if o.Ticker == ticker {
				totalPL += o.PLFraction
			}
		}
		fmt.Printf("%-8s %8d %9.1f%% %12.2f %11.1f%%\n",
			ticker, stats.Trades, stats.WinRate*100, stats.AvgWinLossRatio, totalPL*100)
	}

	overall := learning.ComputeStats(outcomes, "")
	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("%-8s %8d %9.1f%% %12.2f\n",
		"ALL", overall.Trades, overall.WinRate*100, overall.AvgWinLossRatio)
}

func printWeightTable(outcomes []learning.TradeOutcome) {
	fmt.Println("\nFACTOR WEIGHT TABLE")
	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("%-22s %8s %10s %12s %12s\n", "FACTOR", "WEIGHT", "SAMPLES", "WIN (FAV)", "WIN (OTHER)")

	weights := learning.ComputeWeights(outcomes)
	sort.Slice(weights, func(i, j int) bool {
		return weights[i].Weight > weights[j].Weight
	})

	for _, w := range weights {
		fmt.Printf("%-22s %+8.3f %10d %11.1f%% %11.1f%%\n",
			w.Factor, w.Weight, w.Samples, w.WinRateFavorable*100, w.WinRateOther*100)
	}

	fmt.Println("\nPositive weights mean the factor's FAVORABLE reads preceded")
	fmt.Println("winning trades more often than its other reads did.")
}
