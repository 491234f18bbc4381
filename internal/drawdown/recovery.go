package drawdown

import "sort"

// RecoveryStats summarizes historical drawdown episodes at a threshold:
// how often the instrument fell that far from its running high, and how many
// trading days each recovery back to the high took.
type RecoveryStats struct {
	Ticker             string  `json:"ticker"`
	Threshold          float64 `json:"threshold"`
	TotalEpisodes      int     `json:"total_episodes"`
	AvgRecoveryDays    float64 `json:"avg_recovery_days"`
	MedianRecoveryDays float64 `json:"median_recovery_days"`
	MinRecoveryDays    int     `json:"min_recovery_days"`
	MaxRecoveryDays    int     `json:"max_recovery_days"`
	RecoveryRate       float64 `json:"recovery_rate"` // completed / total episodes
}

// ComputeRecoveryStats finds every run where the close fell at least
// threshold below its running high and measures the days back to a new high.
// An episode still open at the end of history counts toward the total but
// not toward the day statistics.
func ComputeRecoveryStats(ticker string, history []Close, threshold float64) (RecoveryStats, error) {
	if len(history) < 2 {
		return RecoveryStats{}, ErrInsufficientHistory
	}

	runningMax := history[0].Price
	inDrawdown := false
	startIdx := 0
	var episodes []int

	for i, c := range history {
		if c.Price > runningMax {
			runningMax = c.Price
		}
		dd := 0.0
		if runningMax > 0 {
			dd = (runningMax - c.Price) / runningMax
		}
		if !inDrawdown && dd >= threshold {
			inDrawdown = true
			startIdx = i
		} else if inDrawdown && dd <= 0 {
			inDrawdown = false
			episodes = append(episodes, i-startIdx)
		}
	}

	total := len(episodes)
	if inDrawdown {
		total++
	}

	stats := RecoveryStats{
		Ticker:        ticker,
		Threshold:     threshold,
		TotalEpisodes: total,
	}
	if len(episodes) == 0 {
		return stats, nil
	}

	sum := 0
	min := episodes[0]
	max := episodes[0]
	for _, d := range episodes {
		sum += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}

	sorted := append([]int(nil), episodes...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	median := float64(sorted[mid])
	if len(sorted)%2 == 0 {
		median = float64(sorted[mid-1]+sorted[mid]) / 2
	}

	stats.AvgRecoveryDays = float64(sum) / float64(len(episodes))
	stats.MedianRecoveryDays = median
	stats.MinRecoveryDays = min
	stats.MaxRecoveryDays = max
	stats.RecoveryRate = float64(len(episodes)) / float64(total)
	return stats, nil
}
