package drawdown

import (
	"errors"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func closes(prices ...float64) []Close {
	out := make([]Close, len(prices))
	for i, p := range prices {
		out[i] = Close{Date: day(i), Price: p}
	}
	return out
}

// TestComputeDrawdown tests the basic ATH and drawdown calculation
func TestComputeDrawdown(t *testing.T) {
	r, err := Compute("QQQ", closes(90, 100, 97, 94))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if r.ATHPrice != 100 {
		t.Errorf("Expected ATH 100, got %f", r.ATHPrice)
	}
	if r.CurrentPrice != 94 {
		t.Errorf("Expected current price 94, got %f", r.CurrentPrice)
	}
	if got, want := r.Drawdown, 0.06; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("Expected drawdown 0.06, got %f", got)
	}
}

// TestComputeAtHigh verifies drawdown clamps to zero at a fresh high
func TestComputeAtHigh(t *testing.T) {
	r, err := Compute("SPY", closes(95, 98, 102))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if r.Drawdown != 0 {
		t.Errorf("Expected zero drawdown at fresh high, got %f", r.Drawdown)
	}
	if !r.ATHDate.Equal(day(2)) {
		t.Errorf("Expected ATH date %v, got %v", day(2), r.ATHDate)
	}
}

// TestComputeTieBreak checks that equal highs resolve to the latest date
func TestComputeTieBreak(t *testing.T) {
	r, err := Compute("IWM", closes(100, 95, 100, 90))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !r.ATHDate.Equal(day(2)) {
		t.Errorf("Tied ATH should use the most recent date %v, got %v", day(2), r.ATHDate)
	}
}

// TestComputeInsufficientHistory tests the minimum data point requirement
func TestComputeInsufficientHistory(t *testing.T) {
	for _, history := range [][]Close{nil, closes(100)} {
		if _, err := Compute("QQQ", history); !errors.Is(err, ErrInsufficientHistory) {
			t.Errorf("Expected ErrInsufficientHistory for %d points, got %v", len(history), err)
		}
	}
}

// TestComputeMonotoneATH verifies the running high never decreases and the
// drawdown stays inside [0,1)
func TestComputeMonotoneATH(t *testing.T) {
	prices := []float64{50, 80, 60, 120, 100, 90, 130, 40}
	prevATH := 0.0
	for end := 2; end <= len(prices); end++ {
		r, err := Compute("SOXX", closes(prices[:end]...))
		if err != nil {
			t.Fatalf("Unexpected error at window %d: %v", end, err)
		}
		if r.ATHPrice < prevATH {
			t.Errorf("ATH decreased from %f to %f at window %d", prevATH, r.ATHPrice, end)
		}
		prevATH = r.ATHPrice
		if r.Drawdown < 0 || r.Drawdown >= 1 {
			t.Errorf("Drawdown %f outside [0,1) at window %d", r.Drawdown, end)
		}
	}
}

// TestMergeATH checks that a persisted higher ATH overrides gapped history
func TestMergeATH(t *testing.T) {
	r, err := Compute("QQQ", closes(90, 95, 93))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	persistedDate := day(100)
	merged := MergeATH(r, 100, persistedDate)
	if merged.ATHPrice != 100 {
		t.Errorf("Expected persisted ATH 100 to win, got %f", merged.ATHPrice)
	}
	if got, want := merged.Drawdown, 0.07; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("Expected recomputed drawdown 0.07, got %f", got)
	}
	if !merged.ATHDate.Equal(persistedDate) {
		t.Errorf("Expected persisted ATH date to win")
	}

	// Lower persisted ATH never lowers a fresh high
	unchanged := MergeATH(r, 10, persistedDate)
	if unchanged.ATHPrice != r.ATHPrice {
		t.Errorf("Lower persisted ATH should not change result")
	}
}

// TestComputeRecoveryStats tests drawdown episode detection
func TestComputeRecoveryStats(t *testing.T) {
	// 100 -> 90 (10% drawdown) -> 101 (recovered in 2 days) -> 88 (open episode)
	history := closes(100, 90, 101, 88)
	stats, err := ComputeRecoveryStats("QQQ", history, 0.10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.TotalEpisodes != 2 {
		t.Errorf("Expected 2 episodes (one open), got %d", stats.TotalEpisodes)
	}
	if stats.AvgRecoveryDays != 1 {
		t.Errorf("Expected avg recovery of 1 day, got %f", stats.AvgRecoveryDays)
	}
	if stats.RecoveryRate != 0.5 {
		t.Errorf("Expected 0.5 recovery rate, got %f", stats.RecoveryRate)
	}
}

// TestComputeRecoveryStatsNoEpisodes verifies the empty-episode path
func TestComputeRecoveryStatsNoEpisodes(t *testing.T) {
	stats, err := ComputeRecoveryStats("SPY", closes(100, 99, 101, 102), 0.10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.TotalEpisodes != 0 {
		t.Errorf("Expected no episodes, got %d", stats.TotalEpisodes)
	}
}
