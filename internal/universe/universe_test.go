package universe

import "testing"

// TestGet tests case-insensitive lookup by leveraged ticker
func TestGet(t *testing.T) {
	p, ok := Get("tqqq")
	if !ok {
		t.Fatal("Expected TQQQ to be tracked")
	}
	if p.UnderlyingTicker != "QQQ" {
		t.Errorf("Expected underlying QQQ, got %s", p.UnderlyingTicker)
	}
	if p.AlertThreshold >= p.EntryThreshold {
		t.Errorf("Alert threshold %v should be below entry threshold %v", p.AlertThreshold, p.EntryThreshold)
	}

	if _, ok := Get("SPXL"); ok {
		t.Error("SPXL should not be tracked")
	}
}

// TestThresholdOrdering checks every pair keeps alert below entry threshold
func TestThresholdOrdering(t *testing.T) {
	for _, p := range Pairs {
		if p.AlertThreshold >= p.EntryThreshold {
			t.Errorf("%s: alert threshold %v >= entry threshold %v", p.LeveragedTicker, p.AlertThreshold, p.EntryThreshold)
		}
		if p.Leverage < 2 {
			t.Errorf("%s: unexpected leverage %v", p.LeveragedTicker, p.Leverage)
		}
	}
}

// TestSector tests sector derivation from pair names
func TestSector(t *testing.T) {
	tests := []struct {
		ticker   string
		expected string
	}{
		{"TECL", "tech"},
		{"FAS", "financials"},
		{"LABU", "biotech"},
		{"UNKNOWN", "other"},
	}

	for _, tt := range tests {
		if got := Sector(tt.ticker); got != tt.expected {
			t.Errorf("Sector(%s) = %s, expected %s", tt.ticker, got, tt.expected)
		}
	}
}

// TestUnderlyingTickers verifies deduplication preserves order
func TestUnderlyingTickers(t *testing.T) {
	tickers := UnderlyingTickers()
	if len(tickers) != len(Pairs) {
		t.Errorf("Expected %d unique underlyings, got %d", len(Pairs), len(tickers))
	}
	if tickers[0] != "QQQ" {
		t.Errorf("Expected QQQ first, got %s", tickers[0])
	}
}
