// Package confidence grades how strongly independent market, sentiment and
// fundamental factors favor a mean-reversion entry on an open signal.
package confidence

import (
	"fmt"

	"etf-reversion-bot/internal/signal"
)

// Assessment classifies one factor reading
type Assessment string

const (
	Favorable   Assessment = "FAVORABLE"
	Neutral     Assessment = "NEUTRAL"
	Unfavorable Assessment = "UNFAVORABLE"
)

// Level is the overall conviction rating
type Level string

const (
	High   Level = "HIGH"
	Medium Level = "MEDIUM"
	Low    Level = "LOW"
)

// Factor names. The registry below is the single registration point for the
// rule set; FactorNames preserves evaluation order.
const (
	FactorDrawdownDepth     = "drawdown_depth"
	FactorVolatilityRegime  = "volatility_regime"
	FactorRateTrajectory    = "rate_trajectory"
	FactorYieldCurve        = "yield_curve"
	FactorFilingSentiment   = "filing_sentiment"
	FactorFundamentals      = "fundamentals_health"
	FactorPredictionMarket  = "prediction_market"
	FactorEarningsProximity = "earnings_proximity"
	FactorGeopoliticalRisk  = "geopolitical_risk"
	FactorSocialSentiment   = "social_sentiment"
	FactorNewsSentiment     = "news_sentiment"
	FactorMarketBreadth     = "market_breadth"
	FactorSmartMoney        = "smart_money"
	FactorPortfolioRisk     = "portfolio_risk"
)

// Snapshot carries the already-fetched factor inputs for one evaluation.
// Nil pointers and empty strings mean the upstream source had no data; those
// factors grade NEUTRAL rather than failing the assessment.
type Snapshot struct {
	VolatilityRegime string   `json:"volatility_regime"` // LOW, NORMAL, ELEVATED, EXTREME
	RateTrajectory   string   `json:"rate_trajectory"`   // CUTTING, HOLDING, HIKING
	YieldCurve       string   `json:"yield_curve"`       // NORMAL, FLAT, INVERTED
	MaterialFilings  *int     `json:"material_filings,omitempty"`
	Fundamentals     string   `json:"fundamentals"` // STRONG, MIXED, WEAK
	DownturnProb     *float64 `json:"downturn_prob,omitempty"`
	DaysToEarnings   *int     `json:"days_to_earnings,omitempty"`
	GeopoliticalRisk string   `json:"geopolitical_risk"` // LOW, MODERATE, HIGH
	SocialSentiment  string   `json:"social_sentiment"`  // BEARISH, NEUTRAL, BULLISH
	NewsSentiment    string   `json:"news_sentiment"`    // BEARISH, NEUTRAL, BULLISH
	BreadthRegime    string   `json:"breadth_regime"`    // RISK_OFF, MIXED, RISK_ON
	SmartMoneyFlow   string   `json:"smart_money_flow"`  // BUYING, NEUTRAL, SELLING
	RiskCheckPassed  *bool    `json:"risk_check_passed,omitempty"`
}

// FactorResult is the assessment of one factor
type FactorResult struct {
	Name       string     `json:"name"`
	Assessment Assessment `json:"assessment"`
	Reason     string     `json:"reason"`
}

type rule struct {
	name     string
	classify func(s *signal.Signal, snap Snapshot) FactorResult
}

// rules is the closed factor registry, evaluated in order. Adding or
// removing a factor happens here and nowhere else.
var rules = []rule{
	{FactorDrawdownDepth, classifyDrawdownDepth},
	{FactorVolatilityRegime, classifyVolatilityRegime},
	{FactorRateTrajectory, classifyRateTrajectory},
	{FactorYieldCurve, classifyYieldCurve},
	{FactorFilingSentiment, classifyFilingSentiment},
	{FactorFundamentals, classifyFundamentals},
	{FactorPredictionMarket, classifyPredictionMarket},
	{FactorEarningsProximity, classifyEarningsProximity},
	{FactorGeopoliticalRisk, classifyGeopoliticalRisk},
	{FactorSocialSentiment, classifySocialSentiment},
	{FactorNewsSentiment, classifyNewsSentiment},
	{FactorMarketBreadth, classifyMarketBreadth},
	{FactorSmartMoney, classifySmartMoney},
	{FactorPortfolioRisk, classifyPortfolioRisk},
}

// FactorNames returns the registered factor names in evaluation order.
func FactorNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

func classifyDrawdownDepth(s *signal.Signal, _ Snapshot) FactorResult {
	dd := s.Drawdown
	switch {
	case dd >= s.EntryThreshold*1.5:
		return FactorResult{FactorDrawdownDepth, Favorable, fmt.Sprintf("deep drawdown: %.1f%%", dd*100)}
	case dd >= s.EntryThreshold:
		return FactorResult{FactorDrawdownDepth, Neutral, fmt.Sprintf("at threshold: %.1f%%", dd*100)}
	default:
		return FactorResult{FactorDrawdownDepth, Unfavorable, fmt.Sprintf("shallow: %.1f%%", dd*100)}
	}
}

func classifyVolatilityRegime(_ *signal.Signal, snap Snapshot) FactorResult {
	switch snap.VolatilityRegime {
	case "ELEVATED", "EXTREME":
		return FactorResult{FactorVolatilityRegime, Favorable, fmt.Sprintf("volatility %s: fear present", snap.VolatilityRegime)}
	case "NORMAL":
		return FactorResult{FactorVolatilityRegime, Neutral, "volatility in normal range"}
	case "LOW":
		return FactorResult{FactorVolatilityRegime, Unfavorable, "volatility low: complacent market"}
	default:
		return FactorResult{FactorVolatilityRegime, Neutral, "volatility regime unavailable"}
	}
}

func classifyRateTrajectory(_ *signal.Signal, snap Snapshot) FactorResult {
	switch snap.RateTrajectory {
	case "CUTTING":
		return FactorResult{FactorRateTrajectory, Favorable, "policy rates being cut"}
	case "HIKING":
		return FactorResult{FactorRateTrajectory, Unfavorable, "policy rates being hiked"}
	case "":
		return FactorResult{FactorRateTrajectory, Neutral, "rate trajectory unavailable"}
	default:
		return FactorResult{FactorRateTrajectory, Neutral, "policy rates on hold"}
	}
}

func classifyYieldCurve(_ *signal.Signal, snap Snapshot) FactorResult {
	switch snap.YieldCurve {
	case "NORMAL":
		return FactorResult{FactorYieldCurve, Favorable, "normal yield curve"}
	case "INVERTED":
		return FactorResult{FactorYieldCurve, Unfavorable, "inverted yield curve"}
	case "":
		return FactorResult{FactorYieldCurve, Neutral, "yield curve unavailable"}
	default:
		return FactorResult{FactorYieldCurve, Neutral, fmt.Sprintf("yield curve %s", snap.YieldCurve)}
	}
}

func classifyFilingSentiment(_ *signal.Signal, snap Snapshot) FactorResult {
	if snap.MaterialFilings == nil {
		return FactorResult{FactorFilingSentiment, Neutral, "filing data unavailable"}
	}
	n := *snap.MaterialFilings
	switch {
	case n == 0:
		return FactorResult{FactorFilingSentiment, Neutral, "no material filings"}
	case n > 3:
		return FactorResult{FactorFilingSentiment, Unfavorable, fmt.Sprintf("%d material filings", n)}
	default:
		return FactorResult{FactorFilingSentiment, Neutral, fmt.Sprintf("%d material filing(s)", n)}
	}
}

func classifyFundamentals(_ *signal.Signal, snap Snapshot) FactorResult {
	switch snap.Fundamentals {
	case "STRONG":
		return FactorResult{FactorFundamentals, Favorable, "fundamentals healthy"}
	case "WEAK":
		return FactorResult{FactorFundamentals, Unfavorable, "fundamentals deteriorating"}
	case "":
		return FactorResult{FactorFundamentals, Neutral, "fundamentals unavailable"}
	default:
		return FactorResult{FactorFundamentals, Neutral, "fundamentals mixed"}
	}
}

func classifyPredictionMarket(_ *signal.Signal, snap Snapshot) FactorResult {
	if snap.DownturnProb == nil {
		return FactorResult{FactorPredictionMarket, Neutral, "prediction market unavailable"}
	}
	p := *snap.DownturnProb
	switch {
	case p <= 0.25:
		return FactorResult{FactorPredictionMarket, Favorable, fmt.Sprintf("downturn odds low: %.0f%%", p*100)}
	case p >= 0.50:
		return FactorResult{FactorPredictionMarket, Unfavorable, fmt.Sprintf("downturn odds high: %.0f%%", p*100)}
	default:
		return FactorResult{FactorPredictionMarket, Neutral, fmt.Sprintf("downturn odds: %.0f%%", p*100)}
	}
}

func classifyEarningsProximity(_ *signal.Signal, snap Snapshot) FactorResult {
	if snap.DaysToEarnings == nil {
		return FactorResult{FactorEarningsProximity, Neutral, "earnings calendar unavailable"}
	}
	d := *snap.DaysToEarnings
	switch {
	case d <= 3:
		return FactorResult{FactorEarningsProximity, Unfavorable, fmt.Sprintf("earnings in %d day(s)", d)}
	case d >= 10:
		return FactorResult{FactorEarningsProximity, Favorable, fmt.Sprintf("no earnings for %d days", d)}
	default:
		return FactorResult{FactorEarningsProximity, Neutral, fmt.Sprintf("earnings in %d days", d)}
	}
}

func classifyGeopoliticalRisk(_ *signal.Signal, snap Snapshot) FactorResult {
	switch snap.GeopoliticalRisk {
	case "LOW":
		return FactorResult{FactorGeopoliticalRisk, Favorable, "low geopolitical risk"}
	case "HIGH":
		return FactorResult{FactorGeopoliticalRisk, Unfavorable, "high geopolitical risk"}
	case "":
		return FactorResult{FactorGeopoliticalRisk, Neutral, "geopolitical risk unavailable"}
	default:
		return FactorResult{FactorGeopoliticalRisk, Neutral, "moderate geopolitical risk"}
	}
}

// Contrarian: extreme bearish crowd sentiment is exactly what the
// mean-reversion thesis buys into.
func classifySocialSentiment(_ *signal.Signal, snap Snapshot) FactorResult {
	switch snap.SocialSentiment {
	case "BEARISH":
		return FactorResult{FactorSocialSentiment, Favorable, "social sentiment bearish (contrarian)"}
	case "BULLISH":
		return FactorResult{FactorSocialSentiment, Neutral, "social sentiment bullish"}
	default:
		return FactorResult{FactorSocialSentiment, Neutral, "social sentiment neutral"}
	}
}

// Contrarian, same inversion as social sentiment.
func classifyNewsSentiment(_ *signal.Signal, snap Snapshot) FactorResult {
	switch snap.NewsSentiment {
	case "BEARISH":
		return FactorResult{FactorNewsSentiment, Favorable, "news sentiment bearish (contrarian)"}
	case "BULLISH":
		return FactorResult{FactorNewsSentiment, Neutral, "news sentiment bullish"}
	default:
		return FactorResult{FactorNewsSentiment, Neutral, "news sentiment neutral"}
	}
}

func classifyMarketBreadth(_ *signal.Signal, snap Snapshot) FactorResult {
	switch snap.BreadthRegime {
	case "RISK_OFF":
		return FactorResult{FactorMarketBreadth, Favorable, "breadth risk-off (contrarian opportunity)"}
	case "RISK_ON":
		return FactorResult{FactorMarketBreadth, Neutral, "breadth risk-on"}
	default:
		return FactorResult{FactorMarketBreadth, Neutral, "breadth regime neutral"}
	}
}

func classifySmartMoney(_ *signal.Signal, snap Snapshot) FactorResult {
	switch snap.SmartMoneyFlow {
	case "BUYING":
		return FactorResult{FactorSmartMoney, Favorable, "smart-money flow net buying"}
	case "SELLING":
		return FactorResult{FactorSmartMoney, Unfavorable, "smart-money flow net selling"}
	case "":
		return FactorResult{FactorSmartMoney, Neutral, "smart-money data unavailable"}
	default:
		return FactorResult{FactorSmartMoney, Neutral, "smart-money flow balanced"}
	}
}

func classifyPortfolioRisk(_ *signal.Signal, snap Snapshot) FactorResult {
	if snap.RiskCheckPassed == nil {
		return FactorResult{FactorPortfolioRisk, Neutral, "portfolio risk check not run"}
	}
	if *snap.RiskCheckPassed {
		return FactorResult{FactorPortfolioRisk, Favorable, "portfolio risk check passed"}
	}
	return FactorResult{FactorPortfolioRisk, Unfavorable, "portfolio risk check failed"}
}
