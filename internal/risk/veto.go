package risk

import "fmt"

// Decision is the outcome of one veto evaluation. On rejection, Criterion,
// Current and Limit identify the first check that failed. On approval,
// Headroom reports remaining room per criterion.
type Decision struct {
	Approved  bool               `json:"approved"`
	Criterion string             `json:"criterion,omitempty"`
	Current   float64            `json:"current,omitempty"`
	Limit     float64            `json:"limit,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Headroom  map[string]float64 `json:"headroom,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// Gate evaluates proposed entries against the portfolio limits.
type Gate struct {
	limits Limits
}

func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits}
}

func (g *Gate) Limits() Limits { return g.limits }

type check struct {
	criterion string
	// current is the post-entry value the criterion is judged on, limit the
	// configured bound, ok whether the entry passes, headroom the remaining
	// room in the criterion's own unit.
	run func(state PortfolioState, p Proposed) (current, limit, headroom float64, ok bool)
}

// Evaluate runs the five veto criteria in fixed order and rejects on the
// first failure. The correlation warning is advisory and never blocks.
// Evaluation assumes state.TotalValue > 0.
func (g *Gate) Evaluate(state PortfolioState, p Proposed) Decision {
	checks := []check{
		{CriterionPositionCount, g.checkPositionCount},
		{CriterionSinglePosition, g.checkSinglePosition},
		{CriterionSectorExposure, g.checkSectorExposure},
		{CriterionLeveragedExposure, g.checkLeveragedExposure},
		{CriterionCashReserve, g.checkCashReserve},
	}

	headroom := make(map[string]float64, len(checks))
	for _, c := range checks {
		current, limit, room, ok := c.run(state, p)
		if !ok {
			return Decision{
				Approved:  false,
				Criterion: c.criterion,
				Current:   current,
				Limit:     limit,
				Reason:    fmt.Sprintf("%s: %.4g exceeds limit %.4g", c.criterion, current, limit),
				Warnings:  g.correlationWarnings(state, p),
			}
		}
		headroom[c.criterion] = room
	}

	return Decision{
		Approved: true,
		Headroom: headroom,
		Warnings: g.correlationWarnings(state, p),
	}
}

func (g *Gate) checkPositionCount(state PortfolioState, _ Proposed) (float64, float64, float64, bool) {
	after := float64(len(state.Positions) + 1)
	limit := float64(g.limits.MaxConcurrentPositions)
	return after, limit, limit - after, after <= limit
}

func (g *Gate) checkSinglePosition(state PortfolioState, p Proposed) (float64, float64, float64, bool) {
	frac := p.Value / state.TotalValue
	limit := g.limits.MaxSinglePositionPct
	return frac, limit, limit - frac, frac <= limit
}

func (g *Gate) checkSectorExposure(state PortfolioState, p Proposed) (float64, float64, float64, bool) {
	sectorValue := p.Value
	for _, pos := range state.Positions {
		if pos.Sector == p.Sector {
			sectorValue += pos.Value
		}
	}
	frac := sectorValue / state.TotalValue
	limit := g.limits.MaxSectorExposurePct
	return frac, limit, limit - frac, frac <= limit
}

func (g *Gate) checkLeveragedExposure(state PortfolioState, p Proposed) (float64, float64, float64, bool) {
	notional := p.Value * p.Leverage
	for _, pos := range state.Positions {
		notional += pos.Value * pos.Leverage
	}
	mult := notional / state.TotalValue
	limit := g.limits.MaxLeveragedExposure
	return mult, limit, limit - mult, mult <= limit
}

func (g *Gate) checkCashReserve(state PortfolioState, p Proposed) (float64, float64, float64, bool) {
	frac := (state.Cash - p.Value) / state.TotalValue
	limit := g.limits.MinCashReservePct
	// Floor, not ceiling: the entry passes while cash stays at or above it.
	return frac, limit, frac - limit, frac >= limit
}

// correlationWarnings flags open positions whose historical correlation with
// the candidate meets the advisory threshold.
func (g *Gate) correlationWarnings(state PortfolioState, p Proposed) []string {
	var warnings []string
	for _, pos := range state.Positions {
		corr := Correlation(pos.Ticker, p.Ticker)
		if corr >= g.limits.CorrelationThreshold {
			warnings = append(warnings,
				fmt.Sprintf("%s correlates %.2f with open position %s", p.Ticker, corr, pos.Ticker))
		}
	}
	return warnings
}
