package usecase

import "github.com/vitos/copy_follower/internal/domain"

// RiskGate selects the assessment path for a follow plan.
type RiskGate struct {
	assessor domain.RiskAssessor
}

func NewRiskGate(assessor domain.RiskAssessor) *RiskGate {
	return &RiskGate{assessor: assessor}
}

// Assess uses the price-tolerance assessment for entries that carry both a
// source entry price and a live source price, and the plain one otherwise.
func (g *RiskGate) Assess(follow domain.FollowPlan, plan domain.TradingPlan, tolerance *float64) domain.RiskAssessment {
	if follow.Action == domain.ActionEnter && follow.EntryPrice > 0 && follow.CurrentPrice() > 0 {
		return g.assessor.AssessRiskWithPriceTolerance(plan, follow.EntryPrice, follow.CurrentPrice(), follow.Symbol, tolerance)
	}
	return g.assessor.AssessRisk(plan)
}
