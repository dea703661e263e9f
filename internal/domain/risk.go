package domain

// PriceToleranceCheck compares the source entry price with the live price.
type PriceToleranceCheck struct {
	EntryPrice      float64 `json:"entryPrice"`
	CurrentPrice    float64 `json:"currentPrice"`
	PriceDifference float64 `json:"priceDifference"` // percent
	Tolerance       float64 `json:"tolerance"`       // percent
	ShouldExecute   bool    `json:"shouldExecute"`
	Reason          string  `json:"reason"`
}

type RiskAssessment struct {
	IsValid        bool                 `json:"isValid"`
	RiskScore      float64              `json:"riskScore"`
	Warnings       []string             `json:"warnings"`
	PriceTolerance *PriceToleranceCheck `json:"priceTolerance,omitempty"`
}

// RiskAssessor scores trading plans.
type RiskAssessor interface {
	AssessRisk(plan TradingPlan) RiskAssessment
	AssessRiskWithPriceTolerance(plan TradingPlan, entryPrice, currentPrice float64, symbol string, tolerance *float64) RiskAssessment
}
