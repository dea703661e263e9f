package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/copy_follower/internal/domain"
)

// DefaultPriceTolerance is the entry drift, in percent, accepted when no
// tolerance is configured.
const DefaultPriceTolerance = 1.0

type RiskConfig struct {
	MaxLeverage     float64
	WarnLeverage    float64
	PriceTolerance  float64
	MaxNotionalUSDT float64
}

func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxLeverage:    50,
		WarnLeverage:   20,
		PriceTolerance: DefaultPriceTolerance,
	}
}

// RiskManager is the default domain.RiskAssessor.
type RiskManager struct {
	cfg RiskConfig
}

func NewRiskManager(cfg RiskConfig) *RiskManager {
	if cfg.PriceTolerance <= 0 {
		cfg.PriceTolerance = DefaultPriceTolerance
	}
	return &RiskManager{cfg: cfg}
}

func (m *RiskManager) AssessRisk(plan domain.TradingPlan) domain.RiskAssessment {
	a := domain.RiskAssessment{IsValid: true, Warnings: []string{}}

	// An entry is sized from the follower's balance, so its source quantity
	// is advisory until sizing has run.
	if plan.Action != domain.ActionEnter && plan.Quantity <= 0 {
		a.IsValid = false
		a.Warnings = append(a.Warnings, "Invalid quantity")
	}

	switch {
	case m.cfg.MaxLeverage > 0 && plan.Leverage > m.cfg.MaxLeverage:
		// closing an over-levered position must still go through
		if !plan.ReduceOnly {
			a.IsValid = false
		}
		a.RiskScore += 50
		a.Warnings = append(a.Warnings, fmt.Sprintf("Leverage %gx exceeds maximum %gx", plan.Leverage, m.cfg.MaxLeverage))
	case m.cfg.WarnLeverage > 0 && plan.Leverage > m.cfg.WarnLeverage:
		a.RiskScore += 30
		a.Warnings = append(a.Warnings, fmt.Sprintf("High leverage: %gx", plan.Leverage))
	case plan.Leverage > 10:
		a.RiskScore += 15
	}

	if m.cfg.MaxNotionalUSDT > 0 && plan.Price > 0 {
		notional := plan.Quantity * plan.Price
		if notional > m.cfg.MaxNotionalUSDT {
			a.RiskScore += 20
			a.Warnings = append(a.Warnings, fmt.Sprintf("Source notional $%.2f above $%.2f", notional, m.cfg.MaxNotionalUSDT))
		}
	}

	a.RiskScore = math.Min(a.RiskScore, 100)
	return a
}

func (m *RiskManager) AssessRiskWithPriceTolerance(plan domain.TradingPlan, entryPrice, currentPrice float64, symbol string, tolerance *float64) domain.RiskAssessment {
	a := m.AssessRisk(plan)

	tol := m.cfg.PriceTolerance
	if tolerance != nil && *tolerance > 0 {
		tol = *tolerance
	}

	check := CheckPriceTolerance(entryPrice, currentPrice, tol)
	a.PriceTolerance = &check
	if !check.ShouldExecute {
		a.IsValid = false
		a.RiskScore = math.Min(a.RiskScore+30, 100)
		a.Warnings = append(a.Warnings, fmt.Sprintf("%s: %s", symbol, check.Reason))
	}
	return a
}

// CheckPriceTolerance compares the drift between entry and current price,
// in percent of the entry, against tolerance.
func CheckPriceTolerance(entryPrice, currentPrice, tolerance float64) domain.PriceToleranceCheck {
	check := domain.PriceToleranceCheck{
		EntryPrice:   entryPrice,
		CurrentPrice: currentPrice,
		Tolerance:    tolerance,
	}
	if entryPrice <= 0 || currentPrice <= 0 {
		check.Reason = "Missing price data"
		return check
	}

	check.PriceDifference = math.Abs(currentPrice-entryPrice) / entryPrice * 100
	check.ShouldExecute = check.PriceDifference <= tolerance
	if check.ShouldExecute {
		check.Reason = fmt.Sprintf("Price difference %.2f%% is within tolerance %.2f%%", check.PriceDifference, tolerance)
	} else {
		check.Reason = fmt.Sprintf("Price difference %.2f%% exceeds tolerance %.2f%%", check.PriceDifference, tolerance)
	}
	return check
}
