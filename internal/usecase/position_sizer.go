package usecase

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
)

// DefaultMarginFraction is the share of available balance committed per entry.
const DefaultMarginFraction = 0.2

// CalculateQuantity converts margin into an exchange-valid quantity. The raw
// quantity is rounded down to the lot step and then raised to the minimum
// quantity if it fell below it. The second result reports that clamp.
func CalculateQuantity(margin, leverage, price float64, lot domain.LotSizeRule) (float64, bool) {
	if price <= 0 {
		return 0, false
	}
	if leverage <= 0 {
		leverage = 1
	}

	notional := decimal.NewFromFloat(margin).Mul(decimal.NewFromFloat(leverage))
	qty := notional.Div(decimal.NewFromFloat(price))

	if lot.StepSize > 0 {
		step := decimal.NewFromFloat(lot.StepSize)
		qty = qty.Div(step).Floor().Mul(step)
	}

	minQty := decimal.NewFromFloat(lot.MinQty)
	clamped := false
	if qty.LessThan(minQty) {
		qty = minQty
		clamped = true
	}

	f, _ := qty.Float64()
	return f, clamped
}

// ReleasedMarginQuantity sizes a non-entry action from the margin the source
// released. The result is not quantized.
func ReleasedMarginQuantity(releasedMargin, leverage, price float64) float64 {
	if price <= 0 {
		return 0
	}
	if leverage <= 0 {
		leverage = 1
	}
	return releasedMargin * leverage / price
}

type SizerConfig struct {
	// MarginFraction of the available balance used per entry.
	MarginFraction float64
	// MaxOvershootPct rejects entries whose minimum-quantity clamp commits
	// more than this percent above the intended margin. Zero accepts any
	// overshoot.
	MaxOvershootPct float64
}

// PositionSizer rewrites a trading plan's quantity from the follower's own
// account state.
type PositionSizer struct {
	exchange domain.Exchange
	lots     *LotSizeResolver
	prices   *PriceResolver
	cfg      SizerConfig
	logger   *zap.Logger
}

func NewPositionSizer(exchange domain.Exchange, lots *LotSizeResolver, prices *PriceResolver, cfg SizerConfig, logger *zap.Logger) *PositionSizer {
	if cfg.MarginFraction <= 0 || cfg.MarginFraction > 1 {
		cfg.MarginFraction = DefaultMarginFraction
	}
	return &PositionSizer{
		exchange: exchange,
		lots:     lots,
		prices:   prices,
		cfg:      cfg,
		logger:   logger,
	}
}

// Size updates plan.Quantity in place. When an input is unavailable the
// quantity is left untouched and the report names the fallback.
func (s *PositionSizer) Size(ctx context.Context, plan *domain.TradingPlan, follow domain.FollowPlan) domain.SizingReport {
	report := domain.SizingReport{
		Method:      domain.SizingUnchanged,
		OriginalQty: plan.Quantity,
		Quantity:    plan.Quantity,
	}

	switch {
	case follow.Action == domain.ActionEnter:
		s.sizeOpening(ctx, plan, follow, &report)
	case follow.ReleasedMargin > 0 && follow.Position != nil:
		s.sizeReleased(plan, follow, &report)
	}
	return report
}

func (s *PositionSizer) sizeOpening(ctx context.Context, plan *domain.TradingPlan, follow domain.FollowPlan, report *domain.SizingReport) {
	log := s.logger.With(zap.String("symbol", plan.Symbol), zap.Float64("original_qty", plan.Quantity))

	account, err := s.exchange.GetAccountInfo(ctx)
	if err != nil {
		log.Warn("Failed to get account info, using original quantity", zap.Error(err))
		report.Fallback = "balance_unavailable"
		return
	}
	available, err := account.Available()
	if err != nil {
		log.Warn("Unusable available balance, using original quantity", zap.Error(err))
		report.Fallback = "balance_unavailable"
		return
	}
	marginToUse := available * s.cfg.MarginFraction
	report.MarginToUse = marginToUse

	lot := s.lots.Resolve(ctx, plan.Symbol)
	report.Lot = lot
	report.LotDefaulted = lot.Defaulted
	log.Debug("Symbol lot size", zap.Float64("min_qty", lot.MinQty), zap.Float64("step_size", lot.StepSize))

	price := s.prices.Resolve(ctx, plan.Symbol, follow.CurrentPrice())
	report.Price = price
	if price <= 0 {
		log.Warn("Unable to get current price, using original quantity")
		report.Fallback = "price_unavailable"
		return
	}

	qty, clamped := CalculateQuantity(marginToUse, plan.Leverage, price, lot)
	formatted, err := strconv.ParseFloat(s.exchange.FormatQuantity(qty, plan.Symbol), 64)
	if err != nil || formatted <= 0 {
		formatted = qty
	}

	report.Clamped = clamped
	if clamped && marginToUse > 0 {
		lev := plan.Leverage
		if lev <= 0 {
			lev = 1
		}
		committed := formatted * price / lev
		report.OvershootRatio = committed/marginToUse - 1
		log.Warn("Quantity clamped to exchange minimum",
			zap.Float64("min_qty", lot.MinQty),
			zap.Float64("margin_target", marginToUse),
			zap.Float64("margin_committed", committed))
		if s.cfg.MaxOvershootPct > 0 && report.OvershootRatio*100 > s.cfg.MaxOvershootPct {
			report.Rejected = true
			report.Fallback = "overshoot_ceiling"
			return
		}
	}

	plan.Quantity = formatted
	report.Method = domain.SizingMarginFraction
	report.Quantity = formatted

	log.Info("Opening position sized from available margin",
		zap.Float64("quantity", formatted),
		zap.Float64("margin", marginToUse),
		zap.Float64("fraction", s.cfg.MarginFraction),
		zap.Float64("price", price))
}

func (s *PositionSizer) sizeReleased(plan *domain.TradingPlan, follow domain.FollowPlan, report *domain.SizingReport) {
	price := follow.Position.CurrentPrice
	report.Price = price
	if price <= 0 {
		s.logger.Warn("Released margin without source price, using original quantity",
			zap.String("symbol", plan.Symbol),
			zap.Float64("released_margin", follow.ReleasedMargin))
		report.Fallback = "price_unavailable"
		return
	}

	qty := ReleasedMarginQuantity(follow.ReleasedMargin, follow.Leverage, price)
	plan.Quantity = qty
	report.Method = domain.SizingReleasedMargin
	report.MarginToUse = follow.ReleasedMargin
	report.Quantity = qty

	s.logger.Info("Using released margin",
		zap.String("symbol", plan.Symbol),
		zap.Float64("released_margin", follow.ReleasedMargin),
		zap.Float64("leverage", follow.Leverage),
		zap.Float64("quantity", qty))
}
