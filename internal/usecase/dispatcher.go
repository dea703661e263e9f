package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type DispatcherConfig struct {
	// RiskOnly assesses and sizes plans without submitting orders.
	RiskOnly bool
	// Concurrency bounds how many lock keys ProcessAll works on at once.
	Concurrency int
}

// Dispatcher runs a follow plan through risk, sizing, execution and the
// history ledger.
type Dispatcher struct {
	exchange domain.Exchange
	risk     *RiskGate
	sizer    *PositionSizer
	ledger   domain.HistoryLedger
	locker   domain.Locker
	sinks    []domain.OutcomeSink
	cfg      DispatcherConfig
	logger   *zap.Logger
	now      func() time.Time

	// tolerance returns the configured price tolerance, 0 when unset.
	tolerance func() float64
}

// NewDispatcher wires the engine. ledger may be nil, in which case entries
// are executed but never recorded. The analyzer's ledger must be passed here
// so both share one source of truth.
func NewDispatcher(
	exchange domain.Exchange,
	risk *RiskGate,
	sizer *PositionSizer,
	ledger domain.HistoryLedger,
	locker domain.Locker,
	cfg DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Dispatcher{
		exchange:  exchange,
		risk:      risk,
		sizer:     sizer,
		ledger:    ledger,
		locker:    locker,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		tolerance: func() float64 { return 0 },
	}
}

// WithPriceTolerance sets the tolerance source used for entry assessments.
func (d *Dispatcher) WithPriceTolerance(fn func() float64) *Dispatcher {
	d.tolerance = fn
	return d
}

// WithSinks adds receivers for every terminal outcome.
func (d *Dispatcher) WithSinks(sinks ...domain.OutcomeSink) *Dispatcher {
	d.sinks = append(d.sinks, sinks...)
	return d
}

// ProcessAll processes plans sharing a lock key in order, and distinct keys
// concurrently. Outcomes are returned in input order.
func (d *Dispatcher) ProcessAll(ctx context.Context, plans []domain.FollowPlan) []domain.Outcome {
	outcomes := make([]domain.Outcome, len(plans))

	var keys []string
	groups := make(map[string][]int)
	for i, p := range plans {
		k := p.LockKey()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}

	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)
	for _, k := range keys {
		idx := groups[k]
		g.Go(func() error {
			for _, i := range idx {
				outcomes[i] = d.Process(ctx, plans[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Process runs one plan to a terminal outcome. It never returns an error for
// degradable conditions; the outcome status tells the caller what happened.
func (d *Dispatcher) Process(ctx context.Context, follow domain.FollowPlan) domain.Outcome {
	plan := domain.NewTradingPlan(follow)
	out := domain.Outcome{
		PlanID:        plan.ID,
		Agent:         follow.Agent,
		Symbol:        follow.Symbol,
		Action:        follow.Action,
		SourceOrderID: follow.SourceOrderID(),
		Bracketed:     follow.Bracketed(),
		Quantity:      plan.Quantity,
	}
	log := d.logger.With(
		zap.String("plan_id", plan.ID),
		zap.String("symbol", follow.Symbol),
		zap.String("action", string(follow.Action)),
		zap.String("source_oid", out.SourceOrderID),
	)

	defer func() { d.publish(ctx, out, log) }()

	if err := follow.Validate(); err != nil {
		out.Status = domain.StatusInvalid
		out.Error = err.Error()
		log.Warn("Rejected invalid follow plan", zap.Error(err))
		return out
	}

	unlock, err := d.locker.Lock(ctx, follow.LockKey())
	if err != nil {
		out.Status = domain.StatusCancelled
		out.Error = fmt.Sprintf("acquire lock %s: %v", follow.LockKey(), err)
		log.Warn("Plan cancelled before execution", zap.Error(err))
		return out
	}
	defer unlock()

	if d.alreadyHandled(ctx, follow, log) {
		out.Status = domain.StatusAlreadyHandled
		return out
	}

	var tol *float64
	if v := d.tolerance(); v > 0 {
		tol = &v
	}
	out.Risk = d.risk.Assess(follow, plan, tol)
	logRisk(log, out.Risk)
	if !out.Risk.IsValid {
		out.Status = domain.StatusRiskRejected
		out.Warnings = append(out.Warnings, out.Risk.Warnings...)
		log.Info("Plan rejected by risk gate", zap.Strings("warnings", out.Risk.Warnings))
		return out
	}

	out.Sizing = d.sizer.Size(ctx, &plan, follow)
	out.Quantity = plan.Quantity
	if out.Sizing.Fallback != "" {
		out.Warnings = append(out.Warnings, "sizing: "+out.Sizing.Fallback)
	}
	if out.Sizing.LotDefaulted {
		out.Warnings = append(out.Warnings, "sizing: default lot size")
	}
	if plan.Quantity <= 0 {
		out.Status = domain.StatusRiskRejected
		out.Error = "sized quantity is not positive"
		log.Warn("Plan rejected after sizing", zap.Float64("quantity", plan.Quantity))
		return out
	}
	if out.Sizing.Rejected {
		out.Status = domain.StatusRiskRejected
		out.Error = fmt.Sprintf("minimum quantity overshoots margin target by %.1f%%", out.Sizing.OvershootRatio*100)
		log.Warn("Plan rejected by overshoot ceiling", zap.Float64("overshoot_ratio", out.Sizing.OvershootRatio))
		return out
	}

	if d.cfg.RiskOnly {
		out.Status = domain.StatusRiskOnly
		log.Info("Risk-only mode, order not submitted", zap.Float64("quantity", plan.Quantity))
		return out
	}

	if err := ctx.Err(); err != nil {
		out.Status = domain.StatusCancelled
		out.Error = err.Error()
		log.Warn("Plan cancelled before submission", zap.Error(err))
		return out
	}

	// Past this point the order leaves our control: neither submission nor
	// recording may be interrupted by the caller's deadline.
	submitCtx := context.WithoutCancel(ctx)

	var res domain.ExecutionResult
	if follow.Bracketed() {
		log.Info("Submitting bracketed order",
			zap.Float64("quantity", plan.Quantity),
			zap.Float64("stop_loss", follow.Position.ExitPlan.StopLoss),
			zap.Float64("take_profit", follow.Position.ExitPlan.ProfitTarget))
		res, err = d.exchange.ExecutePlanWithStopOrders(submitCtx, plan, *follow.Position)
	} else {
		log.Info("Submitting order", zap.Float64("quantity", plan.Quantity), zap.Bool("reduce_only", plan.ReduceOnly))
		res, err = d.exchange.ExecutePlan(submitCtx, plan)
	}
	if err != nil && res.Error == "" {
		res.Error = err.Error()
	}
	if err != nil {
		res.Success = false
	}
	out.Result = res

	if !res.Success {
		out.Status = domain.StatusFailed
		out.Error = res.Error
		log.Error("Trade execution failed", zap.String("error", res.Error))
		return out
	}

	log.Info("Trade executed",
		zap.String("order_id", res.OrderID),
		zap.String("take_profit_order_id", res.TakeProfitOrderID),
		zap.String("stop_loss_order_id", res.StopLossOrderID))

	out.Status = d.record(submitCtx, follow, plan, res, log)
	return out
}

func (d *Dispatcher) alreadyHandled(ctx context.Context, follow domain.FollowPlan, log *zap.Logger) bool {
	oid := follow.SourceOrderID()
	if follow.Action != domain.ActionEnter || oid == "" || d.ledger == nil {
		return false
	}
	processed, err := d.ledger.IsProcessed(ctx, oid)
	if err != nil {
		log.Warn("Ledger lookup failed, continuing", zap.Error(err))
		return false
	}
	if processed {
		log.Info("Source order already handled, skipping")
	}
	return processed
}

// record writes the ledger entry for an executed entry. Non-entry actions
// have nothing to record.
func (d *Dispatcher) record(ctx context.Context, follow domain.FollowPlan, plan domain.TradingPlan, res domain.ExecutionResult, log *zap.Logger) domain.OutcomeStatus {
	if follow.Action != domain.ActionEnter {
		return domain.StatusExecuted
	}

	switch {
	case d.ledger == nil:
		log.Debug("Order history not saved: ledger is missing")
		return domain.StatusExecutedNotRecorded
	case follow.SourceOrderID() == "":
		log.Debug("Order history not saved: entry_oid is missing", zap.Bool("has_position", follow.Position != nil))
		return domain.StatusExecutedNotRecorded
	case res.OrderID == "":
		log.Debug("Order history not saved: follower order id is missing")
		return domain.StatusExecutedNotRecorded
	}

	rec := domain.ProcessedOrderRecord{
		SourceOrderID:   follow.SourceOrderID(),
		Symbol:          follow.Symbol,
		AgentName:       follow.Agent,
		Side:            follow.Side,
		Quantity:        follow.Quantity,
		EntryPrice:      follow.EntryPrice,
		FollowerOrderID: res.OrderID,
		RecordedAt:      d.now().UTC(),
	}
	err := d.ledger.Record(ctx, rec)
	switch {
	case err == nil:
		log.Info("Saved order to history", zap.String("follower_order_id", res.OrderID))
		return domain.StatusExecuted
	case errors.Is(err, domain.ErrDuplicateOrder):
		log.Warn("Source order was already recorded", zap.String("follower_order_id", res.OrderID))
		return domain.StatusExecutedDuplicate
	default:
		log.Error("Trade executed but ledger write failed",
			zap.String("follower_order_id", res.OrderID),
			zap.Float64("quantity", plan.Quantity),
			zap.Error(err))
		return domain.StatusExecutedLedgerFailed
	}
}

func (d *Dispatcher) publish(ctx context.Context, out domain.Outcome, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		if err := s.Publish(ctx, out); err != nil {
			log.Warn("Failed to publish outcome", zap.String("status", string(out.Status)), zap.Error(err))
		}
	}
}

func logRisk(log *zap.Logger, a domain.RiskAssessment) {
	fields := []zap.Field{
		zap.Float64("risk_score", a.RiskScore),
		zap.Bool("valid", a.IsValid),
	}
	if len(a.Warnings) > 0 {
		fields = append(fields, zap.Strings("warnings", a.Warnings))
	}
	if pt := a.PriceTolerance; pt != nil {
		fields = append(fields,
			zap.Float64("entry_price", pt.EntryPrice),
			zap.Float64("current_price", pt.CurrentPrice),
			zap.Float64("price_diff_pct", pt.PriceDifference),
			zap.Float64("tolerance_pct", pt.Tolerance),
			zap.String("price_check", pt.Reason))
	}
	log.Info("Risk assessment", fields...)
}
