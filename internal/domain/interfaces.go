package domain

import "context"

// Exchange is the follower account's trading capability.
type Exchange interface {
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
	GetSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
	Get24hrTicker(ctx context.Context, symbol string) (*Ticker24h, error)
	// FormatQuantity renders value with the symbol's quantity precision.
	FormatQuantity(value float64, symbol string) string

	ExecutePlan(ctx context.Context, plan TradingPlan) (ExecutionResult, error)
	// ExecutePlanWithStopOrders places the entry plus stop-loss and
	// take-profit orders derived from the position's exit plan.
	ExecutePlanWithStopOrders(ctx context.Context, plan TradingPlan, position SourcePosition) (ExecutionResult, error)
}

// Analyzer supplies follow plans for an agent.
type Analyzer interface {
	FollowPlans(ctx context.Context, agent string) ([]FollowPlan, error)
	SetPriceTolerance(percent float64)
	PriceTolerance() float64
	// Ledger returns the analyzer's ledger; callers must reuse it.
	Ledger() HistoryLedger
}

// Locker serializes work sharing a key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// OutcomeSink receives the terminal outcome of every processed plan.
type OutcomeSink interface {
	Publish(ctx context.Context, outcome Outcome) error
}
