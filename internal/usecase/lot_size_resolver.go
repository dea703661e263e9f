package usecase

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LotSizeResolver resolves per-symbol quantity constraints. It never fails:
// lookup errors degrade to domain.DefaultLotSizeRule.
type LotSizeResolver struct {
	exchange domain.Exchange
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cachedLot
}

type cachedLot struct {
	rule      domain.LotSizeRule
	fetchedAt time.Time
}

// NewLotSizeResolver creates a resolver. A zero ttl disables caching.
func NewLotSizeResolver(exchange domain.Exchange, ttl time.Duration, logger *zap.Logger) *LotSizeResolver {
	return &LotSizeResolver{
		exchange: exchange,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		cache:    make(map[string]cachedLot),
	}
}

func (r *LotSizeResolver) Resolve(ctx context.Context, symbol string) domain.LotSizeRule {
	if rule, ok := r.cached(symbol); ok {
		return rule
	}

	v, _, _ := r.group.Do(symbol, func() (interface{}, error) {
		rule, ok := r.fetch(ctx, symbol)
		if ok && r.ttl > 0 {
			r.mu.Lock()
			r.cache[symbol] = cachedLot{rule: rule, fetchedAt: r.now()}
			r.mu.Unlock()
		}
		return rule, nil
	})
	return v.(domain.LotSizeRule)
}

func (r *LotSizeResolver) cached(symbol string) (domain.LotSizeRule, bool) {
	if r.ttl <= 0 {
		return domain.LotSizeRule{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[symbol]
	if !ok || r.now().Sub(c.fetchedAt) > r.ttl {
		return domain.LotSizeRule{}, false
	}
	return c.rule, true
}

// fetch returns the exchange rule and whether it came from the exchange.
func (r *LotSizeResolver) fetch(ctx context.Context, symbol string) (domain.LotSizeRule, bool) {
	defaults := domain.DefaultLotSizeRule()

	info, err := r.exchange.GetSymbolInfo(ctx, symbol)
	if err != nil {
		r.logger.Warn("Failed to get symbol info, using default lot size",
			zap.String("symbol", symbol),
			zap.Float64("min_qty", defaults.MinQty),
			zap.Float64("step_size", defaults.StepSize),
			zap.Error(err))
		return defaults, false
	}

	filter, ok := info.Filter(domain.FilterLotSize)
	if !ok {
		r.logger.Warn("No LOT_SIZE filter for symbol, using default lot size", zap.String("symbol", symbol))
		return defaults, false
	}

	return domain.LotSizeRule{
		MinQty:   parsePositiveOr(filter.MinQty, defaults.MinQty),
		StepSize: parsePositiveOr(filter.StepSize, defaults.StepSize),
	}, true
}

func parsePositiveOr(raw string, def float64) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
