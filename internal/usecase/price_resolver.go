package usecase

import (
	"context"
	"strconv"

	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
)

// PriceCache is a source of recently streamed prices.
type PriceCache interface {
	LastPrice(symbol string) (float64, bool)
}

// PriceResolver resolves a usable current price. A returned 0 means the
// price is unavailable and must stop sizing.
type PriceResolver struct {
	exchange domain.Exchange
	cache    PriceCache
	logger   *zap.Logger
}

func NewPriceResolver(exchange domain.Exchange, cache PriceCache, logger *zap.Logger) *PriceResolver {
	return &PriceResolver{
		exchange: exchange,
		cache:    cache,
		logger:   logger,
	}
}

// Resolve returns hint when positive, otherwise a streamed price, otherwise
// the 24h ticker's lastPrice (or price).
func (r *PriceResolver) Resolve(ctx context.Context, symbol string, hint float64) float64 {
	if hint > 0 {
		return hint
	}

	if r.cache != nil {
		if p, ok := r.cache.LastPrice(symbol); ok && p > 0 {
			return p
		}
	}

	ticker, err := r.exchange.Get24hrTicker(ctx, symbol)
	if err != nil {
		r.logger.Warn("Failed to get current price", zap.String("symbol", symbol), zap.Error(err))
		return 0
	}

	raw := ticker.LastPrice
	if raw == "" {
		raw = ticker.Price
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		r.logger.Warn("Ticker has no usable price",
			zap.String("symbol", symbol),
			zap.String("last_price", ticker.LastPrice),
			zap.String("price", ticker.Price))
		return 0
	}
	return price
}
