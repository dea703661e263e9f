package exchange

import (
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitos/copy_follower/internal/domain"
)

// formatWithStep renders value floored to a multiple of step, with as many
// decimals as the step carries.
func formatWithStep(value, step float64) string {
	if step <= 0 {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	s := decimal.NewFromFloat(step)
	q := decimal.NewFromFloat(value).Div(s).Floor().Mul(s)
	return q.StringFixed(stepDecimals(step))
}

func stepDecimals(step float64) int32 {
	text := strconv.FormatFloat(step, 'f', -1, 64)
	if dot := strings.IndexByte(text, '.'); dot >= 0 {
		return int32(len(strings.TrimRight(text[dot+1:], "0")))
	}
	return 0
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// symbolCache remembers instrument filters so quantities can be formatted
// without a round trip.
type symbolCache struct {
	mu      sync.RWMutex
	symbols map[string]*domain.SymbolInfo
}

func newSymbolCache() *symbolCache {
	return &symbolCache{symbols: make(map[string]*domain.SymbolInfo)}
}

func (c *symbolCache) get(symbol string) (*domain.SymbolInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.symbols[symbol]
	return info, ok
}

func (c *symbolCache) put(info *domain.SymbolInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols[info.Symbol] = info
}

func (c *symbolCache) stepSize(symbol string) float64 {
	info, ok := c.get(symbol)
	if !ok {
		return 0
	}
	f, ok := info.Filter(domain.FilterLotSize)
	if !ok {
		return 0
	}
	return parseFloat(f.StepSize)
}

func (c *symbolCache) tickSize(symbol string) float64 {
	info, ok := c.get(symbol)
	if !ok {
		return 0
	}
	f, ok := info.Filter(domain.FilterPriceFilter)
	if !ok {
		return 0
	}
	return parseFloat(f.TickSize)
}

// formatQuantity uses the cached step for symbol, or the shortest
// representation when the symbol has not been looked up yet.
func (c *symbolCache) formatQuantity(value float64, symbol string) string {
	return formatWithStep(value, c.stepSize(symbol))
}

func (c *symbolCache) formatPrice(value float64, symbol string) string {
	return formatWithStep(value, c.tickSize(symbol))
}
