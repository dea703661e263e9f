package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/copy_follower/internal/domain"
	"github.com/vitos/copy_follower/internal/usecase"
	"go.uber.org/zap"
)

func TestLotSizeResolver_ParsesLotSizeFilter(t *testing.T) {
	ex := NewMockExchange()
	ex.SymbolInfo.Filters[1] = domain.SymbolFilter{FilterType: domain.FilterLotSize, MinQty: "0.01", StepSize: "0.005"}
	r := usecase.NewLotSizeResolver(ex, 0, zap.NewNop())

	rule := r.Resolve(context.Background(), "ETHUSDT")
	assert.Equal(t, 0.01, rule.MinQty)
	assert.Equal(t, 0.005, rule.StepSize)
	assert.False(t, rule.Defaulted)
}

func TestLotSizeResolver_DefaultsOnFailure(t *testing.T) {
	ex := NewMockExchange()
	ex.SymbolErr = errors.New("exchange down")
	r := usecase.NewLotSizeResolver(ex, time.Minute, zap.NewNop())

	rule := r.Resolve(context.Background(), "BTCUSDT")
	assert.Equal(t, 0.001, rule.MinQty)
	assert.Equal(t, 0.001, rule.StepSize)
	assert.True(t, rule.Defaulted)

	// defaults are not cached, the next call retries the exchange
	r.Resolve(context.Background(), "BTCUSDT")
	assert.Equal(t, 2, ex.SymbolCalls)
}

func TestLotSizeResolver_DefaultsWithoutFilter(t *testing.T) {
	ex := NewMockExchange()
	ex.SymbolInfo = &domain.SymbolInfo{Symbol: "BTCUSDT"}
	r := usecase.NewLotSizeResolver(ex, 0, zap.NewNop())

	rule := r.Resolve(context.Background(), "BTCUSDT")
	assert.Equal(t, domain.DefaultLotSizeRule(), rule)
}

func TestLotSizeResolver_BadFieldFallsBackPerField(t *testing.T) {
	ex := NewMockExchange()
	ex.SymbolInfo.Filters[1] = domain.SymbolFilter{FilterType: domain.FilterLotSize, MinQty: "", StepSize: "0.1"}
	r := usecase.NewLotSizeResolver(ex, 0, zap.NewNop())

	rule := r.Resolve(context.Background(), "BTCUSDT")
	assert.Equal(t, 0.001, rule.MinQty)
	assert.Equal(t, 0.1, rule.StepSize)
}

func TestLotSizeResolver_CachesWithinTTL(t *testing.T) {
	ex := NewMockExchange()
	r := usecase.NewLotSizeResolver(ex, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		r.Resolve(context.Background(), "BTCUSDT")
	}
	assert.Equal(t, 1, ex.SymbolCalls)
}
