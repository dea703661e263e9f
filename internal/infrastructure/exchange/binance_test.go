package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
)

type binanceStub struct {
	mu       sync.Mutex
	orders   []url.Values
	failLegs bool
}

func (s *binanceStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/exchangeInfo"):
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","filters":[
			{"filterType":"PRICE_FILTER","minPrice":"0.10","maxPrice":"1000000","tickSize":"0.10"},
			{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"1000","stepSize":"0.001"}]}]}`))
	case strings.HasSuffix(path, "/account"):
		_, _ = w.Write([]byte(`{"availableBalance":"1234.5","assets":[],"positions":[]}`))
	case strings.HasSuffix(path, "/ticker/24hr"):
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","lastPrice":"50123.4"}]`))
	case strings.HasSuffix(path, "/marginType"):
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-4046,"msg":"No need to change margin type."}`))
	case strings.HasSuffix(path, "/leverage"):
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","leverage":10,"maxNotionalValue":"1000000"}`))
	case strings.HasSuffix(path, "/order"):
		s.mu.Lock()
		s.orders = append(s.orders, r.Form)
		n := len(s.orders)
		s.mu.Unlock()
		if s.failLegs && r.Form.Get("type") != "MARKET" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-2021,"msg":"Order would immediately trigger."}`))
			return
		}
		if r.Form.Get("quantity") == "99.000" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":` + string(rune('0'+n)) + `,"status":"NEW"}`))
	default:
		http.NotFound(w, r)
	}
}

func newBinanceTest(t *testing.T, stub *binanceStub) *BinanceAdapter {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return NewBinanceAdapter("key", "secret", srv.URL, zap.NewNop())
}

func TestBinanceAdapter_MarketData(t *testing.T) {
	b := newBinanceTest(t, &binanceStub{})
	ctx := context.Background()

	acc, err := b.GetAccountInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1234.5", acc.AvailableBalance)

	info, err := b.GetSymbolInfo(ctx, "BTCUSDT")
	require.NoError(t, err)
	lot, ok := info.Filter(domain.FilterLotSize)
	require.True(t, ok)
	assert.Equal(t, "0.001", lot.MinQty)
	assert.Equal(t, "0.001", lot.StepSize)
	assert.Equal(t, "0.040", b.FormatQuantity(0.0409, "BTCUSDT"))

	_, err = b.GetSymbolInfo(ctx, "DOGEUSDT")
	assert.Error(t, err)

	tk, err := b.Get24hrTicker(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "50123.4", tk.LastPrice)
}

func TestBinanceAdapter_BracketedOrder(t *testing.T) {
	stub := &binanceStub{}
	b := newBinanceTest(t, stub)
	ctx := context.Background()
	_, err := b.GetSymbolInfo(ctx, "BTCUSDT")
	require.NoError(t, err)

	plan := domain.TradingPlan{
		ClientOrderID: domain.ClientOrderID("oid:abc123", "ENTER"),
		Symbol:        "BTCUSDT",
		Side:          domain.SideLong,
		Type:          domain.OrderTypeMarket,
		Quantity:      0.04,
		Leverage:      10,
	}
	pos := domain.SourcePosition{ExitPlan: domain.ExitPlan{ProfitTarget: 55000.05, StopLoss: 48000}}

	res, err := b.ExecutePlanWithStopOrders(ctx, plan, pos)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "1", res.OrderID)
	assert.Equal(t, "2", res.StopLossOrderID)
	assert.Equal(t, "3", res.TakeProfitOrderID)
	assert.Empty(t, res.Error)

	require.Len(t, stub.orders, 3)
	entry, sl, tp := stub.orders[0], stub.orders[1], stub.orders[2]
	assert.Equal(t, "BUY", entry.Get("side"))
	assert.Equal(t, "0.040", entry.Get("quantity"))
	assert.Equal(t, plan.ClientOrderID, entry.Get("newClientOrderId"))
	assert.Equal(t, "SELL", sl.Get("side"))
	assert.Equal(t, "STOP_MARKET", sl.Get("type"))
	assert.Equal(t, "48000.0", sl.Get("stopPrice"))
	assert.Equal(t, "true", sl.Get("closePosition"))
	assert.Equal(t, "TAKE_PROFIT_MARKET", tp.Get("type"))
	assert.Equal(t, "55000.0", tp.Get("stopPrice"))
	assert.NotEqual(t, sl.Get("newClientOrderId"), tp.Get("newClientOrderId"))
}

func TestBinanceAdapter_FailedLegKeepsEntry(t *testing.T) {
	stub := &binanceStub{failLegs: true}
	b := newBinanceTest(t, stub)

	plan := domain.TradingPlan{ClientOrderID: "c1", Symbol: "BTCUSDT", Side: domain.SideShort, Quantity: 0.01, Leverage: 5}
	res, err := b.ExecutePlanWithStopOrders(context.Background(), plan, domain.SourcePosition{ExitPlan: domain.ExitPlan{StopLoss: 52000}})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "1", res.OrderID)
	assert.Contains(t, res.Error, "stop-loss")
	assert.Equal(t, "BUY", stub.orders[1].Get("side"))
}

func TestBinanceAdapter_RejectedOrder(t *testing.T) {
	b := newBinanceTest(t, &binanceStub{})
	_, err := b.GetSymbolInfo(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	plan := domain.TradingPlan{ClientOrderID: "c2", Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 99, ReduceOnly: true}
	res, err := b.ExecutePlan(context.Background(), plan)

	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Margin is insufficient.", res.Error)
}
