package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/linear"

	bybitRecvWindow = 5000
	// retCodes returned when leverage or margin mode is already as requested.
	bybitLeverageNotModified = 110043
	bybitModeNotModified     = 110026
)

// BybitAdapter implements domain.Exchange on Bybit V5 linear perpetuals.
type BybitAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client
	symbols   *symbolCache
	logger    *zap.Logger
}

func NewBybitAdapter(apiKey, apiSecret, baseURL string, logger *zap.Logger) *BybitAdapter {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	return &BybitAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		symbols:   newSymbolCache(),
		logger:    logger.Named("bybit"),
	}
}

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// BybitError is a non-zero retCode.
type BybitError struct {
	Code    int
	Message string
}

func (e *BybitError) Error() string {
	return fmt.Sprintf("bybit error %d: %s", e.Code, e.Message)
}

// --- REST API ---

func (b *BybitAdapter) sign(params string, timestamp int64) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, bybitRecvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

// sendRequest signs and sends a V5 request and decodes result into out.
func (b *BybitAdapter) sendRequest(ctx context.Context, method, path string, query url.Values, payload map[string]interface{}, out interface{}) error {
	timestamp := time.Now().UnixMilli()

	var body []byte
	var paramsStr string
	target := b.baseURL + path
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = jsonBody
		paramsStr = string(jsonBody)
	} else if len(query) > 0 {
		paramsStr = query.Encode()
		target += "?" + paramsStr
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-SIGN", b.sign(paramsStr, timestamp))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(bybitRecvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: http %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	var env bybitEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if env.RetCode != 0 {
		return &BybitError{Code: env.RetCode, Message: env.RetMsg}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", path, err)
	}
	return nil
}

func (b *BybitAdapter) GetAccountInfo(ctx context.Context) (*domain.AccountInfo, error) {
	var result struct {
		List []struct {
			TotalAvailableBalance string `json:"totalAvailableBalance"`
		} `json:"list"`
	}
	q := url.Values{"accountType": {"UNIFIED"}}
	if err := b.sendRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", q, nil, &result); err != nil {
		return nil, fmt.Errorf("bybit wallet balance: %w", err)
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("bybit wallet balance: empty account list")
	}
	return &domain.AccountInfo{AvailableBalance: result.List[0].TotalAvailableBalance}, nil
}

func (b *BybitAdapter) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	if info, ok := b.symbols.get(symbol); ok {
		return info, nil
	}

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				MinOrderQty string `json:"minOrderQty"`
				QtyStep     string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
		} `json:"list"`
	}
	q := url.Values{"category": {"linear"}, "symbol": {symbol}}
	if err := b.sendRequest(ctx, http.MethodGet, "/v5/market/instruments-info", q, nil, &result); err != nil {
		return nil, fmt.Errorf("bybit instruments %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("bybit instruments %s: symbol not found", symbol)
	}

	item := result.List[0]
	info := &domain.SymbolInfo{
		Symbol: item.Symbol,
		Filters: []domain.SymbolFilter{
			{FilterType: domain.FilterLotSize, MinQty: item.LotSizeFilter.MinOrderQty, StepSize: item.LotSizeFilter.QtyStep},
			{FilterType: domain.FilterPriceFilter, TickSize: item.PriceFilter.TickSize},
		},
	}
	b.symbols.put(info)
	return info, nil
}

func (b *BybitAdapter) Get24hrTicker(ctx context.Context, symbol string) (*domain.Ticker24h, error) {
	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			MarkPrice string `json:"markPrice"`
		} `json:"list"`
	}
	q := url.Values{"category": {"linear"}, "symbol": {symbol}}
	if err := b.sendRequest(ctx, http.MethodGet, "/v5/market/tickers", q, nil, &result); err != nil {
		return nil, fmt.Errorf("bybit ticker %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("bybit ticker %s: symbol not found", symbol)
	}
	t := result.List[0]
	return &domain.Ticker24h{Symbol: symbol, LastPrice: t.LastPrice, Price: t.MarkPrice}, nil
}

func (b *BybitAdapter) FormatQuantity(value float64, symbol string) string {
	return b.symbols.formatQuantity(value, symbol)
}

func (b *BybitAdapter) ExecutePlan(ctx context.Context, plan domain.TradingPlan) (domain.ExecutionResult, error) {
	return b.placeOrder(ctx, plan, nil)
}

// ExecutePlanWithStopOrders attaches the exit plan to the entry order, so the
// venue creates the protective orders atomically with the fill.
func (b *BybitAdapter) ExecutePlanWithStopOrders(ctx context.Context, plan domain.TradingPlan, position domain.SourcePosition) (domain.ExecutionResult, error) {
	return b.placeOrder(ctx, plan, &position.ExitPlan)
}

func (b *BybitAdapter) placeOrder(ctx context.Context, plan domain.TradingPlan, exits *domain.ExitPlan) (domain.ExecutionResult, error) {
	if !plan.ReduceOnly {
		b.setMarginMode(ctx, plan)
		b.setLeverage(ctx, plan.Symbol, plan.LeverageInt())
	}

	side := "Buy"
	if !plan.Side.IsBuy() {
		side = "Sell"
	}
	payload := map[string]interface{}{
		"category":    "linear",
		"symbol":      plan.Symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         b.FormatQuantity(plan.Quantity, plan.Symbol),
		"orderLinkId": plan.ClientOrderID,
	}
	if plan.Type == domain.OrderTypeLimit && plan.Price > 0 {
		payload["orderType"] = "Limit"
		payload["price"] = b.symbols.formatPrice(plan.Price, plan.Symbol)
		payload["timeInForce"] = "GTC"
	}
	if plan.ReduceOnly {
		payload["reduceOnly"] = true
	}
	if exits != nil && (exits.StopLoss > 0 || exits.ProfitTarget > 0) {
		payload["tpslMode"] = "Full"
		if exits.StopLoss > 0 {
			payload["stopLoss"] = b.symbols.formatPrice(exits.StopLoss, plan.Symbol)
			payload["slTriggerBy"] = "MarkPrice"
		}
		if exits.ProfitTarget > 0 {
			payload["takeProfit"] = b.symbols.formatPrice(exits.ProfitTarget, plan.Symbol)
			payload["tpTriggerBy"] = "MarkPrice"
		}
	}

	b.logger.Info("Placing order",
		zap.String("symbol", plan.Symbol),
		zap.String("side", side),
		zap.Any("qty", payload["qty"]),
		zap.String("order_link_id", plan.ClientOrderID))

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := b.sendRequest(ctx, http.MethodPost, "/v5/order/create", nil, payload, &result); err != nil {
		msg := err.Error()
		if be, ok := err.(*BybitError); ok {
			msg = be.Message
		}
		return domain.ExecutionResult{Success: false, Error: msg}, fmt.Errorf("bybit order %s: %w", plan.Symbol, err)
	}
	return domain.ExecutionResult{Success: true, OrderID: result.OrderID}, nil
}

func (b *BybitAdapter) setLeverage(ctx context.Context, symbol string, leverage int) {
	payload := map[string]interface{}{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	err := b.sendRequest(ctx, http.MethodPost, "/v5/position/set-leverage", nil, payload, nil)
	if be, ok := err.(*BybitError); ok && be.Code == bybitLeverageNotModified {
		return
	}
	if err != nil {
		b.logger.Warn("Failed to set leverage", zap.String("symbol", symbol), zap.Int("leverage", leverage), zap.Error(err))
	}
}

func (b *BybitAdapter) setMarginMode(ctx context.Context, plan domain.TradingPlan) {
	// 0 = cross margin, 1 = isolated margin
	mode := 0
	if plan.MarginType == domain.MarginIsolated {
		mode = 1
	}
	lev := strconv.Itoa(plan.LeverageInt())
	payload := map[string]interface{}{
		"category":     "linear",
		"symbol":       plan.Symbol,
		"tradeMode":    mode,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	err := b.sendRequest(ctx, http.MethodPost, "/v5/position/switch-isolated", nil, payload, nil)
	if be, ok := err.(*BybitError); ok && be.Code == bybitModeNotModified {
		return
	}
	if err != nil {
		b.logger.Warn("Failed to set margin mode",
			zap.String("symbol", plan.Symbol),
			zap.String("margin_type", string(plan.MarginType)),
			zap.Error(err))
	}
}
