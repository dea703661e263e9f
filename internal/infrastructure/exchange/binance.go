package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
)

// Binance error codes that mean the requested setting is already in place.
const (
	binanceNoNeedToChangeMarginType = -4046
)

// BinanceAdapter implements domain.Exchange on USD-M futures.
type BinanceAdapter struct {
	client  *futures.Client
	symbols *symbolCache
	logger  *zap.Logger
}

// NewBinanceAdapter builds a futures client. baseURL overrides the venue
// endpoint, which is how the testnet and tests are targeted.
func NewBinanceAdapter(apiKey, apiSecret, baseURL string, logger *zap.Logger) *BinanceAdapter {
	client := futures.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceAdapter{
		client:  client,
		symbols: newSymbolCache(),
		logger:  logger.Named("binance"),
	}
}

func (b *BinanceAdapter) GetAccountInfo(ctx context.Context) (*domain.AccountInfo, error) {
	acc, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance account: %w", err)
	}
	return &domain.AccountInfo{AvailableBalance: acc.AvailableBalance}, nil
}

func (b *BinanceAdapter) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	if info, ok := b.symbols.get(symbol); ok {
		return info, nil
	}

	ex, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance exchange info: %w", err)
	}
	for i := range ex.Symbols {
		s := &ex.Symbols[i]
		info := &domain.SymbolInfo{Symbol: s.Symbol}
		if lot := s.LotSizeFilter(); lot != nil {
			info.Filters = append(info.Filters, domain.SymbolFilter{
				FilterType: domain.FilterLotSize,
				MinQty:     lot.MinQuantity,
				StepSize:   lot.StepSize,
			})
		}
		if pf := s.PriceFilter(); pf != nil {
			info.Filters = append(info.Filters, domain.SymbolFilter{
				FilterType: domain.FilterPriceFilter,
				TickSize:   pf.TickSize,
			})
		}
		b.symbols.put(info)
	}

	info, ok := b.symbols.get(symbol)
	if !ok {
		return nil, fmt.Errorf("binance exchange info: symbol %s not listed", symbol)
	}
	return info, nil
}

func (b *BinanceAdapter) Get24hrTicker(ctx context.Context, symbol string) (*domain.Ticker24h, error) {
	stats, err := b.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err == nil && len(stats) > 0 && stats[0].LastPrice != "" {
		return &domain.Ticker24h{Symbol: symbol, LastPrice: stats[0].LastPrice}, nil
	}
	if err != nil {
		b.logger.Debug("24h ticker unavailable, trying price ticker", zap.String("symbol", symbol), zap.Error(err))
	}

	prices, perr := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if perr != nil {
		return nil, fmt.Errorf("binance ticker %s: %w", symbol, errors.Join(err, perr))
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("binance ticker %s: empty response", symbol)
	}
	return &domain.Ticker24h{Symbol: symbol, Price: prices[0].Price}, nil
}

func (b *BinanceAdapter) FormatQuantity(value float64, symbol string) string {
	return b.symbols.formatQuantity(value, symbol)
}

func (b *BinanceAdapter) ExecutePlan(ctx context.Context, plan domain.TradingPlan) (domain.ExecutionResult, error) {
	if !plan.ReduceOnly {
		b.prepareSymbol(ctx, plan)
	}
	res, err := b.placeEntry(ctx, plan)
	if err != nil {
		return domain.ExecutionResult{Success: false, Error: describeBinanceError(err)}, err
	}
	return domain.ExecutionResult{Success: true, OrderID: strconv.FormatInt(res.OrderID, 10)}, nil
}

// ExecutePlanWithStopOrders places the entry and then closing stop-loss and
// take-profit triggers. A failed trigger leg does not undo the entry: the
// result stays successful and carries the leg error.
func (b *BinanceAdapter) ExecutePlanWithStopOrders(ctx context.Context, plan domain.TradingPlan, position domain.SourcePosition) (domain.ExecutionResult, error) {
	result, err := b.ExecutePlan(ctx, plan)
	if err != nil {
		return result, err
	}

	closeSide := futures.SideTypeSell
	if !plan.Side.IsBuy() {
		closeSide = futures.SideTypeBuy
	}

	var legErrs []error
	if sl := position.ExitPlan.StopLoss; sl > 0 {
		id, err := b.placeTrigger(ctx, plan, closeSide, futures.OrderTypeStopMarket, sl, "sl")
		if err != nil {
			legErrs = append(legErrs, fmt.Errorf("stop-loss: %w", err))
		}
		result.StopLossOrderID = id
	}
	if tp := position.ExitPlan.ProfitTarget; tp > 0 {
		id, err := b.placeTrigger(ctx, plan, closeSide, futures.OrderTypeTakeProfitMarket, tp, "tp")
		if err != nil {
			legErrs = append(legErrs, fmt.Errorf("take-profit: %w", err))
		}
		result.TakeProfitOrderID = id
	}

	if err := errors.Join(legErrs...); err != nil {
		result.Error = err.Error()
		b.logger.Warn("Entry filled but protective orders failed",
			zap.String("symbol", plan.Symbol),
			zap.String("order_id", result.OrderID),
			zap.Error(err))
	}
	return result, nil
}

func (b *BinanceAdapter) placeEntry(ctx context.Context, plan domain.TradingPlan) (*futures.CreateOrderResponse, error) {
	side := futures.SideTypeBuy
	if !plan.Side.IsBuy() {
		side = futures.SideTypeSell
	}

	svc := b.client.NewCreateOrderService().
		Symbol(plan.Symbol).
		Side(side).
		Quantity(b.FormatQuantity(plan.Quantity, plan.Symbol)).
		NewClientOrderID(plan.ClientOrderID)
	if plan.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if plan.Type == domain.OrderTypeLimit && plan.Price > 0 {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(b.symbols.formatPrice(plan.Price, plan.Symbol))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	b.logger.Info("Placing order",
		zap.String("symbol", plan.Symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", plan.Quantity),
		zap.String("client_order_id", plan.ClientOrderID))
	return svc.Do(ctx)
}

func (b *BinanceAdapter) placeTrigger(ctx context.Context, plan domain.TradingPlan, side futures.SideType, typ futures.OrderType, stopPrice float64, leg string) (string, error) {
	res, err := b.client.NewCreateOrderService().
		Symbol(plan.Symbol).
		Side(side).
		Type(typ).
		StopPrice(b.symbols.formatPrice(stopPrice, plan.Symbol)).
		ClosePosition(true).
		WorkingType(futures.WorkingTypeMarkPrice).
		NewClientOrderID(domain.ClientOrderID(plan.ClientOrderID, leg)).
		Do(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(res.OrderID, 10), nil
}

// prepareSymbol applies margin type and leverage. Both calls fail when the
// setting is already in place, so failures are logged only.
func (b *BinanceAdapter) prepareSymbol(ctx context.Context, plan domain.TradingPlan) {
	mt := futures.MarginTypeCrossed
	if plan.MarginType == domain.MarginIsolated {
		mt = futures.MarginTypeIsolated
	}
	err := b.client.NewChangeMarginTypeService().Symbol(plan.Symbol).MarginType(mt).Do(ctx)
	var apiErr *common.APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.Code == binanceNoNeedToChangeMarginType) {
		b.logger.Warn("Failed to set margin type", zap.String("symbol", plan.Symbol), zap.String("margin_type", string(mt)), zap.Error(err))
	}

	if _, err := b.client.NewChangeLeverageService().Symbol(plan.Symbol).Leverage(plan.LeverageInt()).Do(ctx); err != nil {
		b.logger.Warn("Failed to set leverage", zap.String("symbol", plan.Symbol), zap.Int("leverage", plan.LeverageInt()), zap.Error(err))
	}
}

func describeBinanceError(err error) string {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
