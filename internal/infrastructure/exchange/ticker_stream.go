package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	BinanceFuturesWSURL = "wss://fstream.binance.com/ws"

	defaultTickerMaxAge = 30 * time.Second
	reconnectDelay      = 2 * time.Second
)

// streamCodec adapts a venue's public ticker channel.
type streamCodec struct {
	subscribe func(symbols []string) interface{}
	// decode returns ok=false for acks and messages without a price.
	decode func(msg []byte) (symbol string, price float64, ok bool)
}

var bybitTickerCodec = streamCodec{
	subscribe: func(symbols []string) interface{} {
		args := make([]string, len(symbols))
		for i, s := range symbols {
			args[i] = "tickers." + s
		}
		return map[string]interface{}{"op": "subscribe", "args": args}
	},
	decode: func(msg []byte) (string, float64, bool) {
		var event struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &event); err != nil || !strings.HasPrefix(event.Topic, "tickers.") {
			return "", 0, false
		}
		// deltas omit unchanged fields
		price := parseFloat(event.Data.LastPrice)
		if price <= 0 {
			return "", 0, false
		}
		return strings.TrimPrefix(event.Topic, "tickers."), price, true
	},
}

var binanceTickerCodec = streamCodec{
	subscribe: func(symbols []string) interface{} {
		params := make([]string, len(symbols))
		for i, s := range symbols {
			params[i] = strings.ToLower(s) + "@ticker"
		}
		return map[string]interface{}{"method": "SUBSCRIBE", "params": params, "id": 1}
	},
	decode: func(msg []byte) (string, float64, bool) {
		var event struct {
			Event     string `json:"e"`
			Symbol    string `json:"s"`
			LastPrice string `json:"c"`
		}
		if err := json.Unmarshal(msg, &event); err != nil || event.Event != "24hrTicker" {
			return "", 0, false
		}
		price := parseFloat(event.LastPrice)
		if price <= 0 {
			return "", 0, false
		}
		return event.Symbol, price, true
	},
}

type tick struct {
	price float64
	at    time.Time
}

// TickerStream keeps the latest streamed price per symbol. It serves as the
// price cache consulted before a REST ticker lookup.
type TickerStream struct {
	url    string
	codec  streamCodec
	maxAge time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	prices map[string]tick
}

func NewBybitTickerStream(wsURL string, maxAge time.Duration, logger *zap.Logger) *TickerStream {
	if wsURL == "" {
		wsURL = BybitWSURL
	}
	return newTickerStream(wsURL, bybitTickerCodec, maxAge, logger.Named("bybit_ws"))
}

func NewBinanceTickerStream(wsURL string, maxAge time.Duration, logger *zap.Logger) *TickerStream {
	if wsURL == "" {
		wsURL = BinanceFuturesWSURL
	}
	return newTickerStream(wsURL, binanceTickerCodec, maxAge, logger.Named("binance_ws"))
}

func newTickerStream(wsURL string, codec streamCodec, maxAge time.Duration, logger *zap.Logger) *TickerStream {
	if maxAge <= 0 {
		maxAge = defaultTickerMaxAge
	}
	return &TickerStream{
		url:    wsURL,
		codec:  codec,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
		prices: make(map[string]tick),
	}
}

// LastPrice returns the streamed price for symbol unless it is stale.
func (s *TickerStream) LastPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.prices[symbol]
	if !ok || s.now().Sub(t.at) > s.maxAge {
		return 0, false
	}
	return t.price, true
}

// Run streams prices for symbols until ctx is done, reconnecting after
// read errors.
func (s *TickerStream) Run(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	for {
		err := s.session(ctx, symbols)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("Ticker stream disconnected, reconnecting", zap.Error(err), zap.Duration("delay", reconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *TickerStream) session(ctx context.Context, symbols []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(s.codec.subscribe(symbols)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.logger.Info("Ticker stream connected", zap.Strings("symbols", symbols))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		symbol, price, ok := s.codec.decode(message)
		if !ok {
			continue
		}
		s.mu.Lock()
		s.prices[symbol] = tick{price: price, at: s.now()}
		s.mu.Unlock()
	}
}
