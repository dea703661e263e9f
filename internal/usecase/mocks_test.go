package usecase_test

import (
	"context"
	"strconv"
	"sync"

	"github.com/vitos/copy_follower/internal/domain"
)

type MockExchange struct {
	mu sync.Mutex

	Balance    string
	BalanceErr error
	SymbolInfo *domain.SymbolInfo
	SymbolErr  error
	Ticker     *domain.Ticker24h
	TickerErr  error
	ExecResult domain.ExecutionResult
	ExecErr    error
	OnExecute  func()
	ExecCtxErr error

	SymbolCalls  int
	TickerCalls  int
	PlainCalls   []domain.TradingPlan
	BracketCalls []domain.TradingPlan
	Positions    []domain.SourcePosition
}

func NewMockExchange() *MockExchange {
	return &MockExchange{
		Balance: "1000",
		SymbolInfo: &domain.SymbolInfo{
			Symbol: "BTCUSDT",
			Filters: []domain.SymbolFilter{
				{FilterType: domain.FilterPriceFilter, TickSize: "0.1"},
				{FilterType: domain.FilterLotSize, MinQty: "0.001", StepSize: "0.001"},
			},
		},
		Ticker:     &domain.Ticker24h{Symbol: "BTCUSDT", LastPrice: "50000"},
		ExecResult: domain.ExecutionResult{Success: true, OrderID: "9001"},
	}
}

func (m *MockExchange) GetAccountInfo(ctx context.Context) (*domain.AccountInfo, error) {
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	return &domain.AccountInfo{AvailableBalance: m.Balance}, nil
}

func (m *MockExchange) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	m.mu.Lock()
	m.SymbolCalls++
	m.mu.Unlock()
	if m.SymbolErr != nil {
		return nil, m.SymbolErr
	}
	return m.SymbolInfo, nil
}

func (m *MockExchange) Get24hrTicker(ctx context.Context, symbol string) (*domain.Ticker24h, error) {
	m.mu.Lock()
	m.TickerCalls++
	m.mu.Unlock()
	if m.TickerErr != nil {
		return nil, m.TickerErr
	}
	return m.Ticker, nil
}

func (m *MockExchange) FormatQuantity(value float64, symbol string) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func (m *MockExchange) ExecutePlan(ctx context.Context, plan domain.TradingPlan) (domain.ExecutionResult, error) {
	m.mu.Lock()
	m.PlainCalls = append(m.PlainCalls, plan)
	m.mu.Unlock()
	if m.OnExecute != nil {
		m.OnExecute()
	}
	m.mu.Lock()
	m.ExecCtxErr = ctx.Err()
	m.mu.Unlock()
	return m.ExecResult, m.ExecErr
}

func (m *MockExchange) ExecutePlanWithStopOrders(ctx context.Context, plan domain.TradingPlan, position domain.SourcePosition) (domain.ExecutionResult, error) {
	m.mu.Lock()
	m.BracketCalls = append(m.BracketCalls, plan)
	m.Positions = append(m.Positions, position)
	m.mu.Unlock()
	if m.OnExecute != nil {
		m.OnExecute()
	}
	m.mu.Lock()
	m.ExecCtxErr = ctx.Err()
	m.mu.Unlock()
	return m.ExecResult, m.ExecErr
}

func (m *MockExchange) Submissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PlainCalls) + len(m.BracketCalls)
}

// MockLedger is an in-memory domain.HistoryLedger.
type MockLedger struct {
	mu        sync.Mutex
	Records   map[string]domain.ProcessedOrderRecord
	RecordErr error
	LookupErr error
}

func NewMockLedger() *MockLedger {
	return &MockLedger{Records: make(map[string]domain.ProcessedOrderRecord)}
}

func (l *MockLedger) Record(ctx context.Context, rec domain.ProcessedOrderRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.RecordErr != nil {
		return l.RecordErr
	}
	if _, ok := l.Records[rec.SourceOrderID]; ok {
		return domain.ErrDuplicateOrder
	}
	l.Records[rec.SourceOrderID] = rec
	return nil
}

func (l *MockLedger) IsProcessed(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.LookupErr != nil {
		return false, l.LookupErr
	}
	_, ok := l.Records[id]
	return ok, nil
}

func (l *MockLedger) Get(ctx context.Context, id string) (*domain.ProcessedOrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.Records[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &rec, nil
}

func (l *MockLedger) List(ctx context.Context, limit int) ([]*domain.ProcessedOrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.ProcessedOrderRecord
	for _, r := range l.Records {
		r := r
		out = append(out, &r)
	}
	return out, nil
}

type captureSink struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
}

func (s *captureSink) Publish(ctx context.Context, o domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}
