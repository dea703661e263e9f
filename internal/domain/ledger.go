package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateOrder is returned when a source order id is already recorded.
	ErrDuplicateOrder = errors.New("source order already recorded")
	// ErrLedgerUnavailable is returned when no ledger handle is configured.
	ErrLedgerUnavailable = errors.New("history ledger unavailable")
	ErrRecordNotFound    = errors.New("source order not recorded")
)

// ProcessedOrderRecord marks a source position event as handled.
type ProcessedOrderRecord struct {
	SourceOrderID   string    `json:"sourceOrderId"`
	Symbol          string    `json:"symbol"`
	AgentName       string    `json:"agentName"`
	Side            Side      `json:"side"`
	Quantity        float64   `json:"quantity"`
	EntryPrice      float64   `json:"entryPrice"`
	FollowerOrderID string    `json:"followerOrderId"`
	RecordedAt      time.Time `json:"recordedAt"`
}

// HistoryLedger is the durable set of handled source order ids.
type HistoryLedger interface {
	// Record stores rec. It returns ErrDuplicateOrder, leaving the existing
	// record unchanged, when rec.SourceOrderID is already present.
	Record(ctx context.Context, rec ProcessedOrderRecord) error
	IsProcessed(ctx context.Context, sourceOrderID string) (bool, error)
	Get(ctx context.Context, sourceOrderID string) (*ProcessedOrderRecord, error)
	List(ctx context.Context, limit int) ([]*ProcessedOrderRecord, error)
}
