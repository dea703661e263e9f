package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/copy_follower/internal/domain"
)

// SQLiteStore is the file-backed history ledger.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// one writer keeps the uniqueness check and insert on a single connection
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS processed_orders (
			source_order_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			follower_order_id TEXT NOT NULL,
			recorded_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_processed_orders_recorded_at ON processed_orders(recorded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_processed_orders_agent_symbol ON processed_orders(agent_name, symbol);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// HistoryLedger Implementation

func (s *SQLiteStore) Record(ctx context.Context, rec domain.ProcessedOrderRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	query := `INSERT INTO processed_orders (source_order_id, symbol, agent_name, side, quantity, entry_price, follower_order_id, recorded_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(source_order_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query,
		rec.SourceOrderID, rec.Symbol, rec.AgentName, rec.Side, rec.Quantity, rec.EntryPrice, rec.FollowerOrderID, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.SourceOrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.SourceOrderID, err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", rec.SourceOrderID, domain.ErrDuplicateOrder)
	}
	return nil
}

func (s *SQLiteStore) IsProcessed(ctx context.Context, sourceOrderID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM processed_orders WHERE source_order_id = ?`, sourceOrderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sourceOrderID string) (*domain.ProcessedOrderRecord, error) {
	query := `SELECT source_order_id, symbol, agent_name, side, quantity, entry_price, follower_order_id, recorded_at FROM processed_orders WHERE source_order_id = ?`
	row := s.db.QueryRowContext(ctx, query, sourceOrderID)

	var r domain.ProcessedOrderRecord
	err := row.Scan(&r.SourceOrderID, &r.Symbol, &r.AgentName, &r.Side, &r.Quantity, &r.EntryPrice, &r.FollowerOrderID, &r.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns the most recent records first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*domain.ProcessedOrderRecord, error) {
	query := `SELECT source_order_id, symbol, agent_name, side, quantity, entry_price, follower_order_id, recorded_at FROM processed_orders ORDER BY recorded_at DESC, rowid DESC LIMIT ?`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ProcessedOrderRecord
	for rows.Next() {
		var r domain.ProcessedOrderRecord
		if err := rows.Scan(&r.SourceOrderID, &r.Symbol, &r.AgentName, &r.Side, &r.Quantity, &r.EntryPrice, &r.FollowerOrderID, &r.RecordedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
