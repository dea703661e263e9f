package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/copy_follower/internal/domain"
)

func newSQLiteLedger(t *testing.T) domain.HistoryLedger {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newRedisLedger(t *testing.T) domain.HistoryLedger {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisLedger(rdb, "test:")
}

func ledgers() map[string]func(*testing.T) domain.HistoryLedger {
	return map[string]func(*testing.T) domain.HistoryLedger{
		"sqlite": newSQLiteLedger,
		"redis":  newRedisLedger,
	}
}

func record(oid, followerID string, at time.Time) domain.ProcessedOrderRecord {
	return domain.ProcessedOrderRecord{
		SourceOrderID:   oid,
		Symbol:          "BTCUSDT",
		AgentName:       "gpt-5",
		Side:            domain.SideBuy,
		Quantity:        0.5,
		EntryPrice:      50000,
		FollowerOrderID: followerID,
		RecordedAt:      at,
	}
}

func TestLedger_RecordAndLookup(t *testing.T) {
	for name, open := range ledgers() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			ctx := context.Background()
			at := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

			ok, err := l.IsProcessed(ctx, "abc123")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, l.Record(ctx, record("abc123", "9001", at)))

			ok, err = l.IsProcessed(ctx, "abc123")
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := l.Get(ctx, "abc123")
			require.NoError(t, err)
			assert.Equal(t, "9001", got.FollowerOrderID)
			assert.Equal(t, domain.SideBuy, got.Side)
			assert.True(t, at.Equal(got.RecordedAt))

			_, err = l.Get(ctx, "missing")
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)
		})
	}
}

func TestLedger_DuplicateKeepsOriginal(t *testing.T) {
	for name, open := range ledgers() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			ctx := context.Background()
			at := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

			require.NoError(t, l.Record(ctx, record("abc123", "first", at)))
			err := l.Record(ctx, record("abc123", "second", at.Add(time.Minute)))
			assert.ErrorIs(t, err, domain.ErrDuplicateOrder)

			got, err := l.Get(ctx, "abc123")
			require.NoError(t, err)
			assert.Equal(t, "first", got.FollowerOrderID)
		})
	}
}

func TestLedger_ConcurrentRecordAdmitsOne(t *testing.T) {
	for name, open := range ledgers() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			var wg sync.WaitGroup
			var mu sync.Mutex
			stored := 0
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := l.Record(context.Background(), record("race", fmt.Sprint(i), time.Now()))
					if err == nil {
						mu.Lock()
						stored++
						mu.Unlock()
					} else {
						assert.ErrorIs(t, err, domain.ErrDuplicateOrder)
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, 1, stored)
		})
	}
}

func TestLedger_ListNewestFirst(t *testing.T) {
	for name, open := range ledgers() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			ctx := context.Background()
			base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
			for i, oid := range []string{"a", "b", "c"} {
				require.NoError(t, l.Record(ctx, record(oid, "f-"+oid, base.Add(time.Duration(i)*time.Minute))))
			}

			recs, err := l.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, "c", recs[0].SourceOrderID)
			assert.Equal(t, "b", recs[1].SourceOrderID)

			all, err := l.List(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}
