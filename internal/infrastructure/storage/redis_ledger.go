package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/vitos/copy_follower/internal/domain"
)

const DefaultRedisPrefix = "follower:ledger:"

// recordScript stores a record only when its key is free and indexes it by
// recording time in one step.
var recordScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// RedisLedger is a history ledger shared by several follower processes.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

func NewRedisLedger(client *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisLedger{client: client, prefix: prefix}
}

func (l *RedisLedger) recordKey(id string) string { return l.prefix + "order:" + id }
func (l *RedisLedger) indexKey() string           { return l.prefix + "index" }

func (l *RedisLedger) Record(ctx context.Context, rec domain.ProcessedOrderRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	stored, err := recordScript.Run(ctx, l.client,
		[]string{l.recordKey(rec.SourceOrderID), l.indexKey()},
		string(data), rec.RecordedAt.UnixMilli(), rec.SourceOrderID,
	).Int()
	if err != nil {
		return fmt.Errorf("redis record %s: %w", rec.SourceOrderID, err)
	}
	if stored == 0 {
		return fmt.Errorf("record %s: %w", rec.SourceOrderID, domain.ErrDuplicateOrder)
	}
	return nil
}

func (l *RedisLedger) IsProcessed(ctx context.Context, sourceOrderID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.recordKey(sourceOrderID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS %s: %w", sourceOrderID, err)
	}
	return n > 0, nil
}

func (l *RedisLedger) Get(ctx context.Context, sourceOrderID string) (*domain.ProcessedOrderRecord, error) {
	data, err := l.client.Get(ctx, l.recordKey(sourceOrderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", sourceOrderID, err)
	}
	var rec domain.ProcessedOrderRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", sourceOrderID, err)
	}
	return &rec, nil
}

// List returns the most recent records first.
func (l *RedisLedger) List(ctx context.Context, limit int) ([]*domain.ProcessedOrderRecord, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}
	ids, err := l.client.ZRevRange(ctx, l.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ZREVRANGE: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = l.recordKey(id)
	}
	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis MGET: %w", err)
	}

	records := make([]*domain.ProcessedOrderRecord, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec domain.ProcessedOrderRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			// Skip malformed entries but continue.
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}
