package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/vitos/copy_follower/internal/config"
	"github.com/vitos/copy_follower/internal/domain"
	"github.com/vitos/copy_follower/internal/infrastructure/storage"
)

// ledger prints recorded source orders.
//
//	ledger -config config/config.yaml -limit 20
//	ledger -config config/config.yaml -id abc123
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	limit := flag.Int("limit", 20, "number of records to list")
	id := flag.String("id", "", "show a single source order id")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ledger, closeFn, err := openLedger(cfg)
	if err != nil {
		fmt.Printf("Failed to open ledger: %v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *id != "" {
		rec, err := ledger.Get(ctx, *id)
		if errors.Is(err, domain.ErrRecordNotFound) {
			fmt.Printf("%s: not recorded\n", *id)
			os.Exit(1)
		}
		if err != nil {
			fmt.Printf("Failed to get record: %v\n", err)
			os.Exit(1)
		}
		printRecord(rec)
		return
	}

	records, err := ledger.List(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list ledger: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Found %d records:\n", len(records))
	for _, r := range records {
		printRecord(r)
	}
}

func openLedger(cfg *config.Config) (domain.HistoryLedger, func(), error) {
	switch cfg.Ledger.Backend {
	case config.LedgerSQLite:
		store, err := storage.NewSQLiteStore(cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case config.LedgerRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		return storage.NewRedisLedger(rdb, cfg.Ledger.RedisPrefix), func() { rdb.Close() }, nil
	default:
		return nil, nil, domain.ErrLedgerUnavailable
	}
}

func printRecord(r *domain.ProcessedOrderRecord) {
	fmt.Printf("- %s  %s %s %s qty=%g entry=%g order=%s at=%s\n",
		r.SourceOrderID, r.AgentName, r.Symbol, r.Side, r.Quantity, r.EntryPrice,
		r.FollowerOrderID, r.RecordedAt.Format(time.RFC3339))
}
