package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/vitos/copy_follower/internal/config"
	"github.com/vitos/copy_follower/internal/domain"
	"github.com/vitos/copy_follower/internal/infrastructure/events"
	"github.com/vitos/copy_follower/internal/infrastructure/exchange"
	"github.com/vitos/copy_follower/internal/infrastructure/lock"
	"github.com/vitos/copy_follower/internal/infrastructure/metrics"
	"github.com/vitos/copy_follower/internal/infrastructure/planfile"
	"github.com/vitos/copy_follower/internal/infrastructure/storage"
	"github.com/vitos/copy_follower/internal/usecase"
	"github.com/vitos/copy_follower/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrPlansFailed is returned by a single pass in which at least one plan
// ended in a failure status.
var ErrPlansFailed = errors.New("follow plans failed")

// Summary counts one pass's outcomes by status.
type Summary struct {
	Total    int
	ByStatus map[domain.OutcomeStatus]int
	Failed   int
}

func summarize(outcomes []domain.Outcome) Summary {
	s := Summary{Total: len(outcomes), ByStatus: make(map[domain.OutcomeStatus]int)}
	for _, o := range outcomes {
		s.ByStatus[o.Status]++
		if o.Status.Failed() {
			s.Failed++
		}
	}
	return s
}

// App holds the wired follower.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	analyzer   *planfile.Source
	dispatcher *usecase.Dispatcher
	stream     *exchange.TickerStream
	server     *web.Server
	closers    []io.Closer
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: log}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		a.closers = append(a.closers, rdb)
	}

	ledger, err := a.openLedger(rdb)
	if err != nil {
		a.Close()
		return nil, err
	}

	ex, err := a.openExchange()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.analyzer = planfile.NewSource(cfg.Follow.PlansPath, ledger, log)
	a.analyzer.SetPriceTolerance(cfg.Follow.PriceTolerance)

	var cache usecase.PriceCache
	if a.stream != nil {
		cache = a.stream
	}
	sizer := usecase.NewPositionSizer(ex,
		usecase.NewLotSizeResolver(ex, cfg.Follow.LotCacheTTL, log),
		usecase.NewPriceResolver(ex, cache, log),
		usecase.SizerConfig{MarginFraction: cfg.Follow.MarginFraction, MaxOvershootPct: cfg.Follow.MaxOvershootPct},
		log)
	risk := usecase.NewRiskGate(usecase.NewRiskManager(usecase.RiskConfig{
		MaxLeverage:     cfg.Risk.MaxLeverage,
		WarnLeverage:    cfg.Risk.WarnLeverage,
		PriceTolerance:  cfg.Follow.PriceTolerance,
		MaxNotionalUSDT: cfg.Risk.MaxNotionalUSDT,
	}))

	var locker domain.Locker
	if cfg.Redis.Locking && rdb != nil {
		locker = lock.NewRedisLocker(rdb, "", cfg.Redis.LockTTL, log)
	}

	// the dispatcher must write to the analyzer's ledger
	a.dispatcher = usecase.NewDispatcher(ex, risk, sizer, a.analyzer.Ledger(), locker,
		usecase.DispatcherConfig{RiskOnly: cfg.Follow.RiskOnly, Concurrency: cfg.Follow.Concurrency},
		log).WithPriceTolerance(a.analyzer.PriceTolerance)

	recorder := metrics.New()
	a.dispatcher.WithSinks(recorder)
	if cfg.Server.Port > 0 {
		a.server = web.NewServer(cfg.Server.Port, ledger, recorder.Handler(), log)
		a.dispatcher.WithSinks(a.server)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.closers = append(a.closers, pub)
		a.dispatcher.WithSinks(pub)
	}

	return a, nil
}

func (a *App) openLedger(rdb *redis.Client) (domain.HistoryLedger, error) {
	switch a.cfg.Ledger.Backend {
	case config.LedgerSQLite:
		if dir := filepath.Dir(a.cfg.Ledger.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create ledger dir: %w", err)
			}
		}
		store, err := storage.NewSQLiteStore(a.cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		a.closers = append(a.closers, store)
		return store, nil
	case config.LedgerRedis:
		return storage.NewRedisLedger(rdb, a.cfg.Ledger.RedisPrefix), nil
	default:
		a.logger.Warn("No history ledger configured, entries will not be recorded")
		return nil, nil
	}
}

func (a *App) openExchange() (domain.Exchange, error) {
	ec := a.cfg.Exchange
	switch ec.Name {
	case config.ExchangeBinance:
		if ec.Stream {
			a.stream = exchange.NewBinanceTickerStream(ec.WSEndpoint, ec.StreamMaxAge, a.logger)
		}
		return exchange.NewBinanceAdapter(ec.APIKey, ec.APISecret, ec.RESTEndpoint, a.logger), nil
	case config.ExchangeBybit:
		if ec.Stream {
			a.stream = exchange.NewBybitTickerStream(ec.WSEndpoint, ec.StreamMaxAge, a.logger)
		}
		return exchange.NewBybitAdapter(ec.APIKey, ec.APISecret, ec.RESTEndpoint, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", ec.Name)
	}
}

// RunPass loads the agent's pending plans and processes them.
func (a *App) RunPass(ctx context.Context) ([]domain.Outcome, error) {
	plans, err := a.analyzer.FollowPlans(ctx, a.cfg.Follow.Agent)
	if err != nil {
		return nil, fmt.Errorf("load follow plans: %w", err)
	}
	if len(plans) == 0 {
		a.logger.Info("No follow plans to process")
		return nil, nil
	}

	outcomes := a.dispatcher.ProcessAll(ctx, plans)
	sum := summarize(outcomes)
	fields := []zap.Field{zap.Int("total", sum.Total), zap.Int("failed", sum.Failed)}
	for status, n := range sum.ByStatus {
		fields = append(fields, zap.Int(string(status), n))
	}
	a.logger.Info("Follow pass finished", fields...)

	if sum.Failed > 0 {
		return outcomes, fmt.Errorf("%w: %d of %d", ErrPlansFailed, sum.Failed, sum.Total)
	}
	return outcomes, nil
}

// Run executes one pass, or passes on the configured interval until ctx is
// done. Only a single pass reports plan failures as an error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	bgCtx, stopBackground := context.WithCancel(gctx)
	defer stopBackground()

	if a.stream != nil {
		g.Go(func() error { return a.stream.Run(bgCtx, a.cfg.Follow.Symbols) })
	}
	if a.server != nil {
		g.Go(a.server.Start)
		g.Go(func() error {
			<-bgCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stopBackground()
		if a.cfg.Follow.Interval <= 0 {
			_, err := a.RunPass(gctx)
			return err
		}

		ticker := time.NewTicker(a.cfg.Follow.Interval)
		defer ticker.Stop()
		for {
			if _, err := a.RunPass(gctx); err != nil {
				a.logger.Error("Follow pass failed", zap.Error(err))
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("Close failed", zap.Error(err))
		}
	}
}

// Run wires the follower from cfg and runs it.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	a, err := New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}
