package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
)

const recentOutcomes = 200

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	ledger  domain.HistoryLedger
	metrics http.Handler
	logger  *zap.Logger

	mu       sync.Mutex
	outcomes []domain.Outcome
}

// NewServer serves the ledger and recent outcomes. ledger and metrics may be
// nil, in which case their routes report 503 and 404.
func NewServer(port int, ledger domain.HistoryLedger, metrics http.Handler, logger *zap.Logger) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		ledger:  ledger,
		metrics: metrics,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)

	// Ledger
	s.router.HandleFunc("GET /api/ledger", s.handleListLedger)
	s.router.HandleFunc("GET /api/ledger/{id}", s.handleGetLedger)

	// Outcomes
	s.router.HandleFunc("GET /api/outcomes", s.handleOutcomes)

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
}

// Publish keeps the most recent outcomes for /api/outcomes.
func (s *Server) Publish(_ context.Context, o domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	if len(s.outcomes) > recentOutcomes {
		s.outcomes = s.outcomes[len(s.outcomes)-recentOutcomes:]
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
