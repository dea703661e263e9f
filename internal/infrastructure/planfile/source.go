package planfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
)

// Source is a domain.Analyzer reading follow plans from a JSON file. The
// file is re-read on every call so an upstream writer can replace it between
// passes.
type Source struct {
	path   string
	ledger domain.HistoryLedger
	logger *zap.Logger

	mu        sync.RWMutex
	tolerance float64
}

func NewSource(path string, ledger domain.HistoryLedger, logger *zap.Logger) *Source {
	return &Source{path: path, ledger: ledger, logger: logger.Named("planfile")}
}

type document struct {
	Plans []domain.FollowPlan `json:"plans"`
}

func (s *Source) load() ([]domain.FollowPlan, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	var plans []domain.FollowPlan
	if err := json.Unmarshal(data, &plans); err == nil {
		return plans, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", s.path, err)
	}
	return doc.Plans, nil
}

// FollowPlans returns the plans for agent, or all plans when agent is empty.
// Entries whose source order is already in the ledger are dropped.
func (s *Source) FollowPlans(ctx context.Context, agent string) ([]domain.FollowPlan, error) {
	plans, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]domain.FollowPlan, 0, len(plans))
	for _, p := range plans {
		if agent != "" && p.Agent != agent {
			continue
		}
		if s.handled(ctx, p) {
			s.logger.Debug("Skipping handled entry",
				zap.String("symbol", p.Symbol),
				zap.String("source_oid", p.SourceOrderID()))
			continue
		}
		out = append(out, p)
	}
	s.logger.Info("Loaded follow plans", zap.String("agent", agent), zap.Int("total", len(plans)), zap.Int("pending", len(out)))
	return out, nil
}

func (s *Source) handled(ctx context.Context, p domain.FollowPlan) bool {
	oid := p.SourceOrderID()
	if p.Action != domain.ActionEnter || oid == "" || s.ledger == nil {
		return false
	}
	ok, err := s.ledger.IsProcessed(ctx, oid)
	if err != nil {
		// the dispatcher checks again under the plan lock
		s.logger.Warn("Ledger lookup failed, keeping plan", zap.String("source_oid", oid), zap.Error(err))
		return false
	}
	return ok
}

func (s *Source) SetPriceTolerance(percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tolerance = percent
}

func (s *Source) PriceTolerance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tolerance
}

func (s *Source) Ledger() domain.HistoryLedger {
	return s.ledger
}
