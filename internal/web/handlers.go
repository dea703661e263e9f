package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vitos/copy_follower/internal/domain"
	"go.uber.org/zap"
)

const defaultListLimit = 50

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ledger": s.ledger != nil,
	})
}

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, domain.ErrLedgerUnavailable.Error(), http.StatusServiceUnavailable)
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.ledger.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list ledger", zap.Error(err))
		http.Error(w, "Failed to list ledger", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*domain.ProcessedOrderRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, domain.ErrLedgerUnavailable.Error(), http.StatusServiceUnavailable)
		return
	}
	rec, err := s.ledger.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrRecordNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to get ledger record", zap.Error(err))
		http.Error(w, "Failed to get ledger record", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]domain.Outcome, len(s.outcomes))
	copy(out, s.outcomes)
	s.mu.Unlock()

	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.writeJSON(w, http.StatusOK, out)
}
