package server

import (
	"encoding/json"
	"net/http"

	"github.com/krislette/gl-jenkins-tem/internal/tracker"
)

// HandleHealth handles health check requests.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus returns the last processed commit and the recent run history.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	latest, err := s.Store.LatestRun(ctx)
	if err != nil {
		s.Logger.Error("Failed to read latest run", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	history, err := s.Store.RunHistory(ctx, historyLimit)
	if err != nil {
		s.Logger.Error("Failed to read run history", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, tracker.Status{
		LastProcessedCommit: s.Store.LastProcessed(ctx),
		LatestRun:           latest,
		RecentRuns:          history,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("Failed to encode response", "error", err)
	}
}
