package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// sourceStatus is the /api/sources view of one configured source.
type sourceStatus struct {
	ID             string     `json:"id"`
	MediaName      string     `json:"media_name"`
	Strategy       string     `json:"strategy"`
	Enabled        bool       `json:"enabled"`
	LastUnit       string     `json:"last_completed_unit,omitempty"`
	CheckpointedAt *time.Time `json:"checkpointed_at,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := map[string]string{"postgres": "healthy", "checkpoints": "healthy"}
	healthy := true

	if err := s.db.Ping(ctx); err != nil {
		health["postgres"] = "unhealthy"
		healthy = false
		s.logger.Error("health check failed for postgres", zap.Error(err))
	}

	// The file backend has no connection to probe; only remote backends do.
	if p, ok := s.checkpoints.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			health["checkpoints"] = "unhealthy"
			healthy = false
			s.logger.Error("health check failed for checkpoint store", zap.Error(err))
		}
	}

	if !healthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	s.respondWithJSON(w, http.StatusOK, health)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.progress.Progress())
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	out := make([]sourceStatus, 0, len(s.config.Sources))
	for _, src := range s.config.Sources {
		st := sourceStatus{
			ID:        src.ID,
			MediaName: src.MediaName,
			Strategy:  src.Strategy,
			Enabled:   src.Enabled,
		}
		cp, ok, err := s.checkpoints.Load(r.Context(), src.ID)
		if err != nil {
			s.logger.Error("loading checkpoint", zap.String("source", src.ID), zap.Error(err))
		} else if ok {
			st.LastUnit = cp.LastKey
			at := cp.UpdatedAt
			st.CheckpointedAt = &at
		}
		out = append(out, st)
	}
	s.respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
