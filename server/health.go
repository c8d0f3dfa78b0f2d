package server

import (
	"context"
	"net/http"
	"time"

	"github.com/teranos/dataloader/version"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Database  string `json:"database"`
	Scheduler string `json:"scheduler"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Uptime    int64  `json:"uptimeSeconds"`
}

// HandleHealth reports liveness. A failed database ping answers 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()

	health := HealthResponse{
		Status:    "ok",
		State:     stateString(s.getState()),
		Database:  "ok",
		Scheduler: s.config().Scheduler.Mode,
		Version:   versionInfo.Version,
		Commit:    versionInfo.Short(),
		Uptime:    int64(time.Since(s.startedAt).Seconds()),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warnw("Health check database ping failed", "error", err)
		health.Status = "degraded"
		health.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, health)
}
