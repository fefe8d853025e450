package handlers

import (
	"context"
	"net/http"
	"time"

	"pricealerts/internal/scheduler"
)

// Pinger is implemented by stores that can check their backing database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    string            `json:"status"`
	Database  string            `json:"database"`
	Scheduler *scheduler.Status `json:"scheduler,omitempty"`
}

// Health reports liveness, the database state and the price cycle status.
// Either dependency may be nil.
func Health(db Pinger, status func() scheduler.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Database: "n/a"}
		code := http.StatusOK

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := db.Ping(ctx)
			cancel()
			if err != nil {
				resp.Status = "degraded"
				resp.Database = "unreachable"
				code = http.StatusServiceUnavailable
			} else {
				resp.Database = "ok"
			}
		}
		if status != nil {
			st := status()
			resp.Scheduler = &st
		}
		writeJSON(w, code, resp)
	}
}
