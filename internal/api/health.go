package api

import (
	"net/http"
)

// HealthHandler reports liveness plus the state of the backing services.
// The handler stays cheap: it reads the breaker instead of pinging, so load
// balancer probes never pile onto a struggling database.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	code := http.StatusOK

	if s.Postgres != nil {
		if s.Postgres.Healthy() {
			out["database"] = "ok"
		} else {
			out["database"] = "unhealthy"
			out["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if s.Redis != nil && s.Redis.Client != nil {
		if err := s.Redis.Client.Ping(r.Context()).Err(); err != nil {
			out["redis"] = "unhealthy"
			if out["status"] == "ok" {
				out["status"] = "degraded"
			}
		} else {
			out["redis"] = "ok"
		}
	}

	writeJSONStatus(w, code, out)
}
