package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthHandler returns the liveness status of the server.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler checks whether the server can serve traffic. The database
// gates readiness; gateway breaker states are informational because a
// tripped breaker degrades the service without taking it down.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	allReady := true

	dbStatus := map[string]string{"status": "up"}
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus["status"] = "down"
		dbStatus["error"] = err.Error()
		allReady = false
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus["status"] = "down"
		dbStatus["error"] = err.Error()
		allReady = false
	}

	sessionsStatus := map[string]string{"status": "up"}
	if err := s.sessions.Healthy(); err != nil {
		sessionsStatus["status"] = "down"
		sessionsStatus["error"] = err.Error()
		allReady = false
	}

	gatewayStatus := map[string]string{"status": "up"}
	for service, state := range s.gateway.Health() {
		gatewayStatus[service] = state
		if state != "closed" {
			gatewayStatus["status"] = "degraded"
		}
	}

	status := "ready"
	code := http.StatusOK
	if !allReady {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"components": map[string]any{
			"database": dbStatus,
			"sessions": sessionsStatus,
			"gateway":  gatewayStatus,
		},
	})
}
