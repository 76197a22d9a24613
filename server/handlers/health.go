package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health reports that the process is serving. It does not probe the backend.
func Health(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, logger, http.StatusOK, HealthResponse{Status: "healthy"})
	}
}
