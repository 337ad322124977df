package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Check is one readiness probe. A nil error means healthy.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// RegisterHealthCheck mounts /health (liveness) and /ready (readiness) on r.
func RegisterHealthCheck(r *mux.Router, logger *zap.SugaredLogger, checks ...Check) {
	// --- Liveness ---
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:  "alive",
			Message: "Service is running",
		})
	}).Methods(http.MethodGet)

	// --- Readiness ---
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		healthDetails := make(map[string]string, len(checks))
		var failing []string

		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				healthDetails[c.Name] = "unhealthy"
				failing = append(failing, fmt.Sprintf("%s: %v", c.Name, err))
			} else {
				healthDetails[c.Name] = "healthy"
			}
		}

		statusCode := http.StatusOK
		statusMsg := "ready"
		if len(failing) > 0 {
			statusCode = http.StatusServiceUnavailable
			statusMsg = fmt.Sprintf("%d component(s) failing", len(failing))
			logger.Warnw("readiness check failed", "failing", failing)
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:  statusMsg,
			Details: healthDetails,
		})
	}).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
