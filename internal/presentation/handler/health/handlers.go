package health

import (
	"context"
	"net/http"
	"time"

	"github.com/hilthontt/burner/internal/infrastructure/json"
)

const checkTimeout = 2 * time.Second

var startTime = time.Now()

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Handler struct {
	checks map[string]Check
}

func NewHandler(checks map[string]Check) *Handler {
	if checks == nil {
		checks = map[string]Check{}
	}
	return &Handler{checks: checks}
}

// GetHealth is the liveness probe. It never touches dependencies.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	})
}

// GetReady runs every registered check and answers 503 if any fails.
func (h *Handler) GetReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status := http.StatusOK
	resp := healthResponse{
		Status: "ok",
		Checks: make(map[string]string, len(h.checks)),
	}

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)
	resp.Uptime = time.Since(startTime).Round(time.Second).String()
	json.Write(w, status, resp)
}
