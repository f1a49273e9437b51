package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hoopcast/forecast-api/internal/features"
	"github.com/hoopcast/forecast-api/internal/logic"
	"github.com/hoopcast/forecast-api/internal/worker"
)

// retryAfterSeconds is advertised on warm-up and overload responses.
const retryAfterSeconds = "5"

// Health check endpoint. Always 200 while the process is up; the warm-up
// state is informational.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	warm := map[string]interface{}{"ready": h.prediction.Ready()}
	if !h.prediction.Ready() {
		status = "warming_up"
	} else if err := h.prediction.WarmError(); err != nil {
		status = "degraded"
		warm["error"] = err.Error()
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"warmup":    warm,
		"timestamp": time.Now().UTC(),
	})
}

// Ready check endpoint
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]bool{
		"predictions": h.prediction.Ready(),
	}
	if h.pg != nil {
		checks["postgres"] = h.pg.Ping(ctx) == nil
	}
	if h.ch != nil {
		checks["clickhouse"] = h.ch.Ping(ctx) == nil
	}
	if h.redis != nil {
		checks["redis"] = h.redis.Ping(ctx).Err() == nil
	}

	allHealthy := true
	for _, ok := range checks {
		if !ok {
			allHealthy = false
			break
		}
	}

	body := map[string]interface{}{
		"ready":  allHealthy,
		"checks": checks,
	}
	if h.pool != nil {
		body["queueDepth"] = h.pool.QueueDepth()
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	h.jsonResponse(w, status, body)
}

// serviceError maps prediction service errors onto HTTP statuses.
func (h *Handler) serviceError(w http.ResponseWriter, err error, fallback string) {
	var mismatch *features.MismatchError
	switch {
	case errors.Is(err, logic.ErrGameNotFound):
		h.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.As(err, &mismatch):
		h.logger.Errorw("Model feature contract broken", "missing", mismatch.Missing)
		h.errorResponse(w, http.StatusInternalServerError, "Model expects features the pipeline does not produce; retrain or redeploy the model")
	case errors.Is(err, worker.ErrTimeout), errors.Is(err, worker.ErrPoolStopped):
		w.Header().Set("Retry-After", retryAfterSeconds)
		h.errorResponse(w, http.StatusServiceUnavailable, "Prediction workers are busy, retry shortly")
	default:
		h.logger.Errorw(fallback, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, fallback)
	}
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
