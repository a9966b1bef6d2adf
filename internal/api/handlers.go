package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/triptide/collector/internal/pipeline"
)

// stageTimeout bounds a background stage run triggered over HTTP. Full-city
// harvests against the public API can take a long time.
const stageTimeout = 2 * time.Hour

var validStages = map[string]bool{
	pipeline.StageHarvest: true,
	pipeline.StageClean:   true,
	pipeline.StageEnrich:  true,
	pipeline.StageLoad:    true,
	pipeline.StageAll:     true,
}

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	runner PipelineRunner
	status StatusProvider
	log    *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(runner PipelineRunner, status StatusProvider, log *slog.Logger) *Handlers {
	return &Handlers{runner: runner, status: status, log: log}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetStatus handles GET /api/v1/status.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.status.Status()
	if err != nil {
		h.log.Error("status query failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// RunStage handles POST /api/v1/pipeline/{city}/{stage}. The stage runs in
// the background; the response only confirms it was accepted.
func (h *Handlers) RunStage(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	stage := chi.URLParam(r, "stage")

	if !validStages[stage] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown stage " + stage})
		return
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error("stage run panicked", "city", city, "stage", stage, "panic", rec)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
		defer cancel()

		if err := h.runner.RunStage(ctx, city, stage); err != nil {
			h.log.Error("stage run failed", "city", city, "stage", stage, "err", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"city":   city,
		"stage":  stage,
	})
}

// Pinger is a connectivity probe for an optional backing service. Nil
// pingers are reported as disabled rather than failing the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis
// connectivity.
func HealthHandlerFunc(db, redis Pinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		check := func(name string, p Pinger) string {
			if p == nil {
				return "disabled"
			}
			if err := p.Ping(ctx); err != nil {
				log.Error("health check ping failed", "service", name, "err", err)
				status = http.StatusServiceUnavailable
				return "error"
			}
			return "ok"
		}

		dbStatus := check("db", db)
		redisStatus := check("redis", redis)

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}
