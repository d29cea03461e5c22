package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/enricher-service/internal/delivery/http/response"
	"github.com/user/enricher-service/internal/entity"
)

// Enrichment is the part of the enricher the API exposes.
type Enrichment interface {
	Pass(ctx context.Context) (*entity.PassReport, error)
	Snapshot() []entity.TargetStatus
}

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	enricher Enrichment
	pingers  map[string]Pinger
	logger   *zap.Logger
}

func NewHandler(enricher Enrichment, pingers map[string]Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		enricher: enricher,
		pingers:  pingers,
		logger:   logger,
	}
}

// HandlePass runs one enrichment pass and reports what it did.
func (h *Handler) HandlePass(w http.ResponseWriter, r *http.Request) {
	report, err := h.enricher.Pass(r.Context())
	if report == nil {
		h.logger.Error("enrichment pass failed", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := response.PassResponse{
		Status:     "completed",
		StartedAt:  report.StartedAt,
		DurationMS: report.Duration.Milliseconds(),
		Fetches:    report.Fetches(),
		Regions:    report.Regions,
	}
	if err != nil {
		h.logger.Warn("enrichment pass incomplete", zap.Error(err))
		resp.Status = "partial"
		resp.Error = err.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleTargets lists every target the enricher knows about.
func (h *Handler) HandleTargets(w http.ResponseWriter, r *http.Request) {
	targets := h.enricher.Snapshot()
	if kind := r.URL.Query().Get("region"); kind != "" {
		filtered := targets[:0:0]
		for _, t := range targets {
			if string(t.Region) == kind {
				filtered = append(filtered, t)
			}
		}
		targets = filtered
	}
	h.writeJSON(w, http.StatusOK, response.TargetsResponse{Count: len(targets), Targets: targets})
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"status": "ok"}
	healthy := true
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthy = false
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}

	if !healthy {
		healthStatus["status"] = "degraded"
		h.writeJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	h.writeJSON(w, http.StatusOK, healthStatus)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
