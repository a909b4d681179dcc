package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/services/evaluation"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"go.uber.org/zap"
)

// SystemMetrics defines the interface for operational metrics
type SystemMetrics interface {
	// SystemStats returns the all-time platform snapshot
	SystemStats(ctx context.Context) (*evaluation.SystemStats, error)
	// Performance reports quality metrics over the trailing window
	Performance(ctx context.Context, days int) (*evaluation.PerformanceMetrics, error)
}

// AdminHandler handles admin-only statistics HTTP requests
type AdminHandler struct {
	metrics SystemMetrics
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(metrics SystemMetrics, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		metrics: metrics,
		logger:  logger,
	}
}

// HandleSystemStats handles GET /admin/stats
func (h *AdminHandler) HandleSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	stats, err := h.metrics.SystemStats(ctx)
	if err != nil {
		h.logger.Error("failed to load system stats",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, stats)
}

// HandlePerformance handles GET /metrics/performance
// The days query parameter bounds the reporting window, default seven.
func (h *AdminHandler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			_ = utils.WriteBadRequest(w, "days must be a positive integer", nil)
			return
		}
		days = v
	}

	metrics, err := h.metrics.Performance(ctx, days)
	if err != nil {
		h.logger.Error("failed to load performance metrics",
			zap.String("request_id", requestID),
			zap.Int("days", days),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, metrics)
}
