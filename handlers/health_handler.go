package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"go.uber.org/zap"
)

// ServiceName is the banner name reported on the root endpoint
const ServiceName = "Enterprise Document Intelligence System"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db            *sql.DB
	chunks        repositories.ChunkRepository
	llmConfigured bool
	version       string
	logger        *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. chunks may be nil when no
// vector store is wired, llmConfigured reports whether a provider key is set.
func NewHealthHandler(db *sql.DB, chunks repositories.ChunkRepository, llmConfigured bool, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:            db,
		chunks:        chunks,
		llmConfigured: llmConfigured,
		version:       version,
		logger:        logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that all dependencies are available. The
// LLM check is informational only; a missing key does not block traffic.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Check database connectivity
	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	// Check vector store connectivity
	if err := h.checkVectorStore(ctx); err != nil {
		h.logger.Warn("vector store health check failed", zap.Error(err))
		checks["vector_store"] = "unhealthy"
		allHealthy = false
	} else {
		checks["vector_store"] = "healthy"
	}

	if h.llmConfigured {
		checks["llm_provider"] = "configured"
	} else {
		checks["llm_provider"] = "not_configured"
	}

	// Determine overall status
	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleRoot handles GET /
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":   ServiceName,
		"version":   h.version,
		"health":    "/healthz",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil // No database configured
	}

	// Ping database with timeout
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	// Check if we can execute a simple query
	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return err
	}

	return nil
}

// checkVectorStore checks that the chunk store answers a count
func (h *HealthHandler) checkVectorStore(ctx context.Context) error {
	if h.chunks == nil {
		return nil
	}
	_, err := h.chunks.Count(ctx)
	return err
}
