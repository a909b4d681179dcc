package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/services/rag"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"go.uber.org/zap"
)

// QueryService defines the interface for the retrieval pipeline
type QueryService interface {
	// Query answers a question from the document knowledge base
	Query(ctx context.Context, req *rag.QueryRequest) (*rag.QueryResponse, error)
}

// QueryRecorder persists query history
type QueryRecorder interface {
	// Record enqueues one log entry without blocking the request
	Record(entry *models.QueryLog) error
	// History returns the caller's past queries, newest first
	History(ctx context.Context, user *models.User, limit, offset int) ([]*models.QueryLog, error)
}

// QueryHandler handles knowledge base query HTTP requests
type QueryHandler struct {
	service  QueryService
	recorder QueryRecorder
	logger   *zap.Logger
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(service QueryService, recorder QueryRecorder, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		service:  service,
		recorder: recorder,
		logger:   logger,
	}
}

// HandleQuery handles POST /query
// Every request is logged, succeeded or failed, so history and metrics
// see the full picture.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req rag.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}
	req.Normalize()

	h.logger.Debug("processing query",
		zap.String("request_id", requestID),
		zap.String("user_id", user.ID.String()),
		zap.String("client_ip", getClientIP(r)),
		zap.Int("max_results", req.MaxResults))

	// A nil *FilterParams must stay nil through the interface conversion
	var filters interface{}
	if req.FilterParams != nil {
		filters = req.FilterParams
	}
	entry := models.NewQueryLog(user.ID, req.Query).WithRequest(req.MaxResults, filters)

	resp, err := h.service.Query(ctx, &req)
	if err != nil {
		entry.MarkAsFailed(err.Error())
		h.record(entry, requestID)
		h.logger.Error("query processing failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	entry.MarkAsDone(resp.Answer, resp.ConfidenceScore,
		int(resp.ProcessingTime*1000), resp.TokensUsed, resp.Sources)
	h.record(entry, requestID)

	h.logger.Info("query answered",
		zap.String("request_id", requestID),
		zap.String("user_id", user.ID.String()),
		zap.Int("sources", resp.SourcesCount),
		zap.Float64("confidence", resp.ConfidenceScore))

	_ = utils.WriteOK(w, resp)
}

// HandleHistory handles GET /queries
func (h *QueryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, offset := parsePagination(r, defaultPageLimit)

	logs, err := h.recorder.History(ctx, user, limit, offset)
	if err != nil {
		h.logger.Error("failed to load query history",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, logs)
}

// record hands the entry to the history writer. Recording is best effort,
// a full queue must not fail the query itself.
func (h *QueryHandler) record(entry *models.QueryLog, requestID string) {
	if err := h.recorder.Record(entry); err != nil {
		h.logger.Warn("failed to record query log",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
