package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateFeedbackRequest rates one answered query
type CreateFeedbackRequest struct {
	QueryLogID           uuid.UUID `json:"query_log_id" validate:"required"`
	Rating               int       `json:"rating" validate:"required,min=1,max=5"`
	FeedbackType         string    `json:"feedback_type,omitempty" validate:"omitempty,oneof=general accuracy relevance speed"`
	Comment              *string   `json:"comment,omitempty" validate:"omitempty,max=1000"`
	WasHelpful           *bool     `json:"was_helpful,omitempty"`
	SuggestedImprovement *string   `json:"suggested_improvement,omitempty" validate:"omitempty,max=500"`
}

// FeedbackHandler handles feedback HTTP requests
type FeedbackHandler struct {
	queryLogs repositories.QueryLogRepository
	feedback  repositories.FeedbackRepository
	logger    *zap.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler
func NewFeedbackHandler(queryLogs repositories.QueryLogRepository, feedback repositories.FeedbackRepository, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		queryLogs: queryLogs,
		feedback:  feedback,
		logger:    logger,
	}
}

// HandleCreate handles POST /feedback
// Feedback may only target the caller's own queries.
func (h *FeedbackHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateFeedbackRequest
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

	entry, err := h.queryLogs.GetByID(ctx, req.QueryLogID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = utils.WriteNotFound(w, "Query not found")
			return
		}
		h.logger.Error("failed to load query log",
			zap.String("request_id", requestID),
			zap.String("query_log_id", req.QueryLogID.String()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "An internal error occurred")
		return
	}
	if entry.UserID != user.ID {
		_ = utils.WriteForbidden(w, "Not authorized to provide feedback for this query")
		return
	}

	fb := models.NewFeedback(req.QueryLogID, user.ID, req.Rating, req.Comment)
	if req.FeedbackType != "" {
		fb.FeedbackType = models.FeedbackType(req.FeedbackType)
	}
	fb.WasHelpful = req.WasHelpful
	fb.SuggestedImprovement = req.SuggestedImprovement

	if err := h.feedback.Create(ctx, fb); err != nil {
		h.logger.Error("failed to store feedback",
			zap.String("request_id", requestID),
			zap.String("query_log_id", req.QueryLogID.String()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "An internal error occurred")
		return
	}

	h.logger.Info("feedback submitted",
		zap.String("request_id", requestID),
		zap.String("feedback_id", fb.ID.String()),
		zap.String("query_log_id", fb.QueryLogID.String()),
		zap.Int("rating", fb.Rating))

	_ = utils.WriteCreated(w, fb)
}

// HandleList handles GET /feedback
func (h *FeedbackHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, offset := parsePagination(r, defaultPageLimit)

	items, err := h.feedback.GetByUserID(ctx, user.ID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list feedback",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "An internal error occurred")
		return
	}

	_ = utils.WriteOK(w, items)
}
