package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/services/auth"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KeyService defines the interface for API key management
type KeyService interface {
	// Create mints a key for the user; the raw secret is only in the reply
	Create(ctx context.Context, user *models.User, req *auth.CreateKeyRequest) (*auth.CreatedKey, error)
	// List returns the caller's keys
	List(ctx context.Context, user *models.User) ([]*models.APIKey, error)
	// Revoke deactivates one of the caller's keys
	Revoke(ctx context.Context, user *models.User, keyID uuid.UUID) error
}

// APIKeyHandler handles API key management HTTP requests
type APIKeyHandler struct {
	service KeyService
	logger  *zap.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler
func NewAPIKeyHandler(service KeyService, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCreate handles POST /api-keys
// The response is the only time the raw key is ever returned.
func (h *APIKeyHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req auth.CreateKeyRequest
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

	created, err := h.service.Create(ctx, user, &req)
	if err != nil {
		h.logger.Error("failed to create API key",
			zap.String("request_id", requestID),
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("API key created",
		zap.String("request_id", requestID),
		zap.String("key_id", created.ID.String()),
		zap.String("key_prefix", created.Prefix),
		zap.String("user_id", user.ID.String()))

	_ = utils.WriteCreated(w, created)
}

// HandleList handles GET /api-keys
func (h *APIKeyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	keys, err := h.service.List(ctx, user)
	if err != nil {
		h.logger.Error("failed to list API keys",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, keys)
}

// HandleRevoke handles DELETE /api-keys/{id}
func (h *APIKeyHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid API key ID format", nil)
		return
	}

	if err := h.service.Revoke(ctx, user, id); err != nil {
		h.logger.Warn("failed to revoke API key",
			zap.String("request_id", requestID),
			zap.String("key_id", id.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("API key revoked",
		zap.String("request_id", requestID),
		zap.String("key_id", id.String()),
		zap.String("user_id", user.ID.String()))

	utils.WriteNoContent(w)
}
