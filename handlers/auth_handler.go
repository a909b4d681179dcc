package handlers

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/services"
	"github.com/NathanYKo/RAG-Document-System/services/auth"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"go.uber.org/zap"
)

// AuthService defines the interface for account operations
type AuthService interface {
	// Register creates a new account
	Register(ctx context.Context, req *auth.RegisterRequest) (*models.User, error)
	// Login verifies credentials and returns a bearer token
	Login(ctx context.Context, username, password string) (*auth.TokenResponse, error)
	// GetProfile returns the account with its usage statistics
	GetProfile(ctx context.Context, user *models.User) (*auth.UserProfile, error)
	// ListUsers returns a page of accounts, admin only
	ListUsers(ctx context.Context, caller *models.User, limit, offset int) ([]*models.User, error)
}

// AuthHandler handles registration, login and account HTTP requests
type AuthHandler struct {
	service AuthService
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	// Credential rules live in the service so failures carry exact messages
	user, err := h.service.Register(ctx, &req)
	if err != nil {
		h.logger.Warn("registration failed",
			zap.String("request_id", requestID),
			zap.String("username", req.Username),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("user registered",
		zap.String("request_id", requestID),
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username))

	_ = utils.WriteCreated(w, user)
}

// HandleLogin handles POST /auth/token
// Credentials arrive as an OAuth2 password grant form; a JSON body with
// the same field names is accepted as well.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	username, password, err := readCredentials(r)
	if err != nil {
		h.logger.Warn("failed to parse credentials",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if username == "" || password == "" {
		_ = utils.WriteBadRequest(w, "Username and password are required", nil)
		return
	}

	token, err := h.service.Login(ctx, username, password)
	if err != nil {
		h.logger.Warn("login failed",
			zap.String("request_id", requestID),
			zap.String("username", username),
			zap.Error(err))
		if services.IsUnauthorizedError(err) {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("user logged in",
		zap.String("request_id", requestID),
		zap.String("username", username))

	_ = utils.WriteJSON(w, http.StatusOK, token)
}

// HandleProfile handles GET /users/me
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	profile, err := h.service.GetProfile(ctx, user)
	if err != nil {
		h.logger.Error("failed to load profile",
			zap.String("request_id", requestID),
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, profile)
}

// HandleListUsers handles GET /users
func (h *AuthHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, offset := parsePagination(r, defaultPageLimit)

	users, err := h.service.ListUsers(ctx, user, limit, offset)
	if err != nil {
		h.logger.Error("failed to list users",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, users)
}

// readCredentials extracts the username and password from a login request.
// Forms follow the OAuth2 password flow field names.
func readCredentials(r *http.Request) (string, string, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	if strings.EqualFold(mediaType, "application/json") {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", err
		}
		return body.Username, body.Password, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", "", err
	}
	return r.PostFormValue("username"), r.PostFormValue("password"), nil
}
