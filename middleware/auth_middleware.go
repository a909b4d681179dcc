package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenAuthenticator resolves a bearer token to its account
type TokenAuthenticator interface {
	UserFromToken(ctx context.Context, token string) (*models.User, error)
}

// KeyAuthenticator resolves a raw API key to its stored record
type KeyAuthenticator interface {
	Verify(ctx context.Context, rawKey string) (*models.APIKey, error)
}

// UserLoader loads the owning account for an API key
type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	tokens TokenAuthenticator
	keys   KeyAuthenticator
	users  UserLoader
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(tokens TokenAuthenticator, keys KeyAuthenticator, users UserLoader, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		keys:   keys,
		users:  users,
		logger: logger,
	}
}

// apiKeyHeader carries raw API keys; the Authorization header takes precedence
const apiKeyHeader = "X-API-Key"

// Authenticate is a middleware that requires a valid bearer token or API key.
// Key-authenticated requests carry both the owning user and the key in the
// request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		if token := extractBearerToken(r); token != "" {
			user, err := m.tokens.UserFromToken(ctx, token)
			if err != nil {
				m.logger.Warn("token authentication failed",
					zap.String("request_id", requestID),
					zap.Error(err))
				_ = utils.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			m.logger.Debug("token authentication successful",
				zap.String("request_id", requestID),
				zap.String("username", user.Username))

			next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
			return
		}

		if rawKey := r.Header.Get(apiKeyHeader); rawKey != "" {
			key, err := m.keys.Verify(ctx, rawKey)
			if err != nil {
				m.logger.Warn("API key authentication failed",
					zap.String("request_id", requestID),
					zap.Error(err))
				_ = utils.WriteUnauthorized(w, "Invalid API key")
				return
			}

			owner, err := m.users.GetByID(ctx, key.UserID)
			if err != nil {
				m.logger.Error("failed to load API key owner",
					zap.String("request_id", requestID),
					zap.String("key_prefix", key.Prefix),
					zap.Error(err))
				_ = utils.WriteUnauthorized(w, "Invalid API key")
				return
			}
			if !owner.IsActive {
				m.logger.Warn("API key owner is deactivated",
					zap.String("request_id", requestID),
					zap.String("key_prefix", key.Prefix))
				_ = utils.WriteUnauthorized(w, "Invalid API key")
				return
			}

			m.logger.Debug("API key authentication successful",
				zap.String("request_id", requestID),
				zap.String("key_prefix", key.Prefix),
				zap.String("username", owner.Username))

			ctx = WithUser(ctx, owner)
			ctx = WithAPIKey(ctx, key)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		m.logger.Warn("missing credentials",
			zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
	})
}

// RequireAdmin is a middleware that requires an admin account. API key
// callers additionally need the admin permission on the key itself.
// This should be called after Authenticate.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		user := UserFromContext(ctx)
		if user == nil {
			m.logger.Error("user not found in context",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		if !user.IsAdmin {
			m.logger.Warn("admin access denied",
				zap.String("request_id", requestID),
				zap.String("username", user.Username))
			_ = utils.WriteForbidden(w, "Admin privileges required")
			return
		}

		if key := APIKeyFromContext(ctx); key != nil && !key.Permissions.CanAdmin {
			m.logger.Warn("API key lacks admin permission",
				zap.String("request_id", requestID),
				zap.String("key_prefix", key.Prefix))
			_ = utils.WriteForbidden(w, "API key lacks admin permission")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Permission names a capability an API key can be scoped to
type Permission string

const (
	// PermissionUpload gates document ingestion endpoints
	PermissionUpload Permission = "upload"

	// PermissionQuery gates query endpoints
	PermissionQuery Permission = "query"
)

// RequirePermission is a middleware that checks API key capability scopes.
// Token-authenticated users are not scoped and always pass.
// This should be called after Authenticate.
func (m *AuthMiddleware) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			if UserFromContext(ctx) == nil {
				m.logger.Error("user not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			key := APIKeyFromContext(ctx)
			if key == nil {
				next.ServeHTTP(w, r)
				return
			}

			var allowed bool
			switch perm {
			case PermissionUpload:
				allowed = key.Permissions.CanUpload
			case PermissionQuery:
				allowed = key.Permissions.CanQuery
			}

			if !allowed {
				m.logger.Warn("API key lacks permission",
					zap.String("request_id", requestID),
					zap.String("key_prefix", key.Prefix),
					zap.String("permission", string(perm)))
				_ = utils.WriteForbidden(w, fmt.Sprintf("API key lacks %s permission", perm))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check if it starts with "Bearer "
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
