package middleware

import (
	"context"

	"github.com/NathanYKo/RAG-Document-System/models"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// UserKey is the context key for the authenticated user
	UserKey contextKey = "user"

	// APIKeyKey is the context key for the authenticating API key
	APIKeyKey contextKey = "api_key"
)

// GetRequestIDFromContext retrieves the request ID from context, falling
// back to the chi request ID when none was stored explicitly
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// UserFromContext retrieves the authenticated user from context
func UserFromContext(ctx context.Context) *models.User {
	if val := ctx.Value(UserKey); val != nil {
		if user, ok := val.(*models.User); ok {
			return user
		}
	}
	return nil
}

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// APIKeyFromContext retrieves the authenticating API key from context.
// It returns nil for requests authenticated with a bearer token.
func APIKeyFromContext(ctx context.Context) *models.APIKey {
	if val := ctx.Value(APIKeyKey); val != nil {
		if key, ok := val.(*models.APIKey); ok {
			return key
		}
	}
	return nil
}

// WithAPIKey adds the authenticating API key to the context
func WithAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	return context.WithValue(ctx, APIKeyKey, key)
}
