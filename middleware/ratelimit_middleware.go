package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/NathanYKo/RAG-Document-System/services/ratelimit"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Limiter defines the interface for rate limit decisions
type Limiter interface {
	AllowUser(ctx context.Context, userID uuid.UUID) (*ratelimit.Result, error)
	AllowAPIKey(ctx context.Context, keyID uuid.UUID, limit int) (*ratelimit.Result, error)
	AllowIP(ctx context.Context, addr string) (*ratelimit.Result, error)
}

// RateLimitMiddleware enforces request quotas per user, API key, or client IP
type RateLimitMiddleware struct {
	limiter Limiter
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware
func NewRateLimitMiddleware(limiter Limiter, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// LimitAuthenticated is a middleware that limits requests by the authenticated
// credential. API key callers are limited by the key's own quota, everyone
// else by the per-user quota. Limiter failures fail open.
// This should be called after Authenticate.
func (m *RateLimitMiddleware) LimitAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		var (
			result *ratelimit.Result
			err    error
		)
		if key := APIKeyFromContext(ctx); key != nil {
			result, err = m.limiter.AllowAPIKey(ctx, key.ID, key.RateLimit)
		} else if user := UserFromContext(ctx); user != nil {
			result, err = m.limiter.AllowUser(ctx, user.ID)
		} else {
			m.logger.Error("user not found in context",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		if err != nil {
			// Fail open when the limiter is unavailable.
			m.logger.Error("rate limit check failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			m.deny(w, requestID, result)
			return
		}

		setRateLimitHeaders(w, result)
		next.ServeHTTP(w, r)
	})
}

// LimitByIP is a middleware that limits requests by client address. It is
// meant for unauthenticated surfaces and fails open on limiter errors.
func (m *RateLimitMiddleware) LimitByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		result, err := m.limiter.AllowIP(ctx, clientAddr(r))
		if err != nil {
			m.logger.Error("rate limit check failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			m.deny(w, requestID, result)
			return
		}

		setRateLimitHeaders(w, result)
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) deny(w http.ResponseWriter, requestID string, result *ratelimit.Result) {
	m.logger.Warn("request blocked by rate limit",
		zap.String("request_id", requestID),
		zap.Int("limit", result.Limit),
		zap.Duration("window", result.Window))

	setRateLimitHeaders(w, result)
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter()))

	details := map[string]interface{}{
		"limit":     result.Limit,
		"remaining": result.Remaining,
		"reset_at":  result.ResetAt.UTC().Format(time.RFC3339),
		"window":    result.Window.String(),
	}
	_ = utils.WriteTooManyRequests(w, "Rate limit exceeded", details)
}

func setRateLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", result.ResetAt.UTC().Format(time.RFC3339))
}

// clientAddr strips the port from RemoteAddr. RealIP rewrites RemoteAddr to
// the forwarded address, which carries no port.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
