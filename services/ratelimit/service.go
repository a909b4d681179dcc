// Package ratelimit enforces per-subject request quotas with a sliding
// window backed by PostgreSQL. Every allowed request inserts a row into
// rate_limit_requests and a check counts the subject's rows inside the
// window, so multiple server instances sharing one database stay
// consistent without extra coordination.
package ratelimit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/config"
	"github.com/NathanYKo/RAG-Document-System/services"
)

// SubjectUser keys the limiter by authenticated user.
func SubjectUser(id uuid.UUID) string { return "user:" + id.String() }

// SubjectIP keys the limiter by client address for unauthenticated traffic.
func SubjectIP(addr string) string { return "ip:" + addr }

// SubjectAPIKey keys the limiter by API key. Each key carries its own limit.
func SubjectAPIKey(id uuid.UUID) string { return "key:" + id.String() }

// Result reports the outcome of a limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Window    time.Duration
}

// RetryAfter returns the whole seconds a denied caller should wait before
// retrying, never less than one.
func (r *Result) RetryAfter() int {
	secs := int(time.Until(r.ResetAt).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Service checks and records requests against the rate_limit_requests table.
type Service struct {
	db     *sql.DB
	cfg    config.RateLimitConfig
	logger *zap.Logger
}

// NewService creates a rate limit service backed by db. Zero durations in
// cfg fall back to an hour window, 24h retention and a 10m cleanup interval.
func NewService(db *sql.DB, cfg config.RateLimitConfig, logger *zap.Logger) *Service {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	return &Service{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// AllowUser applies the per-user limit to an authenticated request.
func (s *Service) AllowUser(ctx context.Context, userID uuid.UUID) (*Result, error) {
	return s.Allow(ctx, SubjectUser(userID), s.cfg.UserLimit)
}

// AllowIP applies the per-address limit to an unauthenticated request.
func (s *Service) AllowIP(ctx context.Context, addr string) (*Result, error) {
	return s.Allow(ctx, SubjectIP(addr), s.cfg.IPLimit)
}

// AllowAPIKey applies the key's own request limit.
func (s *Service) AllowAPIKey(ctx context.Context, keyID uuid.UUID, limit int) (*Result, error) {
	return s.Allow(ctx, SubjectAPIKey(keyID), limit)
}

// Allow counts the subject's requests inside the sliding window and, when
// under the limit, records this one. Denied requests are not recorded, so a
// throttled client does not push its own reset further out. A limit of zero
// or less means unlimited.
func (s *Service) Allow(ctx context.Context, subject string, limit int) (*Result, error) {
	now := time.Now().UTC()
	start, reset := s.windowBounds(now)

	if !s.cfg.Enabled || limit <= 0 {
		return &Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetAt:   reset,
			Window:    s.cfg.Window,
		}, nil
	}

	query := `
		SELECT COUNT(*)
		FROM rate_limit_requests
		WHERE subject = $1
		  AND requested_at >= $2
		  AND requested_at < $3`

	var count int
	if err := s.db.QueryRowContext(ctx, query, subject, start, now).Scan(&count); err != nil {
		return nil, services.WrapInternal("failed to count rate limit window", err)
	}

	if count >= limit {
		s.logger.Warn("rate limit exceeded",
			zap.String("subject", subject),
			zap.Int("count", count),
			zap.Int("limit", limit),
			zap.Time("reset_at", reset))
		return &Result{
			Allowed:   false,
			Limit:     limit,
			Remaining: 0,
			ResetAt:   reset,
			Window:    s.cfg.Window,
		}, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_requests (subject, requested_at) VALUES ($1, $2)`,
		subject, now,
	); err != nil {
		return nil, services.WrapInternal("failed to record rate limit request", err)
	}

	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count - 1,
		ResetAt:   reset,
		Window:    s.cfg.Window,
	}, nil
}

// windowBounds returns the sliding window start and the reset hint for the
// current time. The reset aligns to the next window boundary rather than
// the oldest recorded request.
func (s *Service) windowBounds(now time.Time) (start, reset time.Time) {
	start = now.Add(-s.cfg.Window)
	reset = now.Truncate(s.cfg.Window).Add(s.cfg.Window)
	return start, reset
}

// CleanupOldRequests deletes rows past the retention horizon and returns
// how many were removed.
func (s *Service) CleanupOldRequests(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.Retention)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_requests WHERE requested_at < $1`, cutoff)
	if err != nil {
		return 0, services.WrapInternal("failed to clean up rate limit requests", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, services.WrapInternal("failed to count cleaned up rate limit rows", err)
	}

	if deleted > 0 {
		s.logger.Info("cleaned up rate limit requests",
			zap.Int64("rows_deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}

// StartCleanupWorker deletes expired rows on the configured interval until
// ctx is cancelled. Run it on its own goroutine.
func (s *Service) StartCleanupWorker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	s.logger.Info("started rate limit cleanup worker",
		zap.Duration("interval", s.cfg.CleanupInterval),
		zap.Duration("retention", s.cfg.Retention))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOldRequests(ctx); err != nil {
				s.logger.Error("rate limit cleanup failed", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}
