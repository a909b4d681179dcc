package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FeedbackRepository implements the repositories.FeedbackRepository interface
type FeedbackRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *DB, logger *zap.Logger) repositories.FeedbackRepository {
	return &FeedbackRepository{
		db:     db,
		logger: logger,
	}
}

const feedbackColumns = `id, query_log_id, user_id, rating, feedback_type, feedback_text, was_helpful, suggested_improvement, created_at`

func scanFeedback(row interface{ Scan(...interface{}) error }) (*models.Feedback, error) {
	fb := &models.Feedback{}
	err := row.Scan(
		&fb.ID,
		&fb.QueryLogID,
		&fb.UserID,
		&fb.Rating,
		&fb.FeedbackType,
		&fb.FeedbackText,
		&fb.WasHelpful,
		&fb.SuggestedImprovement,
		&fb.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return fb, nil
}

// Create creates a new feedback entry
func (r *FeedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	query := `
		INSERT INTO feedback (id, query_log_id, user_id, rating, feedback_type, feedback_text, was_helpful, suggested_improvement, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		fb.ID,
		fb.QueryLogID,
		fb.UserID,
		fb.Rating,
		fb.FeedbackType,
		fb.FeedbackText,
		fb.WasHelpful,
		fb.SuggestedImprovement,
		fb.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}

	r.logger.Debug("feedback created",
		zap.String("id", fb.ID.String()),
		zap.Int("rating", fb.Rating))
	return nil
}

// GetByID retrieves feedback by ID
func (r *FeedbackRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	fb, err := scanFeedback(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("feedback %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}

	return fb, nil
}

// GetByQueryLogID retrieves feedback for a query
func (r *FeedbackRepository) GetByQueryLogID(ctx context.Context, queryLogID uuid.UUID) ([]*models.Feedback, error) {
	query := `
		SELECT ` + feedbackColumns + `
		FROM feedback
		WHERE query_log_id = $1
		ORDER BY created_at DESC
	`
	return r.queryFeedback(ctx, query, queryLogID)
}

// GetByUserID retrieves feedback submitted by a user with pagination
func (r *FeedbackRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Feedback, error) {
	query := `
		SELECT ` + feedbackColumns + `
		FROM feedback
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryFeedback(ctx, query, userID, limit, offset)
}

// GetSummary retrieves aggregate feedback statistics since the given time.
// The zero time covers all feedback ever recorded.
func (r *FeedbackRepository) GetSummary(ctx context.Context, since time.Time) (*repositories.FeedbackSummary, error) {
	query := `
		SELECT COUNT(*), COALESCE(AVG(rating), 0)
		FROM feedback
		WHERE created_at >= $1
	`

	executor := GetExecutor(ctx, r.db)
	summary := &repositories.FeedbackSummary{}

	err := executor.QueryRowContext(ctx, query, since).Scan(&summary.Count, &summary.AvgRating)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback summary: %w", err)
	}

	return summary, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *FeedbackRepository) WithTx(tx repositories.Transaction) repositories.FeedbackRepository {
	return &FeedbackRepository{
		db:     r.db,
		logger: r.logger,
	}
}

// queryFeedback is a helper method to query multiple feedback rows
func (r *FeedbackRepository) queryFeedback(ctx context.Context, query string, args ...interface{}) ([]*models.Feedback, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var feedback []*models.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		feedback = append(feedback, fb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback rows: %w", err)
	}

	return feedback, nil
}
