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

// QueryLogRepository implements the repositories.QueryLogRepository interface
type QueryLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewQueryLogRepository creates a new query log repository
func NewQueryLogRepository(db *DB, logger *zap.Logger) repositories.QueryLogRepository {
	return &QueryLogRepository{
		db:     db,
		logger: logger,
	}
}

const queryLogColumns = `id, user_id, query_text, response_text, status, confidence_score, response_time_ms, tokens_used, max_results, filter_params, sources, error_message, created_at`

func scanQueryLog(row interface{ Scan(...interface{}) error }) (*models.QueryLog, error) {
	log := &models.QueryLog{}
	err := row.Scan(
		&log.ID,
		&log.UserID,
		&log.QueryText,
		&log.ResponseText,
		&log.Status,
		&log.ConfidenceScore,
		&log.ResponseTimeMs,
		&log.TokensUsed,
		&log.MaxResults,
		&log.FilterParams,
		&log.Sources,
		&log.ErrorMessage,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return log, nil
}

// Create creates a new query log entry
func (r *QueryLogRepository) Create(ctx context.Context, log *models.QueryLog) error {
	query := `
		INSERT INTO query_logs (id, user_id, query_text, response_text, status, confidence_score, response_time_ms, tokens_used, max_results, filter_params, sources, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.QueryText,
		log.ResponseText,
		log.Status,
		log.ConfidenceScore,
		log.ResponseTimeMs,
		log.TokensUsed,
		log.MaxResults,
		log.FilterParams,
		log.Sources,
		log.ErrorMessage,
		log.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create query log: %w", err)
	}

	r.logger.Debug("query log created", zap.String("id", log.ID.String()))
	return nil
}

// GetByID retrieves a query log by ID
func (r *QueryLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.QueryLog, error) {
	query := `SELECT ` + queryLogColumns + ` FROM query_logs WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	log, err := scanQueryLog(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("query log %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get query log: %w", err)
	}

	return log, nil
}

// GetByUserID retrieves query logs for a user with pagination, newest first
func (r *QueryLogRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.QueryLog, error) {
	query := `
		SELECT ` + queryLogColumns + `
		FROM query_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryLogs(ctx, query, userID, limit, offset)
}

// List retrieves all query logs with pagination, newest first
func (r *QueryLogRepository) List(ctx context.Context, limit, offset int) ([]*models.QueryLog, error) {
	query := `
		SELECT ` + queryLogColumns + `
		FROM query_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.queryLogs(ctx, query, limit, offset)
}

// Update updates a query log
func (r *QueryLogRepository) Update(ctx context.Context, log *models.QueryLog) error {
	query := `
		UPDATE query_logs
		SET response_text = $2,
		    status = $3,
		    confidence_score = $4,
		    response_time_ms = $5,
		    tokens_used = $6,
		    max_results = $7,
		    filter_params = $8,
		    sources = $9,
		    error_message = $10
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		log.ID,
		log.ResponseText,
		log.Status,
		log.ConfidenceScore,
		log.ResponseTimeMs,
		log.TokensUsed,
		log.MaxResults,
		log.FilterParams,
		log.Sources,
		log.ErrorMessage,
	)

	if err != nil {
		return fmt.Errorf("failed to update query log: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("query log %s: %w", log.ID, repositories.ErrNotFound)
	}

	return nil
}

// GetMetrics retrieves aggregate query metrics since the given time
func (r *QueryLogRepository) GetMetrics(ctx context.Context, since time.Time) (*repositories.QueryMetrics, error) {
	query := `
		SELECT
			COUNT(*) as total_queries,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed_queries,
			COUNT(CASE WHEN confidence_score > 0.7 THEN 1 END) as high_confidence,
			COALESCE(AVG(CASE WHEN status = 'done' THEN confidence_score END), 0) as avg_confidence,
			COALESCE(AVG(CASE WHEN status = 'done' THEN response_time_ms END), 0) as avg_response_time_ms,
			COALESCE(SUM(tokens_used), 0) as total_tokens
		FROM query_logs
		WHERE created_at >= $1
	`

	executor := GetExecutor(ctx, r.db)
	metrics := &repositories.QueryMetrics{}

	err := executor.QueryRowContext(ctx, query, since).Scan(
		&metrics.TotalQueries,
		&metrics.FailedQueries,
		&metrics.HighConfidence,
		&metrics.AvgConfidence,
		&metrics.AvgResponseTimeMs,
		&metrics.TotalTokens,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get query metrics: %w", err)
	}

	return metrics, nil
}

// GetUserMetrics retrieves aggregate query metrics for one user
func (r *QueryLogRepository) GetUserMetrics(ctx context.Context, userID uuid.UUID, since time.Time) (*repositories.QueryMetrics, error) {
	query := `
		SELECT
			COUNT(*) as total_queries,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed_queries,
			COUNT(CASE WHEN confidence_score > 0.7 THEN 1 END) as high_confidence,
			COALESCE(AVG(CASE WHEN status = 'done' THEN confidence_score END), 0) as avg_confidence,
			COALESCE(AVG(CASE WHEN status = 'done' THEN response_time_ms END), 0) as avg_response_time_ms,
			COALESCE(SUM(tokens_used), 0) as total_tokens
		FROM query_logs
		WHERE user_id = $1 AND created_at >= $2
	`

	executor := GetExecutor(ctx, r.db)
	metrics := &repositories.QueryMetrics{}

	err := executor.QueryRowContext(ctx, query, userID, since).Scan(
		&metrics.TotalQueries,
		&metrics.FailedQueries,
		&metrics.HighConfidence,
		&metrics.AvgConfidence,
		&metrics.AvgResponseTimeMs,
		&metrics.TotalTokens,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get user query metrics: %w", err)
	}

	return metrics, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *QueryLogRepository) WithTx(tx repositories.Transaction) repositories.QueryLogRepository {
	return &QueryLogRepository{
		db:     r.db,
		logger: r.logger,
	}
}

// queryLogs is a helper method to query multiple query logs
func (r *QueryLogRepository) queryLogs(ctx context.Context, query string, args ...interface{}) ([]*models.QueryLog, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query query logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.QueryLog
	for rows.Next() {
		log, err := scanQueryLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query log rows: %w", err)
	}

	return logs, nil
}
