package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ABTestRepository implements the repositories.ABTestRepository interface
type ABTestRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewABTestRepository creates a new A/B test repository
func NewABTestRepository(db *DB, logger *zap.Logger) repositories.ABTestRepository {
	return &ABTestRepository{
		db:     db,
		logger: logger,
	}
}

const abTestColumns = `id, name, description, config_a, config_b, traffic_split, significance_level, min_sample_size, is_active, created_at, ended_at`

func scanABTest(row interface{ Scan(...interface{}) error }) (*models.ABTest, error) {
	test := &models.ABTest{}
	err := row.Scan(
		&test.ID,
		&test.Name,
		&test.Description,
		&test.ConfigA,
		&test.ConfigB,
		&test.TrafficSplit,
		&test.SignificanceLevel,
		&test.MinSampleSize,
		&test.IsActive,
		&test.CreatedAt,
		&test.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return test, nil
}

// Create creates a new A/B test
func (r *ABTestRepository) Create(ctx context.Context, test *models.ABTest) error {
	query := `
		INSERT INTO ab_tests (id, name, description, config_a, config_b, traffic_split, significance_level, min_sample_size, is_active, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		test.ID,
		test.Name,
		test.Description,
		test.ConfigA,
		test.ConfigB,
		test.TrafficSplit,
		test.SignificanceLevel,
		test.MinSampleSize,
		test.IsActive,
		test.CreatedAt,
		test.EndedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create A/B test: %w", err)
	}

	r.logger.Debug("A/B test created",
		zap.String("id", test.ID.String()),
		zap.String("name", test.Name))
	return nil
}

// GetByID retrieves a test by ID
func (r *ABTestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ABTest, error) {
	query := `SELECT ` + abTestColumns + ` FROM ab_tests WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	test, err := scanABTest(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("A/B test %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get A/B test: %w", err)
	}

	return test, nil
}

// GetByName retrieves a test by its unique name
func (r *ABTestRepository) GetByName(ctx context.Context, name string) (*models.ABTest, error) {
	query := `SELECT ` + abTestColumns + ` FROM ab_tests WHERE name = $1`

	executor := GetExecutor(ctx, r.db)
	test, err := scanABTest(executor.QueryRowContext(ctx, query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("A/B test %q: %w", name, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get A/B test: %w", err)
	}

	return test, nil
}

// List retrieves tests with pagination, newest first
func (r *ABTestRepository) List(ctx context.Context, limit, offset int) ([]*models.ABTest, error) {
	query := `
		SELECT ` + abTestColumns + `
		FROM ab_tests
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query A/B tests: %w", err)
	}
	defer rows.Close()

	var tests []*models.ABTest
	for rows.Next() {
		test, err := scanABTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan A/B test: %w", err)
		}
		tests = append(tests, test)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating A/B test rows: %w", err)
	}

	return tests, nil
}

// Update updates a test
func (r *ABTestRepository) Update(ctx context.Context, test *models.ABTest) error {
	query := `
		UPDATE ab_tests
		SET description = $2,
		    traffic_split = $3,
		    is_active = $4,
		    ended_at = $5
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		test.ID,
		test.Description,
		test.TrafficSplit,
		test.IsActive,
		test.EndedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update A/B test: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("A/B test %s: %w", test.ID, repositories.ErrNotFound)
	}

	return nil
}

// RecordResult stores one observation for a variant
func (r *ABTestRepository) RecordResult(ctx context.Context, result *models.ABTestResult) error {
	query := `
		INSERT INTO ab_test_results (id, test_id, variant, response_time_ms, confidence_score, rating, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		result.ID,
		result.TestID,
		result.Variant,
		result.ResponseTimeMs,
		result.ConfidenceScore,
		result.Rating,
		result.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record A/B test result: %w", err)
	}
	return nil
}

// GetResults retrieves all observations for a test
func (r *ABTestRepository) GetResults(ctx context.Context, testID uuid.UUID) ([]*models.ABTestResult, error) {
	query := `
		SELECT id, test_id, variant, response_time_ms, confidence_score, rating, created_at
		FROM ab_test_results
		WHERE test_id = $1
		ORDER BY created_at ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query A/B test results: %w", err)
	}
	defer rows.Close()

	var results []*models.ABTestResult
	for rows.Next() {
		res := &models.ABTestResult{}
		err := rows.Scan(
			&res.ID,
			&res.TestID,
			&res.Variant,
			&res.ResponseTimeMs,
			&res.ConfidenceScore,
			&res.Rating,
			&res.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan A/B test result: %w", err)
		}
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating A/B test result rows: %w", err)
	}

	return results, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *ABTestRepository) WithTx(tx repositories.Transaction) repositories.ABTestRepository {
	return &ABTestRepository{
		db:     r.db,
		logger: r.logger,
	}
}
