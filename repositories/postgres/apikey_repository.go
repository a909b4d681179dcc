package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APIKeyRepository implements the repositories.APIKeyRepository interface
type APIKeyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB, logger *zap.Logger) repositories.APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger,
	}
}

const apiKeyColumns = `id, user_id, name, key_hash, prefix, permissions, rate_limit, usage_count, is_active, expires_at, last_used_at, created_at`

func scanAPIKey(row interface{ Scan(...interface{}) error }) (*models.APIKey, error) {
	key := &models.APIKey{}
	var permissions []byte
	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.Name,
		&key.KeyHash,
		&key.Prefix,
		&permissions,
		&key.RateLimit,
		&key.UsageCount,
		&key.IsActive,
		&key.ExpiresAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(permissions, &key.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	return key, nil
}

// Create creates a new API key
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	permissions, err := json.Marshal(key.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO api_keys (id, user_id, name, key_hash, prefix, permissions, rate_limit, usage_count, is_active, expires_at, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		key.ID,
		key.UserID,
		key.Name,
		key.KeyHash,
		key.Prefix,
		permissions,
		key.RateLimit,
		key.UsageCount,
		key.IsActive,
		key.ExpiresAt,
		key.LastUsedAt,
		key.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	r.logger.Debug("API key created",
		zap.String("id", key.ID.String()),
		zap.String("name", key.Name))
	return nil
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	key, err := scanAPIKey(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("API key %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return key, nil
}

// GetByHash retrieves an API key by its SHA-256 hash
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`

	executor := GetExecutor(ctx, r.db)
	key, err := scanAPIKey(executor.QueryRowContext(ctx, query, keyHash))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("API key: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return key, nil
}

// GetByUserID retrieves all API keys owned by a user
func (r *APIKeyRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API key rows: %w", err)
	}

	return keys, nil
}

// Update updates an API key
func (r *APIKeyRepository) Update(ctx context.Context, key *models.APIKey) error {
	permissions, err := json.Marshal(key.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		UPDATE api_keys
		SET name = $2,
		    permissions = $3,
		    rate_limit = $4,
		    is_active = $5,
		    expires_at = $6
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		key.ID,
		key.Name,
		permissions,
		key.RateLimit,
		key.IsActive,
		key.ExpiresAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("API key %s: %w", key.ID, repositories.ErrNotFound)
	}

	return nil
}

// RecordUsage atomically bumps the usage counter and last-used time
func (r *APIKeyRepository) RecordUsage(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE api_keys
		SET usage_count = usage_count + 1,
		    last_used_at = $2
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("failed to record API key usage: %w", err)
	}
	return nil
}

// Delete deletes an API key
func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM api_keys WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("API key %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("API key deleted", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *APIKeyRepository) WithTx(tx repositories.Transaction) repositories.APIKeyRepository {
	return &APIKeyRepository{
		db:     r.db,
		logger: r.logger,
	}
}
