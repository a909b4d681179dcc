package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NathanYKo/RAG-Document-System/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema. vectorDims sets the
// dimensionality of the embedding column and must match the embedding
// model in use.
func (db *DB) InitSchema(ctx context.Context, vectorDims int) error {
	if vectorDims <= 0 {
		return fmt.Errorf("vector dimensions must be positive, got %d", vectorDims)
	}

	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		-- Users table
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(50) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL UNIQUE,
			hashed_password VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			is_admin BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Documents table
		CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			filename VARCHAR(255) NOT NULL,
			content_type VARCHAR(100) NOT NULL,
			file_type VARCHAR(10) NOT NULL,
			file_size BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			chunk_size INTEGER NOT NULL DEFAULT 1000,
			chunk_overlap INTEGER NOT NULL DEFAULT 200,
			doc_metadata JSONB,
			error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at TIMESTAMP
		);

		-- Document chunks with embeddings (the vector store)
		CREATE TABLE IF NOT EXISTS document_chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(document_id, chunk_index)
		);

		-- Query logs table
		CREATE TABLE IF NOT EXISTS query_logs (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			query_text TEXT NOT NULL,
			response_text TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			response_time_ms INTEGER NOT NULL DEFAULT 0,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			max_results INTEGER NOT NULL DEFAULT 0,
			filter_params JSONB,
			sources JSONB,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Feedback table
		CREATE TABLE IF NOT EXISTS feedback (
			id UUID PRIMARY KEY,
			query_log_id UUID NOT NULL REFERENCES query_logs(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			feedback_type VARCHAR(20) NOT NULL DEFAULT 'general',
			feedback_text TEXT,
			was_helpful BOOLEAN,
			suggested_improvement TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- API keys table
		CREATE TABLE IF NOT EXISTS api_keys (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			key_hash VARCHAR(64) NOT NULL UNIQUE,
			prefix VARCHAR(16) NOT NULL,
			permissions JSONB NOT NULL,
			rate_limit INTEGER NOT NULL DEFAULT 1000,
			usage_count BIGINT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT true,
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- A/B tests table
		CREATE TABLE IF NOT EXISTS ab_tests (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			config_a JSONB NOT NULL,
			config_b JSONB NOT NULL,
			traffic_split DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			significance_level DOUBLE PRECISION NOT NULL DEFAULT 0.05,
			min_sample_size INTEGER NOT NULL DEFAULT 30,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at TIMESTAMP
		);

		-- A/B test results table
		CREATE TABLE IF NOT EXISTS ab_test_results (
			id UUID PRIMARY KEY,
			test_id UUID NOT NULL REFERENCES ab_tests(id) ON DELETE CASCADE,
			variant VARCHAR(1) NOT NULL,
			response_time_ms INTEGER NOT NULL DEFAULT 0,
			confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			rating INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Sliding-window rate limit bookkeeping
		CREATE TABLE IF NOT EXISTS rate_limit_requests (
			id BIGSERIAL PRIMARY KEY,
			subject VARCHAR(255) NOT NULL,
			requested_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

		CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents(owner_id);
		CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
		CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

		CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id ON document_chunks(document_id);
		CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

		CREATE INDEX IF NOT EXISTS idx_query_logs_user_id ON query_logs(user_id);
		CREATE INDEX IF NOT EXISTS idx_query_logs_status ON query_logs(status);
		CREATE INDEX IF NOT EXISTS idx_query_logs_created_at ON query_logs(created_at);

		CREATE INDEX IF NOT EXISTS idx_feedback_query_log_id ON feedback(query_log_id);
		CREATE INDEX IF NOT EXISTS idx_feedback_user_id ON feedback(user_id);
		CREATE INDEX IF NOT EXISTS idx_feedback_type ON feedback(feedback_type);

		CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id);
		CREATE INDEX IF NOT EXISTS idx_api_keys_key_hash ON api_keys(key_hash);

		CREATE INDEX IF NOT EXISTS idx_ab_test_results_test_id ON ab_test_results(test_id);
		CREATE INDEX IF NOT EXISTS idx_ab_test_results_variant ON ab_test_results(test_id, variant);

		CREATE INDEX IF NOT EXISTS idx_rate_limit_requests_subject ON rate_limit_requests(subject, requested_at);
	`, vectorDims)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully",
		zap.Int("vector_dims", vectorDims))
	return nil
}
