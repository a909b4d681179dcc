package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentRepository implements the repositories.DocumentRepository interface
type DocumentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB, logger *zap.Logger) repositories.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `id, owner_id, filename, content_type, file_type, file_size, status, chunk_count, chunk_size, chunk_overlap, doc_metadata, error, created_at, updated_at, processed_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*models.Document, error) {
	doc := &models.Document{}
	var metadata []byte
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.ContentType,
		&doc.FileType,
		&doc.FileSize,
		&doc.Status,
		&doc.ChunkCount,
		&doc.ChunkSize,
		&doc.ChunkOverlap,
		&metadata,
		&doc.Error,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.DocMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal doc metadata: %w", err)
		}
	}
	return doc, nil
}

func marshalDocMetadata(doc *models.Document) ([]byte, error) {
	if doc.DocMetadata == nil {
		return nil, nil
	}
	return json.Marshal(doc.DocMetadata)
}

// Create creates a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	metadata, err := marshalDocMetadata(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal doc metadata: %w", err)
	}

	query := `
		INSERT INTO documents (id, owner_id, filename, content_type, file_type, file_size, status, chunk_count, chunk_size, chunk_overlap, doc_metadata, error, created_at, updated_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.Filename,
		doc.ContentType,
		doc.FileType,
		doc.FileSize,
		doc.Status,
		doc.ChunkCount,
		doc.ChunkSize,
		doc.ChunkOverlap,
		metadata,
		doc.Error,
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.ProcessedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	r.logger.Debug("document created",
		zap.String("id", doc.ID.String()),
		zap.String("filename", doc.Filename))
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	doc, err := scanDocument(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// GetByOwner retrieves documents for a user with pagination
func (r *DocumentRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// CountByOwner returns the number of documents a user owns
func (r *DocumentRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	executor := GetExecutor(ctx, r.db)

	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// List retrieves all documents with pagination
func (r *DocumentRepository) List(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]*models.Document, error) {
	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}

	return docs, nil
}

// Update updates a document
func (r *DocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	metadata, err := marshalDocMetadata(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal doc metadata: %w", err)
	}

	query := `
		UPDATE documents
		SET status = $2,
		    chunk_count = $3,
		    doc_metadata = $4,
		    error = $5,
		    updated_at = $6,
		    processed_at = $7
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		doc.ID,
		doc.Status,
		doc.ChunkCount,
		metadata,
		doc.Error,
		doc.UpdatedAt,
		doc.ProcessedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, repositories.ErrNotFound)
	}

	r.logger.Debug("document updated",
		zap.String("id", doc.ID.String()),
		zap.String("status", string(doc.Status)))
	return nil
}

// Delete deletes a document
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM documents WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("document deleted", zap.String("id", id.String()))
	return nil
}

// GetStats retrieves aggregate document statistics
func (r *DocumentRepository) GetStats(ctx context.Context) (*repositories.DocumentStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(chunk_count), 0),
			COALESCE(SUM(file_size), 0)
		FROM documents
	`

	executor := GetExecutor(ctx, r.db)
	stats := &repositories.DocumentStats{}
	err := executor.QueryRowContext(ctx, query).Scan(
		&stats.TotalDocuments,
		&stats.TotalChunks,
		&stats.TotalBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get document stats: %w", err)
	}

	return stats, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *DocumentRepository) WithTx(tx repositories.Transaction) repositories.DocumentRepository {
	return &DocumentRepository{
		db:     r.db,
		logger: r.logger,
	}
}
