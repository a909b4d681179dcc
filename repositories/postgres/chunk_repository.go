package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// distanceOperators maps a distance metric onto its pgvector operator.
// "similarity" uses the negative inner product operator; callers convert
// the returned value back to a similarity score.
var distanceOperators = map[string]string{
	"cosine":     "<=>",
	"l2":         "<->",
	"similarity": "<#>",
}

// ChunkRepository implements repositories.ChunkRepository on pgvector
type ChunkRepository struct {
	db       *DB
	operator string
	logger   *zap.Logger
}

// NewChunkRepository creates a new chunk repository using the given distance metric
func NewChunkRepository(db *DB, metric string, logger *zap.Logger) (repositories.ChunkRepository, error) {
	op, ok := distanceOperators[metric]
	if !ok {
		return nil, fmt.Errorf("unknown distance metric %q", metric)
	}
	return &ChunkRepository{
		db:       db,
		operator: op,
		logger:   logger,
	}, nil
}

// formatVector renders an embedding as a pgvector literal: [0.1,0.2,...]
func formatVector(embedding []float32) string {
	var b strings.Builder
	b.Grow(len(embedding)*10 + 2)
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// InsertBatch stores chunks with embeddings for one document
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []*models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	query := `
		INSERT INTO document_chunks (id, document_id, chunk_index, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5::vector, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	for _, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}

		_, err = executor.ExecContext(ctx, query,
			chunk.ID,
			chunk.DocumentID,
			chunk.ChunkIndex,
			chunk.Content,
			formatVector(chunk.Embedding),
			metadata,
			chunk.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	r.logger.Debug("chunks inserted",
		zap.String("document_id", chunks[0].DocumentID.String()),
		zap.Int("count", len(chunks)))
	return nil
}

// Search returns the topK nearest chunks to the query embedding,
// ordered by ascending distance
func (r *ChunkRepository) Search(ctx context.Context, embedding []float32, topK int) ([]repositories.SearchResult, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content, metadata, created_at,
		       embedding %s $1::vector AS distance
		FROM document_chunks
		ORDER BY distance ASC
		LIMIT $2
	`, r.operator)

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, formatVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []repositories.SearchResult
	for rows.Next() {
		chunk := &models.DocumentChunk{}
		var metadata []byte
		var distance float64

		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&metadata,
			&chunk.CreatedAt,
			&distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
		}

		results = append(results, repositories.SearchResult{
			Chunk:    chunk,
			Distance: distance,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk rows: %w", err)
	}

	return results, nil
}

// DeleteByDocument removes all chunks belonging to a document
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	query := `DELETE FROM document_chunks WHERE document_id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	if deleted, err := result.RowsAffected(); err == nil {
		r.logger.Debug("chunks deleted",
			zap.String("document_id", documentID.String()),
			zap.Int64("count", deleted))
	}
	return nil
}

// CountByDocument returns the number of chunks stored for a document
func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	executor := GetExecutor(ctx, r.db)

	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Count returns the total number of stored chunks
func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	executor := GetExecutor(ctx, r.db)

	var count int
	if err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *ChunkRepository) WithTx(tx repositories.Transaction) repositories.ChunkRepository {
	return &ChunkRepository{
		db:       r.db,
		operator: r.operator,
		logger:   r.logger,
	}
}
