// Package memory provides an in-process chunk repository for development
// and testing. Searches are exact (no index) and single-node only.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChunkRepository implements repositories.ChunkRepository in memory
type ChunkRepository struct {
	mu     sync.RWMutex
	chunks []*models.DocumentChunk
	metric string
	logger *zap.Logger
}

// NewChunkRepository creates an in-memory chunk repository using the given distance metric
func NewChunkRepository(metric string, logger *zap.Logger) (repositories.ChunkRepository, error) {
	switch metric {
	case "cosine", "l2", "similarity":
	default:
		return nil, fmt.Errorf("unknown distance metric %q", metric)
	}
	return &ChunkRepository{
		metric: metric,
		logger: logger,
	}, nil
}

// InsertBatch stores chunks with embeddings for one document
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []*models.DocumentChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chunks = append(r.chunks, chunks...)
	return nil
}

// Search returns the topK nearest chunks to the query embedding,
// ordered by ascending distance
func (r *ChunkRepository) Search(ctx context.Context, embedding []float32, topK int) ([]repositories.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if topK <= 0 {
		return nil, nil
	}

	results := make([]repositories.SearchResult, 0, len(r.chunks))
	for _, chunk := range r.chunks {
		if len(chunk.Embedding) != len(embedding) {
			return nil, fmt.Errorf("embedding dimension mismatch: query %d, stored %d",
				len(embedding), len(chunk.Embedding))
		}
		results = append(results, repositories.SearchResult{
			Chunk:    chunk,
			Distance: r.distance(embedding, chunk.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// distance computes the configured metric between two vectors.
// For "similarity" it returns the negative inner product so that
// smaller always means closer, matching the pgvector operators.
func (r *ChunkRepository) distance(a, b []float32) float64 {
	switch r.metric {
	case "l2":
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	case "similarity":
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return -dot
	default: // cosine
		var dot, normA, normB float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			normA += float64(a[i]) * float64(a[i])
			normB += float64(b[i]) * float64(b[i])
		}
		if normA == 0 || normB == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	}
}

// DeleteByDocument removes all chunks belonging to a document
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.chunks[:0]
	for _, chunk := range r.chunks {
		if chunk.DocumentID != documentID {
			kept = append(kept, chunk)
		}
	}
	r.chunks = kept
	return nil
}

// CountByDocument returns the number of chunks stored for a document
func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, chunk := range r.chunks {
		if chunk.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

// Count returns the total number of stored chunks
func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks), nil
}

// WithTx returns the repository itself; the in-memory store has no transactions
func (r *ChunkRepository) WithTx(tx repositories.Transaction) repositories.ChunkRepository {
	return r
}
