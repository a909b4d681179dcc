package rag

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/services"
	"github.com/NathanYKo/RAG-Document-System/services/embedding"
)

// Retriever finds the chunks nearest a query in embedding space and
// converts store distances into relevance scores.
type Retriever struct {
	embedder embedding.Embedder
	store    repositories.ChunkRepository
	cfg      Config
	logger   *zap.Logger
}

func NewRetriever(embedder embedding.Embedder, store repositories.ChunkRepository, cfg Config, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve embeds the query, searches the vector store and returns chunks
// at or above the minimum relevance score, ordered most relevant first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]ContextChunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, services.WrapRetrieval("failed to embed query", err)
	}

	results, err := r.store.Search(ctx, vector, r.cfg.TopKRetrieval)
	if err != nil {
		return nil, services.WrapRetrieval("vector search failed", err)
	}

	chunks := make([]ContextChunk, 0, len(results))
	for _, result := range results {
		score := relevanceFromDistance(result.Distance, r.cfg.DistanceMetric)
		if score < r.cfg.MinRelevanceScore {
			continue
		}
		chunks = append(chunks, ContextChunk{
			Content:         result.Chunk.Content,
			SourceID:        result.Chunk.SourceID(),
			Metadata:        result.Chunk.Metadata,
			RelevanceScore:  score,
			RetrievalMethod: RetrievalMethodSemantic,
		})
	}

	r.logger.Debug("retrieved context chunks",
		zap.Int("searched", len(results)),
		zap.Int("kept", len(chunks)),
		zap.Float64("min_relevance", r.cfg.MinRelevanceScore),
	)
	return chunks, nil
}

// relevanceFromDistance converts a store distance into a score in [0,1].
// Cosine distance maps through 1-d, L2 decays as 1/(1+d), and
// inner-product stores report negated similarity, so the similarity
// itself is clamped into range.
func relevanceFromDistance(distance float64, metric string) float64 {
	switch metric {
	case "l2":
		return 1 / (1 + distance)
	case "similarity":
		return clamp01(-distance)
	default: // cosine
		return math.Max(0, 1-distance)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
