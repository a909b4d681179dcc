// Package embedding turns text into fixed-dimension vectors using the
// configured OpenAI embedding model, with an LRU cache in front of the
// provider to absorb repeated queries.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/config"
)

// Embedder produces vectors for queries and document chunks.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Service wraps a langchaingo embedder with dimension validation and caching
type Service struct {
	impl       embeddings.Embedder
	model      string
	dimensions int
	cacheMu    sync.Mutex
	cache      *lru.Cache[string, []float32]
	logger     *zap.Logger
}

// NewService builds an OpenAI-backed embedding service from configuration
func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
	}
	if cfg.OpenAI.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.OpenAI.APIKey))
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai embedding client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to construct embedder: %w", err)
	}

	return NewServiceWith(impl, cfg.OpenAI.EmbeddingModel, cfg.Vector.Dimensions, cfg.Vector.CacheSize, logger)
}

// NewServiceWith wraps an existing embedder implementation. Used by tests
// and by the memory provider wiring.
func NewServiceWith(impl embeddings.Embedder, model string, dimensions, cacheSize int, logger *zap.Logger) (*Service, error) {
	if impl == nil {
		return nil, fmt.Errorf("embedder implementation is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be greater than zero")
	}

	s := &Service{
		impl:       impl,
		model:      model,
		dimensions: dimensions,
		logger:     logger,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, []float32](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Dimensions returns the expected vector dimension
func (s *Service) Dimensions() int {
	return s.dimensions
}

// EmbedQuery embeds a single query string, consulting the cache first
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := s.cacheGet(text); ok {
		return vector, nil
	}

	vector, err := s.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding model %s: %w", s.model, err)
	}
	if err := s.checkDimension(vector); err != nil {
		return nil, err
	}

	s.cachePut(text, vector)
	return cloneVector(vector), nil
}

// EmbedDocuments embeds a batch of chunk texts. Cached texts are served
// locally; only the misses go to the provider, in a single call.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make(map[string][]int)
	for i, text := range texts {
		if vector, ok := s.cacheGet(text); ok {
			results[i] = vector
			continue
		}
		if _, seen := missingIdx[text]; !seen {
			missing = append(missing, text)
		}
		missingIdx[text] = append(missingIdx[text], i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	vectors, err := s.impl.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embedding model %s: %w", s.model, err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedding model %s: received %d vectors for %d texts", s.model, len(vectors), len(missing))
	}

	for i, vector := range vectors {
		if err := s.checkDimension(vector); err != nil {
			return nil, err
		}
		text := missing[i]
		for _, idx := range missingIdx[text] {
			results[idx] = cloneVector(vector)
		}
		s.cachePut(text, vector)
	}
	return results, nil
}

func (s *Service) checkDimension(vector []float32) error {
	if len(vector) != s.dimensions {
		return fmt.Errorf("embedding model %s returned %d dimensions, expected %d", s.model, len(vector), s.dimensions)
	}
	return nil
}

func (s *Service) cacheGet(text string) ([]float32, bool) {
	if s.cache == nil {
		return nil, false
	}
	s.cacheMu.Lock()
	vector, ok := s.cache.Get(s.cacheKey(text))
	s.cacheMu.Unlock()
	if !ok {
		return nil, false
	}
	return cloneVector(vector), true
}

func (s *Service) cachePut(text string, vector []float32) {
	if s.cache == nil || len(vector) == 0 {
		return
	}
	s.cacheMu.Lock()
	s.cache.Add(s.cacheKey(text), cloneVector(vector))
	s.cacheMu.Unlock()
}

// cacheKey includes the model so a model change never serves stale vectors
func (s *Service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(s.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
