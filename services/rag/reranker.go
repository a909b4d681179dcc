package rag

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/services/providers"
)

const (
	// rerankCandidateLimit bounds LLM calls per query
	rerankCandidateLimit = 8

	// rerankContentLimit truncates chunk text sent for evaluation
	rerankContentLimit = 500

	rerankMaxTokens   = 100
	rerankTemperature = 0.1
)

const rerankSystemPrompt = "You are a relevance evaluation expert."

const rerankPromptTemplate = `Evaluate the relevance of this document chunk to the query:
Query: %s
Chunk: %s

Rate relevance from 0.0 to 1.0 and provide a brief justification.
Response format: {"score": 0.0-1.0, "reason": "brief explanation"}`

var scorePattern = regexp.MustCompile(`\d+(?:\.\d+)?|\.\d+`)

// Reranker refines relevance scores with an LLM judge. It is strictly
// best effort: any failure, from a missing provider to an unparseable
// reply, leaves the affected scores as they were. It never fails a query.
type Reranker struct {
	registry *providers.Registry
	cfg      Config
	logger   *zap.Logger
}

func NewReranker(registry *providers.Registry, cfg Config, logger *zap.Logger) *Reranker {
	return &Reranker{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Rerank returns all chunks ordered by descending relevance. When more
// chunks arrived than fit the final context, the top candidates are
// rescored by the rerank model and their scores blended with the
// retrieval scores before the final sort. Ties keep their prior order.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []ContextChunk) []ContextChunk {
	if len(chunks) == 0 {
		return chunks
	}

	ranked := make([]ContextChunk, len(chunks))
	copy(ranked, chunks)
	sortByScore(ranked)

	// Already few enough to pack; the LLM cannot change the outcome
	if len(ranked) <= r.cfg.FinalContextChunks {
		return ranked
	}

	provider, err := r.registry.GetProviderForModel(r.cfg.RerankModel)
	if err != nil {
		r.logger.Debug("rerank model unavailable, keeping retrieval order",
			zap.String("model", r.cfg.RerankModel),
			zap.Error(err),
		)
		return ranked
	}

	candidates := rerankCandidateLimit
	if len(ranked) < candidates {
		candidates = len(ranked)
	}
	for i := 0; i < candidates; i++ {
		score, err := r.scoreChunk(ctx, provider, query, ranked[i])
		if err != nil {
			r.logger.Warn("rerank evaluation failed, keeping retrieval score",
				zap.String("source_id", ranked[i].SourceID),
				zap.Error(err),
			)
			continue
		}
		ranked[i] = ranked[i].WithScore((ranked[i].RelevanceScore + score) / 2)
	}

	sortByScore(ranked)
	return ranked
}

func (r *Reranker) scoreChunk(ctx context.Context, provider providers.Provider, query string, chunk ContextChunk) (float64, error) {
	content := chunk.Content
	if len(content) > rerankContentLimit {
		content = content[:rerankContentLimit]
	}

	resp, err := provider.ChatCompletion(ctx, &providers.ChatRequest{
		Model: r.cfg.RerankModel,
		Messages: []providers.Message{
			{Role: "system", Content: rerankSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(rerankPromptTemplate, query, content)},
		},
		MaxTokens:   rerankMaxTokens,
		Temperature: rerankTemperature,
	})
	if err != nil {
		return 0, err
	}
	return parseRelevanceScore(resp.Text())
}

// parseRelevanceScore pulls the first number out of a judge reply. The
// reply must mention "score" and the number must land in [0,1], so a
// model echoing the question or rating on another scale is rejected
// rather than blended in.
func parseRelevanceScore(reply string) (float64, error) {
	lower := strings.ToLower(reply)
	if !strings.Contains(lower, "score") {
		return 0, fmt.Errorf("reply carries no score")
	}
	match := scorePattern.FindString(lower)
	if match == "" {
		return 0, fmt.Errorf("reply carries no numeric score")
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable score %q: %w", match, err)
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("score %v outside [0,1]", score)
	}
	return score, nil
}

// sortByScore orders chunks by descending relevance, stable so equal
// scores keep their prior order.
func sortByScore(chunks []ContextChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].RelevanceScore > chunks[j].RelevanceScore
	})
}
