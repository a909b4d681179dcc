package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/NathanYKo/RAG-Document-System/services/providers"
)

// stubProvider answers chat completions from a scripted reply function
type stubProvider struct {
	name     string
	models   []string
	replyFn  func(req *providers.ChatRequest) (string, error)
	usage    providers.Usage
	requests []*providers.ChatRequest
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	p.requests = append(p.requests, req)
	text, err := p.replyFn(req)
	if err != nil {
		return nil, err
	}
	return &providers.ChatResponse{
		ID:    fmt.Sprintf("resp-%d", len(p.requests)),
		Model: req.Model,
		Choices: []providers.Choice{
			{Message: providers.Message{Role: "assistant", Content: text}, FinishReason: "stop"},
		},
		Usage:    p.usage,
		Provider: p.name,
	}, nil
}

func (p *stubProvider) IsAvailable(ctx context.Context) bool {
	return true
}

func (p *stubProvider) ValidateModel(model string) error {
	for _, m := range p.models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %s is not supported", model)
}

func (p *stubProvider) ListModels() []string {
	return p.models
}

func newStubProvider(replyFn func(req *providers.ChatRequest) (string, error)) *stubProvider {
	return &stubProvider{
		name:    "stub",
		models:  []string{"gpt-4", "gpt-3.5-turbo"},
		replyFn: replyFn,
		usage:   providers.Usage{PromptTokens: 50, CompletionTokens: 20, TotalTokens: 70},
	}
}

func registryWith(t *testing.T, provider providers.Provider) *providers.Registry {
	t.Helper()
	registry := providers.NewRegistry()
	require.NoError(t, registry.RegisterProvider(provider))
	return registry
}

func scoreReply(score float64) string {
	return fmt.Sprintf(`{"score": %.2f, "reason": "judged"}`, score)
}

// sixChunks is just past the short-circuit threshold of five
func sixChunks() []ContextChunk {
	return []ContextChunk{
		chunk("a", "first passage on the subject", 0.90),
		chunk("b", "second passage on the subject", 0.80),
		chunk("c", "third passage on the subject", 0.70),
		chunk("d", "fourth passage on the subject", 0.60),
		chunk("e", "fifth passage on the subject", 0.50),
		chunk("f", "sixth passage on the subject", 0.40),
	}
}

func TestReranker_ShortCircuitSortsOnly(t *testing.T) {
	provider := newStubProvider(func(req *providers.ChatRequest) (string, error) {
		return scoreReply(1.0), nil
	})
	reranker := NewReranker(registryWith(t, provider), DefaultConfig(), zaptest.NewLogger(t))

	chunks := []ContextChunk{
		chunk("low", "passage one", 0.3),
		chunk("high", "passage two", 0.9),
		chunk("mid", "passage three", 0.6),
	}

	ranked := reranker.Rerank(context.Background(), "question", chunks)
	assert.Equal(t, []string{"high", "mid", "low"}, sourceIDs(ranked))
	assert.Empty(t, provider.requests, "few chunks should not spend LLM calls")
}

func TestReranker_NoProviderKeepsRetrievalOrder(t *testing.T) {
	reranker := NewReranker(providers.NewRegistry(), DefaultConfig(), zaptest.NewLogger(t))

	ranked := reranker.Rerank(context.Background(), "question", sixChunks())
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, sourceIDs(ranked))
}

func TestReranker_BlendsScores(t *testing.T) {
	// The judge inverts the retrieval opinion of chunk b
	provider := newStubProvider(func(req *providers.ChatRequest) (string, error) {
		if strings.Contains(req.Messages[1].Content, "second passage") {
			return scoreReply(1.0), nil
		}
		return scoreReply(0.0), nil
	})
	reranker := NewReranker(registryWith(t, provider), DefaultConfig(), zaptest.NewLogger(t))

	ranked := reranker.Rerank(context.Background(), "question", sixChunks())
	require.Len(t, ranked, 6)

	// b blends to (0.8+1.0)/2 = 0.9, a to (0.9+0.0)/2 = 0.45
	assert.Equal(t, "b", ranked[0].SourceID)
	assert.InDelta(t, 0.9, ranked[0].RelevanceScore, 1e-9)

	byID := map[string]float64{}
	for _, c := range ranked {
		byID[c.SourceID] = c.RelevanceScore
	}
	assert.InDelta(t, 0.45, byID["a"], 1e-9)
	assert.InDelta(t, 0.35, byID["c"], 1e-9)
	assert.InDelta(t, 0.20, byID["f"], 1e-9)
}

func TestReranker_EvaluatesAllSixCandidates(t *testing.T) {
	provider := newStubProvider(func(req *providers.ChatRequest) (string, error) {
		return scoreReply(0.5), nil
	})
	reranker := NewReranker(registryWith(t, provider), DefaultConfig(), zaptest.NewLogger(t))

	ranked := reranker.Rerank(context.Background(), "question", sixChunks())
	assert.Len(t, ranked, 6)
	assert.Len(t, provider.requests, 6)
}

func TestReranker_CandidateLimit(t *testing.T) {
	provider := newStubProvider(func(req *providers.ChatRequest) (string, error) {
		return scoreReply(0.5), nil
	})
	reranker := NewReranker(registryWith(t, provider), DefaultConfig(), zaptest.NewLogger(t))

	chunks := make([]ContextChunk, 0, 12)
	for i := 0; i < 12; i++ {
		chunks = append(chunks, chunk(fmt.Sprintf("c%02d", i), fmt.Sprintf("passage number %d on the subject", i), 1-float64(i)*0.05))
	}

	ranked := reranker.Rerank(context.Background(), "question", chunks)
	assert.Len(t, ranked, 12, "every chunk comes back, scored or not")
	assert.Len(t, provider.requests, rerankCandidateLimit)
}

func TestReranker_RerankRequestShape(t *testing.T) {
	cfg := DefaultConfig()
	provider := newStubProvider(func(req *providers.ChatRequest) (string, error) {
		return scoreReply(0.5), nil
	})
	reranker := NewReranker(registryWith(t, provider), cfg, zaptest.NewLogger(t))

	longContent := strings.Repeat("relevance ", 100) // 1000 chars
	chunks := sixChunks()
	chunks[0] = chunks[0].WithContent(longContent)

	reranker.Rerank(context.Background(), "the question", chunks)
	require.NotEmpty(t, provider.requests)

	req := provider.requests[0]
	assert.Equal(t, cfg.RerankModel, req.Model)
	assert.Equal(t, rerankMaxTokens, req.MaxTokens)
	assert.InDelta(t, rerankTemperature, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, rerankSystemPrompt, req.Messages[0].Content)
	assert.Contains(t, req.Messages[1].Content, "the question")
	assert.NotContains(t, req.Messages[1].Content, longContent, "chunk text is truncated for evaluation")
	assert.Contains(t, req.Messages[1].Content, longContent[:rerankContentLimit])
}

func TestReranker_PerChunkFailureKeepsScore(t *testing.T) {
	provider := newStubProvider(func(req *providers.ChatRequest) (string, error) {
		if strings.Contains(req.Messages[1].Content, "first passage") {
			return "", errors.New("timeout")
		}
		return scoreReply(0.5), nil
	})
	reranker := NewReranker(registryWith(t, provider), DefaultConfig(), zaptest.NewLogger(t))

	ranked := reranker.Rerank(context.Background(), "question", sixChunks())

	byID := map[string]float64{}
	for _, c := range ranked {
		byID[c.SourceID] = c.RelevanceScore
	}
	assert.InDelta(t, 0.90, byID["a"], 1e-9, "failed evaluation keeps the retrieval score")
	assert.InDelta(t, 0.65, byID["b"], 1e-9)
}

func TestReranker_InputNotMutated(t *testing.T) {
	provider := newStubProvider(func(req *providers.ChatRequest) (string, error) {
		return scoreReply(0.0), nil
	})
	reranker := NewReranker(registryWith(t, provider), DefaultConfig(), zaptest.NewLogger(t))

	chunks := sixChunks()
	snapshot := make([]ContextChunk, len(chunks))
	copy(snapshot, chunks)

	reranker.Rerank(context.Background(), "question", chunks)
	assert.Equal(t, snapshot, chunks)
}

func TestReranker_StableOnTies(t *testing.T) {
	reranker := NewReranker(providers.NewRegistry(), DefaultConfig(), zaptest.NewLogger(t))

	chunks := []ContextChunk{
		chunk("t1", "tied passage one", 0.5),
		chunk("t2", "tied passage two", 0.5),
		chunk("t3", "tied passage three", 0.5),
		chunk("t4", "tied passage four", 0.5),
		chunk("t5", "tied passage five", 0.5),
		chunk("t6", "tied passage six", 0.5),
	}

	ranked := reranker.Rerank(context.Background(), "question", chunks)
	assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5", "t6"}, sourceIDs(ranked))
}

func TestParseRelevanceScore(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    float64
		wantErr bool
	}{
		{name: "json reply", reply: `{"score": 0.85, "reason": "on topic"}`, want: 0.85},
		{name: "uppercase score", reply: `Score: 0.4 because it partially matches`, want: 0.4},
		{name: "bare decimal", reply: `score is .9`, want: 0.9},
		{name: "integer one", reply: `{"score": 1, "reason": "perfect"}`, want: 1},
		{name: "no score word", reply: `0.85 looks right`, wantErr: true},
		{name: "no number", reply: `score: high`, wantErr: true},
		{name: "out of range", reply: `{"score": 8.5, "reason": "wrong scale"}`, wantErr: true},
		{name: "empty", reply: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRelevanceScore(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
