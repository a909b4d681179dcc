package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/internal/tokens"
	"github.com/NathanYKo/RAG-Document-System/services"
	"github.com/NathanYKo/RAG-Document-System/services/providers"
)

const systemPrompt = `You are an expert AI assistant that provides accurate, well-reasoned answers based on the provided context.

Guidelines:
1. Answer based ONLY on the provided context
2. If information is insufficient, clearly state this limitation
3. Cite specific sources when making claims
4. Provide structured, clear responses
5. Acknowledge uncertainty when appropriate
6. Distinguish between facts and inferences`

const queryPromptTemplate = `Context Information:
%s

Question: %s

Instructions:
- Provide a comprehensive answer based on the context above
- Include specific citations using [Source: document_id] format
- If the context doesn't contain sufficient information, state this clearly
- Structure your response logically with clear reasoning

Answer:`

// degradedPreviewLimit bounds the raw context served when no provider is
// configured
const degradedPreviewLimit = 500

// uncertaintyMarkers are hedging phrases that lower answer confidence
var uncertaintyMarkers = []string{"i don't know", "unclear", "insufficient information", "not enough"}

// Result is a generated answer with its quality estimate and token
// accounting.
type Result struct {
	Answer     string
	Confidence float64
	TokensUsed int
}

// Generator produces the final answer from packed context. Without a
// configured provider it degrades to serving the raw context preview
// instead of failing the query.
type Generator struct {
	registry *providers.Registry
	counter  *tokens.Counter
	cfg      Config
	logger   *zap.Logger
}

func NewGenerator(registry *providers.Registry, cfg Config, logger *zap.Logger) *Generator {
	counter, err := tokens.NewCounter(cfg.Model)
	if err != nil {
		logger.Warn("token encoding unavailable, falling back to length estimates", zap.Error(err))
	}
	return &Generator{
		registry: registry,
		counter:  counter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Generate answers the query from the given chunks. A missing provider
// degrades gracefully; a failed provider call is a generation error.
func (g *Generator) Generate(ctx context.Context, query string, chunks []ContextChunk) (*Result, error) {
	contextString := buildContextString(chunks)

	provider, err := g.registry.GetProviderForModel(g.cfg.Model)
	if err != nil {
		g.logger.Warn("generation model unavailable, serving degraded answer",
			zap.String("model", g.cfg.Model),
			zap.Error(err),
		)
		return g.degradedResult(contextString), nil
	}

	prompt := fmt.Sprintf(queryPromptTemplate, contextString, query)
	resp, err := provider.ChatCompletion(ctx, &providers.ChatRequest{
		Model: g.cfg.Model,
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:        g.cfg.MaxTokens,
		Temperature:      g.cfg.Temperature,
		TopP:             g.cfg.TopP,
		FrequencyPenalty: g.cfg.FrequencyPenalty,
		PresencePenalty:  g.cfg.PresencePenalty,
	})
	if err != nil {
		return nil, services.WrapGeneration("chat completion failed", err)
	}

	answer := strings.TrimSpace(resp.Text())
	used := resp.Usage.TotalTokens
	if used == 0 {
		used = g.countTokens(systemPrompt, prompt, answer)
	}
	return &Result{
		Answer:     answer,
		Confidence: calculateConfidence(answer, chunks),
		TokensUsed: used,
	}, nil
}

func (g *Generator) degradedResult(contextString string) *Result {
	preview := contextString
	if len(preview) > degradedPreviewLimit {
		preview = preview[:degradedPreviewLimit]
	}
	answer := "Based on the available context:\n\n" + preview + "...\n\nI cannot provide a complete answer as the AI service is not configured."
	return &Result{
		Answer:     answer,
		Confidence: 0.5,
		TokensUsed: g.countTokens(answer),
	}
}

// countTokens prefers the real encoder and falls back to the length
// estimate when no encoding loaded.
func (g *Generator) countTokens(texts ...string) int {
	if g.counter != nil {
		return g.counter.CountAll(texts...)
	}
	total := 0
	for _, text := range texts {
		total += tokens.Estimate(text)
	}
	return total
}

// buildContextString lays out the chunks under a separator rule, each
// labeled with the citation id the model is instructed to use.
func buildContextString(chunks []ContextChunk) string {
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		sourceInfo := fmt.Sprintf("Source %d (ID: %s)", i+1, chunk.SourceID)
		if origin := chunk.Metadata.Extra["source"]; origin != "" {
			sourceInfo += " - " + origin
		}
		parts = append(parts, fmt.Sprintf("%s:\n%s\n", sourceInfo, chunk.Content))
	}
	return "\n" + strings.Repeat("=", 50) + strings.Join(parts, "\n")
}

// calculateConfidence scores an answer in [0,1] as the mean of four
// factors: mean source relevance, answer length against a 200 character
// target, absence of hedging language, and citation presence.
func calculateConfidence(answer string, chunks []ContextChunk) float64 {
	factors := make([]float64, 0, 4)

	if len(chunks) > 0 {
		total := 0.0
		for _, chunk := range chunks {
			total += chunk.RelevanceScore
		}
		factors = append(factors, total/float64(len(chunks)))
	}

	length := float64(len(answer)) / 200
	if length > 1 {
		length = 1
	}
	factors = append(factors, length)

	lower := strings.ToLower(answer)
	hits := 0
	for _, marker := range uncertaintyMarkers {
		if strings.Contains(lower, marker) {
			hits++
		}
	}
	certainty := 1 - 0.2*float64(hits)
	if certainty < 0 {
		certainty = 0
	}
	factors = append(factors, certainty)

	if strings.Contains(answer, "[Source:") || strings.Contains(answer, "Source ") {
		factors = append(factors, 1.0)
	} else {
		factors = append(factors, 0.7)
	}

	if len(factors) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, factor := range factors {
		sum += factor
	}
	return sum / float64(len(factors))
}
