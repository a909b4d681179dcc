package rag

import "github.com/NathanYKo/RAG-Document-System/config"

// Config carries the pipeline tuning knobs. Token budgets use the rough
// four-characters-per-token estimate, not an encoder, so the context
// budget check stays free of provider calls.
type Config struct {
	// MaxContextLength is the context budget in estimated tokens
	MaxContextLength int

	// TopKRetrieval is how many chunks the vector store is asked for
	TopKRetrieval int

	// FinalContextChunks caps how many chunks survive packing
	FinalContextChunks int

	// MinRelevanceScore drops weakly related chunks at retrieval
	MinRelevanceScore float64

	// Model generates answers, RerankModel scores candidates
	Model       string
	RerankModel string

	// Generation sampling parameters
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64

	// DistanceMetric matches the vector store: cosine, l2 or similarity
	DistanceMetric string
}

// DefaultConfig returns the tuning used when nothing is configured
func DefaultConfig() Config {
	return Config{
		MaxContextLength:   4000,
		TopKRetrieval:      10,
		FinalContextChunks: 5,
		MinRelevanceScore:  0.1,
		Model:              "gpt-4",
		RerankModel:        "gpt-3.5-turbo",
		MaxTokens:          1000,
		Temperature:        0.3,
		TopP:               0.9,
		FrequencyPenalty:   0.1,
		PresencePenalty:    0.1,
		DistanceMetric:     "cosine",
	}
}

// FromConfig maps application configuration onto pipeline tuning
func FromConfig(cfg *config.Config) Config {
	return Config{
		MaxContextLength:   cfg.RAG.MaxContextLength,
		TopKRetrieval:      cfg.RAG.TopKRetrieval,
		FinalContextChunks: cfg.RAG.FinalContextChunks,
		MinRelevanceScore:  cfg.RAG.MinRelevanceScore,
		Model:              cfg.RAG.Model,
		RerankModel:        cfg.RAG.RerankModel,
		MaxTokens:          cfg.RAG.MaxTokens,
		Temperature:        cfg.RAG.Temperature,
		TopP:               cfg.RAG.TopP,
		FrequencyPenalty:   cfg.RAG.FrequencyPenalty,
		PresencePenalty:    cfg.RAG.PresencePenalty,
		DistanceMetric:     cfg.Vector.DistanceMetric,
	}
}
