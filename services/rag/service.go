// Package rag implements the retrieval-augmented answer pipeline. A query
// is embedded and matched against stored chunks, the matches are filtered
// for quality and diversity, an LLM judge refines the ranking, the best
// chunks are packed into a token budget, and an answer with citations is
// generated from them.
package rag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/services/embedding"
	"github.com/NathanYKo/RAG-Document-System/services/providers"
)

// Pipeline stages, in order. A query moves forward only; failed absorbs
// from any stage.
const (
	stageReceived   = "received"
	stageRetrieving = "retrieving"
	stageFiltering  = "filtering"
	stageReranking  = "reranking"
	stagePacking    = "packing"
	stageGenerating = "generating"
	stageDone       = "done"
	stageFailed     = "failed"
)

// sourcePreviewLimit bounds the content echoed back per source
const sourcePreviewLimit = 200

const noContextAnswer = "I don't have enough information in the knowledge base to answer this question. Please try uploading relevant documents first or rephrase your question."

// Service orchestrates the pipeline stages for a query
type Service struct {
	retriever *Retriever
	filter    *Filter
	reranker  *Reranker
	packer    *Packer
	generator *Generator
	logger    *zap.Logger
}

func NewService(embedder embedding.Embedder, store repositories.ChunkRepository, registry *providers.Registry, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		retriever: NewRetriever(embedder, store, cfg, logger),
		filter:    NewFilter(logger),
		reranker:  NewReranker(registry, cfg, logger),
		packer:    NewPacker(cfg),
		generator: NewGenerator(registry, cfg, logger),
		logger:    logger,
	}
}

// Query runs the full pipeline. Retrieval and generation failures fail
// the query; a query that matches nothing is answered with a canned
// response, not an error.
func (s *Service) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	req.Normalize()
	started := time.Now()
	run := newPipelineRun(s.logger)

	s.logger.Info("processing query",
		zap.Int("query_length", len(req.Query)),
		zap.Int("max_results", req.MaxResults),
	)

	run.transition(stageRetrieving)
	retrieved, err := s.retriever.Retrieve(ctx, req.Query)
	if err != nil {
		run.fail(err)
		return nil, err
	}

	run.transition(stageFiltering)
	filtered := s.filter.Apply(retrieved, req.FilterParams)
	if len(filtered) == 0 {
		run.transition(stageDone)
		return s.noContextResponse(req, started), nil
	}

	run.transition(stageReranking)
	ranked := s.reranker.Rerank(ctx, req.Query, filtered)

	run.transition(stagePacking)
	packed := s.packer.Pack(ranked)
	if len(packed) == 0 {
		run.transition(stageDone)
		return s.noContextResponse(req, started), nil
	}

	run.transition(stageGenerating)
	final := packed
	if len(final) > req.MaxResults {
		final = final[:req.MaxResults]
	}
	result, err := s.generator.Generate(ctx, req.Query, final)
	if err != nil {
		run.fail(err)
		return nil, err
	}

	run.transition(stageDone)
	processingTime := time.Since(started).Seconds()
	s.logger.Info("query processed",
		zap.Float64("confidence", result.Confidence),
		zap.Int("sources", len(final)),
		zap.Float64("processing_time", processingTime),
	)

	return &QueryResponse{
		Query:           req.Query,
		Answer:          result.Answer,
		Sources:         buildSources(final, req.IncludesMetadata()),
		ConfidenceScore: result.Confidence,
		ProcessingTime:  processingTime,
		SourcesCount:    len(final),
		Timestamp:       time.Now(),
		TokensUsed:      result.TokensUsed,
	}, nil
}

func (s *Service) noContextResponse(req *QueryRequest, started time.Time) *QueryResponse {
	return &QueryResponse{
		Query:           req.Query,
		Answer:          noContextAnswer,
		Sources:         []Source{},
		ConfidenceScore: 0,
		ProcessingTime:  time.Since(started).Seconds(),
		SourcesCount:    0,
		Timestamp:       time.Now(),
	}
}

func buildSources(chunks []ContextChunk, includeMetadata bool) []Source {
	sources := make([]Source, 0, len(chunks))
	for _, chunk := range chunks {
		source := Source{
			ID:             chunk.SourceID,
			ContentPreview: preview(chunk.Content),
			RelevanceScore: chunk.RelevanceScore,
		}
		if includeMetadata {
			metadata := chunk.Metadata
			source.Metadata = &metadata
		}
		sources = append(sources, source)
	}
	return sources
}

func preview(content string) string {
	if len(content) > sourcePreviewLimit {
		return content[:sourcePreviewLimit] + "..."
	}
	return content
}

// pipelineRun tracks one query through the stages for log correlation
type pipelineRun struct {
	logger   *zap.Logger
	stage    string
	started  time.Time
	stagedAt time.Time
}

func newPipelineRun(logger *zap.Logger) *pipelineRun {
	now := time.Now()
	return &pipelineRun{
		logger:   logger,
		stage:    stageReceived,
		started:  now,
		stagedAt: now,
	}
}

func (p *pipelineRun) transition(next string) {
	now := time.Now()
	p.logger.Debug("pipeline stage transition",
		zap.String("from", p.stage),
		zap.String("to", next),
		zap.Duration("stage_elapsed", now.Sub(p.stagedAt)),
		zap.Duration("total_elapsed", now.Sub(p.started)),
	)
	p.stage = next
	p.stagedAt = now
}

func (p *pipelineRun) fail(err error) {
	p.logger.Error("pipeline stage failed",
		zap.String("stage", p.stage),
		zap.Duration("total_elapsed", time.Since(p.started)),
		zap.Error(err),
	)
	p.stage = stageFailed
}
