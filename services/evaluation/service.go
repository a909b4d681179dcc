// Package evaluation scores answer quality with an LLM judge, runs A/B
// experiments over pipeline configurations and aggregates performance
// metrics for the admin surface.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/NathanYKo/RAG-Document-System/services/providers"
)

const judgeSystemPrompt = "You are a precise evaluator. Respond only with valid JSON."

const judgePromptTemplate = `You are an expert evaluator for RAG (Retrieval-Augmented Generation) systems.

Evaluate the following response on a scale of 0-5 for each criterion:

Query: %s
Response: %s
Context Sources: %s

Evaluation Criteria:
1. RELEVANCE (0-5): How well does the response address the specific query?
2. ACCURACY (0-5): Is the information factually correct based on the sources?
3. CLARITY (0-5): Is the response clear, coherent, and well-structured?
4. COMPLETENESS (0-5): Does the response adequately cover the query scope?

Respond with ONLY valid JSON in this exact format:
{
    "relevance_score": <float 0-5>,
    "accuracy_score": <float 0-5>,
    "clarity_score": <float 0-5>,
    "completeness_score": <float 0-5>,
    "reasoning": "<detailed explanation>",
    "confidence": <float 0-1>
}`

const (
	judgeAttempts   = 3
	judgeRetryDelay = time.Second
	judgeMaxTokens  = 500
	// Low temperature keeps repeated evaluations consistent.
	judgeTemperature = 0.1
)

// EvaluationRequest asks the judge to score one query/answer pair.
type EvaluationRequest struct {
	Query          string   `json:"query" validate:"required,min=1,max=1000"`
	Response       string   `json:"response" validate:"required,min=1,max=5000"`
	ContextSources []string `json:"context_sources,omitempty"`
}

// EvaluationResult carries the judge's scores with a 95% confidence
// interval around the overall score.
type EvaluationResult struct {
	OverallScore       float64                `json:"overall_score"`
	RelevanceScore     float64                `json:"relevance_score"`
	AccuracyScore      float64                `json:"accuracy_score"`
	ClarityScore       float64                `json:"clarity_score"`
	CompletenessScore  float64                `json:"completeness_score"`
	ConfidenceInterval [2]float64             `json:"confidence_interval"`
	Feedback           string                 `json:"feedback"`
	Reasoning          string                 `json:"reasoning"`
	Metadata           map[string]interface{} `json:"evaluation_metadata"`
}

// judgeReply is the JSON document the judge model must produce. Pointer
// fields distinguish a missing key from a genuine zero score.
type judgeReply struct {
	Relevance    *float64 `json:"relevance_score"`
	Accuracy     *float64 `json:"accuracy_score"`
	Clarity      *float64 `json:"clarity_score"`
	Completeness *float64 `json:"completeness_score"`
	Reasoning    *string  `json:"reasoning"`
	Confidence   *float64 `json:"confidence"`
}

// Service is the LLM-as-a-judge response evaluator.
type Service struct {
	registry *providers.Registry
	model    string
	logger   *zap.Logger
}

// NewService creates an evaluation service judging with the given model.
func NewService(registry *providers.Registry, model string, logger *zap.Logger) *Service {
	return &Service{
		registry: registry,
		model:    model,
		logger:   logger,
	}
}

// Evaluate scores the answer on relevance, accuracy, clarity and
// completeness. It never fails: when the judge is unreachable or keeps
// producing invalid output, a neutral fallback result flagged for manual
// review is returned instead.
func (s *Service) Evaluate(ctx context.Context, req EvaluationRequest) *EvaluationResult {
	reply, err := s.judge(ctx, req)
	if err != nil {
		s.logger.Error("evaluation failed, returning neutral fallback", zap.Error(err))
		return fallbackResult(err)
	}

	scores := []float64{*reply.Relevance, *reply.Accuracy, *reply.Clarity, *reply.Completeness}
	overall := stat.Mean(scores, nil)

	return &EvaluationResult{
		OverallScore:       overall,
		RelevanceScore:     *reply.Relevance,
		AccuracyScore:      *reply.Accuracy,
		ClarityScore:       *reply.Clarity,
		CompletenessScore:  *reply.Completeness,
		ConfidenceInterval: confidenceInterval(scores, *reply.Confidence),
		Feedback:           fmt.Sprintf("Overall quality: %.2f/5.0", overall),
		Reasoning:          *reply.Reasoning,
		Metadata: map[string]interface{}{
			"evaluator_confidence": *reply.Confidence,
			"timestamp":            time.Now().UTC().Format(time.RFC3339),
			"evaluation_version":   "1.0",
		},
	}
}

// judge calls the model and parses its reply, retrying only on invalid
// output. Provider failures are not retried here; the provider adapter
// already retries transient errors.
func (s *Service) judge(ctx context.Context, req EvaluationRequest) (*judgeReply, error) {
	provider, err := s.registry.GetProviderForModel(s.model)
	if err != nil {
		return nil, fmt.Errorf("judge model %s unavailable: %w", s.model, err)
	}

	contextSources := "No context provided"
	if len(req.ContextSources) > 0 {
		contextSources = strings.Join(req.ContextSources, "\n")
	}
	prompt := fmt.Sprintf(judgePromptTemplate, req.Query, req.Response, contextSources)

	var lastErr error
	for attempt := 1; attempt <= judgeAttempts; attempt++ {
		resp, err := provider.ChatCompletion(ctx, &providers.ChatRequest{
			Model: s.model,
			Messages: []providers.Message{
				{Role: "system", Content: judgeSystemPrompt},
				{Role: "user", Content: prompt},
			},
			MaxTokens:   judgeMaxTokens,
			Temperature: judgeTemperature,
		})
		if err != nil {
			return nil, fmt.Errorf("judge call failed: %w", err)
		}

		reply, err := parseJudgeReply(resp.Text())
		if err == nil {
			return reply, nil
		}
		lastErr = err
		s.logger.Warn("evaluation attempt produced invalid output",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < judgeAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(judgeRetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("no valid evaluation after %d attempts: %w", judgeAttempts, lastErr)
}

// parseJudgeReply strips optional markdown fences, decodes the JSON and
// checks every required field is present and in range.
func parseJudgeReply(text string) (*judgeReply, error) {
	text = stripFences(text)

	var reply judgeReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return nil, fmt.Errorf("judge reply is not valid JSON: %w", err)
	}

	required := map[string]*float64{
		"relevance_score":    reply.Relevance,
		"accuracy_score":     reply.Accuracy,
		"clarity_score":      reply.Clarity,
		"completeness_score": reply.Completeness,
	}
	for field, score := range required {
		if score == nil {
			return nil, fmt.Errorf("judge reply missing %s", field)
		}
		if *score < 0 || *score > 5 {
			return nil, fmt.Errorf("judge score %s out of range: %v", field, *score)
		}
	}
	if reply.Reasoning == nil {
		return nil, fmt.Errorf("judge reply missing reasoning")
	}
	if reply.Confidence == nil {
		return nil, fmt.Errorf("judge reply missing confidence")
	}

	return &reply, nil
}

// stripFences removes a surrounding markdown code fence, with or without
// a json language tag.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// confidenceInterval computes a 95% interval around the mean score. The
// standard error is widened when the judge reports low confidence in its
// own scores, and the interval is clamped to the 0-5 scale.
func confidenceInterval(scores []float64, evaluatorConfidence float64) [2]float64 {
	mean := stat.Mean(scores, nil)
	std := stat.PopStdDev(scores, nil)
	if len(scores) <= 1 {
		std = 0.5
	}

	margin := 1.96 * std * (1 - evaluatorConfidence + 0.1)
	low := mean - margin
	if low < 0 {
		low = 0
	}
	high := mean + margin
	if high > 5 {
		high = 5
	}
	return [2]float64{low, high}
}

func fallbackResult(err error) *EvaluationResult {
	return &EvaluationResult{
		OverallScore:       2.5,
		RelevanceScore:     2.5,
		AccuracyScore:      2.5,
		ClarityScore:       2.5,
		CompletenessScore:  2.5,
		ConfidenceInterval: [2]float64{2.0, 3.0},
		Feedback:           "Evaluation failed - manual review required",
		Reasoning:          "Automatic evaluation failed: " + err.Error(),
		Metadata: map[string]interface{}{
			"error":    err.Error(),
			"fallback": true,
		},
	}
}
