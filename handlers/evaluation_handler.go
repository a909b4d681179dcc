package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/services/evaluation"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Evaluator defines the interface for LLM-as-judge scoring
type Evaluator interface {
	// Evaluate scores one answer; degraded judges yield neutral scores
	Evaluate(ctx context.Context, req evaluation.EvaluationRequest) *evaluation.EvaluationResult
}

// ABTestService defines the interface for experiment management
type ABTestService interface {
	// Create validates the experiment design and stores it
	Create(ctx context.Context, req evaluation.CreateTestRequest) (*models.ABTest, error)
	// List returns a page of experiments
	List(ctx context.Context, limit, offset int) ([]*models.ABTest, error)
	// Get returns one experiment by name
	Get(ctx context.Context, name string) (*models.ABTest, error)
	// Assign returns the caller's sticky variant for a running experiment
	Assign(ctx context.Context, name string, userID uuid.UUID) (string, error)
	// RecordResult stores one outcome under the caller's variant
	RecordResult(ctx context.Context, name string, userID uuid.UUID, responseTimeMs int, confidence float64, rating *int) (string, error)
	// Analyze runs the significance test over recorded outcomes
	Analyze(ctx context.Context, name string) (*evaluation.Analysis, error)
	// End stops a running experiment
	End(ctx context.Context, name string) (*models.ABTest, error)
}

// RecordResultRequest carries one experiment outcome
type RecordResultRequest struct {
	ResponseTimeMs  int     `json:"response_time_ms" validate:"omitempty,min=0"`
	ConfidenceScore float64 `json:"confidence_score" validate:"omitempty,min=0,max=1"`
	Rating          *int    `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
}

// VariantResponse reports a variant assignment
type VariantResponse struct {
	TestName string    `json:"test_name"`
	Variant  string    `json:"variant"`
	UserID   uuid.UUID `json:"user_id"`
}

// EvaluationHandler handles quality evaluation and A/B test HTTP requests
type EvaluationHandler struct {
	evaluator Evaluator
	tests     ABTestService
	logger    *zap.Logger
}

// NewEvaluationHandler creates a new EvaluationHandler
func NewEvaluationHandler(evaluator Evaluator, tests ABTestService, logger *zap.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		evaluator: evaluator,
		tests:     tests,
		logger:    logger,
	}
}

// HandleEvaluate handles POST /evaluate
func (h *EvaluationHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req evaluation.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	result := h.evaluator.Evaluate(ctx, req)

	h.logger.Info("response evaluated",
		zap.String("request_id", requestID),
		zap.Float64("overall_score", result.OverallScore))

	_ = utils.WriteOK(w, result)
}

// HandleCreateTest handles POST /ab-tests
func (h *EvaluationHandler) HandleCreateTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req evaluation.CreateTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	test, err := h.tests.Create(ctx, req)
	if err != nil {
		h.logger.Warn("failed to create A/B test",
			zap.String("request_id", requestID),
			zap.String("test_name", req.Name),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("A/B test created",
		zap.String("request_id", requestID),
		zap.String("test_name", test.Name))

	_ = utils.WriteCreated(w, test)
}

// HandleListTests handles GET /ab-tests
func (h *EvaluationHandler) HandleListTests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	limit, offset := parsePagination(r, defaultPageLimit)

	tests, err := h.tests.List(ctx, limit, offset)
	if err != nil {
		h.logger.Error("failed to list A/B tests",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, tests)
}

// HandleGetTest handles GET /ab-tests/{name}
func (h *EvaluationHandler) HandleGetTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	name := chi.URLParam(r, "name")
	test, err := h.tests.Get(ctx, name)
	if err != nil {
		h.logger.Warn("failed to get A/B test",
			zap.String("request_id", requestID),
			zap.String("test_name", name),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, test)
}

// HandleVariant handles GET /ab-tests/{name}/variant
// Assignment is sticky per user for the lifetime of the experiment.
func (h *EvaluationHandler) HandleVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	name := chi.URLParam(r, "name")
	variant, err := h.tests.Assign(ctx, name, user.ID)
	if err != nil {
		h.logger.Warn("failed to assign variant",
			zap.String("request_id", requestID),
			zap.String("test_name", name),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, VariantResponse{
		TestName: name,
		Variant:  variant,
		UserID:   user.ID,
	})
}

// HandleRecordResult handles POST /ab-tests/{name}/results
func (h *EvaluationHandler) HandleRecordResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req RecordResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	name := chi.URLParam(r, "name")
	variant, err := h.tests.RecordResult(ctx, name, user.ID, req.ResponseTimeMs, req.ConfidenceScore, req.Rating)
	if err != nil {
		h.logger.Warn("failed to record A/B test result",
			zap.String("request_id", requestID),
			zap.String("test_name", name),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, map[string]string{
		"message": "Result recorded",
		"variant": variant,
	})
}

// HandleAnalysis handles GET /ab-tests/{name}/analysis
func (h *EvaluationHandler) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	name := chi.URLParam(r, "name")
	analysis, err := h.tests.Analyze(ctx, name)
	if err != nil {
		h.logger.Warn("failed to analyze A/B test",
			zap.String("request_id", requestID),
			zap.String("test_name", name),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, analysis)
}

// HandleEndTest handles POST /ab-tests/{name}/end
func (h *EvaluationHandler) HandleEndTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	name := chi.URLParam(r, "name")
	test, err := h.tests.End(ctx, name)
	if err != nil {
		h.logger.Warn("failed to end A/B test",
			zap.String("request_id", requestID),
			zap.String("test_name", name),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("A/B test ended",
		zap.String("request_id", requestID),
		zap.String("test_name", test.Name))

	_ = utils.WriteOK(w, test)
}
