package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/services"
	"github.com/NathanYKo/RAG-Document-System/services/evaluation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEvaluator is a mock implementation of Evaluator
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, req evaluation.EvaluationRequest) *evaluation.EvaluationResult {
	args := m.Called(ctx, req)
	return args.Get(0).(*evaluation.EvaluationResult)
}

// MockABTestService is a mock implementation of ABTestService
type MockABTestService struct {
	mock.Mock
}

func (m *MockABTestService) Create(ctx context.Context, req evaluation.CreateTestRequest) (*models.ABTest, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ABTest), args.Error(1)
}

func (m *MockABTestService) List(ctx context.Context, limit, offset int) ([]*models.ABTest, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ABTest), args.Error(1)
}

func (m *MockABTestService) Get(ctx context.Context, name string) (*models.ABTest, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ABTest), args.Error(1)
}

func (m *MockABTestService) Assign(ctx context.Context, name string, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, name, userID)
	return args.String(0), args.Error(1)
}

func (m *MockABTestService) RecordResult(ctx context.Context, name string, userID uuid.UUID, responseTimeMs int, confidence float64, rating *int) (string, error) {
	args := m.Called(ctx, name, userID, responseTimeMs, confidence, rating)
	return args.String(0), args.Error(1)
}

func (m *MockABTestService) Analyze(ctx context.Context, name string) (*evaluation.Analysis, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*evaluation.Analysis), args.Error(1)
}

func (m *MockABTestService) End(ctx context.Context, name string) (*models.ABTest, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ABTest), args.Error(1)
}

// withTestName injects a chi route parameter for {name}.
func withTestName(req *http.Request, name string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("name", name)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleEvaluate(t *testing.T) {
	logger := zap.NewNop()

	t.Run("scores a response", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		mockEval.On("Evaluate", mock.Anything, mock.MatchedBy(func(req evaluation.EvaluationRequest) bool {
			return req.Query == "what is the refund policy?" && req.Response != ""
		})).Return(&evaluation.EvaluationResult{
			OverallScore:       0.84,
			RelevanceScore:     0.9,
			AccuracyScore:      0.8,
			ClarityScore:       0.85,
			CompletenessScore:  0.8,
			ConfidenceInterval: [2]float64{0.74, 0.94},
			Feedback:           "Good answer",
		})

		body, _ := json.Marshal(evaluation.EvaluationRequest{
			Query:    "what is the refund policy?",
			Response: "Refunds are processed within 14 days.",
		})
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleEvaluate(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

		data := response["data"].(map[string]interface{})
		assert.InDelta(t, 0.84, data["overall_score"], 1e-9)
		interval := data["confidence_interval"].([]interface{})
		assert.Len(t, interval, 2)

		mockEval.AssertExpectations(t)
	})

	t.Run("missing response fails validation", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		body := `{"query":"only a query"}`
		req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleEvaluate(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockEval.AssertNotCalled(t, "Evaluate")
	})
}

func TestHandleCreateTest(t *testing.T) {
	logger := zap.NewNop()

	t.Run("creates experiment", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		test, err := models.NewABTest("prompt-v2", "tighter prompt",
			map[string]string{"prompt": "old"}, map[string]string{"prompt": "new"}, 0.5, 0.05, 393)
		require.NoError(t, err)

		mockTests.On("Create", mock.Anything, mock.MatchedBy(func(req evaluation.CreateTestRequest) bool {
			return req.Name == "prompt-v2"
		})).Return(test, nil)

		body, _ := json.Marshal(evaluation.CreateTestRequest{
			Name:        "prompt-v2",
			Description: "tighter prompt",
			ConfigA:     map[string]string{"prompt": "old"},
			ConfigB:     map[string]string{"prompt": "new"},
		})
		req := httptest.NewRequest(http.MethodPost, "/ab-tests", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleCreateTest(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		data := response["data"].(map[string]interface{})
		assert.Equal(t, "prompt-v2", data["name"])
		assert.Equal(t, true, data["is_active"])

		mockTests.AssertExpectations(t)
	})

	t.Run("duplicate name", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		mockTests.On("Create", mock.Anything, mock.Anything).
			Return(nil, services.ErrDuplicateABTest)

		body, _ := json.Marshal(evaluation.CreateTestRequest{Name: "prompt-v2"})
		req := httptest.NewRequest(http.MethodPost, "/ab-tests", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleCreateTest(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing name fails validation", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		req := httptest.NewRequest(http.MethodPost, "/ab-tests", strings.NewReader(`{"description":"no name"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleCreateTest(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockTests.AssertNotCalled(t, "Create")
	})
}

func TestHandleVariant(t *testing.T) {
	logger := zap.NewNop()
	user := models.NewUser("alice", "alice@example.com", "hash")

	t.Run("returns sticky assignment", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		mockTests.On("Assign", mock.Anything, "prompt-v2", user.ID).Return(evaluation.VariantTreatment, nil)

		req := httptest.NewRequest(http.MethodGet, "/ab-tests/prompt-v2/variant", nil)
		req = withTestName(req, "prompt-v2")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleVariant(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		data := response["data"].(map[string]interface{})
		assert.Equal(t, "prompt-v2", data["test_name"])
		assert.Equal(t, "B", data["variant"])
		assert.Equal(t, user.ID.String(), data["user_id"])

		mockTests.AssertExpectations(t)
	})

	t.Run("missing user", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		req := httptest.NewRequest(http.MethodGet, "/ab-tests/prompt-v2/variant", nil)
		req = withTestName(req, "prompt-v2")
		w := httptest.NewRecorder()

		handler.HandleVariant(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockTests.AssertNotCalled(t, "Assign")
	})
}

func TestHandleRecordResult(t *testing.T) {
	logger := zap.NewNop()
	user := models.NewUser("alice", "alice@example.com", "hash")

	t.Run("records outcome under assigned variant", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		rating := 4
		mockTests.On("RecordResult", mock.Anything, "prompt-v2", user.ID, 500, 0.9, &rating).
			Return(evaluation.VariantControl, nil)

		body, _ := json.Marshal(RecordResultRequest{
			ResponseTimeMs:  500,
			ConfidenceScore: 0.9,
			Rating:          &rating,
		})
		req := httptest.NewRequest(http.MethodPost, "/ab-tests/prompt-v2/results", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = withTestName(req, "prompt-v2")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleRecordResult(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		data := response["data"].(map[string]interface{})
		assert.Equal(t, "Result recorded", data["message"])
		assert.Equal(t, "A", data["variant"])

		mockTests.AssertExpectations(t)
	})

	t.Run("unknown test", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		mockTests.On("RecordResult", mock.Anything, "ghost", user.ID, 0, 0.0, (*int)(nil)).
			Return("", services.ErrABTestNotFound)

		req := httptest.NewRequest(http.MethodPost, "/ab-tests/ghost/results", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req = withTestName(req, "ghost")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleRecordResult(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rating out of range", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		req := httptest.NewRequest(http.MethodPost, "/ab-tests/prompt-v2/results", strings.NewReader(`{"rating":9}`))
		req.Header.Set("Content-Type", "application/json")
		req = withTestName(req, "prompt-v2")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleRecordResult(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockTests.AssertNotCalled(t, "RecordResult")
	})
}

func TestHandleAnalysis(t *testing.T) {
	logger := zap.NewNop()

	t.Run("returns readout", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		mockTests.On("Analyze", mock.Anything, "prompt-v2").Return(&evaluation.Analysis{
			Status:           evaluation.StatusComplete,
			ControlMean:      0.78,
			TreatmentMean:    0.84,
			LiftPercent:      7.7,
			PValue:           0.012,
			ControlSamples:   400,
			TreatmentSamples: 410,
			Recommendation:   evaluation.RecommendDeploy,
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/ab-tests/prompt-v2/analysis", nil)
		req = withTestName(req, "prompt-v2")
		w := httptest.NewRecorder()

		handler.HandleAnalysis(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		data := response["data"].(map[string]interface{})
		assert.Equal(t, "complete", data["status"])
		assert.Equal(t, "deploy", data["recommendation"])

		mockTests.AssertExpectations(t)
	})

	t.Run("unknown test", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		mockTests.On("Analyze", mock.Anything, "ghost").
			Return(nil, services.ErrABTestNotFound)

		req := httptest.NewRequest(http.MethodGet, "/ab-tests/ghost/analysis", nil)
		req = withTestName(req, "ghost")
		w := httptest.NewRecorder()

		handler.HandleAnalysis(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleEndTest(t *testing.T) {
	logger := zap.NewNop()

	t.Run("ends experiment", func(t *testing.T) {
		mockEval := new(MockEvaluator)
		mockTests := new(MockABTestService)
		handler := NewEvaluationHandler(mockEval, mockTests, logger)

		test, err := models.NewABTest("prompt-v2", "", nil, nil, 0.5, 0.05, 393)
		require.NoError(t, err)
		test.End()

		mockTests.On("End", mock.Anything, "prompt-v2").Return(test, nil)

		req := httptest.NewRequest(http.MethodPost, "/ab-tests/prompt-v2/end", nil)
		req = withTestName(req, "prompt-v2")
		w := httptest.NewRecorder()

		handler.HandleEndTest(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		data := response["data"].(map[string]interface{})
		assert.Equal(t, false, data["is_active"])
		assert.NotNil(t, data["ended_at"])

		mockTests.AssertExpectations(t)
	})
}
