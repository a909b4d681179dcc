package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockQueryLogRepository is a mock implementation of QueryLogRepository
type MockQueryLogRepository struct {
	mock.Mock
}

func (m *MockQueryLogRepository) Create(ctx context.Context, log *models.QueryLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockQueryLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.QueryLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueryLog), args.Error(1)
}

func (m *MockQueryLogRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.QueryLog, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.QueryLog), args.Error(1)
}

func (m *MockQueryLogRepository) List(ctx context.Context, limit, offset int) ([]*models.QueryLog, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.QueryLog), args.Error(1)
}

func (m *MockQueryLogRepository) Update(ctx context.Context, log *models.QueryLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockQueryLogRepository) GetMetrics(ctx context.Context, since time.Time) (*repositories.QueryMetrics, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.QueryMetrics), args.Error(1)
}

func (m *MockQueryLogRepository) GetUserMetrics(ctx context.Context, userID uuid.UUID, since time.Time) (*repositories.QueryMetrics, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.QueryMetrics), args.Error(1)
}

func (m *MockQueryLogRepository) WithTx(tx repositories.Transaction) repositories.QueryLogRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.QueryLogRepository)
}

// MockFeedbackRepository is a mock implementation of FeedbackRepository
type MockFeedbackRepository struct {
	mock.Mock
}

func (m *MockFeedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	args := m.Called(ctx, fb)
	return args.Error(0)
}

func (m *MockFeedbackRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Feedback), args.Error(1)
}

func (m *MockFeedbackRepository) GetByQueryLogID(ctx context.Context, queryLogID uuid.UUID) ([]*models.Feedback, error) {
	args := m.Called(ctx, queryLogID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Feedback), args.Error(1)
}

func (m *MockFeedbackRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Feedback, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Feedback), args.Error(1)
}

func (m *MockFeedbackRepository) GetSummary(ctx context.Context, since time.Time) (*repositories.FeedbackSummary, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.FeedbackSummary), args.Error(1)
}

func (m *MockFeedbackRepository) WithTx(tx repositories.Transaction) repositories.FeedbackRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.FeedbackRepository)
}

func TestHandleCreateFeedback(t *testing.T) {
	logger := zap.NewNop()
	user := models.NewUser("alice", "alice@example.com", "hash")

	t.Run("successful submission", func(t *testing.T) {
		mockLogs := new(MockQueryLogRepository)
		mockFb := new(MockFeedbackRepository)
		handler := NewFeedbackHandler(mockLogs, mockFb, logger)

		entry := models.NewQueryLog(user.ID, "what is the refund policy?")
		mockLogs.On("GetByID", mock.Anything, entry.ID).Return(entry, nil)

		helpful := true
		mockFb.On("Create", mock.Anything, mock.MatchedBy(func(fb *models.Feedback) bool {
			return fb.QueryLogID == entry.ID &&
				fb.UserID == user.ID &&
				fb.Rating == 4 &&
				fb.FeedbackType == models.FeedbackTypeAccuracy &&
				fb.WasHelpful != nil && *fb.WasHelpful
		})).Return(nil)

		body, _ := json.Marshal(CreateFeedbackRequest{
			QueryLogID:   entry.ID,
			Rating:       4,
			FeedbackType: "accuracy",
			WasHelpful:   &helpful,
		})
		req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleCreate(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

		data := response["data"].(map[string]interface{})
		assert.Equal(t, float64(4), data["rating"])
		assert.Equal(t, "accuracy", data["feedback_type"])
		assert.Equal(t, true, data["was_helpful"])

		mockLogs.AssertExpectations(t)
		mockFb.AssertExpectations(t)
	})

	t.Run("defaults to general feedback", func(t *testing.T) {
		mockLogs := new(MockQueryLogRepository)
		mockFb := new(MockFeedbackRepository)
		handler := NewFeedbackHandler(mockLogs, mockFb, logger)

		entry := models.NewQueryLog(user.ID, "q")
		mockLogs.On("GetByID", mock.Anything, entry.ID).Return(entry, nil)
		mockFb.On("Create", mock.Anything, mock.MatchedBy(func(fb *models.Feedback) bool {
			return fb.FeedbackType == models.FeedbackTypeGeneral
		})).Return(nil)

		body, _ := json.Marshal(CreateFeedbackRequest{QueryLogID: entry.ID, Rating: 5})
		req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleCreate(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		mockFb.AssertExpectations(t)
	})

	t.Run("rating out of range", func(t *testing.T) {
		mockLogs := new(MockQueryLogRepository)
		mockFb := new(MockFeedbackRepository)
		handler := NewFeedbackHandler(mockLogs, mockFb, logger)

		body, _ := json.Marshal(CreateFeedbackRequest{QueryLogID: uuid.New(), Rating: 6})
		req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleCreate(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockLogs.AssertNotCalled(t, "GetByID")
		mockFb.AssertNotCalled(t, "Create")
	})

	t.Run("unknown feedback type", func(t *testing.T) {
		mockLogs := new(MockQueryLogRepository)
		mockFb := new(MockFeedbackRepository)
		handler := NewFeedbackHandler(mockLogs, mockFb, logger)

		body := `{"query_log_id":"` + uuid.NewString() + `","rating":3,"feedback_type":"vibes"}`
		req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleCreate(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("query not found", func(t *testing.T) {
		mockLogs := new(MockQueryLogRepository)
		mockFb := new(MockFeedbackRepository)
		handler := NewFeedbackHandler(mockLogs, mockFb, logger)

		queryID := uuid.New()
		mockLogs.On("GetByID", mock.Anything, queryID).Return(nil, repositories.ErrNotFound)

		body, _ := json.Marshal(CreateFeedbackRequest{QueryLogID: queryID, Rating: 3})
		req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleCreate(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		mockFb.AssertNotCalled(t, "Create")
	})

	t.Run("cannot rate another user's query", func(t *testing.T) {
		mockLogs := new(MockQueryLogRepository)
		mockFb := new(MockFeedbackRepository)
		handler := NewFeedbackHandler(mockLogs, mockFb, logger)

		entry := models.NewQueryLog(uuid.New(), "someone else's question")
		mockLogs.On("GetByID", mock.Anything, entry.ID).Return(entry, nil)

		body, _ := json.Marshal(CreateFeedbackRequest{QueryLogID: entry.ID, Rating: 3})
		req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleCreate(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		mockFb.AssertNotCalled(t, "Create")
	})
}

func TestHandleListFeedback(t *testing.T) {
	logger := zap.NewNop()
	user := models.NewUser("alice", "alice@example.com", "hash")

	t.Run("lists caller feedback", func(t *testing.T) {
		mockLogs := new(MockQueryLogRepository)
		mockFb := new(MockFeedbackRepository)
		handler := NewFeedbackHandler(mockLogs, mockFb, logger)

		comment := "very helpful"
		items := []*models.Feedback{
			models.NewFeedback(uuid.New(), user.ID, 5, &comment),
		}
		mockFb.On("GetByUserID", mock.Anything, user.ID, 100, 0).Return(items, nil)

		req := httptest.NewRequest(http.MethodGet, "/feedback", nil)
		req = req.WithContext(middleware.WithUser(req.Context(), user))
		w := httptest.NewRecorder()

		handler.HandleList(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		data := response["data"].([]interface{})
		require.Len(t, data, 1)
		assert.Equal(t, "very helpful", data[0].(map[string]interface{})["feedback_text"])

		mockFb.AssertExpectations(t)
	})
}
