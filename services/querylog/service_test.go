package querylog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/services"
)

// MockQueryLogRepository is a mock implementation of repositories.QueryLogRepository
type MockQueryLogRepository struct {
	mock.Mock
	mu       sync.Mutex
	inserted []*models.QueryLog
}

func (m *MockQueryLogRepository) Create(ctx context.Context, log *models.QueryLog) error {
	args := m.Called(ctx, log)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, log)
	return args.Error(0)
}

func (m *MockQueryLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.QueryLog, error) {
	args := m.Called(ctx, id)
	if log := args.Get(0); log != nil {
		return log.(*models.QueryLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQueryLogRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.QueryLog, error) {
	args := m.Called(ctx, userID, limit, offset)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.QueryLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQueryLogRepository) List(ctx context.Context, limit, offset int) ([]*models.QueryLog, error) {
	args := m.Called(ctx, limit, offset)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.QueryLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQueryLogRepository) Update(ctx context.Context, log *models.QueryLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockQueryLogRepository) GetMetrics(ctx context.Context, since time.Time) (*repositories.QueryMetrics, error) {
	args := m.Called(ctx, since)
	if metrics := args.Get(0); metrics != nil {
		return metrics.(*repositories.QueryMetrics), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQueryLogRepository) GetUserMetrics(ctx context.Context, userID uuid.UUID, since time.Time) (*repositories.QueryMetrics, error) {
	args := m.Called(ctx, userID, since)
	if metrics := args.Get(0); metrics != nil {
		return metrics.(*repositories.QueryMetrics), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQueryLogRepository) WithTx(tx repositories.Transaction) repositories.QueryLogRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.QueryLogRepository)
}

func (m *MockQueryLogRepository) insertedEntries() []*models.QueryLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.QueryLog, len(m.inserted))
	copy(out, m.inserted)
	return out
}

func newService(repo repositories.QueryLogRepository, cfg Config) *Service {
	logger, _ := zap.NewDevelopment()
	return NewService(repo, logger, cfg)
}

func TestService_StartStop(t *testing.T) {
	mockRepo := new(MockQueryLogRepository)
	service := newService(mockRepo, Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))

	// Cannot stop again
	assert.Error(t, service.Stop(time.Second))
}

func TestService_Record(t *testing.T) {
	mockRepo := new(MockQueryLogRepository)
	service := newService(mockRepo, Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	userID := uuid.New()
	entry := models.NewQueryLog(userID, "what is the refund policy?")
	entry.WithRequest(5, map[string]string{"file_type": "pdf"})
	entry.MarkAsDone("refunds take 30 days", 0.91, 120, 256, []string{"doc_1"})

	require.NoError(t, service.Record(entry))
	require.NoError(t, service.Stop(5*time.Second))

	inserted := mockRepo.insertedEntries()
	require.Len(t, inserted, 1)
	assert.Equal(t, userID, inserted[0].UserID)
	assert.Equal(t, models.QueryStatusDone, inserted[0].Status)
	assert.Equal(t, 5, inserted[0].MaxResults)
	assert.JSONEq(t, `{"file_type":"pdf"}`, string(inserted[0].FilterParams))
}

func TestService_Record_NotStarted(t *testing.T) {
	mockRepo := new(MockQueryLogRepository)
	service := newService(mockRepo, Config{BufferSize: 10, WorkerCount: 1})

	err := service.Record(models.NewQueryLog(uuid.New(), "q"))
	assert.Error(t, err)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_RecordAfterStop(t *testing.T) {
	mockRepo := new(MockQueryLogRepository)
	service := newService(mockRepo, Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(5*time.Second))

	// Must fail cleanly, not panic on a closed channel.
	err := service.Record(models.NewQueryLog(uuid.New(), "q"))
	assert.Error(t, err)
}

func TestService_StopDrainsPending(t *testing.T) {
	mockRepo := new(MockQueryLogRepository)
	service := newService(mockRepo, Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		time.Sleep(5 * time.Millisecond)
	})

	userID := uuid.New()
	for i := 0; i < 20; i++ {
		require.NoError(t, service.Record(models.NewQueryLog(userID, "question")))
	}

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.insertedEntries(), 20)
}

func TestService_ConcurrentRecord(t *testing.T) {
	mockRepo := new(MockQueryLogRepository)
	service := newService(mockRepo, Config{BufferSize: 1000, WorkerCount: 5})
	require.NoError(t, service.Start())

	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	goroutines := 10
	perGoroutine := 10
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				service.Record(models.NewQueryLog(uuid.New(), "question"))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.insertedEntries(), goroutines*perGoroutine)
}

func TestService_BufferFull(t *testing.T) {
	mockRepo := new(MockQueryLogRepository)
	service := newService(mockRepo, Config{BufferSize: 5, WorkerCount: 1})
	require.NoError(t, service.Start())
	defer service.Stop(5 * time.Second)

	// Slow down processing so the buffer backs up.
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		time.Sleep(100 * time.Millisecond)
	})

	successCount := 0
	for i := 0; i < 20; i++ {
		if err := service.Record(models.NewQueryLog(uuid.New(), "question")); err == nil {
			successCount++
		}
	}

	assert.Less(t, successCount, 20)
	assert.Greater(t, service.GetStats().Dropped, uint64(0))
}

func TestService_StopTimeout(t *testing.T) {
	mockRepo := new(MockQueryLogRepository)
	service := newService(mockRepo, Config{BufferSize: 100, WorkerCount: 1})
	require.NoError(t, service.Start())

	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		time.Sleep(2 * time.Second)
	})

	service.Record(models.NewQueryLog(uuid.New(), "question"))

	err := service.Stop(100 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestService_History(t *testing.T) {
	t.Run("returns user's queries", func(t *testing.T) {
		mockRepo := new(MockQueryLogRepository)
		service := newService(mockRepo, DefaultConfig())

		user := &models.User{ID: uuid.New()}
		logs := []*models.QueryLog{
			models.NewQueryLog(user.ID, "second question"),
			models.NewQueryLog(user.ID, "first question"),
		}
		mockRepo.On("GetByUserID", mock.Anything, user.ID, 50, 0).Return(logs, nil)

		result, err := service.History(context.Background(), user, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, logs, result)
		mockRepo.AssertExpectations(t)
	})

	t.Run("wraps repository failure", func(t *testing.T) {
		mockRepo := new(MockQueryLogRepository)
		service := newService(mockRepo, DefaultConfig())

		user := &models.User{ID: uuid.New()}
		mockRepo.On("GetByUserID", mock.Anything, user.ID, 50, 0).Return(nil, assert.AnError)

		_, err := service.History(context.Background(), user, 50, 0)
		require.Error(t, err)
		assert.True(t, services.IsInternalError(err))
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 10000, config.BufferSize)
	assert.Equal(t, 5, config.WorkerCount)
}
