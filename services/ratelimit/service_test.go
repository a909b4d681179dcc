package ratelimit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/config"
	"github.com/NathanYKo/RAG-Document-System/services"
)

const (
	countQuery  = `SELECT COUNT(*) FROM rate_limit_requests`
	insertQuery = `INSERT INTO rate_limit_requests (subject, requested_at) VALUES ($1, $2)`
	deleteQuery = `DELETE FROM rate_limit_requests WHERE requested_at < $1`
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:         true,
		UserLimit:       100,
		IPLimit:         1000,
		Window:          time.Hour,
		CleanupInterval: 10 * time.Minute,
		Retention:       24 * time.Hour,
	}
}

func newTestService(t *testing.T, cfg config.RateLimitConfig) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, _ := zap.NewDevelopment()
	return NewService(db, cfg, logger), mock
}

func TestSubjectKeys(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	assert.Equal(t, "user:11111111-2222-3333-4444-555555555555", SubjectUser(id))
	assert.Equal(t, "ip:203.0.113.9", SubjectIP("203.0.113.9"))
	assert.Equal(t, "key:11111111-2222-3333-4444-555555555555", SubjectAPIKey(id))
}

func TestNewService_Defaults(t *testing.T) {
	svc, _ := newTestService(t, config.RateLimitConfig{Enabled: true})

	assert.Equal(t, time.Hour, svc.cfg.Window)
	assert.Equal(t, 24*time.Hour, svc.cfg.Retention)
	assert.Equal(t, 10*time.Minute, svc.cfg.CleanupInterval)
}

func TestWindowBounds(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	now := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)
	start, reset := svc.windowBounds(now)

	assert.Equal(t, now.Add(-time.Hour), start)
	assert.Equal(t, time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC), reset)
}

func TestAllowUser_UnderLimit(t *testing.T) {
	svc, mock := newTestService(t, testConfig())
	userID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(countQuery)).
		WithArgs(SubjectUser(userID), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta(insertQuery)).
		WithArgs(SubjectUser(userID), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := svc.AllowUser(context.Background(), userID)
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Equal(t, 100, result.Limit)
	assert.Equal(t, 95, result.Remaining)
	assert.Equal(t, time.Hour, result.Window)
	assert.True(t, result.ResetAt.After(time.Now().UTC()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowUser_AtLimit(t *testing.T) {
	svc, mock := newTestService(t, testConfig())
	userID := uuid.New()

	// No insert expectation: a denied request must not be recorded.
	mock.ExpectQuery(regexp.QuoteMeta(countQuery)).
		WithArgs(SubjectUser(userID), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(100))

	result, err := svc.AllowUser(context.Background(), userID)
	require.NoError(t, err)

	assert.False(t, result.Allowed)
	assert.Equal(t, 100, result.Limit)
	assert.Equal(t, 0, result.Remaining)
	assert.GreaterOrEqual(t, result.RetryAfter(), 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowIP_UsesAddressSubject(t *testing.T) {
	svc, mock := newTestService(t, testConfig())

	mock.ExpectQuery(regexp.QuoteMeta(countQuery)).
		WithArgs("ip:198.51.100.7", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(insertQuery)).
		WithArgs("ip:198.51.100.7", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := svc.AllowIP(context.Background(), "198.51.100.7")
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Equal(t, 1000, result.Limit)
	assert.Equal(t, 999, result.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowAPIKey_OwnLimit(t *testing.T) {
	svc, mock := newTestService(t, testConfig())
	keyID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(countQuery)).
		WithArgs(SubjectAPIKey(keyID), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(24))
	mock.ExpectExec(regexp.QuoteMeta(insertQuery)).
		WithArgs(SubjectAPIKey(keyID), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := svc.AllowAPIKey(context.Background(), keyID, 25)
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Equal(t, 25, result.Limit)
	assert.Equal(t, 0, result.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	svc, mock := newTestService(t, cfg)

	result, err := svc.Allow(context.Background(), "user:anyone", 100)
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Equal(t, 100, result.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_UnlimitedSubject(t *testing.T) {
	svc, mock := newTestService(t, testConfig())

	result, err := svc.Allow(context.Background(), "key:unlimited", 0)
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_CountError(t *testing.T) {
	svc, mock := newTestService(t, testConfig())

	mock.ExpectQuery(regexp.QuoteMeta(countQuery)).
		WillReturnError(assert.AnError)

	result, err := svc.Allow(context.Background(), "user:someone", 100)
	require.Error(t, err)

	assert.Nil(t, result)
	assert.True(t, services.IsInternalError(err))
}

func TestAllow_InsertError(t *testing.T) {
	svc, mock := newTestService(t, testConfig())

	mock.ExpectQuery(regexp.QuoteMeta(countQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(insertQuery)).
		WillReturnError(assert.AnError)

	result, err := svc.Allow(context.Background(), "user:someone", 100)
	require.Error(t, err)

	assert.Nil(t, result)
	assert.True(t, services.IsInternalError(err))
}

func TestCleanupOldRequests(t *testing.T) {
	svc, mock := newTestService(t, testConfig())

	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := svc.CleanupOldRequests(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(42), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupOldRequests_Error(t *testing.T) {
	svc, mock := newTestService(t, testConfig())

	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WillReturnError(assert.AnError)

	_, err := svc.CleanupOldRequests(context.Background())
	require.Error(t, err)
	assert.True(t, services.IsInternalError(err))
}

func TestStartCleanupWorker(t *testing.T) {
	cfg := testConfig()
	cfg.CleanupInterval = 10 * time.Millisecond
	svc, mock := newTestService(t, cfg)

	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartCleanupWorker(ctx)
		close(done)
	}()

	// Wait for the first tick to consume the expectation. Later ticks hit
	// an unexpected-call error, which the worker only logs.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && mock.ExpectationsWereMet() != nil {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
