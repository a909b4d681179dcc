// Package querylog persists query history off the request path. Entries
// go through a buffered channel drained by a small worker pool, so a slow
// database write never delays an answer.
package querylog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/services"
)

// persistTimeout bounds a single background write
const persistTimeout = 5 * time.Second

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the entry buffer channel
	WorkerCount int // Number of concurrent writer goroutines
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// Service handles asynchronous query log writes and history reads
type Service struct {
	logs        repositories.QueryLogRepository
	logger      *zap.Logger
	entries     chan *models.QueryLog
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	mu          sync.Mutex
	started     bool
	dropped     uint64
}

// NewService creates a query log service
func NewService(logs repositories.QueryLogRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &Service{
		logs:        logs,
		logger:      logger,
		entries:     make(chan *models.QueryLog, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background writers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("query log service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started query log service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop drains the buffer and stops the writers. Entries still queued when
// the timeout expires are lost.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("query log service not started")
	}
	// Flip started before closing so Record cannot send on a closed channel.
	s.started = false
	pending := len(s.entries)
	close(s.entries)
	s.mu.Unlock()

	s.logger.Info("stopping query log service", zap.Int("pending_entries", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("query log service stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("query log service stop timeout after %v", timeout)
	}
}

// Record queues an entry for background persistence. It never blocks:
// when the buffer is full the entry is dropped with a warning.
func (s *Service) Record(entry *models.QueryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("query log service not started")
	}

	select {
	case s.entries <- entry:
		return nil
	default:
		s.dropped++
		s.logger.Warn("query log buffer full, dropping entry",
			zap.String("query_log_id", entry.ID.String()),
			zap.String("user_id", entry.UserID.String()))
		return fmt.Errorf("query log buffer full")
	}
}

// worker drains entries until the channel closes
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("query log worker started", zap.Int("worker_id", id))

	for entry := range s.entries {
		if err := s.persist(entry); err != nil {
			s.logger.Error("failed to persist query log",
				zap.Int("worker_id", id),
				zap.String("query_log_id", entry.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Debug("query log worker stopped", zap.Int("worker_id", id))
}

func (s *Service) persist(entry *models.QueryLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}
	return nil
}

// History returns the user's past queries, newest first
func (s *Service) History(ctx context.Context, user *models.User, limit, offset int) ([]*models.QueryLog, error) {
	logs, err := s.logs.GetByUserID(ctx, user.ID, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to load query history", err)
	}
	return logs, nil
}

// Stats reports writer state for the admin surface
type Stats struct {
	BufferSize     int    `json:"buffer_size"`
	PendingEntries int    `json:"pending_entries"`
	WorkerCount    int    `json:"worker_count"`
	Started        bool   `json:"started"`
	Dropped        uint64 `json:"dropped"`
}

// GetStats returns statistics about the writer
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:     s.bufferSize,
		PendingEntries: len(s.entries),
		WorkerCount:    s.workerCount,
		Started:        s.started,
		Dropped:        s.dropped,
	}
}
