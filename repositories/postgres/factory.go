package postgres

import (
	"context"

	"github.com/NathanYKo/RAG-Document-System/config"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	cfg    *config.Config
	logger *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	return &RepositoryFactory{db: db, cfg: cfg, logger: logger}, nil
}

// InitSchema creates tables and indexes if they do not exist
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	return f.db.InitSchema(ctx, f.cfg.Vector.Dimensions)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() (*repositories.Repositories, error) {
	chunks, err := NewChunkRepository(f.db, f.cfg.Vector.DistanceMetric, f.logger)
	if err != nil {
		return nil, err
	}

	return &repositories.Repositories{
		Users:     NewUserRepository(f.db, f.logger),
		Documents: NewDocumentRepository(f.db, f.logger),
		Chunks:    chunks,
		QueryLogs: NewQueryLogRepository(f.db, f.logger),
		Feedback:  NewFeedbackRepository(f.db, f.logger),
		APIKeys:   NewAPIKeyRepository(f.db, f.logger),
		ABTests:   NewABTestRepository(f.db, f.logger),
	}, nil
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
