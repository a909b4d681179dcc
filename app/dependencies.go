package app

import (
	"context"
	"fmt"
	"time"

	"github.com/NathanYKo/RAG-Document-System/config"
	"github.com/NathanYKo/RAG-Document-System/handlers"
	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/repositories/memory"
	"github.com/NathanYKo/RAG-Document-System/repositories/postgres"
	"github.com/NathanYKo/RAG-Document-System/services/auth"
	"github.com/NathanYKo/RAG-Document-System/services/document"
	"github.com/NathanYKo/RAG-Document-System/services/embedding"
	"github.com/NathanYKo/RAG-Document-System/services/evaluation"
	"github.com/NathanYKo/RAG-Document-System/services/providers"
	"github.com/NathanYKo/RAG-Document-System/services/providers/openai"
	"github.com/NathanYKo/RAG-Document-System/services/querylog"
	"github.com/NathanYKo/RAG-Document-System/services/rag"
	"github.com/NathanYKo/RAG-Document-System/services/ratelimit"
	"go.uber.org/zap"
)

// Version is stamped at build time via -ldflags
var Version = "0.1.0"

const queryLogStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Persistence
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories
	TxManager   repositories.TransactionManager

	// Services
	Providers   *providers.Registry
	Embedder    *embedding.Service
	RAG         *rag.Service
	AuthService *auth.Service
	Keys        *auth.KeyService
	Documents   *document.Service
	QueryLogs   *querylog.Service
	Limiter     *ratelimit.Service
	Judge       *evaluation.Service
	ABTests     *evaluation.ABTestService
	Metrics     *evaluation.MetricsService

	// Middleware
	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware

	// Handlers
	HealthHandler     *handlers.HealthHandler
	AuthHandler       *handlers.AuthHandler
	DocumentHandler   *handlers.DocumentHandler
	QueryHandler      *handlers.QueryHandler
	FeedbackHandler   *handlers.FeedbackHandler
	APIKeyHandler     *handlers.APIKeyHandler
	AdminHandler      *handlers.AdminHandler
	EvaluationHandler *handlers.EvaluationHandler

	stopWorkers context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
// Everything is built eagerly so a missing or broken dependency fails
// startup instead of the first request.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	deps.initProviders()

	if err := deps.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initMiddleware()
	deps.initHandlers()
	deps.startWorkers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection and schema
func (d *Dependencies) initDatabase(ctx context.Context) error {
	factory, err := postgres.NewRepositoryFactory(d.Config, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", d.Config.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances. The vector store
// backend follows VECTOR_PROVIDER: pgvector rides the main database, memory
// keeps chunks in process for development runs.
func (d *Dependencies) initRepositories() error {
	repos, err := d.RepoFactory.NewRepositories()
	if err != nil {
		return err
	}

	if d.Config.Vector.Provider == "memory" {
		chunks, err := memory.NewChunkRepository(d.Config.Vector.DistanceMetric, d.Logger)
		if err != nil {
			return err
		}
		repos.Chunks = chunks
		d.Logger.Warn("using in-memory vector store, chunks are lost on restart")
	}

	d.Repos = repos
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized",
		zap.String("vector_provider", d.Config.Vector.Provider))
	return nil
}

// initProviders registers the configured LLM providers
func (d *Dependencies) initProviders() {
	registry := providers.NewRegistry()

	if d.Config.OpenAI.APIKey != "" {
		adapter := openai.NewOpenAIAdapter(providers.ProviderConfig{
			APIKey:     d.Config.OpenAI.APIKey,
			BaseURL:    d.Config.OpenAI.BaseURL,
			Timeout:    d.Config.OpenAI.Timeout,
			MaxRetries: d.Config.OpenAI.MaxRetries,
		})
		if err := registry.RegisterProvider(adapter); err != nil {
			d.Logger.Error("failed to register OpenAI provider", zap.Error(err))
		} else {
			d.Logger.Info("registered OpenAI provider")
		}
	}

	if registry.GetProviderCount() == 0 {
		d.Logger.Warn("no LLM providers configured, query and evaluation endpoints will fail")
	}

	d.Providers = registry
}

// initServices builds the service layer in dependency order
func (d *Dependencies) initServices(ctx context.Context) error {
	embedder, err := embedding.NewService(d.Config, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}
	d.Embedder = embedder

	d.RAG = rag.NewService(embedder, d.Repos.Chunks, d.Providers, rag.FromConfig(d.Config), d.Logger)

	issuer := auth.NewTokenIssuer(d.Config.Auth)
	d.AuthService = auth.NewService(d.Repos, issuer, d.Config.Auth, d.Logger)

	keyCache := auth.NewKeyCache(d.Config.Auth.APIKeyCacheSize, d.Config.Auth.APIKeyCacheTTL)
	d.Keys = auth.NewKeyService(d.Repos.APIKeys, keyCache, d.Logger)

	d.Documents = document.NewService(d.Repos, d.TxManager, embedder, d.Config.Ingestion, d.Logger)

	d.QueryLogs = querylog.NewService(d.Repos.QueryLogs, d.Logger, querylog.DefaultConfig())

	d.Limiter = ratelimit.NewService(d.DB.DB, d.Config.RateLimit, d.Logger)

	d.Judge = evaluation.NewService(d.Providers, d.Config.RAG.Model, d.Logger)
	d.ABTests = evaluation.NewABTestService(d.Repos.ABTests, d.Logger)
	d.Metrics = evaluation.NewMetricsService(d.Repos, d.Logger)

	if err := d.AuthService.EnsureDefaultAdmin(ctx, d.Config.Auth); err != nil {
		return fmt.Errorf("failed to ensure default admin: %w", err)
	}

	return nil
}

func (d *Dependencies) initMiddleware() {
	d.Auth = middleware.NewAuthMiddleware(d.AuthService, d.Keys, d.Repos.Users, d.Logger)
	d.RateLimit = middleware.NewRateLimitMiddleware(d.Limiter, d.Logger)
}

func (d *Dependencies) initHandlers() {
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.Repos.Chunks,
		d.Config.OpenAI.APIKey != "", Version, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.AuthService, d.Logger)
	d.DocumentHandler = handlers.NewDocumentHandler(d.Documents, d.Config.Ingestion.MaxUploadBytes, d.Logger)
	d.QueryHandler = handlers.NewQueryHandler(d.RAG, d.QueryLogs, d.Logger)
	d.FeedbackHandler = handlers.NewFeedbackHandler(d.Repos.QueryLogs, d.Repos.Feedback, d.Logger)
	d.APIKeyHandler = handlers.NewAPIKeyHandler(d.Keys, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Metrics, d.Logger)
	d.EvaluationHandler = handlers.NewEvaluationHandler(d.Judge, d.ABTests, d.Logger)
}

// startWorkers launches the background goroutines: the query log writer
// pool and the rate limit row cleaner
func (d *Dependencies) startWorkers() {
	workerCtx, cancel := context.WithCancel(context.Background())
	d.stopWorkers = cancel

	if err := d.QueryLogs.Start(); err != nil {
		d.Logger.Error("failed to start query log writer", zap.Error(err))
	}

	if d.Config.RateLimit.Enabled {
		go d.Limiter.StartCleanupWorker(workerCtx)
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopWorkers != nil {
		d.stopWorkers()
	}

	// Drain buffered query logs before the database goes away
	if d.QueryLogs != nil {
		if err := d.QueryLogs.Stop(queryLogStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop query log writer: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
