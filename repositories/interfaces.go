package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches.
// Services translate it into the appropriate domain error.
var ErrNotFound = errors.New("not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// List retrieves users with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// Count returns the total number of users
	Count(ctx context.Context) (int, error)

	// Update updates a user
	Update(ctx context.Context, user *models.User) error

	// Delete deletes a user
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// DocumentRepository handles document data operations
type DocumentRepository interface {
	// Create creates a new document
	Create(ctx context.Context, doc *models.Document) error

	// GetByID retrieves a document by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)

	// GetByOwner retrieves documents for a user with pagination
	GetByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Document, error)

	// CountByOwner returns the number of documents a user owns
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)

	// List retrieves all documents with pagination
	List(ctx context.Context, limit, offset int) ([]*models.Document, error)

	// Update updates a document
	Update(ctx context.Context, doc *models.Document) error

	// Delete deletes a document
	Delete(ctx context.Context, id uuid.UUID) error

	// GetStats retrieves aggregate document statistics
	GetStats(ctx context.Context) (*DocumentStats, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) DocumentRepository
}

// SearchResult pairs a stored chunk with its raw distance from the query vector.
// Distance semantics depend on the configured metric; conversion to a
// relevance score happens in the retrieval pipeline, not here.
type SearchResult struct {
	Chunk    *models.DocumentChunk
	Distance float64
}

// ChunkRepository is the vector store: it persists document chunks with
// their embeddings and answers nearest-neighbor searches.
type ChunkRepository interface {
	// InsertBatch stores chunks with embeddings for one document
	InsertBatch(ctx context.Context, chunks []*models.DocumentChunk) error

	// Search returns the topK nearest chunks to the query embedding,
	// ordered by ascending distance
	Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)

	// DeleteByDocument removes all chunks belonging to a document
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error

	// CountByDocument returns the number of chunks stored for a document
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error)

	// Count returns the total number of stored chunks
	Count(ctx context.Context) (int, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) ChunkRepository
}

// QueryLogRepository handles query log data operations
type QueryLogRepository interface {
	// Create creates a new query log entry
	Create(ctx context.Context, log *models.QueryLog) error

	// GetByID retrieves a query log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.QueryLog, error)

	// GetByUserID retrieves query logs for a user with pagination, newest first
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.QueryLog, error)

	// List retrieves all query logs with pagination, newest first
	List(ctx context.Context, limit, offset int) ([]*models.QueryLog, error)

	// Update updates a query log
	Update(ctx context.Context, log *models.QueryLog) error

	// GetMetrics retrieves aggregate query metrics since the given time
	GetMetrics(ctx context.Context, since time.Time) (*QueryMetrics, error)

	// GetUserMetrics retrieves aggregate query metrics for one user
	GetUserMetrics(ctx context.Context, userID uuid.UUID, since time.Time) (*QueryMetrics, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) QueryLogRepository
}

// FeedbackRepository handles feedback data operations
type FeedbackRepository interface {
	// Create creates a new feedback entry
	Create(ctx context.Context, fb *models.Feedback) error

	// GetByID retrieves feedback by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Feedback, error)

	// GetByQueryLogID retrieves feedback for a query
	GetByQueryLogID(ctx context.Context, queryLogID uuid.UUID) ([]*models.Feedback, error)

	// GetByUserID retrieves feedback submitted by a user with pagination
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Feedback, error)

	// GetSummary retrieves aggregate feedback statistics since the given
	// time; the zero time covers everything
	GetSummary(ctx context.Context, since time.Time) (*FeedbackSummary, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) FeedbackRepository
}

// APIKeyRepository handles API key data operations
type APIKeyRepository interface {
	// Create creates a new API key
	Create(ctx context.Context, key *models.APIKey) error

	// GetByID retrieves an API key by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)

	// GetByHash retrieves an API key by its SHA-256 hash
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)

	// GetByUserID retrieves all API keys owned by a user
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)

	// Update updates an API key
	Update(ctx context.Context, key *models.APIKey) error

	// RecordUsage atomically bumps the usage counter and last-used time
	RecordUsage(ctx context.Context, id uuid.UUID) error

	// Delete deletes an API key
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) APIKeyRepository
}

// ABTestRepository handles A/B test data operations
type ABTestRepository interface {
	// Create creates a new A/B test
	Create(ctx context.Context, test *models.ABTest) error

	// GetByID retrieves a test by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.ABTest, error)

	// GetByName retrieves a test by its unique name
	GetByName(ctx context.Context, name string) (*models.ABTest, error)

	// List retrieves tests with pagination, newest first
	List(ctx context.Context, limit, offset int) ([]*models.ABTest, error)

	// Update updates a test
	Update(ctx context.Context, test *models.ABTest) error

	// RecordResult stores one observation for a variant
	RecordResult(ctx context.Context, result *models.ABTestResult) error

	// GetResults retrieves all observations for a test
	GetResults(ctx context.Context, testID uuid.UUID) ([]*models.ABTestResult, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) ABTestRepository
}

// QueryMetrics represents aggregated query statistics
type QueryMetrics struct {
	TotalQueries      int     `json:"total_queries"`
	FailedQueries     int     `json:"failed_queries"`
	HighConfidence    int     `json:"high_confidence"` // Queries with confidence above 0.7
	AvgConfidence     float64 `json:"avg_confidence"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	TotalTokens       int     `json:"total_tokens"`
}

// DocumentStats represents aggregated document statistics
type DocumentStats struct {
	TotalDocuments int   `json:"total_documents"`
	TotalChunks    int   `json:"total_chunks"`
	TotalBytes     int64 `json:"total_bytes"`
}

// FeedbackSummary represents aggregated feedback statistics
type FeedbackSummary struct {
	Count     int     `json:"count"`
	AvgRating float64 `json:"avg_rating"`
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users     UserRepository
	Documents DocumentRepository
	Chunks    ChunkRepository
	QueryLogs QueryLogRepository
	Feedback  FeedbackRepository
	APIKeys   APIKeyRepository
	ABTests   ABTestRepository
}
