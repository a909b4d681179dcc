package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	OpenAI        OpenAIConfig
	RAG           RAGConfig
	Vector        VectorConfig
	Ingestion     IngestionConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds token issuance and password hashing configuration
type AuthConfig struct {
	JWTSecret        string
	TokenExpiry      time.Duration
	BcryptCost       int
	BootstrapAdmin   bool   // Create the default admin account on startup when missing
	AdminUsername    string
	AdminEmail       string
	AdminPassword    string
	APIKeyCacheSize  int           // Entries in the API-key lookup cache
	APIKeyCacheTTL   time.Duration // How long a cached API-key lookup stays valid
}

// OpenAIConfig holds OpenAI client configuration (chat + embeddings)
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	EmbeddingModel string
}

// RAGConfig holds the retrieval pipeline parameters.
// Immutable after startup; every stage reads from this one struct.
type RAGConfig struct {
	MaxContextLength   int     // Token budget for packed context
	TopKRetrieval      int     // Nearest neighbors fetched per query
	FinalContextChunks int     // Upper bound on packed chunks
	MinRelevanceScore  float64 // Retrieval floor after distance conversion
	Model              string  // Generation model
	RerankModel        string  // Cheaper model used for re-rank scoring
	MaxTokens          int
	Temperature        float64
	TopP               float64
	FrequencyPenalty   float64
	PresencePenalty    float64
}

// VectorConfig holds vector store configuration
type VectorConfig struct {
	Provider       string // "pgvector" or "memory"
	Dimensions     int
	DistanceMetric string // "cosine", "l2", or "similarity"
	CacheSize      int    // Embedding cache entries
}

// IngestionConfig holds document processing defaults
type IngestionConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	MaxUploadBytes int64
}

// RateLimitConfig holds request rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool
	UserLimit       int           // Requests per window for an authenticated user
	IPLimit         int           // Requests per window for a client IP
	Window          time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env if present (repo root or working directory)
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET_KEY", ""),
			TokenExpiry:     getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 30*time.Minute),
			BcryptCost:      getEnvAsInt("BCRYPT_COST", 12),
			BootstrapAdmin:  getEnvAsBool("BOOTSTRAP_ADMIN", true),
			AdminUsername:   getEnv("ADMIN_USERNAME", "admin"),
			AdminEmail:      getEnv("ADMIN_EMAIL", "admin@example.com"),
			AdminPassword:   getEnv("ADMIN_PASSWORD", "Admin123!"),
			APIKeyCacheSize: getEnvAsInt("API_KEY_CACHE_SIZE", 1024),
			APIKeyCacheTTL:  getEnvAsDuration("API_KEY_CACHE_TTL", 5*time.Minute),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout:        getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			MaxRetries:     getEnvAsInt("OPENAI_MAX_RETRIES", 3),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),
		},
		RAG: RAGConfig{
			MaxContextLength:   getEnvAsInt("RAG_MAX_CONTEXT_LENGTH", 4000),
			TopKRetrieval:      getEnvAsInt("RAG_TOP_K_RETRIEVAL", 10),
			FinalContextChunks: getEnvAsInt("RAG_FINAL_CONTEXT_CHUNKS", 5),
			MinRelevanceScore:  getEnvAsFloat("RAG_MIN_RELEVANCE_SCORE", 0.1),
			Model:              getEnv("RAG_MODEL", "gpt-4"),
			RerankModel:        getEnv("RAG_RERANK_MODEL", "gpt-3.5-turbo"),
			MaxTokens:          getEnvAsInt("RAG_MAX_TOKENS", 1000),
			Temperature:        getEnvAsFloat("RAG_TEMPERATURE", 0.3),
			TopP:               getEnvAsFloat("RAG_TOP_P", 0.9),
			FrequencyPenalty:   getEnvAsFloat("RAG_FREQUENCY_PENALTY", 0.1),
			PresencePenalty:    getEnvAsFloat("RAG_PRESENCE_PENALTY", 0.1),
		},
		Vector: VectorConfig{
			Provider:       getEnv("VECTOR_PROVIDER", "pgvector"),
			Dimensions:     getEnvAsInt("VECTOR_DIMENSIONS", 1536),
			DistanceMetric: getEnv("VECTOR_DISTANCE_METRIC", "cosine"),
			CacheSize:      getEnvAsInt("EMBEDDING_CACHE_SIZE", 2048),
		},
		Ingestion: IngestionConfig{
			ChunkSize:      getEnvAsInt("INGEST_CHUNK_SIZE", 1000),
			ChunkOverlap:   getEnvAsInt("INGEST_CHUNK_OVERLAP", 200),
			MaxUploadBytes: int64(getEnvAsInt("INGEST_MAX_UPLOAD_BYTES", 10<<20)),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvAsBool("RATE_LIMIT_ENABLED", true),
			UserLimit:       getEnvAsInt("RATE_LIMIT_USER", 100),
			IPLimit:         getEnvAsInt("RATE_LIMIT_IP", 1000),
			Window:          getEnvAsDuration("RATE_LIMIT_WINDOW", time.Hour),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 10*time.Minute),
			Retention:       getEnvAsDuration("RATE_LIMIT_RETENTION", 24*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Token signing secret is required in production; development falls back
	// to an insecure default so the server can boot without a .env file.
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required in production")
	}

	if c.Vector.Provider != "pgvector" && c.Vector.Provider != "memory" {
		return fmt.Errorf("unknown vector provider %q", c.Vector.Provider)
	}
	switch c.Vector.DistanceMetric {
	case "cosine", "l2", "similarity":
	default:
		return fmt.Errorf("unknown distance metric %q", c.Vector.DistanceMetric)
	}

	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)",
			c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}

	if c.RAG.TopKRetrieval <= 0 || c.RAG.FinalContextChunks <= 0 {
		return fmt.Errorf("RAG retrieval counts must be positive")
	}
	if c.RAG.MinRelevanceScore < 0 || c.RAG.MinRelevanceScore > 1 {
		return fmt.Errorf("RAG min relevance score must be in [0,1]")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// TokenSecret returns the JWT signing secret, substituting a development
// default when none is configured. Validate rejects the empty secret in
// production before this is ever used.
func (c *AuthConfig) TokenSecret() string {
	if c.JWTSecret != "" {
		return c.JWTSecret
	}
	return "dev-secret-change-me"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "rag"),
		Password:        getEnv("DB_PASSWORD", "rag"),
		Database:        getEnv("DB_NAME", "enterprise_rag"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
