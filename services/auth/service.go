// Package auth owns credentials: account registration and login, HS256
// access tokens, and programmatic API keys with a lookup cache.
package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/NathanYKo/RAG-Document-System/config"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/services"
	"github.com/NathanYKo/RAG-Document-System/utils"
)

// RegisterRequest carries a new account's credentials
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is the login reply
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// UserProfile is an account with its usage statistics
type UserProfile struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	IsActive           bool      `json:"is_active"`
	IsAdmin            bool      `json:"is_admin"`
	CreatedAt          time.Time `json:"created_at"`
	TotalDocuments     int       `json:"total_documents"`
	TotalQueries       int       `json:"total_queries"`
	AvgConfidenceScore float64   `json:"avg_confidence_score"`
}

// Service authenticates users and issues tokens
type Service struct {
	users      repositories.UserRepository
	documents  repositories.DocumentRepository
	queryLogs  repositories.QueryLogRepository
	issuer     *TokenIssuer
	bcryptCost int
	logger     *zap.Logger
}

func NewService(repos *repositories.Repositories, issuer *TokenIssuer, cfg config.AuthConfig, logger *zap.Logger) *Service {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		users:      repos.Users,
		documents:  repos.Documents,
		queryLogs:  repos.QueryLogs,
		issuer:     issuer,
		bcryptCost: cost,
		logger:     logger,
	}
}

// Register creates a new account. Username and email must be unused.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	if err := utils.ValidateUsername(req.Username); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil)
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		return nil, services.ErrInvalidEmail
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil)
	}

	if _, err := s.users.GetByUsername(ctx, req.Username); err == nil {
		return nil, services.ErrDuplicateUsername
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapInternal("failed to check username", err)
	}
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, services.ErrDuplicateEmail
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapInternal("failed to check email", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, services.WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(req.Username, req.Email, string(hash))
	if err := s.users.Create(ctx, user); err != nil {
		return nil, services.WrapInternal("failed to create user", err)
	}

	s.logger.Info("new user registered", zap.String("username", user.Username))
	return user, nil
}

// Login verifies credentials and returns a bearer token. Unknown users,
// wrong passwords and deactivated accounts all fail identically so the
// response does not leak which accounts exist.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidCredentials
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	if !user.IsActive {
		return nil, services.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return nil, services.ErrInvalidCredentials
	}

	token, _, err := s.issuer.Issue(user.Username)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("username", user.Username))
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.issuer.ExpirySeconds(),
	}, nil
}

// UserFromToken verifies a bearer token and loads its active account
func (s *Service) UserFromToken(ctx context.Context, token string) (*models.User, error) {
	username, err := s.issuer.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidToken
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	if !user.IsActive {
		return nil, services.ErrUnauthorized
	}
	return user, nil
}

// GetProfile returns the account with its lifetime usage statistics
func (s *Service) GetProfile(ctx context.Context, user *models.User) (*UserProfile, error) {
	docs, err := s.documents.CountByOwner(ctx, user.ID)
	if err != nil {
		return nil, services.WrapInternal("failed to count documents", err)
	}
	metrics, err := s.queryLogs.GetUserMetrics(ctx, user.ID, time.Time{})
	if err != nil {
		return nil, services.WrapInternal("failed to load query metrics", err)
	}

	return &UserProfile{
		ID:                 user.ID.String(),
		Username:           user.Username,
		Email:              user.Email,
		IsActive:           user.IsActive,
		IsAdmin:            user.IsAdmin,
		CreatedAt:          user.CreatedAt,
		TotalDocuments:     docs,
		TotalQueries:       metrics.TotalQueries,
		AvgConfidenceScore: metrics.AvgConfidence,
	}, nil
}

// ListUsers returns a page of accounts, admin only
func (s *Service) ListUsers(ctx context.Context, caller *models.User, limit, offset int) ([]*models.User, error) {
	if !caller.IsAdmin {
		return nil, services.ErrAdminRequired
	}
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list users", err)
	}
	return users, nil
}

// EnsureDefaultAdmin creates the bootstrap admin account when missing,
// so a fresh deployment is reachable before any user exists.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, cfg config.AuthConfig) error {
	if !cfg.BootstrapAdmin {
		return nil
	}

	_, err := s.users.GetByUsername(ctx, cfg.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return services.WrapInternal("failed to check admin account", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), s.bcryptCost)
	if err != nil {
		return services.WrapInternal("failed to hash admin password", err)
	}
	admin := models.NewUser(cfg.AdminUsername, cfg.AdminEmail, string(hash))
	admin.PromoteToAdmin()
	if err := s.users.Create(ctx, admin); err != nil {
		return services.WrapInternal("failed to create admin account", err)
	}

	s.logger.Info("default admin account created", zap.String("username", cfg.AdminUsername))
	return nil
}
