package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/services"
	"github.com/NathanYKo/RAG-Document-System/utils"
)

const (
	// Raw keys look like "rag_<43 url-safe chars>". The full string is
	// hashed for storage; only the prefix is kept in the clear.
	keyPrefix    = "rag_"
	keyRandBytes = 32
	keyPrefixLen = 12

	defaultKeyRateLimit = 1000
)

// CreateKeyRequest carries the parameters for a new API key.
// CanUpload and CanQuery default to true when omitted, CanAdmin to false.
type CreateKeyRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=100"`
	RateLimit     int    `json:"rate_limit" validate:"omitempty,min=1,max=10000"`
	CanUpload     *bool  `json:"can_upload"`
	CanQuery      *bool  `json:"can_query"`
	CanAdmin      bool   `json:"can_admin"`
	ExpiresInDays int    `json:"expires_in_days" validate:"omitempty,min=1,max=365"`
}

func (r *CreateKeyRequest) permissions() models.APIKeyPermissions {
	perms := models.DefaultAPIKeyPermissions()
	if r.CanUpload != nil {
		perms.CanUpload = *r.CanUpload
	}
	if r.CanQuery != nil {
		perms.CanQuery = *r.CanQuery
	}
	perms.CanAdmin = r.CanAdmin
	return perms
}

// CreatedKey is the one-time creation reply carrying the raw key.
// The raw key is never retrievable again.
type CreatedKey struct {
	*models.APIKey
	RawKey string `json:"api_key"`
}

// KeyService manages API keys: creation, verification and revocation
type KeyService struct {
	keys   repositories.APIKeyRepository
	cache  *KeyCache
	logger *zap.Logger
}

func NewKeyService(keys repositories.APIKeyRepository, cache *KeyCache, logger *zap.Logger) *KeyService {
	return &KeyService{
		keys:   keys,
		cache:  cache,
		logger: logger,
	}
}

// Create generates a new API key for the user and stores its hash
func (s *KeyService) Create(ctx context.Context, user *models.User, req *CreateKeyRequest) (*CreatedKey, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil)
	}
	if req.RateLimit == 0 {
		req.RateLimit = defaultKeyRateLimit
	}

	raw, err := generateKey()
	if err != nil {
		return nil, services.WrapInternal("failed to generate API key", err)
	}

	key := models.NewAPIKey(user.ID, req.Name, hashKey(raw), raw[:keyPrefixLen], req.permissions(), req.RateLimit, req.ExpiresInDays)
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, services.WrapInternal("failed to store API key", err)
	}

	s.logger.Info("API key created",
		zap.String("key_id", key.ID.String()),
		zap.String("name", key.Name),
		zap.String("user_id", user.ID.String()))

	return &CreatedKey{APIKey: key, RawKey: raw}, nil
}

// Verify authenticates a raw API key. It consults the cache first; a
// miss falls through to the database and primes the cache. Usage is
// recorded on every successful verification.
func (s *KeyService) Verify(ctx context.Context, rawKey string) (*models.APIKey, error) {
	if !strings.HasPrefix(rawKey, keyPrefix) {
		return nil, services.ErrInvalidAPIKey
	}
	hash := hashKey(rawKey)

	key := s.cache.Get(hash)
	if key == nil {
		var err error
		key, err = s.keys.GetByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrInvalidAPIKey
			}
			return nil, services.WrapInternal("failed to look up API key", err)
		}
		s.cache.Set(hash, key)
	}

	// Re-checked even on cache hits so expiry and revocation take
	// effect within the TTL window.
	if !key.IsActive {
		s.cache.Invalidate(hash)
		return nil, services.ErrAPIKeyInactive
	}
	if key.IsExpired() {
		s.cache.Invalidate(hash)
		return nil, services.ErrAPIKeyExpired
	}

	key.RecordUsage()
	if err := s.keys.RecordUsage(ctx, key.ID); err != nil {
		// Usage accounting must not block an authenticated request
		s.logger.Warn("failed to record API key usage",
			zap.String("key_id", key.ID.String()),
			zap.Error(err))
	}

	return key, nil
}

// List returns all keys owned by the user. Hashes are never serialized.
func (s *KeyService) List(ctx context.Context, user *models.User) ([]*models.APIKey, error) {
	keys, err := s.keys.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, services.WrapInternal("failed to list API keys", err)
	}
	return keys, nil
}

// Revoke deactivates a key the caller owns
func (s *KeyService) Revoke(ctx context.Context, user *models.User, keyID uuid.UUID) error {
	key, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrAPIKeyNotFound
		}
		return services.WrapInternal("failed to load API key", err)
	}
	if key.UserID != user.ID {
		return services.ErrNotOwner
	}

	key.Deactivate()
	if err := s.keys.Update(ctx, key); err != nil {
		return services.WrapInternal("failed to revoke API key", err)
	}
	s.cache.Invalidate(key.KeyHash)

	s.logger.Info("API key revoked",
		zap.String("key_id", key.ID.String()),
		zap.String("user_id", user.ID.String()))
	return nil
}

// CacheStats exposes lookup cache statistics for the admin surface
func (s *KeyService) CacheStats() CacheStats {
	return s.cache.Stats()
}

func generateKey() (string, error) {
	buf := make([]byte, keyRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
