package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKeyPermissions controls what an API key may do
type APIKeyPermissions struct {
	CanUpload bool `json:"can_upload"`
	CanQuery  bool `json:"can_query"`
	CanAdmin  bool `json:"can_admin"`
}

// DefaultAPIKeyPermissions returns the permission set granted when the
// creator does not specify one: upload and query, no admin.
func DefaultAPIKeyPermissions() APIKeyPermissions {
	return APIKeyPermissions{CanUpload: true, CanQuery: true}
}

// APIKey represents a programmatic access credential.
// Only the SHA-256 hash of the key material is stored.
type APIKey struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	UserID      uuid.UUID         `json:"user_id" db:"user_id"`
	Name        string            `json:"name" db:"name"`
	KeyHash     string            `json:"-" db:"key_hash"`
	Prefix      string            `json:"prefix" db:"prefix"` // First characters shown in listings
	Permissions APIKeyPermissions `json:"permissions" db:"permissions"`
	RateLimit   int               `json:"rate_limit" db:"rate_limit"` // Requests per hour
	UsageCount  int64             `json:"usage_count" db:"usage_count"`
	IsActive    bool              `json:"is_active" db:"is_active"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
	LastUsedAt  *time.Time        `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the APIKey model
func (APIKey) TableName() string {
	return "api_keys"
}

// NewAPIKey creates a new APIKey instance. expiresInDays of 0 means no expiry.
func NewAPIKey(userID uuid.UUID, name, keyHash, prefix string, perms APIKeyPermissions, rateLimit, expiresInDays int) *APIKey {
	k := &APIKey{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		KeyHash:     keyHash,
		Prefix:      prefix,
		Permissions: perms,
		RateLimit:   rateLimit,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	if expiresInDays > 0 {
		exp := k.CreatedAt.AddDate(0, 0, expiresInDays)
		k.ExpiresAt = &exp
	}
	return k
}

// IsExpired reports whether the key has passed its expiry time
func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// IsUsable reports whether the key can authenticate requests
func (k *APIKey) IsUsable() bool {
	return k.IsActive && !k.IsExpired()
}

// Deactivate revokes the key
func (k *APIKey) Deactivate() {
	k.IsActive = false
}

// RecordUsage bumps the usage counter and last-used timestamp
func (k *APIKey) RecordUsage() {
	k.UsageCount++
	now := time.Now()
	k.LastUsedAt = &now
}
