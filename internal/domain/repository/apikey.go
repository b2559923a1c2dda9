package repository

import (
	"context"
	"time"
)

// APIKey is a stored credential. Only the hash of the key is persisted.
type APIKey struct {
	ID        int64
	Name      string
	KeyHash   string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// IsActive reports whether the key has not been revoked.
func (k *APIKey) IsActive() bool {
	return k.RevokedAt == nil
}

// APIKeyRepository looks up stored API keys.
type APIKeyRepository interface {
	// GetByHash returns the key with the given sha256 hex digest.
	// Returns ErrInvalidAPIKey when no such key exists.
	GetByHash(ctx context.Context, keyHash string) (*APIKey, error)
}
