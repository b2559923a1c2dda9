// Package access implements API key authentication and fixed-window
// rate limiting.
package access

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/cache"
)

// Authenticator validates API keys.
type Authenticator interface {
	// Authenticate returns nil for a valid key, ErrMissingAPIKey for an
	// empty key and ErrInvalidAPIKey for an unknown or revoked key.
	Authenticate(ctx context.Context, key string) error
}

// HashKey returns the hex sha256 digest under which keys are stored.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// StaticKeys accepts a fixed set of keys.
type StaticKeys struct {
	digests [][sha256.Size]byte
}

var _ Authenticator = (*StaticKeys)(nil)

// NewStaticKeys creates an authenticator for keys. Blank entries are ignored.
func NewStaticKeys(keys []string) *StaticKeys {
	s := &StaticKeys{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			s.digests = append(s.digests, sha256.Sum256([]byte(k)))
		}
	}
	return s
}

// Len returns the number of configured keys.
func (s *StaticKeys) Len() int {
	return len(s.digests)
}

// Authenticate compares digests in constant time against every configured key.
func (s *StaticKeys) Authenticate(_ context.Context, key string) error {
	if key == "" {
		return repository.ErrMissingAPIKey
	}

	digest := sha256.Sum256([]byte(key))
	match := 0
	for i := range s.digests {
		match |= subtle.ConstantTimeCompare(digest[:], s.digests[i][:])
	}
	if match == 1 {
		return nil
	}
	return repository.ErrInvalidAPIKey
}

// RepositoryKeys validates keys against stored hashes. Accepted keys are
// remembered for cacheTTL so hot keys do not hit the database per request.
type RepositoryKeys struct {
	repo     repository.APIKeyRepository
	cache    cache.Store[bool]
	cacheTTL time.Duration
}

var _ Authenticator = (*RepositoryKeys)(nil)

// NewRepositoryKeys creates a database-backed authenticator.
// A nil store or zero cacheTTL disables caching.
func NewRepositoryKeys(repo repository.APIKeyRepository, store cache.Store[bool], cacheTTL time.Duration) *RepositoryKeys {
	return &RepositoryKeys{repo: repo, cache: store, cacheTTL: cacheTTL}
}

// Authenticate looks the key up by its hash.
func (r *RepositoryKeys) Authenticate(ctx context.Context, key string) error {
	if key == "" {
		return repository.ErrMissingAPIKey
	}

	hash := HashKey(key)
	if r.cache != nil && r.cacheTTL > 0 {
		if ok, hit, err := r.cache.Get(ctx, hash); err == nil && hit && ok {
			return nil
		}
	}

	k, err := r.repo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidAPIKey) {
			return repository.ErrInvalidAPIKey
		}
		return fmt.Errorf("lookup api key: %w", err)
	}
	if !k.IsActive() {
		return repository.ErrInvalidAPIKey
	}

	if r.cache != nil && r.cacheTTL > 0 {
		_ = r.cache.Set(ctx, hash, true, r.cacheTTL)
	}
	return nil
}

// Chain accepts a key if any authenticator does.
type Chain []Authenticator

var _ Authenticator = Chain(nil)

// Authenticate tries each authenticator in order. When none accepts the
// key, an infrastructure error takes precedence over ErrInvalidAPIKey.
func (c Chain) Authenticate(ctx context.Context, key string) error {
	if key == "" {
		return repository.ErrMissingAPIKey
	}

	var failure error
	for _, a := range c {
		err := a.Authenticate(ctx, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrInvalidAPIKey) && failure == nil {
			failure = err
		}
	}
	if failure != nil {
		return failure
	}
	return repository.ErrInvalidAPIKey
}
