// Package handle issues and resolves opaque stream handles.
package handle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/cache"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

// DefaultExpiredRetention is how long an expired handle is still
// recognized as expired before it reads as unknown.
const DefaultExpiredRetention = 10 * time.Minute

// Manager binds handle ids to upstream URLs for a bounded lifetime.
type Manager struct {
	store     cache.Store[model.StreamHandle]
	retention time.Duration
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithExpiredRetention sets how long expired handles answer with ErrHandleExpired.
func WithExpiredRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.retention = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a handle manager backed by store.
func NewManager(store cache.Store[model.StreamHandle], opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		retention: DefaultExpiredRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue stores a new handle for targetURL valid for ttl and returns its id.
func (m *Manager) Issue(ctx context.Context, targetURL string, ttl time.Duration) (string, error) {
	if targetURL == "" {
		return "", fmt.Errorf("%w: empty target URL", repository.ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: handle ttl must be positive", repository.ErrInvalidInput)
	}

	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("generate handle id: %w", err)
	}

	now := m.now()
	h := model.StreamHandle{
		ID:        id,
		TargetURL: targetURL,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if err := m.store.Set(ctx, id, h, ttl+m.retention); err != nil {
		return "", fmt.Errorf("store handle: %w", err)
	}
	metrics.HandlesIssuedTotal.Inc()

	return id, nil
}

// Resolve returns the upstream URL bound to handleID.
func (m *Manager) Resolve(ctx context.Context, handleID string) (string, error) {
	h, err := m.Lookup(ctx, handleID)
	if err != nil {
		return "", err
	}
	return h.TargetURL, nil
}

// Lookup returns the live handle. Unknown ids yield ErrHandleNotFound;
// handles past their expiry are removed and yield ErrHandleExpired.
// Reading never extends a handle's lifetime.
func (m *Manager) Lookup(ctx context.Context, handleID string) (*model.StreamHandle, error) {
	if !validID(handleID) {
		return nil, repository.ErrHandleNotFound
	}

	h, ok, err := m.store.Get(ctx, handleID)
	if err != nil {
		return nil, fmt.Errorf("load handle: %w", err)
	}
	if !ok {
		return nil, repository.ErrHandleNotFound
	}

	if !h.IsLive(m.now()) {
		if err := m.store.Delete(ctx, handleID); err != nil {
			return nil, errors.Join(repository.ErrHandleExpired, err)
		}
		return nil, repository.ErrHandleExpired
	}

	return &h, nil
}

// newID returns 32 lowercase hex characters carrying 122 random bits.
func newID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}

func validID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
