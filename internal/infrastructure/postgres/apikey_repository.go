package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// APIKeyRepository implements repository.APIKeyRepository using PostgreSQL.
type APIKeyRepository struct {
	db DBTX
}

var _ repository.APIKeyRepository = (*APIKeyRepository)(nil)

// NewAPIKeyRepository creates a new APIKeyRepository instance.
func NewAPIKeyRepository(db DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// GetByHash retrieves a key by the sha256 hex digest of its plaintext.
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*repository.APIKey, error) {
	const query = `
		SELECT id, name, key_hash, created_at, revoked_at
		FROM api_keys
		WHERE key_hash = $1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableAPIKeys).Inc()

	var k repository.APIKey
	err := r.db.QueryRow(ctx, query, keyHash).Scan(
		&k.ID,
		&k.Name,
		&k.KeyHash,
		&k.CreatedAt,
		&k.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	return &k, nil
}
