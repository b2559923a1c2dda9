package extractor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent extractor calls. At most workers calls run at
// once and at most queueSize callers wait for a slot; further callers
// fail immediately with ErrBusy.
type Pool struct {
	sem       *semaphore.Weighted
	waiting   atomic.Int64
	queueSize int64
}

// NewPool creates a pool. workers below one is treated as one.
func NewPool(workers, queueSize int) *Pool {
	return &Pool{
		sem:       semaphore.NewWeighted(int64(max(workers, 1))),
		queueSize: int64(max(queueSize, 0)),
	}
}

// Do runs fn once a slot is free.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !p.sem.TryAcquire(1) {
		if p.waiting.Add(1) > p.queueSize {
			p.waiting.Add(-1)
			return repository.ErrBusy
		}
		metrics.ExtractorQueueDepth.Inc()
		err := p.sem.Acquire(ctx, 1)
		p.waiting.Add(-1)
		metrics.ExtractorQueueDepth.Dec()
		if err != nil {
			return fmt.Errorf("wait for extraction slot: %w", err)
		}
	}
	defer p.sem.Release(1)

	return fn(ctx)
}

// Waiting returns the number of callers queued for a slot.
func (p *Pool) Waiting() int {
	return int(p.waiting.Load())
}

// Extractor operation labels.
const (
	opResolve  = "resolve"
	opFormats  = "formats"
	opPlaylist = "playlist"
	opSearch   = "search"
	opDownload = "download"
)

// PooledResolver runs a MediaResolver on a Pool.
type PooledResolver struct {
	pool  *Pool
	inner repository.MediaResolver
}

var _ repository.MediaResolver = (*PooledResolver)(nil)

// NewPooledResolver wraps inner so that every call takes a pool slot.
func NewPooledResolver(pool *Pool, inner repository.MediaResolver) *PooledResolver {
	return &PooledResolver{pool: pool, inner: inner}
}

// Resolve delegates to the wrapped resolver.
func (r *PooledResolver) Resolve(ctx context.Context, url string) (*model.MediaRecord, error) {
	var rec *model.MediaRecord
	err := observe(opResolve, func() error {
		return r.pool.Do(ctx, func(ctx context.Context) error {
			var err error
			rec, err = r.inner.Resolve(ctx, url)
			return err
		})
	})
	return rec, err
}

// ListFormats delegates to the wrapped resolver.
func (r *PooledResolver) ListFormats(ctx context.Context, url string) ([]model.FormatDescriptor, error) {
	var formats []model.FormatDescriptor
	err := observe(opFormats, func() error {
		return r.pool.Do(ctx, func(ctx context.Context) error {
			var err error
			formats, err = r.inner.ListFormats(ctx, url)
			return err
		})
	})
	return formats, err
}

// Playlist delegates to the wrapped resolver.
func (r *PooledResolver) Playlist(ctx context.Context, url string, limit int) ([]model.PlaylistEntry, error) {
	var entries []model.PlaylistEntry
	err := observe(opPlaylist, func() error {
		return r.pool.Do(ctx, func(ctx context.Context) error {
			var err error
			entries, err = r.inner.Playlist(ctx, url, limit)
			return err
		})
	})
	return entries, err
}

// PooledSearch runs a SearchProvider on a Pool.
type PooledSearch struct {
	pool  *Pool
	inner repository.SearchProvider
}

var _ repository.SearchProvider = (*PooledSearch)(nil)

// NewPooledSearch wraps inner so that every call takes a pool slot.
func NewPooledSearch(pool *Pool, inner repository.SearchProvider) *PooledSearch {
	return &PooledSearch{pool: pool, inner: inner}
}

// Search delegates to the wrapped provider.
func (s *PooledSearch) Search(ctx context.Context, query string, limit int) ([]model.CandidateRecord, error) {
	var results []model.CandidateRecord
	err := observe(opSearch, func() error {
		return s.pool.Do(ctx, func(ctx context.Context) error {
			var err error
			results, err = s.inner.Search(ctx, query, limit)
			return err
		})
	})
	return results, err
}

// PooledMaterializer runs a Materializer on a Pool.
type PooledMaterializer struct {
	pool  *Pool
	inner repository.Materializer
}

var _ repository.Materializer = (*PooledMaterializer)(nil)

// NewPooledMaterializer wraps inner so that every call takes a pool slot.
func NewPooledMaterializer(pool *Pool, inner repository.Materializer) *PooledMaterializer {
	return &PooledMaterializer{pool: pool, inner: inner}
}

// Materialize delegates to the wrapped materializer.
func (m *PooledMaterializer) Materialize(ctx context.Context, req repository.DownloadRequest) (*repository.DownloadResult, error) {
	var res *repository.DownloadResult
	err := observe(opDownload, func() error {
		return m.pool.Do(ctx, func(ctx context.Context) error {
			var err error
			res, err = m.inner.Materialize(ctx, req)
			return err
		})
	})
	return res, err
}

func observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ExtractorDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.ExtractorCallsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ExtractorSuccess
	case errors.Is(err, repository.ErrBusy):
		return metrics.ExtractorBusy
	case errors.Is(err, repository.ErrNotFound):
		return metrics.ExtractorNotFound
	case errors.Is(err, repository.ErrMalformedUpstreamResponse):
		return metrics.ExtractorMalformed
	default:
		return metrics.ExtractorUnavailable
	}
}
