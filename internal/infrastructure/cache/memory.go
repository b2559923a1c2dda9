package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 32

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type shard[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
}

// MemoryStore is an in-process Store. Keys are spread over independently
// locked shards so no lock is held across more than one map operation.
type MemoryStore[V any] struct {
	shards []*shard[V]
	now    func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	shards        int
	sweepInterval time.Duration
	now           func() time.Time
}

// WithShards sets the number of shards. Values below one are ignored.
func WithShards(n int) MemoryOption {
	return func(o *memoryOptions) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithSweepInterval starts a janitor that drops expired entries periodically.
// Zero disables the janitor; expired entries are then removed lazily on read.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		o.sweepInterval = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) {
		o.now = now
	}
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore[V any](opts ...MemoryOption) *MemoryStore[V] {
	o := memoryOptions{
		shards: defaultShardCount,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &MemoryStore[V]{
		shards: make([]*shard[V], o.shards),
		now:    o.now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard[V]{entries: make(map[string]entry[V])}
	}

	if o.sweepInterval > 0 {
		go s.janitor(o.sweepInterval)
	} else {
		close(s.done)
	}

	return s
}

var _ Store[string] = (*MemoryStore[string])(nil)

func (s *MemoryStore[V]) shardFor(key string) *shard[V] {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Get returns the live value under key. An expired entry is removed.
func (s *MemoryStore[V]) Get(_ context.Context, key string) (V, bool, error) {
	var zero V
	sh := s.shardFor(key)
	now := s.now()

	sh.mu.Lock()
	e, ok := sh.entries[key]
	if ok && !now.Before(e.expiresAt) {
		delete(sh.entries, key)
		sh.mu.Unlock()
		s.evictions.Add(1)
		s.misses.Add(1)
		return zero, false, nil
	}
	sh.mu.Unlock()

	if !ok {
		s.misses.Add(1)
		return zero, false, nil
	}
	s.hits.Add(1)
	return e.value, true, nil
}

// Set stores value under key for ttl. A non-positive ttl stores nothing
// and removes any previous value.
func (s *MemoryStore[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	sh := s.shardFor(key)

	sh.mu.Lock()
	if ttl <= 0 {
		delete(sh.entries, key)
	} else {
		sh.entries[key] = entry[V]{value: value, expiresAt: s.now().Add(ttl)}
	}
	sh.mu.Unlock()

	s.sets.Add(1)
	return nil
}

// Delete removes key.
func (s *MemoryStore[V]) Delete(_ context.Context, key string) error {
	sh := s.shardFor(key)

	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()

	return nil
}

// DeleteExpired removes every expired entry and returns how many were dropped.
func (s *MemoryStore[V]) DeleteExpired() int {
	now := s.now()
	count := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !now.Before(e.expiresAt) {
				delete(sh.entries, k)
				count++
			}
		}
		sh.mu.Unlock()
	}
	s.evictions.Add(int64(count))
	return count
}

// Stats returns a snapshot of the store counters.
func (s *MemoryStore[V]) Stats() Stats {
	size := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		size += len(sh.entries)
		sh.mu.Unlock()
	}
	return Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Sets:        s.sets.Load(),
		Evictions:   s.evictions.Load(),
		CurrentSize: size,
	}
}

// Close stops the janitor and waits for it to exit. It is safe to call twice.
func (s *MemoryStore[V]) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *MemoryStore[V]) janitor(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.DeleteExpired()
		case <-s.stop:
			return
		}
	}
}
