package access

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is the end of the current window.
	ResetAt time.Time
}

// RetryAfter returns how long a rejected client should wait.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Limiter is a fixed-window request limiter.
type Limiter interface {
	// Allow counts one request for identity in the current window.
	Allow(ctx context.Context, identity string) (Decision, error)
}

// windowStart aligns now to a wall-clock multiple of window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

const limiterShards = 32

type counter struct {
	start time.Time
	count int
}

type limiterShard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// MemoryLimiter keeps fixed-window counters in process memory.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	shards [limiterShards]*limiterShard

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

var _ Limiter = (*MemoryLimiter)(nil)

// LimiterOption configures a limiter.
type LimiterOption func(*limiterOptions)

type limiterOptions struct {
	now           func() time.Time
	sweepInterval time.Duration
	prefix        string
}

// WithLimiterClock replaces time.Now.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(o *limiterOptions) {
		o.now = now
	}
}

// WithLimiterSweep drops finished windows every interval.
func WithLimiterSweep(interval time.Duration) LimiterOption {
	return func(o *limiterOptions) {
		o.sweepInterval = interval
	}
}

// WithKeyPrefix namespaces Redis counter keys.
func WithKeyPrefix(prefix string) LimiterOption {
	return func(o *limiterOptions) {
		o.prefix = prefix
	}
}

func applyLimiterOptions(opts []LimiterOption) limiterOptions {
	o := limiterOptions{now: time.Now, prefix: "rl:"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewMemoryLimiter allows limit requests per window for each identity.
func NewMemoryLimiter(limit int, window time.Duration, opts ...LimiterOption) *MemoryLimiter {
	o := applyLimiterOptions(opts)
	l := &MemoryLimiter{
		limit:  limit,
		window: window,
		now:    o.now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &limiterShard{counters: make(map[string]*counter)}
	}

	if o.sweepInterval > 0 {
		go l.janitor(o.sweepInterval)
	} else {
		close(l.done)
	}
	return l
}

// Allow counts a request. The counter of a finished window is reset by
// the first request after the boundary.
func (l *MemoryLimiter) Allow(_ context.Context, identity string) (Decision, error) {
	start := windowStart(l.now(), l.window)
	d := Decision{Limit: l.limit, ResetAt: start.Add(l.window)}

	sh := l.shards[xxhash.Sum64String(identity)%limiterShards]
	sh.mu.Lock()
	c, ok := sh.counters[identity]
	if !ok {
		c = &counter{start: start}
		sh.counters[identity] = c
	} else if !c.start.Equal(start) {
		c.start = start
		c.count = 0
	}
	if c.count < l.limit {
		c.count++
		d.Allowed = true
	}
	d.Remaining = l.limit - c.count
	sh.mu.Unlock()

	return d, nil
}

// Sweep drops counters of windows that have ended.
func (l *MemoryLimiter) Sweep() int {
	current := windowStart(l.now(), l.window)
	dropped := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for id, c := range sh.counters {
			if c.start.Before(current) {
				delete(sh.counters, id)
				dropped++
			}
		}
		sh.mu.Unlock()
	}
	return dropped
}

// Close stops the janitor.
func (l *MemoryLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
	return nil
}

func (l *MemoryLimiter) janitor(interval time.Duration) {
	defer close(l.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stop:
			return
		}
	}
}
