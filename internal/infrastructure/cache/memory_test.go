package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_SetGet(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore[string](WithClock(clock.Now))
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || got != "v" {
		t.Errorf("Get = %q, %v; want v, true", got, ok)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantHit bool
	}{
		{name: "before expiry", advance: 59 * time.Second, wantHit: true},
		{name: "at expiry", advance: time.Minute, wantHit: false},
		{name: "after expiry", advance: 2 * time.Minute, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			s := NewMemoryStore[int](WithClock(clock.Now))
			defer s.Close()
			ctx := context.Background()

			_ = s.Set(ctx, "k", 1, time.Minute)
			clock.Advance(tt.advance)

			_, ok, _ := s.Get(ctx, "k")
			if ok != tt.wantHit {
				t.Errorf("hit = %v, want %v", ok, tt.wantHit)
			}
		})
	}
}

func TestMemoryStore_SetResetsTTL(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore[string](WithClock(clock.Now))
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k", "old", time.Minute)
	clock.Advance(50 * time.Second)
	_ = s.Set(ctx, "k", "new", time.Minute)
	clock.Advance(50 * time.Second)

	got, ok, _ := s.Get(ctx, "k")
	if !ok || got != "new" {
		t.Errorf("Get = %q, %v; want new, true", got, ok)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore[string]()
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k", "v", time.Minute)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}

	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestMemoryStore_NonPositiveTTL(t *testing.T) {
	s := NewMemoryStore[string]()
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k", "v", time.Minute)
	_ = s.Set(ctx, "k", "v2", 0)

	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expected zero ttl to remove the entry")
	}
}

func TestMemoryStore_DeleteExpiredAndStats(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore[int](WithClock(clock.Now), WithShards(4))
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ttl := time.Minute
		if i%2 == 0 {
			ttl = time.Hour
		}
		_ = s.Set(ctx, fmt.Sprintf("k%d", i), i, ttl)
	}
	clock.Advance(2 * time.Minute)

	if n := s.DeleteExpired(); n != 5 {
		t.Errorf("DeleteExpired() = %d, want 5", n)
	}

	_, _, _ = s.Get(ctx, "k0")
	_, _, _ = s.Get(ctx, "k1")

	stats := s.Stats()
	if stats.CurrentSize != 5 {
		t.Errorf("CurrentSize = %d, want 5", stats.CurrentSize)
	}
	if stats.Sets != 10 {
		t.Errorf("Sets = %d, want 10", stats.Sets)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Hits/Misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.Evictions != 5 {
		t.Errorf("Evictions = %d, want 5", stats.Evictions)
	}
}

func TestMemoryStore_Janitor(t *testing.T) {
	s := NewMemoryStore[string](WithSweepInterval(5 * time.Millisecond))
	ctx := context.Background()

	_ = s.Set(ctx, "k", "v", time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for s.Stats().CurrentSize != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not sweep the expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore[int]()
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%16)
				_ = s.Set(ctx, key, w, time.Minute)
				_, _, _ = s.Get(ctx, key)
				if i%10 == 0 {
					_ = s.Delete(ctx, key)
				}
			}
		}(w)
	}
	wg.Wait()

	if size := s.Stats().CurrentSize; size > 16 {
		t.Errorf("CurrentSize = %d, want at most 16", size)
	}
}
