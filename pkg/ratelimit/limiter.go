// pkg/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Policy is the per-tenant sliding-window configuration.
type Policy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Result reports whether an attempt is admitted. ResetAt is only
// meaningful when Allowed is false.
type Result struct {
	Allowed bool
	ResetAt time.Time
}

// Store evaluates one attempt for a (tenant, identifier) pair.
// Implementations must make the check-and-increment atomic: two
// concurrent attempts must never both observe count < MaxAttempts
// and both pass the limit.
type Store interface {
	Check(ctx context.Context, tenantID, identifier string, pol Policy) (Result, error)
}

const shardCount = 32

type entry struct {
	count       int
	windowStart time.Time
	expiresAt   time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// MemoryStore is a sharded in-process Store. Entries are created lazily
// and evicted by Sweep once the window plus block duration has elapsed.
type MemoryStore struct {
	shards [shardCount]*shard
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{now: time.Now}
	for i := range m.shards {
		m.shards[i] = &shard{entries: map[string]*entry{}}
	}
	return m
}

func (m *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// Check applies the sliding-window-with-block algorithm. The block is
// authoritative: an exhausted key stays denied until windowStart plus
// BlockDuration, even after the counting window has elapsed. A request
// arriving exactly at windowStart+Window counts against the old window
// (strict > comparison).
func (m *MemoryStore) Check(_ context.Context, tenantID, identifier string, pol Policy) (Result, error) {
	key := tenantID + ":" + identifier
	s := m.shardFor(key)
	now := m.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.entries[key] = &entry{count: 1, windowStart: now, expiresAt: now.Add(pol.Window + pol.BlockDuration)}
		return Result{Allowed: true}, nil
	}
	if e.count >= pol.MaxAttempts && now.Before(e.windowStart.Add(pol.BlockDuration)) {
		return Result{Allowed: false, ResetAt: e.windowStart.Add(pol.BlockDuration)}, nil
	}
	if now.Sub(e.windowStart) > pol.Window {
		e.count = 1
		e.windowStart = now
		e.expiresAt = now.Add(pol.Window + pol.BlockDuration)
		return Result{Allowed: true}, nil
	}
	if e.count >= pol.MaxAttempts {
		return Result{Allowed: false, ResetAt: e.windowStart.Add(pol.BlockDuration)}, nil
	}
	e.count++
	return Result{Allowed: true}, nil
}

// Sweep evicts expired entries every interval until ctx is done. Run it
// on its own goroutine to bound memory on long-lived processes.
func (m *MemoryStore) Sweep(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := m.now()
			for _, s := range m.shards {
				s.mu.Lock()
				for k, e := range s.entries {
					if now.After(e.expiresAt) {
						delete(s.entries, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}
}
