// internal/federation/state.go
package federation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State binds one provider round trip to the tenant (and optional final
// destination) that started it. The nonce doubles as the OAuth state
// parameter; the tenant id is only ever trusted from here, never from
// callback query parameters.
type State struct {
	Nonce       string    `json:"nonce"`
	TenantID    string    `json:"tenant_id"`
	RedirectURI string    `json:"redirect_uri,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateStore persists pending federation states. Consume is single-use:
// a nonce validates at most once, replays miss.
type StateStore interface {
	Create(ctx context.Context, st State, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) (State, bool)
}

// MemoryStateStore is the single-replica fallback.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]memState
	now    func() time.Time
}

type memState struct {
	st        State
	expiresAt time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: map[string]memState{}, now: time.Now}
}

func (m *MemoryStateStore) Create(_ context.Context, st State, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Nonce] = memState{st: st, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStateStore) Consume(_ context.Context, nonce string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.states[nonce]
	if !ok {
		return State{}, false
	}
	delete(m.states, nonce)
	if m.now().After(e.expiresAt) {
		return State{}, false
	}
	return e.st, true
}

// Sweep drops expired states every interval until ctx is done.
func (m *MemoryStateStore) Sweep(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := m.now()
			m.mu.Lock()
			for k, e := range m.states {
				if now.After(e.expiresAt) {
					delete(m.states, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// RedisStateStore shares pending states across replicas. GETDEL makes
// consumption atomic, so two racing callbacks cannot both validate.
type RedisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func stateKey(nonce string) string { return "fedstate:" + nonce }

func (r *RedisStateStore) Create(ctx context.Context, st State, ttl time.Duration) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, stateKey(st.Nonce), b, ttl).Err()
}

func (r *RedisStateStore) Consume(ctx context.Context, nonce string) (State, bool) {
	b, err := r.rdb.GetDel(ctx, stateKey(nonce)).Bytes()
	if err != nil {
		// redis.Nil and backend trouble both read as a miss; the flow
		// fails closed either way.
		return State{}, false
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, false
	}
	return st, true
}
