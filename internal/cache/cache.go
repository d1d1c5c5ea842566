package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"podshorts/internal/jobs"
	"podshorts/internal/metrics"
)

// DefaultTTL is how long a terminal snapshot is kept when none is
// configured.
const DefaultTTL = time.Hour

// Snapshots stores terminal job payloads. Only terminal snapshots are
// written: a job that can still change status is always fetched from
// the backend.
type Snapshots interface {
	Get(ctx context.Context, kind, id string) ([]byte, bool, error)
	Put(ctx context.Context, kind, id string, payload []byte) error
}

// Key is the storage key of a snapshot.
func Key(kind, id string) string {
	return fmt.Sprintf("podshorts:job:%s:%s", kind, id)
}

// Lookup decodes a cached snapshot into T. Cache errors are treated as
// misses.
func Lookup[T any](ctx context.Context, c Snapshots, kind, id string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	raw, ok, err := c.Get(ctx, kind, id)
	if err != nil || !ok {
		metrics.RecordCache(kind, false)
		return zero, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.RecordCache(kind, false)
		return zero, false
	}
	metrics.RecordCache(kind, true)
	return out, true
}

// Store writes snap when its status is terminal and reports whether it
// was written.
func Store[T jobs.Snapshot](ctx context.Context, c Snapshots, kind, id string, snap T) (bool, error) {
	if c == nil || !snap.JobStatus().IsTerminal() {
		return false, nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.Put(ctx, kind, id, raw); err != nil {
		return false, err
	}
	return true, nil
}

// Redis keeps snapshots in Redis with a fixed TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, kind, id string) ([]byte, bool, error) {
	raw, err := r.rdb.Get(ctx, Key(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (r *Redis) Put(ctx context.Context, kind, id string, payload []byte) error {
	return r.rdb.Set(ctx, Key(kind, id), payload, r.ttl).Err()
}

// Memory is an in-process Snapshots used when Redis is not configured.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memEntry
	now   func() time.Time
}

type memEntry struct {
	payload []byte
	expires time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, items: make(map[string]memEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, kind, id string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key(kind, id)
	e, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.items, key)
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (m *Memory) Put(_ context.Context, kind, id string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[Key(kind, id)] = memEntry{payload: append([]byte(nil), payload...), expires: m.now().Add(m.ttl)}
	return nil
}
