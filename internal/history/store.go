package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"

	"market-digest-bot/internal/numeric"
)

// ErrConversion is returned by Set when the value is not a finite number.
var ErrConversion = errors.New("history: value is not a number")

// Backend persists the last-known value of every canonical key.
// Persist receives the key that changed and the full snapshot after the change;
// whole-snapshot backends rewrite everything, keyed backends upsert one row.
type Backend interface {
	Name() string
	Load(ctx context.Context) (map[string]float64, error)
	Persist(ctx context.Context, key string, snapshot map[string]float64) error
}

// Store is the in-memory price history. Memory is authoritative; persistence
// failures are logged and do not fail the caller. All access goes through one mutex.
type Store struct {
	mu      sync.Mutex
	backend Backend
	values  map[string]float64
}

// Open loads persisted state. Missing or unreadable state yields an empty store.
func Open(ctx context.Context, backend Backend) *Store {
	s := &Store{backend: backend, values: make(map[string]float64)}
	if backend == nil {
		return s
	}
	values, err := backend.Load(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("history: load backend=%s err=%v, starting empty", backend.Name(), err)
		return s
	}
	for k, v := range values {
		s.values[k] = v
	}
	logx.WithContext(ctx).Infof("history: loaded backend=%s keys=%d", backend.Name(), len(s.values))
	return s
}

// Get returns the last value stored for key.
func (s *Store) Get(key string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key and persists the snapshot.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	_, _, err := s.Swap(ctx, key, value)
	return err
}

// Swap stores value under key and returns the previous value in one critical section.
func (s *Store) Swap(ctx context.Context, key string, value any) (prev float64, had bool, err error) {
	f, err := numeric.ToFloat(value)
	if err != nil {
		return 0, false, fmt.Errorf("%w: key=%s: %v", ErrConversion, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had = s.values[key]
	s.values[key] = f
	s.persistLocked(ctx, key)
	return prev, had, nil
}

func (s *Store) persistLocked(ctx context.Context, key string) {
	if s.backend == nil {
		return
	}
	snapshot := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	if err := s.backend.Persist(ctx, key, snapshot); err != nil {
		logx.WithContext(ctx).Errorf("history: persist backend=%s key=%s err=%v", s.backend.Name(), key, err)
	}
}

// Reload replaces memory with the persisted state. On error memory is kept.
func (s *Store) Reload(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	values, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload history: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]float64, len(values))
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}

// Snapshot returns a copy of every stored value.
func (s *Store) Snapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Keys returns the stored keys sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// BackendName reports where the history is persisted.
func (s *Store) BackendName() string {
	if s.backend == nil {
		return "memory"
	}
	return s.backend.Name()
}

// decodeValues coerces loosely typed persisted values, dropping non-numbers.
func decodeValues(raw map[string]any) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := numeric.ToFloat(v)
		if err != nil {
			continue
		}
		out[k] = f
	}
	return out
}
