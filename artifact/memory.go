package artifact

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemorySink is a thread-safe in-memory store, mainly for tests and dry runs.
type MemorySink struct {
	mu    sync.RWMutex
	items map[string]Artifact
}

// NewMemorySink creates an empty in-memory store.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		items: make(map[string]Artifact),
	}
}

func (s *MemorySink) Write(ctx context.Context, a Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, err := prepare(a)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[a.Key]; ok && a.Mode != ModeReplace {
		return fmt.Errorf("memorysink: %s: %w", a.Key, ErrExists)
	}
	s.items[a.Key] = clone(a)
	return nil
}

func (s *MemorySink) Get(ctx context.Context, key string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[key]
	if !ok {
		return Artifact{}, fmt.Errorf("memorysink: %s: %w", key, ErrNotFound)
	}
	return clone(a), nil
}

// List returns matching artifacts in deterministic key order.
func (s *MemorySink) List(ctx context.Context, f Filter) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for key, a := range s.items {
		if f.match(a) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]Artifact, 0, len(keys))
	for _, key := range keys {
		out = append(out, clone(s.items[key]))
	}
	return out, nil
}

// Len returns the number of stored artifacts.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemorySink) Close() error { return nil }

var _ Store = (*MemorySink)(nil)
