// Package downloads counts archive downloads and optionally persists the
// counts to a local JSON file or an S3 object.
package downloads

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// Backend persists the whole count map.
type Backend interface {
	Load(ctx context.Context) (map[string]int64, error)
	Save(ctx context.Context, counts map[string]int64) error
}

// Store holds counts in memory. With a Backend, every increment is written
// through before it becomes visible.
type Store struct {
	mu      sync.RWMutex
	counts  map[string]int64
	backend Backend
}

// NewMemoryStore returns a store that forgets everything on restart.
func NewMemoryStore() *Store {
	return &Store{counts: make(map[string]int64)}
}

// Open loads the current counts from backend.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	counts, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load download counts: %w", err)
	}
	if counts == nil {
		counts = make(map[string]int64)
	}
	return &Store{counts: counts, backend: backend}, nil
}

func (s *Store) Count(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[name], nil
}

// Snapshot returns a copy of all counts.
func (s *Store) Snapshot(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.counts), nil
}

// Increment adds one download for name and returns the new count. When the
// backend rejects the write the count is rolled back.
func (s *Store) Increment(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.counts[name]
	s.counts[name] = prev + 1

	if s.backend != nil {
		if err := s.backend.Save(ctx, s.counts); err != nil {
			if existed {
				s.counts[name] = prev
			} else {
				delete(s.counts, name)
			}
			return prev, fmt.Errorf("persist download count for %s: %w", name, err)
		}
	}
	return prev + 1, nil
}

// IncrementAll records one download for each name with a single backend
// write.
func (s *Store) IncrementAll(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := maps.Clone(s.counts)
	for _, name := range names {
		s.counts[name]++
	}

	if s.backend != nil {
		if err := s.backend.Save(ctx, s.counts); err != nil {
			s.counts = before
			return fmt.Errorf("persist download counts: %w", err)
		}
	}
	return nil
}
