package history

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore keeps statistics for the life of the process.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string][]GenerationStats
	order       []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.initialized = true
		s.runs = make(map[string][]GenerationStats)
	}
	return nil
}

// Record stores stats, replacing an earlier row for the same generation.
func (s *MemoryStore) Record(_ context.Context, stats GenerationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	rows, seen := s.runs[stats.RunID]
	if !seen {
		s.order = append(s.order, stats.RunID)
	}
	for i := range rows {
		if rows[i].Generation == stats.Generation {
			rows[i] = stats
			return nil
		}
	}
	rows = append(rows, stats)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Generation < rows[j].Generation })
	s.runs[stats.RunID] = rows
	return nil
}

func (s *MemoryStore) Generations(_ context.Context, runID string) ([]GenerationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]GenerationStats(nil), s.runs[runID]...), nil
}

// Runs lists run ids in the order they were first recorded.
func (s *MemoryStore) Runs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...), nil
}

func (s *MemoryStore) Close() error { return nil }
