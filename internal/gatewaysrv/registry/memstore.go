package registry

import (
	"context"
	"sync"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

// MemoryStore is an in-memory Store used by the "memory" engine type and by
// tests.
type MemoryStore struct {
	mu      sync.RWMutex
	gens    map[gwcommon.Generation]*GenerationSet
	pointer ActivePointer
	hasPtr  bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{gens: make(map[gwcommon.Generation]*GenerationSet)}
}

func (s *MemoryStore) ReplaceGeneration(ctx context.Context, set *GenerationSet) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[set.Generation] = copySet(set)
	return nil
}

func (s *MemoryStore) LoadGeneration(ctx context.Context, gen gwcommon.Generation) (*GenerationSet, apperrors.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.gens[gen]
	if !ok {
		return NewGenerationSet(gen), nil
	}
	return copySet(set), nil
}

func (s *MemoryStore) LoadActivePointer(ctx context.Context) (ActivePointer, apperrors.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasPtr {
		return ActivePointer{Generation: gwcommon.GenerationBlue}, nil
	}
	return s.pointer, nil
}

func (s *MemoryStore) SaveActivePointer(ctx context.Context, ptr ActivePointer) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointer = ptr
	s.hasPtr = true
	return nil
}

func copySet(set *GenerationSet) *GenerationSet {
	out := NewGenerationSet(set.Generation)
	out.BuiltAt = set.BuiltAt
	for k, v := range set.Subjects {
		out.Subjects[k] = v
	}
	for k, v := range set.Views {
		out.Views[k] = v
	}
	for k, v := range set.Workflows {
		out.Workflows[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
