package runtime

import (
	"context"
	"sync"

	"orderflow/internal/constants"
)

// IdempotencyStore tracks processed event keys. A seen key means the
// business handler already ran for that event and re-delivery must be
// acknowledged without re-processing.
type IdempotencyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
	Len() int
}

// BoundedStore is the default in-process store: a fixed-capacity key set
// with strict FIFO eviction. Not safe across multiple consumer instances;
// a shared deployment should use the Redis-backed store instead.
type BoundedStore struct {
	mu       sync.Mutex
	capacity int
	keys     map[string]struct{}
	order    []string
}

func NewBoundedStore(capacity int) *BoundedStore {
	if capacity <= 0 {
		capacity = constants.DefaultIdempotencyCapacity
	}
	return &BoundedStore{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity),
	}
}

func (s *BoundedStore) Seen(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[key]
	return ok, nil
}

func (s *BoundedStore) Mark(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return nil
	}

	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, oldest)
	}

	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
	return nil
}

func (s *BoundedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
