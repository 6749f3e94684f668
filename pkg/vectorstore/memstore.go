package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time assertion that MemStore implements Store.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe in-memory Store. Queries scan every record, which
// is fine for tests and journals of a few thousand entries.
type MemStore struct {
	mu      sync.RWMutex
	dims    int
	records map[string]Record
}

// NewMemStore returns an empty MemStore. When dims is positive every vector
// must have exactly that length; zero accepts the dimension of the first
// upserted record.
func NewMemStore(dims int) *MemStore {
	return &MemStore{dims: dims, records: make(map[string]Record)}
}

// Upsert implements Store.
func (s *MemStore) Upsert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("vectorstore: upsert: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims == 0 {
		s.dims = len(rec.Vector)
	}
	if len(rec.Vector) != s.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(rec.Vector), s.dims)
	}

	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	rec.Vector = vec
	rec.Metadata = CloneMetadata(rec.Metadata)
	s.records[rec.ID] = rec
	return nil
}

// Query implements Store.
func (s *MemStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) > 0 && len(vector) != s.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dims)
	}

	matches := make([]Match, 0, len(s.records))
	for _, rec := range s.records {
		rec.Metadata = CloneMetadata(rec.Metadata)
		matches = append(matches, Match{Record: rec, Similarity: Cosine(vector, rec.Vector)})
	}
	return TopK(matches, k), nil
}

// Count implements Store.
func (s *MemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close implements Store. It is a no-op.
func (s *MemStore) Close() error { return nil }
