// Package mock provides a test double for the vectorstore.Store interface.
//
// Store delegates to an in-memory vectorstore.MemStore unless an error field
// is set, so tests can exercise both the happy path and injected failures.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/audiojournal/pkg/vectorstore"
)

// Store is a mock implementation of vectorstore.Store.
type Store struct {
	mu    sync.Mutex
	inner *vectorstore.MemStore

	// UpsertErr, if non-nil, is returned by Upsert and nothing is stored.
	UpsertErr error

	// QueryErr, if non-nil, is returned by Query.
	QueryErr error

	// UpsertCalls records every record passed to Upsert.
	UpsertCalls []vectorstore.Record

	// QueryCalls counts calls to Query.
	QueryCalls int

	// Closed reports whether Close was called.
	Closed bool
}

// New returns a mock Store backed by an empty MemStore.
func New() *Store {
	return &Store{inner: vectorstore.NewMemStore(0)}
}

func (s *Store) backing() *vectorstore.MemStore {
	if s.inner == nil {
		s.inner = vectorstore.NewMemStore(0)
	}
	return s.inner
}

// Upsert records the call and stores rec unless UpsertErr is set.
func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	s.mu.Lock()
	s.UpsertCalls = append(s.UpsertCalls, rec)
	err := s.UpsertErr
	inner := s.backing()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return inner.Upsert(ctx, rec)
}

// Query records the call and queries the backing store unless QueryErr is set.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	s.mu.Lock()
	s.QueryCalls++
	err := s.QueryErr
	inner := s.backing()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return inner.Query(ctx, vector, k)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	inner := s.backing()
	s.mu.Unlock()
	return inner.Count(ctx)
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Upserts returns a snapshot of the recorded Upsert calls. Thread-safe.
func (s *Store) Upserts() []vectorstore.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vectorstore.Record, len(s.UpsertCalls))
	copy(out, s.UpsertCalls)
	return out
}

// Ensure Store implements vectorstore.Store at compile time.
var _ vectorstore.Store = (*Store)(nil)
