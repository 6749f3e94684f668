// Package mock provides an in-memory test double for [journal.Store].
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/audiojournal/internal/journal"
)

// Compile-time assertion that Store implements journal.Store.
var _ journal.Store = (*Store)(nil)

// Store is a mock implementation of [journal.Store] that keeps entries in a
// map. It is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	// SaveErr, when non-nil, is returned by Save and nothing is stored.
	SaveErr error

	// LoadErr, when non-nil, is returned by Load.
	LoadErr error

	// SaveCalls records every entry passed to Save.
	SaveCalls []journal.Entry

	entries map[string]journal.Entry
}

// Save implements [journal.Store].
func (s *Store) Save(_ context.Context, e journal.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls = append(s.SaveCalls, e)
	if s.SaveErr != nil {
		return "", s.SaveErr
	}
	if s.entries == nil {
		s.entries = make(map[string]journal.Entry)
	}
	s.entries[e.Date] = e
	return "mem://" + e.Date, nil
}

// Load implements [journal.Store].
func (s *Store) Load(_ context.Context, date string) (journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return journal.Entry{}, s.LoadErr
	}
	e, ok := s.entries[date]
	if !ok {
		return journal.Entry{}, journal.ErrNotFound
	}
	return e, nil
}

// List implements [journal.Store].
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dates := make([]string, 0, len(s.entries))
	for d := range s.entries {
		dates = append(dates, d)
	}
	slices.Sort(dates)
	return dates, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
