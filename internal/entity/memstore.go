package entity

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/audiojournal/internal/phonetic"
)

// Compile-time assertion that MemRegistry satisfies the Registry interface.
var _ Registry = (*MemRegistry)(nil)

// MemRegistry is a thread-safe, in-memory implementation of [Registry].
// It is suitable for tests and dry runs.
// The zero value is ready to use.
type MemRegistry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

// NewMemRegistry returns an initialised [MemRegistry].
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{
		entities: make(map[string]*Entity),
	}
}

// RecordMentions implements [Registry.RecordMentions].
func (r *MemRegistry) RecordMentions(ctx context.Context, entities []Candidate, date, mentionContext string) error {
	return recordAll(ctx, entities, func(c Candidate) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.entities == nil {
			r.entities = make(map[string]*Entity)
		}
		slug := Slug(c.Name)
		e, ok := r.entities[slug]
		if !ok {
			e = &Entity{Name: c.Name, Slug: slug, Kind: kindOrDefault(c.Kind)}
			r.entities[slug] = e
		}
		e.Mentions = append(e.Mentions, Mention{Date: date, Context: singleLine(mentionContext)})
		return nil
	})
}

// Get implements [Registry.Get].
func (r *MemRegistry) Get(_ context.Context, slug string) (Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[slug]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return cloneEntity(e), nil
}

// List implements [Registry.List].
func (r *MemRegistry) List(_ context.Context) ([]Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, cloneEntity(e))
	}
	slices.SortFunc(out, func(a, b Entity) int { return strings.Compare(a.Slug, b.Slug) })
	return out, nil
}

// Similar implements [Registry.Similar].
func (r *MemRegistry) Similar(ctx context.Context, name string) ([]Match, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return rankSimilar(phonetic.New(), name, all), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// cloneEntity returns a copy whose mention slice does not alias e's.
func cloneEntity(e *Entity) Entity {
	out := *e
	out.Mentions = slices.Clone(e.Mentions)
	return out
}
