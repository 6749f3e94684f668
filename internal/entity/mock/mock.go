// Package mock provides a test double for [entity.Registry].
//
// Successful calls are delegated to an in-memory registry so that tests can
// inspect the resulting records; the Err fields inject failures.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/audiojournal/internal/entity"
)

// Compile-time assertion that Registry implements entity.Registry.
var _ entity.Registry = (*Registry)(nil)

// RecordMentionsCall records the arguments of a single RecordMentions call.
type RecordMentionsCall struct {
	Entities []entity.Candidate
	Date     string
	Context  string
}

// Registry is a mock implementation of [entity.Registry].
type Registry struct {
	mu sync.Mutex

	// RecordMentionsErr, when non-nil, is returned by RecordMentions and no
	// mention is stored.
	RecordMentionsErr error

	// FailSlugs makes RecordMentions fail for the listed slugs only, the
	// way a partial disk failure would. The remaining candidates are stored.
	FailSlugs map[string]error

	// ListErr is returned by List and Similar when non-nil.
	ListErr error

	// RecordMentionsCalls records every RecordMentions invocation.
	RecordMentionsCalls []RecordMentionsCall

	store *entity.MemRegistry
}

// New returns a ready-to-use mock registry.
func New() *Registry {
	return &Registry{store: entity.NewMemRegistry()}
}

// RecordMentions implements [entity.Registry].
func (r *Registry) RecordMentions(ctx context.Context, entities []entity.Candidate, date, mentionContext string) error {
	r.mu.Lock()
	r.RecordMentionsCalls = append(r.RecordMentionsCalls, RecordMentionsCall{
		Entities: append([]entity.Candidate(nil), entities...),
		Date:     date,
		Context:  mentionContext,
	})
	err, fail := r.RecordMentionsErr, r.FailSlugs
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if len(fail) == 0 {
		return r.backing().RecordMentions(ctx, entities, date, mentionContext)
	}

	var (
		ok       []entity.Candidate
		failures []entity.MentionFailure
	)
	for _, c := range entities {
		if ferr, bad := fail[c.Slug()]; bad {
			failures = append(failures, entity.MentionFailure{Slug: c.Slug(), Err: ferr})
			continue
		}
		ok = append(ok, c)
	}
	if err := r.backing().RecordMentions(ctx, ok, date, mentionContext); err != nil {
		return err
	}
	if len(failures) > 0 {
		return &entity.MentionError{Failures: failures}
	}
	return nil
}

// Get implements [entity.Registry].
func (r *Registry) Get(ctx context.Context, slug string) (entity.Entity, error) {
	return r.backing().Get(ctx, slug)
}

// List implements [entity.Registry].
func (r *Registry) List(ctx context.Context) ([]entity.Entity, error) {
	r.mu.Lock()
	err := r.ListErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.backing().List(ctx)
}

// Similar implements [entity.Registry].
func (r *Registry) Similar(ctx context.Context, name string) ([]entity.Match, error) {
	r.mu.Lock()
	err := r.ListErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.backing().Similar(ctx, name)
}

// Calls returns a copy of the recorded RecordMentions calls.
func (r *Registry) Calls() []RecordMentionsCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordMentionsCall(nil), r.RecordMentionsCalls...)
}

func (r *Registry) backing() *entity.MemRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		r.store = entity.NewMemRegistry()
	}
	return r.store
}
