package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/audiojournal/internal/phonetic"
)

// ErrNotFound is returned by Get when no record exists for the slug.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidName is returned for names whose slug cannot key a record.
var ErrInvalidName = errors.New("entity: invalid name")

// Registry maintains one record per entity and its mention log.
//
// All implementations must be safe for concurrent use. Calls touching the
// same slug are serialised; calls touching different slugs are not.
type Registry interface {
	// RecordMentions appends one mention (date, context) to the record of
	// every candidate, creating records that do not exist yet. Mentions are
	// not deduplicated: recording the same entity and date twice yields two
	// mentions.
	//
	// Every candidate is attempted. When some fail, the returned error is a
	// *[MentionError] naming the failed slugs; the others are recorded.
	RecordMentions(ctx context.Context, entities []Candidate, date, mentionContext string) error

	// Get returns the record for slug.
	// Returns [ErrNotFound] when no record exists.
	Get(ctx context.Context, slug string) (Entity, error)

	// List returns every record sorted by slug.
	List(ctx context.Context) ([]Entity, error)

	// Similar returns the recorded entities whose names sound like name,
	// best first. An entity whose name equals name is not included.
	Similar(ctx context.Context, name string) ([]Match, error)
}

// Match is one result of [Registry.Similar].
type Match struct {
	Name  string
	Slug  string
	Score float64

	// Phonetic reports whether the names share a Double Metaphone code.
	Phonetic bool
}

// MentionFailure pairs a slug with the error that prevented its mention from
// being recorded.
type MentionFailure struct {
	Slug string
	Err  error
}

// MentionError reports the candidates of a RecordMentions call that could
// not be recorded. Candidates not listed were recorded successfully.
type MentionError struct {
	Failures []MentionFailure
}

// Error implements error.
func (e *MentionError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Slug, f.Err))
	}
	return fmt.Sprintf("entity: record mentions: %d failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual causes to errors.Is and errors.As.
func (e *MentionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Slugs returns the failed slugs in the order they were attempted.
func (e *MentionError) Slugs() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Slug)
	}
	return out
}

// ---- helpers ----

// recordAll runs record for each candidate and collects failures. Once ctx
// is done the remaining candidates fail with the context error.
func recordAll(ctx context.Context, entities []Candidate, record func(Candidate) error) error {
	var failures []MentionFailure
	for _, c := range entities {
		err := ctx.Err()
		if err == nil {
			err = Validate(c)
		}
		if err == nil {
			err = record(c)
		}
		if err != nil {
			failures = append(failures, MentionFailure{Slug: Slug(c.Name), Err: err})
		}
	}
	if len(failures) > 0 {
		return &MentionError{Failures: failures}
	}
	return nil
}

// rankSimilar maps the matcher's ranking of name against the given entities
// back to registry matches.
func rankSimilar(m *phonetic.Matcher, name string, entities []Entity) []Match {
	names := make([]string, 0, len(entities))
	slugByName := make(map[string]string, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
		slugByName[e.Name] = e.Slug
	}
	ranked := m.Rank(name, names)
	out := make([]Match, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, Match{Name: c.Name, Slug: slugByName[c.Name], Score: c.Score, Phonetic: c.Phonetic})
	}
	return out
}

// kindOrDefault returns k, or [KindPerson] when k is empty.
func kindOrDefault(k Kind) Kind {
	if k == "" {
		return KindPerson
	}
	return k
}

// singleLine collapses line breaks so a context snippet cannot break the
// mention list of a page.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
