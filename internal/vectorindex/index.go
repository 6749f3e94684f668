// Package vectorindex makes journal entries searchable by meaning. It pairs
// an embeddings.Provider with a vectorstore.Store and keeps exactly one vector
// per entry date under the ID "entry_<date>".
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/MrWong99/audiojournal/pkg/provider/embeddings"
	"github.com/MrWong99/audiojournal/pkg/vectorstore"
)

const (
	// IDPrefix is prepended to the entry date to form the record ID.
	IDPrefix = "entry_"

	// DefaultLimit is the number of results a search returns when the
	// caller does not ask for a specific count.
	DefaultLimit = 3

	// MetaDate and MetaType are the metadata keys every record carries.
	MetaDate = "date"
	MetaType = "type"

	// TypeJournalEntry is the MetaType value of journal entry records.
	TypeJournalEntry = "journal_entry"
)

// ErrInvalidK is returned by Query when k is smaller than one.
var ErrInvalidK = vectorstore.ErrInvalidK

// ErrEmptyEmbedding is returned when the embeddings provider yields a vector
// of length zero.
var ErrEmptyEmbedding = errors.New("vectorindex: empty embedding")

// Result is one entry returned by Query.
type Result struct {
	// Date is the entry date the record belongs to.
	Date string

	// Text is the indexed entry text.
	Text string

	// Similarity is the cosine similarity to the query; higher is closer.
	Similarity float64

	// Metadata holds every attribute stored with the record.
	Metadata map[string]string
}

// Index embeds entry texts and stores them in a vector store. It is safe for
// concurrent use when the underlying provider and store are.
type Index struct {
	embedder embeddings.Provider
	store    vectorstore.Store
}

// New returns an Index that embeds with embedder and persists into store.
func New(embedder embeddings.Provider, store vectorstore.Store) *Index {
	return &Index{embedder: embedder, store: store}
}

// ID returns the record ID for an entry date.
func ID(date string) string { return IDPrefix + date }

// Upsert embeds text and stores or replaces the record of date. metadata is
// copied; the date and type keys are always set by the index. When embedding
// fails the store is not touched.
func (ix *Index) Upsert(ctx context.Context, date, text string, metadata map[string]string) error {
	if date == "" {
		return errors.New("vectorindex: date must not be empty")
	}
	vec, err := ix.embed(ctx, text)
	if err != nil {
		return err
	}

	meta := make(map[string]string, len(metadata)+2)
	maps.Copy(meta, metadata)
	meta[MetaDate] = date
	meta[MetaType] = TypeJournalEntry

	rec := vectorstore.Record{
		ID:       ID(date),
		Vector:   vec,
		Document: text,
		Metadata: meta,
	}
	if err := ix.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("vectorindex: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// Query returns up to k entries closest to text, closest first. When fewer
// than k entries are indexed all of them are returned; an empty index yields
// an empty, non-nil slice.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("vectorindex: query: %w", ErrInvalidK)
	}
	vec, err := ix.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	matches, err := ix.store.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: query: %w", err)
	}

	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		date := m.Metadata[MetaDate]
		if date == "" {
			date = strings.TrimPrefix(m.ID, IDPrefix)
		}
		out = append(out, Result{
			Date:       date,
			Text:       m.Document,
			Similarity: m.Similarity,
			Metadata:   vectorstore.CloneMetadata(m.Metadata),
		})
	}
	return out, nil
}

// Count returns the number of indexed entries.
func (ix *Index) Count(ctx context.Context) (int, error) {
	n, err := ix.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("vectorindex: count: %w", err)
	}
	return n, nil
}

func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: embed: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vec, nil
}
