// Package vectorstore defines the storage contract behind the journal's
// similar-entry search.
//
// A Store keeps at most one Record per ID and answers nearest-neighbour
// queries by cosine similarity. Embedding is not the store's concern: callers
// hand in vectors produced by an embeddings.Provider and must use the same
// model for writes and queries.
//
// Three implementations ship with the module:
//
//   - [MemStore], an in-process map used by tests and the "memory" backend
//   - [github.com/MrWong99/audiojournal/pkg/vectorstore/sqlite], a single-file
//     store for local use
//   - [github.com/MrWong99/audiojournal/pkg/vectorstore/postgres], pgvector with
//     an HNSW index for large journals
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimension the store was created with.
var ErrDimensionMismatch = errors.New("vectorstore: dimension mismatch")

// ErrInvalidK is returned by Query when k is smaller than one.
var ErrInvalidK = errors.New("vectorstore: k must be at least 1")

// Record is a single indexed document.
type Record struct {
	// ID uniquely identifies the record. Upserting an existing ID replaces it.
	ID string

	// Vector is the embedding of Document.
	Vector []float32

	// Document is the text that was embedded.
	Document string

	// Metadata carries free-form string attributes (e.g., date, type).
	Metadata map[string]string
}

// Match is a Record returned by Query together with its similarity to the
// query vector.
type Match struct {
	Record

	// Similarity is the cosine similarity in [-1, 1]; higher is closer.
	Similarity float64
}

// Store is the abstraction over any vector backend.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert inserts rec or replaces the record with the same ID.
	Upsert(ctx context.Context, rec Record) error

	// Query returns up to k records ordered by non-increasing similarity to
	// vector. Ties are broken by ascending ID. An empty store yields an empty,
	// non-nil slice. k < 1 returns ErrInvalidK.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Cosine returns the cosine similarity of a and b. It returns 0 when either
// vector has zero magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK sorts matches by non-increasing similarity (ties by ascending ID) and
// truncates the result to k entries. It is shared by the brute-force backends.
func TopK(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches
}

// CloneMetadata returns a copy of m, or nil for an empty map.
func CloneMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
