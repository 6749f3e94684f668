// Package embeddings defines how journal text is turned into vectors for
// similar-entry search.
package embeddings

import "context"

// Provider maps text to dense vectors. Every vector from one Provider has
// Dimensions() elements; vectors from different models must not be compared.
// Implementations are safe for concurrent use.
type Provider interface {
	// Embed returns the vector of one entry or query. Text is sent verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order. On error no
	// vectors are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length, or 0 when it cannot be determined.
	Dimensions() int

	// ModelID names the embedding model. Indexes record it so that vectors of
	// a different model are not mixed in.
	ModelID() string
}
