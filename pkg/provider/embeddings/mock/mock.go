// Package mock is an in-memory embeddings.Provider for tests.
//
//	emb := &mock.Provider{EmbedResult: []float32{1, 0}, DimensionsValue: 2}
//
// Set EmbedFunc when vectors must depend on the text, for example to place
// entries about the same topic close together.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/audiojournal/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider returns canned vectors and records the texts it was asked to embed.
// The zero value embeds everything as a nil vector.
type Provider struct {
	EmbedResult     []float32
	EmbedErr        error
	EmbedFunc       func(text string) ([]float32, error)
	DimensionsValue int
	ModelIDValue    string

	mu sync.Mutex
	// EmbedCalls holds the text of every Embed call. Read it only after the
	// code under test has returned.
	EmbedCalls []string
	// EmbedBatchCalls holds a copy of the texts of every EmbedBatch call.
	EmbedBatchCalls [][]string
}

// Embed records text and returns EmbedFunc(text) or EmbedResult, EmbedErr.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	p.mu.Unlock()
	return p.vector(text)
}

// EmbedBatch records texts and embeds each of them as Embed would.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, slices.Clone(texts))
	p.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.vector(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *Provider) vector(text string) ([]float32, error) {
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text)
	}
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return slices.Clone(p.EmbedResult), nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue, or "mock" when it is empty.
func (p *Provider) ModelID() string {
	if p.ModelIDValue == "" {
		return "mock"
	}
	return p.ModelIDValue
}
