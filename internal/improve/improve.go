// Package improve turns a raw speech transcript into a readable journal entry
// with a language model.
//
// The [Improver] picks a prompt template by language (English and Ukrainian
// ship with the module; every other code falls back to English), sends it to
// an [llm.Provider] as a single user message and returns the model's answer
// with any surrounding code fence removed.
package improve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	llm "github.com/MrWong99/audiojournal/pkg/provider/llm"
)

// ErrEmptyOutput is returned when the model answers with nothing but
// whitespace.
var ErrEmptyOutput = errors.New("improve: model returned empty text")

// Option is a functional option for configuring an [Improver].
type Option func(*Improver)

// WithTemperature sets the sampling temperature. Zero (the default) leaves
// the choice to the provider.
func WithTemperature(temp float64) Option {
	return func(im *Improver) {
		im.temperature = temp
	}
}

// WithMaxTokens caps the length of the improved text. Zero means no cap.
func WithMaxTokens(n int) Option {
	return func(im *Improver) {
		im.maxTokens = n
	}
}

// Improver rewrites transcripts through a language model. It is safe for
// concurrent use.
//
// To use a specific model, construct the [llm.Provider] with that model
// configured rather than overriding it per request.
type Improver struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// New returns an [Improver] backed by provider.
func New(provider llm.Provider, opts ...Option) *Improver {
	im := &Improver{llm: provider}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Improve asks the model to restructure transcript using the template for
// lang. Provider failures and empty answers are returned as errors.
func (im *Improver) Improve(ctx context.Context, transcript string, lang Language) (string, error) {
	req := llm.CompletionRequest{
		Temperature: im.temperature,
		MaxTokens:   im.maxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: Prompt(lang, transcript)},
		},
	}

	resp, err := im.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("improve: complete: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyOutput
	}

	text := stripFence(resp.Content)
	if text == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}

// stripFence removes a markdown code fence (```markdown ... ```) that some
// models wrap the whole answer in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	// Drop the info string (e.g. "markdown") on the opening line.
	if first, rest, ok := strings.Cut(inner, "\n"); ok && !strings.ContainsAny(strings.TrimSpace(first), " \t") {
		inner = rest
	}
	return strings.TrimSpace(inner)
}
