// Package openai embeds journal text through the OpenAI embeddings API or a
// compatible server (LM Studio, vLLM, LocalAI) reachable at a custom base URL.
//
// The text-embedding-3 models can shorten their output. Pin the length with
// WithDimensions so a vector table keeps its shape when the model changes.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/audiojournal/pkg/provider/embeddings"
)

// DefaultModel is used when New is given no model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// ErrEmptyResponse is returned when the API answers without vectors.
var ErrEmptyResponse = errors.New("openai embeddings: empty response")

var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider. It is safe for concurrent use.
type Provider struct {
	client oai.Client
	model  string
	dims   int
}

// Option configures a [Provider].
type Option func(*settings)

type settings struct {
	request []option.RequestOption
	dims    int
	custom  bool // base URL overridden
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.request = append(s.request, option.WithBaseURL(url))
		s.custom = true
	}
}

// WithOrganization sends the OpenAI organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.request = append(s.request, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.request = append(s.request, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// WithMaxRetries sets how often the client retries rate limits and server
// errors. The client default is 2.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.request = append(s.request, option.WithMaxRetries(n)) }
}

// WithDimensions requests vectors of n elements.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dims = n }
}

// New returns a provider for model, or [DefaultModel] when model is empty. The
// API key may only be empty together with WithBaseURL, since local servers
// usually do not check it.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	var s settings
	for _, o := range opts {
		o(&s)
	}
	if apiKey == "" && !s.custom {
		return nil, errors.New("openai embeddings: api key required without a custom base url")
	}
	if apiKey == "" {
		apiKey = "unused"
	}
	if model == "" {
		model = DefaultModel
	}
	request := append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.request...)
	return &Provider{
		client: oai.NewClient(request...),
		model:  model,
		dims:   s.dims,
	}, nil
}

// Embed returns the vector of text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.create(ctx, oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)}, 1)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. An empty input returns (nil, nil).
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.create(ctx, oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}, len(texts))
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	return vecs, nil
}

// create sends one request and places every returned vector at its index.
func (p *Provider) create(ctx context.Context, input oai.EmbeddingNewParamsInputUnion, n int) ([][]float32, error) {
	req := oai.EmbeddingNewParams{Model: p.model, Input: input}
	if p.dims > 0 {
		req.Dimensions = param.NewOpt(int64(p.dims))
	}
	resp, err := p.client.Embeddings.New(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	if len(resp.Data) != n {
		return nil, fmt.Errorf("got %d vectors for %d inputs", len(resp.Data), n)
	}

	out := make([][]float32, n)
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= n || out[i] != nil {
			return nil, fmt.Errorf("bad vector index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the requested length or the model's native one. Unknown
// models are assumed to return 1536 values like text-embedding-3-small.
func (p *Provider) Dimensions() int {
	if p.dims > 0 {
		return p.dims
	}
	switch m := strings.ToLower(p.model); {
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	default:
		return 1536
	}
}

// ModelID returns the model name sent with each request.
func (p *Provider) ModelID() string { return p.model }
