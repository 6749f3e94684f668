// Package ollama embeds journal entries with a local Ollama server through its
// /api/embed endpoint.
//
//	p, err := ollama.New("", "all-minilm") // http://localhost:11434
//	vec, err := p.Embed(ctx, entryText)
//
// Long entries are truncated to the model's context by the server. Connection
// errors and 5xx answers (Ollama returns 503 while a model is loading) are
// retried with exponential backoff when WithMaxRetryTime is set.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MrWong99/audiojournal/pkg/provider/embeddings"
)

// DefaultBaseURL is the address of a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// probeTimeout bounds the request Dimensions issues for unknown models.
const probeTimeout = 30 * time.Second

// ErrEmptyResponse is returned when the server answers without vectors.
var ErrEmptyResponse = errors.New("ollama embeddings: empty response")

var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider against an Ollama server. It is
// safe for concurrent use.
type Provider struct {
	baseURL      string
	model        string
	keepAlive    string
	truncate     bool
	maxRetryTime time.Duration
	client       *http.Client

	// dims is fixed at construction or, for unknown models, probed once.
	mu     sync.Mutex
	dims   int
	probed bool
}

// Option configures a [Provider].
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithDimensions fixes the vector length, skipping the built-in table and the
// probe request.
func WithDimensions(dims int) Option {
	return func(p *Provider) { p.dims = dims }
}

// WithMaxRetryTime retries connection errors and 5xx answers for up to d in
// total. Zero disables retries.
func WithMaxRetryTime(d time.Duration) Option {
	return func(p *Provider) { p.maxRetryTime = d }
}

// WithKeepAlive tells Ollama how long to keep the model loaded after a
// request, as a Go-style duration ("10m") or "-1" for forever. Empty leaves
// the server default.
func WithKeepAlive(v string) Option {
	return func(p *Provider) { p.keepAlive = v }
}

// WithTruncate controls whether inputs longer than the model context are cut
// by the server (default) or rejected with an error.
func WithTruncate(on bool) Option {
	return func(p *Provider) { p.truncate = on }
}

// New returns a provider for model at baseURL. An empty baseURL means
// [DefaultBaseURL].
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		truncate: true,
		client:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.dims == 0 {
		p.dims = knownDimensions(model)
	}
	return p, nil
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	Truncate  bool     `json:"truncate"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Embed returns the vector of text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text in a single request. An empty input
// returns (nil, nil) without contacting the server.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: embed batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimensions returns the vector length: the configured value, the known size
// of the model, or the length of one probe vector. A failed probe yields 0
// and is not repeated.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dims != 0 || p.probed {
		return p.dims
	}
	p.probed = true

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if vecs, err := p.embed(ctx, []string{"probe"}); err == nil {
		p.dims = len(vecs[0])
	}
	return p.dims
}

// ModelID returns the Ollama model name.
func (p *Provider) ModelID() string { return p.model }

// embed posts texts to /api/embed, retrying transient failures as configured.
func (p *Provider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model:     p.model,
		Input:     texts,
		Truncate:  p.truncate,
		KeepAlive: p.keepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if p.maxRetryTime > 0 {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = p.maxRetryTime
		policy = bo
	}

	var vecs [][]float32
	err = backoff.Retry(func() error {
		var err error
		vecs, err = p.post(ctx, body)
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// post performs one request. Errors that cannot succeed on retry are marked
// permanent.
func (p *Provider) post(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := statusError(resp)
		if resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if len(out.Embeddings) == 0 {
		return nil, backoff.Permanent(ErrEmptyResponse)
	}
	return out.Embeddings, nil
}

// statusError reports a non-200 answer together with Ollama's error message
// when the body carries one.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

// knownDimensions returns the output size of common Ollama embedding models,
// or 0 when the model is not recognised.
func knownDimensions(model string) int {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "nomic-embed-text"):
		return 768
	case strings.Contains(name, "mxbai-embed-large"):
		return 1024
	case strings.Contains(name, "all-minilm"):
		return 384
	case strings.Contains(name, "bge-m3"):
		return 1024
	}
	return 0
}
