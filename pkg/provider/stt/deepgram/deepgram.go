// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. The recorded file is streamed over the socket in chunks
// and the final transcript segments are concatenated once Deepgram has
// flushed. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/audiojournal/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	// multiLanguage enables Deepgram's multilingual code-switching mode,
	// which is the closest the live API gets to auto-detection.
	multiLanguage    = "multi"
	defaultChunkSize = 32 * 1024
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code used when a request carries no
// hint (e.g., "en", "uk"). Defaults to "multi".
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the WebSocket endpoint. Intended for tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithChunkSize sets the number of bytes sent per WebSocket message.
func WithChunkSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey    string
	model     string
	language  string
	endpoint  string
	chunkSize int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:    apiKey,
		model:     defaultModel,
		language:  multiLanguage,
		endpoint:  deepgramEndpoint,
		chunkSize: defaultChunkSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams the audio file to Deepgram and waits until the server
// has flushed every final result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("deepgram: open audio: %w", err)
	}
	defer f.Close()

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	wsURL, err := p.buildURL(lang)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- p.stream(ctx, conn, f)
	}()

	res, readErr := collect(ctx, conn)
	if readErr != nil {
		// Unblock the writer before waiting for it.
		_ = conn.CloseNow()
		<-writeErr
		return nil, readErr
	}
	if err := <-writeErr; err != nil {
		return nil, err
	}
	if lang != multiLanguage && res.Language == "" {
		res.Language = lang
	}
	_ = conn.Close(websocket.StatusNormalClosure, "transcription complete")
	return res, nil
}

// buildURL constructs the Deepgram live endpoint URL. The encoding and sample
// rate are left unset so Deepgram sniffs the container format itself.
func (p *Provider) buildURL(lang string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "false")

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- streaming --------------------------------------------------------------

// stream copies r to the socket in binary messages and then asks Deepgram to
// flush with a CloseStream control message.
func (p *Provider) stream(ctx context.Context, conn *websocket.Conn, r io.Reader) error {
	buf := make([]byte, p.chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := conn.Write(ctx, websocket.MessageBinary, buf[:n]); werr != nil {
				return fmt.Errorf("deepgram: send audio: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("deepgram: read audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// deepgramResponse is the JSON structure returned by Deepgram for Results and
// Metadata events.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string   `json:"transcript"`
			Languages  []string `json:"languages"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// collect reads messages until Deepgram sends its Metadata summary or closes
// the connection, accumulating final segments in arrival order.
func collect(ctx context.Context, conn *websocket.Conn) (*stt.Result, error) {
	res := &stt.Result{}
	var texts []string
	langCount := map[string]int{}

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("deepgram: read: %w", ctx.Err())
			}
			if len(texts) > 0 {
				// Server hung up after delivering results.
				break
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Type == "Metadata" {
			if resp.Duration > 0 {
				res.Duration = secs(resp.Duration)
			}
			break
		}
		if resp.Type != "Results" || !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
			continue
		}

		alt := resp.Channel.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		for _, l := range alt.Languages {
			langCount[l]++
		}
		if text == "" {
			continue
		}
		texts = append(texts, text)
		res.Segments = append(res.Segments, stt.Segment{
			Start: secs(resp.Start),
			End:   secs(resp.Start + resp.Duration),
			Text:  text,
		})
	}

	res.Text = strings.Join(texts, " ")
	res.Language = dominant(langCount)
	return res, nil
}

// dominant returns the most frequent language, preferring the lexically
// smaller code on ties.
func dominant(counts map[string]int) string {
	best, bestN := "", 0
	for l, n := range counts {
		if n > bestN || (n == bestN && l < best) {
			best, bestN = l, n
		}
	}
	return best
}

func secs(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
