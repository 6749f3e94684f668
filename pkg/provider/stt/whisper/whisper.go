// Package whisper provides a whisper.cpp-backed STT provider.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference) and uploads a recorded audio file in a single multipart
// request. The server decodes the container itself, so any format supported by
// the server build (wav, mp3, ogg, flac, m4a via ffmpeg) is accepted.
//
// The provider requests the verbose_json response format so that the detected
// language and segment timing are available alongside the text. Connection
// errors and HTTP 5xx responses are retried with exponential backoff; 4xx
// responses fail immediately.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithModel("medium"),
//	)
//	res, err := p.Transcribe(ctx, stt.Request{AudioPath: "memo.m4a"})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MrWong99/audiojournal/pkg/provider/stt"
)

const (
	// autoLanguage asks whisper.cpp to detect the spoken language.
	autoLanguage = "auto"

	defaultTimeout      = 10 * time.Minute
	defaultMaxRetryTime = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "medium"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code sent when a request carries no
// hint. Defaults to "auto".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-attempt HTTP timeout. Transcribing a long recording
// on CPU can take several minutes. Defaults to 10 minutes.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithMaxRetryTime bounds the total time spent retrying transient failures.
// Zero disables retries. Defaults to 30 s.
func WithMaxRetryTime(d time.Duration) Option {
	return func(p *Provider) {
		p.maxRetryTime = d
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// It holds no per-request state and is safe for concurrent use.
type Provider struct {
	serverURL    string
	model        string
	language     string
	maxRetryTime time.Duration
	httpClient   *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		language:     autoLanguage,
		maxRetryTime: defaultMaxRetryTime,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads the audio file to the whisper.cpp server and returns the
// transcript together with the detected language.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if req.AudioPath == "" {
		return nil, errors.New("whisper: audio path must not be empty")
	}
	audio, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: read audio: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	body, contentType, err := p.buildForm(filepath.Base(req.AudioPath), audio, lang)
	if err != nil {
		return nil, err
	}

	var resp inferenceResponse
	op := func() error {
		return p.post(ctx, body, contentType, &resp)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = p.maxRetryTime
	var policy backoff.BackOff = bo
	if p.maxRetryTime <= 0 {
		policy = &backoff.StopBackOff{}
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	res := &stt.Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: normalizeLanguage(resp.detected()),
		Duration: seconds(resp.Duration),
	}
	if res.Language == "" && lang != autoLanguage {
		res.Language = lang
	}
	for _, s := range resp.Segments {
		res.Segments = append(res.Segments, stt.Segment{
			Start: seconds(s.Start),
			End:   seconds(s.End),
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return res, nil
}

// ---- request ----------------------------------------------------------------

// buildForm encodes the multipart body once so that retries can replay it.
func (p *Provider) buildForm(filename string, audio []byte, lang string) ([]byte, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", fmt.Errorf("whisper: write audio data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"language", lang},
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return body.Bytes(), mw.FormDataContentType(), nil
}

// post performs one inference attempt. Errors that must not be retried are
// wrapped with backoff.Permanent.
func (p *Provider) post(ctx context.Context, body []byte, contentType string, out *inferenceResponse) error {
	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("whisper: create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(fmt.Errorf("whisper: http request: %w", err))
		}
		return fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("whisper: read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("whisper: server returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data))))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("whisper: parse JSON response: %w", err))
	}
	if out.Error != "" {
		return backoff.Permanent(fmt.Errorf("whisper: server error: %s", out.Error))
	}
	return nil
}

// ---- response ---------------------------------------------------------------

type inferenceResponse struct {
	Text             string    `json:"text"`
	Language         string    `json:"language"`
	DetectedLanguage string    `json:"detected_language"`
	Duration         float64   `json:"duration"`
	Segments         []segment `json:"segments"`
	Error            string    `json:"error"`
}

type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (r *inferenceResponse) detected() string {
	if r.DetectedLanguage != "" {
		return r.DetectedLanguage
	}
	return r.Language
}

// fullLanguageNames maps the English language names that whisper.cpp reports
// in verbose_json to their ISO 639-1 codes.
var fullLanguageNames = map[string]string{
	"english":   "en",
	"ukrainian": "uk",
	"russian":   "ru",
	"german":    "de",
	"french":    "fr",
	"spanish":   "es",
	"polish":    "pl",
	"italian":   "it",
}

// normalizeLanguage converts the server's language label into a short code.
// Unknown full names are returned lower-cased.
func normalizeLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if code, ok := fullLanguageNames[s]; ok {
		return code
	}
	if s == autoLanguage {
		return ""
	}
	return s
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
