package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/audiojournal/internal/config"
	"github.com/MrWong99/audiojournal/internal/resilience"
	"github.com/MrWong99/audiojournal/pkg/provider/embeddings"
	embmock "github.com/MrWong99/audiojournal/pkg/provider/embeddings/mock"
	"github.com/MrWong99/audiojournal/pkg/provider/llm"
	llmmock "github.com/MrWong99/audiojournal/pkg/provider/llm/mock"
	"github.com/MrWong99/audiojournal/pkg/provider/stt"
	sttmock "github.com/MrWong99/audiojournal/pkg/provider/stt/mock"
)

func mockRegistry() *config.Registry {
	reg := config.NewRegistry()
	for _, name := range []string{"whisper", "deepgram"} {
		reg.RegisterSTT(name, func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	}
	reg.RegisterLLM("ollama", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterEmbeddings("ollama", func(config.ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{DimensionsValue: 3}, nil
	})
	return reg
}

func TestBuildProviders_Primary(t *testing.T) {
	t.Parallel()

	ps, err := BuildProviders(config.Default(), mockRegistry())
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if _, ok := ps.STT.(*sttmock.Provider); !ok {
		t.Errorf("STT = %T, want the primary provider", ps.STT)
	}
	if ps.STTName != "whisper" || ps.LLMName != "ollama" {
		t.Errorf("names = %q/%q, want whisper/ollama", ps.STTName, ps.LLMName)
	}
	if ps.Embeddings == nil {
		t.Error("Embeddings is nil")
	}
}

func TestBuildProviders_Fallbacks(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Providers.STTFallbacks = []config.ProviderEntry{{Name: "deepgram", Model: "nova-2"}}
	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "openai"}, {Name: "ollama", Model: "llama3"}}

	ps, err := BuildProviders(cfg, mockRegistry())
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}

	sttChain, ok := ps.STT.(*resilience.STTFallback)
	if !ok {
		t.Fatalf("STT = %T, want *resilience.STTFallback", ps.STT)
	}
	if want := []string{"whisper", "deepgram/nova-2"}; !slices.Equal(sttChain.Names(), want) {
		t.Errorf("stt chain = %v, want %v", sttChain.Names(), want)
	}

	llmChain, ok := ps.LLM.(*resilience.LLMFallback)
	if !ok {
		t.Fatalf("LLM = %T, want *resilience.LLMFallback", ps.LLM)
	}
	if want := []string{"ollama", "openai#1", "ollama/llama3"}; !slices.Equal(llmChain.Names(), want) {
		t.Errorf("llm chain = %v, want %v", llmChain.Names(), want)
	}
	if ps.STTName != "stt-chain" || ps.LLMName != "llm-chain" {
		t.Errorf("names = %q/%q, want chain labels", ps.STTName, ps.LLMName)
	}
}

func TestBuildProviders_NotRegistered(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"stt", func(c *config.Config) { c.Providers.STT.Name = "nope" }},
		{"llm", func(c *config.Config) { c.Providers.LLM.Name = "nope" }},
		{"embeddings", func(c *config.Config) { c.Providers.Embeddings.Name = "nope" }},
		{"stt fallback", func(c *config.Config) { c.Providers.STTFallbacks = []config.ProviderEntry{{Name: "nope"}} }},
		{"llm fallback", func(c *config.Config) { c.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "nope"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.modify(cfg)
			_, err := BuildProviders(cfg, mockRegistry())
			if !errors.Is(err, config.ErrProviderNotRegistered) {
				t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
			}
		})
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	RegisterBuiltinProviders(reg)

	for kind, want := range config.ValidProviderNames {
		got := reg.Names(kind)
		for _, name := range want {
			if !slices.Contains(got, name) {
				t.Errorf("%s provider %q not registered (have %v)", kind, name, got)
			}
		}
	}

	// Local providers construct without touching the network.
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8080", Model: "medium"}); err != nil {
		t.Errorf("create whisper: %v", err)
	}
	if _, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "ollama", Model: "all-minilm"}); err != nil {
		t.Errorf("create ollama embeddings: %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); err == nil {
		t.Error("whisper without base_url: expected error")
	}
}

func TestOptionHelpers(t *testing.T) {
	t.Parallel()

	opts := map[string]any{
		"language":       "uk",
		"dimensions":     384,
		"ratio":          2.0,
		"timeout":        "90s",
		"max_retry_time": 30,
		"broken":         "soon",
		"flag":           true,
	}

	if got := optString(opts, "language"); got != "uk" {
		t.Errorf("optString(language) = %q", got)
	}
	if got := optString(opts, "dimensions"); got != "" {
		t.Errorf("optString(dimensions) = %q, want empty", got)
	}
	if got := optString(nil, "language"); got != "" {
		t.Errorf("optString(nil) = %q, want empty", got)
	}
	if got := optInt(opts, "dimensions"); got != 384 {
		t.Errorf("optInt(dimensions) = %d", got)
	}
	if got := optInt(opts, "ratio"); got != 2 {
		t.Errorf("optInt(ratio) = %d", got)
	}
	if got := optInt(opts, "flag"); got != 0 {
		t.Errorf("optInt(flag) = %d, want 0", got)
	}
	if n, ok := lookupInt(map[string]any{"max_retries": 0}, "max_retries"); !ok || n != 0 {
		t.Errorf("lookupInt(max_retries: 0) = %d, %v; want 0, true", n, ok)
	}
	if _, ok := lookupInt(opts, "missing"); ok {
		t.Error("lookupInt(missing) reported the key as set")
	}

	durations := map[string]time.Duration{
		"timeout":        90 * time.Second,
		"max_retry_time": 30 * time.Second,
		"broken":         0,
		"missing":        0,
	}
	for key, want := range durations {
		if got := optDuration(opts, key); got != want {
			t.Errorf("optDuration(%s) = %v, want %v", key, got, want)
		}
	}
}

func TestFallbackName(t *testing.T) {
	t.Parallel()

	if got := fallbackName(config.ProviderEntry{Name: "ollama", Model: "mistral"}, 0); got != "ollama/mistral" {
		t.Errorf("fallbackName = %q", got)
	}
	if got := fallbackName(config.ProviderEntry{Name: "openai"}, 2); got != "openai#3" {
		t.Errorf("fallbackName = %q", got)
	}
}

func TestRegisterBuiltinProviders_OpenAIZeroRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	reg := config.NewRegistry()
	RegisterBuiltinProviders(reg)
	p, err := reg.CreateLLM(config.ProviderEntry{
		Name:    "openai",
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1/",
		Model:   "gpt-4o-mini",
		Options: map[string]any{"max_retries": 0},
	})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}

	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "tidy this entry"}},
	})
	if err == nil {
		t.Fatal("expected error from failing server")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 with retries disabled", got)
	}
}
