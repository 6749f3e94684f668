package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/audiojournal/internal/config"
	"github.com/MrWong99/audiojournal/internal/resilience"
	"github.com/MrWong99/audiojournal/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/audiojournal/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/audiojournal/pkg/provider/embeddings/openai"
	"github.com/MrWong99/audiojournal/pkg/provider/llm"
	"github.com/MrWong99/audiojournal/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/audiojournal/pkg/provider/llm/openai"
	"github.com/MrWong99/audiojournal/pkg/provider/stt"
	"github.com/MrWong99/audiojournal/pkg/provider/stt/deepgram"
	"github.com/MrWong99/audiojournal/pkg/provider/stt/whisper"
)

// Providers holds one interface value per provider slot. STTName and LLMName
// label the slots in logs and metrics; with fallbacks configured they name
// the whole chain.
type Providers struct {
	STT        stt.Provider
	LLM        llm.Provider
	Embeddings embeddings.Provider

	STTName string
	LLMName string
}

// RegisterBuiltinProviders wires the provider factories that ship with
// audiojournal into reg.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		if d := optDuration(entry.Options, "max_retry_time"); d > 0 {
			opts = append(opts, whisper.WithMaxRetryTime(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// Hosted backends share the same shape: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		// max_retries: 0 turns SDK retries off, so presence matters.
		if n, ok := lookupInt(entry.Options, "max_retries"); ok {
			opts = append(opts, oallm.WithMaxRetries(n))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, ollamaembed.WithDimensions(n))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		if d := optDuration(entry.Options, "max_retry_time"); d > 0 {
			opts = append(opts, ollamaembed.WithMaxRetryTime(d))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaembed.WithOrganization(org))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	for _, kind := range []string{"stt", "llm", "embeddings"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// BuildProviders instantiates the providers named in cfg using reg. When
// fallbacks are configured the primary and its fallbacks are wrapped in a
// circuit-breaking chain.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	var fbCfg resilience.FallbackConfig

	primarySTT, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT, ps.STTName = primarySTT, cfg.Providers.STT.Name
	if len(cfg.Providers.STTFallbacks) > 0 {
		chain := resilience.NewSTTFallback(primarySTT, cfg.Providers.STT.Name, fbCfg)
		for i, entry := range cfg.Providers.STTFallbacks {
			p, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("app: create stt fallback %d %q: %w", i, entry.Name, err)
			}
			chain.AddFallback(fallbackName(entry, i), p)
		}
		ps.STT, ps.STTName = chain, "stt-chain"
		slog.Info("stt fallback chain configured", "providers", chain.Names())
	}

	primaryLLM, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM, ps.LLMName = primaryLLM, cfg.Providers.LLM.Name
	if len(cfg.Providers.LLMFallbacks) > 0 {
		chain := resilience.NewLLMFallback(primaryLLM, cfg.Providers.LLM.Name, fbCfg)
		for i, entry := range cfg.Providers.LLMFallbacks {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("app: create llm fallback %d %q: %w", i, entry.Name, err)
			}
			chain.AddFallback(fallbackName(entry, i), p)
		}
		ps.LLM, ps.LLMName = chain, "llm-chain"
		slog.Info("llm fallback chain configured", "providers", chain.Names())
	}

	ps.Embeddings, err = reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("app: create embeddings provider %q: %w", cfg.Providers.Embeddings.Name, err)
	}

	slog.Info("providers created",
		"stt", cfg.Providers.STT.Name,
		"llm", cfg.Providers.LLM.Name,
		"embeddings", cfg.Providers.Embeddings.Name,
	)
	return ps, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// fallbackName labels a fallback entry. The same provider may appear twice
// with different models, so the model is part of the label.
func fallbackName(entry config.ProviderEntry, i int) string {
	if entry.Model != "" {
		return fmt.Sprintf("%s/%s", entry.Name, entry.Model)
	}
	return fmt.Sprintf("%s#%d", entry.Name, i+1)
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option, or 0 when it is missing.
func optInt(opts map[string]any, key string) int {
	n, _ := lookupInt(opts, key)
	return n
}

// lookupInt extracts an integer option and reports whether it is set. YAML
// decodes whole numbers as int.
func lookupInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// optDuration extracts a duration given as a Go duration string ("90s") or
// as a number of seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	if s := optString(opts, key); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			slog.Warn("ignoring invalid provider option", "key", key, "value", s, "err", err)
			return 0
		}
		return d
	}
	if n := optInt(opts, key); n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}

var errNoProviders = errors.New("app: providers are required")
