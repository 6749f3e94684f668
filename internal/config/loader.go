package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr           = ":9464"
	DefaultJournalDir           = "journal_notes"
	DefaultEntitiesDir          = "journal_entities"
	DefaultArchiveDir           = "audio_recordings"
	DefaultVectorPath           = "journal_vectors/index.db"
	DefaultMentionContext       = "Mentioned in this entry"
	DefaultTranscriptionTimeout = 10 * time.Minute
	DefaultImprovementTimeout   = 5 * time.Minute
	DefaultConcurrency          = 2
	DefaultPattern              = "**/*.{wav,mp3,m4a,ogg,flac,webm}"
	DefaultSettle               = 2 * time.Second
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper", "deepgram"},
	"embeddings": {"ollama", "openai"},
}

// Default returns a configuration that runs against a local whisper.cpp
// server and a local Ollama instance.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field that has a default. A provider block
// is replaced by its default only when it is entirely empty.
func ApplyDefaults(cfg *Config) {
	if isZeroEntry(cfg.Providers.STT) {
		cfg.Providers.STT = ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8080", Model: "medium"}
	}
	if isZeroEntry(cfg.Providers.LLM) {
		cfg.Providers.LLM = ProviderEntry{Name: "ollama", Model: "mistral"}
	}
	if isZeroEntry(cfg.Providers.Embeddings) {
		cfg.Providers.Embeddings = ProviderEntry{Name: "ollama", Model: "all-minilm"}
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Paths.JournalDir == "" {
		cfg.Paths.JournalDir = DefaultJournalDir
	}
	if cfg.Paths.EntitiesDir == "" {
		cfg.Paths.EntitiesDir = DefaultEntitiesDir
	}
	if cfg.Paths.ArchiveDir == "" {
		cfg.Paths.ArchiveDir = DefaultArchiveDir
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = BackendSQLite
	}
	if cfg.VectorStore.Backend == BackendSQLite && cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = DefaultVectorPath
	}
	if cfg.Extractor.Kind == "" {
		cfg.Extractor.Kind = ExtractorCapitalized
	}
	if cfg.Pipeline.MentionContext == "" {
		cfg.Pipeline.MentionContext = DefaultMentionContext
	}
	if cfg.Pipeline.TranscriptionTimeout == 0 {
		cfg.Pipeline.TranscriptionTimeout = DefaultTranscriptionTimeout
	}
	if cfg.Pipeline.ImprovementTimeout == 0 {
		cfg.Pipeline.ImprovementTimeout = DefaultImprovementTimeout
	}
	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = DefaultConcurrency
	}
	if cfg.Batch.Pattern == "" {
		cfg.Batch.Pattern = DefaultPattern
	}
	if cfg.Watch.Settle == 0 {
		cfg.Watch.Settle = DefaultSettle
	}
}

// LoadEnv loads variables from the given .env files (default ".env") into
// the process environment. Missing files are ignored; variables already set
// are kept.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults and validates the result.
// An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Paths
	if cfg.Paths.JournalDir == "" {
		errs = append(errs, errors.New("paths.journal_dir is required"))
	}
	if cfg.Paths.EntitiesDir == "" {
		errs = append(errs, errors.New("paths.entities_dir is required"))
	}
	if cfg.Paths.ArchiveDir == "" {
		errs = append(errs, errors.New("paths.archive_dir is required"))
	}

	// Providers
	errs = append(errs, validateEntry("providers.stt", "stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("providers.llm", "llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntry("providers.embeddings", "embeddings", cfg.Providers.Embeddings)...)
	for i, e := range cfg.Providers.STTFallbacks {
		errs = append(errs, validateEntry(fmt.Sprintf("providers.stt_fallbacks[%d]", i), "stt", e)...)
	}
	for i, e := range cfg.Providers.LLMFallbacks {
		errs = append(errs, validateEntry(fmt.Sprintf("providers.llm_fallbacks[%d]", i), "llm", e)...)
	}

	// Vector store
	vs := cfg.VectorStore
	if vs.Backend != "" && !vs.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("vector_store.backend %q is invalid; valid values: sqlite, postgres, memory", vs.Backend))
	}
	if vs.Backend == BackendSQLite && vs.Path == "" {
		errs = append(errs, errors.New("vector_store.path is required when backend is sqlite"))
	}
	if vs.Backend == BackendPostgres && vs.PostgresDSN == "" {
		errs = append(errs, errors.New("vector_store.postgres_dsn is required when backend is postgres"))
	}
	if vs.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("vector_store.dimensions %d must not be negative", vs.Dimensions))
	}
	if vs.Backend == BackendMemory {
		slog.Warn("vector_store.backend is memory; the similar-entry index is lost on exit")
	}

	// Extractor
	if cfg.Extractor.Kind != "" && !cfg.Extractor.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("extractor.kind %q is invalid; valid values: capitalized, ner", cfg.Extractor.Kind))
	}
	if cfg.Extractor.Kind == ExtractorNER && cfg.Extractor.ModelPath == "" {
		errs = append(errs, errors.New("extractor.model_path is required when kind is ner"))
	}

	// Pipeline
	if strings.ContainsAny(cfg.Pipeline.DefaultLanguage, " \t\n") {
		errs = append(errs, fmt.Errorf("pipeline.default_language %q must be a single language code", cfg.Pipeline.DefaultLanguage))
	}
	if cfg.Pipeline.TranscriptionTimeout < 0 {
		errs = append(errs, errors.New("pipeline.transcription_timeout must not be negative"))
	}
	if cfg.Pipeline.ImprovementTimeout < 0 {
		errs = append(errs, errors.New("pipeline.improvement_timeout must not be negative"))
	}

	// Batch
	if cfg.Batch.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency %d must be at least 1", cfg.Batch.Concurrency))
	}
	if cfg.Batch.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("batch.requests_per_second must not be negative"))
	}
	if cfg.Batch.Pattern != "" && !doublestar.ValidatePattern(cfg.Batch.Pattern) {
		errs = append(errs, fmt.Errorf("batch.pattern %q is not a valid glob", cfg.Batch.Pattern))
	}

	// Watch
	if cfg.Watch.Settle < 0 {
		errs = append(errs, errors.New("watch.settle must not be negative"))
	}

	return errors.Join(errs...)
}

// validateEntry checks one provider block and warns about unknown names.
func validateEntry(field, kind string, e ProviderEntry) []error {
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", field)}
	}
	validateProviderName(kind, e.Name)
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

func isZeroEntry(e ProviderEntry) bool {
	return e.Name == "" && e.APIKey == "" && e.BaseURL == "" && e.Model == "" && len(e.Options) == 0
}
