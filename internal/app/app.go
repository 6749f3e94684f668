// Package app wires the audiojournal subsystems into a running application.
//
// New creates the stores, the similarity index, the extractor and the
// pipeline from the configuration. Process, Batch and Watch drive the
// pipeline; Shutdown releases everything New opened.
//
// For testing, inject doubles via functional options (WithVectorStore,
// WithExtractor, etc.). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/MrWong99/audiojournal/internal/archive"
	"github.com/MrWong99/audiojournal/internal/batch"
	"github.com/MrWong99/audiojournal/internal/config"
	"github.com/MrWong99/audiojournal/internal/entity"
	"github.com/MrWong99/audiojournal/internal/extract"
	"github.com/MrWong99/audiojournal/internal/health"
	"github.com/MrWong99/audiojournal/internal/improve"
	"github.com/MrWong99/audiojournal/internal/journal"
	"github.com/MrWong99/audiojournal/internal/observe"
	"github.com/MrWong99/audiojournal/internal/pipeline"
	"github.com/MrWong99/audiojournal/internal/vectorindex"
	"github.com/MrWong99/audiojournal/pkg/vectorstore"
	"github.com/MrWong99/audiojournal/pkg/vectorstore/postgres"
	"github.com/MrWong99/audiojournal/pkg/vectorstore/sqlite"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	journal   *journal.FileStore
	entities  entity.Registry
	store     vectorstore.Store
	index     *vectorindex.Index
	extractor extract.Extractor
	archiver  *archive.Archiver
	pipeline  *pipeline.Pipeline
	metrics   *observe.Metrics

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithVectorStore injects a vector store instead of opening the configured
// backend. The App does not close an injected store.
func WithVectorStore(s vectorstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithEntityRegistry injects an entity registry instead of the file registry.
func WithEntityRegistry(r entity.Registry) Option {
	return func(a *App) { a.entities = r }
}

// WithExtractor injects an extractor instead of the configured kind.
func WithExtractor(e extract.Extractor) Option {
	return func(a *App) { a.extractor = e }
}

// WithMetrics injects the metrics instruments used by the pipeline and the
// HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders] (or from test doubles).
//
// When New fails, everything it already opened is closed again.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.Embeddings == nil {
		return nil, errNoProviders
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	var err error

	// ── 1. Journal store ─────────────────────────────────────────────────
	a.journal, err = journal.NewFileStore(a.cfg.Paths.JournalDir)
	if err != nil {
		return fmt.Errorf("app: init journal: %w", err)
	}

	// ── 2. Entity registry ───────────────────────────────────────────────
	if a.entities == nil {
		a.entities, err = entity.NewFileRegistry(a.cfg.Paths.EntitiesDir,
			entity.WithJournalDir(a.cfg.Paths.JournalDir))
		if err != nil {
			return fmt.Errorf("app: init entities: %w", err)
		}
	}

	// ── 3. Vector index ──────────────────────────────────────────────────
	if err := a.initVectors(ctx); err != nil {
		return fmt.Errorf("app: init vectors: %w", err)
	}

	// ── 4. Extractor ─────────────────────────────────────────────────────
	if err := a.initExtractor(); err != nil {
		return fmt.Errorf("app: init extractor: %w", err)
	}

	// ── 5. Archive ───────────────────────────────────────────────────────
	a.archiver = archive.New(a.cfg.Paths.ArchiveDir)

	// ── 6. Pipeline ──────────────────────────────────────────────────────
	a.pipeline, err = pipeline.New(pipeline.Components{
		Transcriber: a.providers.STT,
		Improver:    improve.New(a.providers.LLM),
		Extractor:   a.extractor,
		Journal:     a.journal,
		Registry:    a.entities,
		Index:       a.index,
		Archiver:    a.archiver,
	}, a.pipelineOptions()...)
	if err != nil {
		return fmt.Errorf("app: init pipeline: %w", err)
	}

	slog.Info("app initialised",
		"journal_dir", a.cfg.Paths.JournalDir,
		"entities_dir", a.cfg.Paths.EntitiesDir,
		"archive_dir", a.cfg.Paths.ArchiveDir,
		"vector_backend", a.cfg.VectorStore.Backend,
		"extractor", a.cfg.Extractor.Kind,
	)
	return nil
}

// initVectors opens the configured vector backend unless one was injected.
// Dimensions default to what the embeddings provider reports.
func (a *App) initVectors(ctx context.Context) error {
	if a.store == nil {
		dims := a.cfg.VectorStore.Dimensions
		if dims == 0 {
			dims = a.providers.Embeddings.Dimensions()
		}

		switch a.cfg.VectorStore.Backend {
		case config.BackendSQLite:
			s, err := sqlite.Open(ctx, a.cfg.VectorStore.Path, dims)
			if err != nil {
				return err
			}
			a.store = s
		case config.BackendPostgres:
			s, err := postgres.NewStore(ctx, a.cfg.VectorStore.PostgresDSN, dims)
			if err != nil {
				return err
			}
			a.store = s
		case config.BackendMemory:
			a.store = vectorstore.NewMemStore(dims)
		default:
			return fmt.Errorf("unknown vector backend %q", a.cfg.VectorStore.Backend)
		}
		a.closers = append(a.closers, a.store.Close)
		slog.Debug("vector store opened", "backend", a.cfg.VectorStore.Backend, "dimensions", dims)
	}
	a.index = vectorindex.New(a.providers.Embeddings, a.store)
	return nil
}

func (a *App) initExtractor() error {
	if a.extractor != nil {
		return nil
	}
	switch a.cfg.Extractor.Kind {
	case config.ExtractorNER:
		ner, err := extract.NewNER(a.cfg.Extractor.ModelPath, extract.WithDenylist(a.cfg.Extractor.Denylist...))
		if err != nil {
			return err
		}
		a.extractor = ner
		a.closers = append(a.closers, ner.Close)
	default:
		a.extractor = extract.NewCapitalized(a.cfg.Extractor.Denylist...)
	}
	return nil
}

func (a *App) pipelineOptions() []pipeline.Option {
	pc := a.cfg.Pipeline
	opts := []pipeline.Option{
		pipeline.WithSaveTranscripts(pc.TranscriptsEnabled()),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithProviderNames(providerName(a.providers.STTName, "stt"), providerName(a.providers.LLMName, "llm")),
	}
	if pc.MentionContext != "" {
		opts = append(opts, pipeline.WithMentionContext(pc.MentionContext))
	}
	if pc.DefaultLanguage != "" {
		opts = append(opts, pipeline.WithDefaultLanguage(pc.DefaultLanguage))
	}
	if pc.TranscriptionTimeout > 0 {
		opts = append(opts, pipeline.WithTranscriptionTimeout(pc.TranscriptionTimeout))
	}
	if pc.ImprovementTimeout > 0 {
		opts = append(opts, pipeline.WithImprovementTimeout(pc.ImprovementTimeout))
	}
	return opts
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Journal returns the journal store.
func (a *App) Journal() *journal.FileStore { return a.journal }

// Entities returns the entity registry.
func (a *App) Entities() entity.Registry { return a.entities }

// Index returns the similar-entry index.
func (a *App) Index() *vectorindex.Index { return a.index }

// Pipeline returns the configured pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// ─── Operations ──────────────────────────────────────────────────────────────

// Process runs a single recording through the pipeline.
func (a *App) Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	return a.pipeline.Run(ctx, req)
}

// Batch processes every recording named by source, either a directory or an
// .xlsx manifest. progress, if non-nil, is called once per finished item.
// Individual failures are reported through the summary, not the error.
// Copies inside the archive are skipped, so the archive root may also be the
// directory recordings are collected in.
func (a *App) Batch(ctx context.Context, source string, progress func(batch.Outcome)) (batch.Summary, error) {
	items, err := batch.Load(source, a.cfg.Batch.Pattern)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("app: batch: %w", err)
	}
	root := a.cfg.Paths.ArchiveDir
	kept := batch.Exclude(items,
		filepath.Join(root, archive.ProcessedDir),
		filepath.Join(root, archive.TranscriptsDir),
	)
	if skipped := len(items) - len(kept); skipped > 0 {
		slog.Debug("skipping archived recordings", "count", skipped, "archive", root)
	}
	items = kept
	if len(items) == 0 {
		slog.Warn("no recordings found", "source", source, "pattern", a.cfg.Batch.Pattern)
		return batch.Summary{}, nil
	}

	opts := []batch.Option{batch.WithConcurrency(a.cfg.Batch.Concurrency)}
	if rps := a.cfg.Batch.RequestsPerSecond; rps > 0 {
		opts = append(opts, batch.WithRate(rps))
	}
	if progress != nil {
		opts = append(opts, batch.WithProgress(progress))
	}
	return batch.New(a.pipeline, opts...).Process(ctx, items), nil
}

// Search returns up to k entries similar to text. A k below 1 uses
// [vectorindex.DefaultLimit].
func (a *App) Search(ctx context.Context, text string, k int) ([]vectorindex.Result, error) {
	if k < 1 {
		k = vectorindex.DefaultLimit
	}
	return a.index.Query(ctx, text, k)
}

// Health returns the health handler with the readiness checks of this App:
// the journal directory is writable and the vector store answers.
func (a *App) Health() *health.Handler {
	return health.New(
		health.Writable("journal", a.journal),
		health.Directory("entities", a.cfg.Paths.EntitiesDir),
		health.Reachable("vectors", a.store),
	)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes every subsystem New opened. It is safe to call more than
// once; only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Debug("shutting down", "closers", len(a.closers))

		var errs []error
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				shutdownErr = errors.Join(errs...)
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}
		shutdownErr = errors.Join(errs...)
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func providerName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
