// Package pipeline turns one audio recording into one journal entry.
//
// A run transcribes the recording, improves the transcript with a language
// model, extracts entity names, links them, saves the entry and the entity
// mentions, indexes the improved text for similarity search and finally
// archives the recording:
//
//	Received → Transcribed → Improved → Linked → Persisted → Indexed → Archived → Done
//
// Any stage may end the run in Failed. Work already done by earlier stages
// is kept; nothing is rolled back. Context cancellation is honoured at every
// stage boundary.
//
// A [Pipeline] holds no per-run state and may run many recordings
// concurrently. Serialisation of writes to the same date or entity is left
// to the stores.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/audiojournal/internal/archive"
	"github.com/MrWong99/audiojournal/internal/entity"
	"github.com/MrWong99/audiojournal/internal/extract"
	"github.com/MrWong99/audiojournal/internal/improve"
	"github.com/MrWong99/audiojournal/internal/journal"
	"github.com/MrWong99/audiojournal/internal/observe"
	"github.com/MrWong99/audiojournal/internal/wikilink"
	"github.com/MrWong99/audiojournal/pkg/provider/stt"
)

const (
	// DefaultMentionContext is the context recorded with every mention.
	DefaultMentionContext = "Mentioned in this entry"

	defaultLookalikeThreshold = 0.88
)

// Improver rewrites a raw transcript. It is satisfied by *improve.Improver.
type Improver interface {
	Improve(ctx context.Context, transcript string, lang improve.Language) (string, error)
}

// Indexer stores entry text for similarity search. It is satisfied by
// *vectorindex.Index.
type Indexer interface {
	Upsert(ctx context.Context, date, text string, metadata map[string]string) error
}

// Archiver keeps copies of processed recordings. It is satisfied by
// *archive.Archiver.
type Archiver interface {
	Archive(ctx context.Context, audioPath string) (string, error)
	SaveTranscripts(ctx context.Context, audioPath, original, improved string) (archive.Transcripts, error)
}

// Components are the collaborators of a [Pipeline]. Archiver is optional;
// every other field is required.
type Components struct {
	Transcriber stt.Provider
	Improver    Improver
	Extractor   extract.Extractor
	Journal     journal.Store
	Registry    entity.Registry
	Index       Indexer
	Archiver    Archiver
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithMentionContext sets the context string recorded with each mention.
// Default: [DefaultMentionContext].
func WithMentionContext(s string) Option {
	return func(p *Pipeline) {
		if s != "" {
			p.mentionContext = s
		}
	}
}

// WithDefaultLanguage sets the language hint used when a request carries
// none. Empty means auto-detect.
func WithDefaultLanguage(code string) Option {
	return func(p *Pipeline) { p.defaultLanguage = code }
}

// WithTranscriptionTimeout bounds the transcription call. Zero disables the
// bound.
func WithTranscriptionTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.transcriptionTimeout = d }
}

// WithImprovementTimeout bounds the language model call. Zero disables the
// bound.
func WithImprovementTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.improvementTimeout = d }
}

// WithSaveTranscripts controls whether the raw and improved transcripts are
// written next to the archived recording. Requires an Archiver.
func WithSaveTranscripts(enabled bool) Option {
	return func(p *Pipeline) { p.saveTranscripts = enabled }
}

// WithClock replaces time.Now as the source of the entry date and creation
// time.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProviderNames sets the provider labels used in request metrics.
func WithProviderNames(sttName, llmName string) Option {
	return func(p *Pipeline) {
		p.sttName = sttName
		p.llmName = llmName
	}
}

// WithLookalikeThreshold sets the minimum full-name similarity for an
// existing entity to be reported as a lookalike of a new one. A value above
// 1 disables lookalike reporting. Default: 0.88.
func WithLookalikeThreshold(threshold float64) Option {
	return func(p *Pipeline) { p.lookalikeThreshold = threshold }
}

// Pipeline runs recordings through the journal stages.
type Pipeline struct {
	c Components

	mentionContext       string
	defaultLanguage      string
	transcriptionTimeout time.Duration
	improvementTimeout   time.Duration
	saveTranscripts      bool
	lookalikeThreshold   float64
	sttName              string
	llmName              string

	now     func() time.Time
	newID   func() string
	metrics *observe.Metrics
}

// New returns a Pipeline wired to c.
func New(c Components, opts ...Option) (*Pipeline, error) {
	var missing []string
	if c.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if c.Improver == nil {
		missing = append(missing, "improver")
	}
	if c.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if c.Journal == nil {
		missing = append(missing, "journal")
	}
	if c.Registry == nil {
		missing = append(missing, "registry")
	}
	if c.Index == nil {
		missing = append(missing, "index")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing components: %s", strings.Join(missing, ", "))
	}

	p := &Pipeline{
		c:                  c,
		mentionContext:     DefaultMentionContext,
		lookalikeThreshold: defaultLookalikeThreshold,
		sttName:            "stt",
		llmName:            "llm",
		now:                time.Now,
		newID:              uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Request describes one recording to process.
type Request struct {
	// AudioPath is the recording on local disk.
	AudioPath string

	// Language forces the transcription language and prompt template.
	// Empty falls back to the configured default, then to auto-detection.
	Language string

	// Date is the entry date (YYYY-MM-DD). Empty means today.
	Date string
}

// Lookalike pairs a newly created entity with existing entities whose names
// sound the same, which usually means one of them is misspelled.
type Lookalike struct {
	Name     string
	Slug     string
	Existing []entity.Match
}

// Result describes a run, including runs that failed.
type Result struct {
	RunID string

	// State is StateDone or StateFailed once Run returns.
	State State

	// FailedStage is the stage the run stopped in when State is StateFailed.
	FailedStage State

	Date      string
	AudioPath string

	Transcript       string
	DetectedLanguage string
	Language         improve.Language
	Improved         string
	Entities         []entity.Candidate
	Linked           string

	// EntryLocation is where the journal store saved the entry.
	EntryLocation string

	// Partial is set when some entity mentions could not be recorded.
	Partial    bool
	MentionErr *entity.MentionError

	// Lookalikes lists new entities that sound like existing ones.
	Lookalikes []Lookalike

	ArchivePath string
	ArchiveErr  error

	Transcripts   archive.Transcripts
	TranscriptErr error
}

// Run processes one recording. It always returns a non-nil Result unless
// the request itself is invalid.
//
// A failed stage yields a *[StageError] matching the stage sentinel. A run
// that completed with unrecorded mentions ends in [StateDone] and returns a
// *[StageError] for [StatePersisted] that also matches [ErrPartial].
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.AudioPath == "" {
		return nil, fmt.Errorf("%w: audio path must not be empty", ErrInvalidRequest)
	}
	started := p.now()
	date := req.Date
	if date == "" {
		date = started.Format(journal.DateLayout)
	}
	if err := journal.ValidateDate(date); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	res := &Result{
		RunID:     p.newID(),
		State:     StateReceived,
		Date:      date,
		AudioPath: req.AudioPath,
	}

	ctx = observe.WithRunID(ctx, res.RunID)
	ctx, span := observe.StartSpan(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", res.RunID),
		attribute.String("date", date),
		attribute.String("audio", filepath.Base(req.AudioPath)),
	))
	p.metrics.ActiveRuns.Add(ctx, 1)
	defer p.metrics.ActiveRuns.Add(ctx, -1)

	log := observe.Logger(ctx).With(slog.String("audio", req.AudioPath), slog.String("date", date))
	log.Info("pipeline run started")

	err := p.run(ctx, req, res, started, log)

	outcome := observe.OutcomeDone
	switch {
	case res.State == StateFailed:
		outcome = observe.OutcomeFailed
		log.Error("pipeline run failed", slog.String("stage", string(res.FailedStage)), slog.Any("err", err))
	case res.Partial:
		outcome = observe.OutcomePartial
		log.Warn("pipeline run finished with unrecorded mentions",
			slog.Any("slugs", res.MentionErr.Slugs()), slog.Any("err", res.MentionErr))
	default:
		log.Info("pipeline run finished", slog.String("entry", res.EntryLocation))
	}
	p.metrics.RecordRun(ctx, outcome)
	observe.EndSpan(span, err)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, req Request, res *Result, started time.Time, log *slog.Logger) error {
	forced := req.Language
	if forced == "" {
		forced = p.defaultLanguage
	}

	if err := p.stage(ctx, res, StateTranscribed, func(ctx context.Context) error {
		return p.transcribe(ctx, req.AudioPath, forced, res)
	}); err != nil {
		return err
	}
	log.Debug("transcribed", slog.Int("chars", len(res.Transcript)), slog.String("language", res.DetectedLanguage))

	if err := p.stage(ctx, res, StateImproved, func(ctx context.Context) error {
		return p.improve(ctx, res)
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, res, StateLinked, func(ctx context.Context) error {
		cands, err := p.c.Extractor.Extract(ctx, res.Improved)
		if err != nil {
			return err
		}
		res.Entities = cands
		res.Linked = wikilink.Link(res.Improved, cands)
		return nil
	}); err != nil {
		return err
	}
	log.Debug("linked", slog.Int("entities", len(res.Entities)))

	if err := p.stage(ctx, res, StatePersisted, func(ctx context.Context) error {
		return p.persist(ctx, req, res, started, log)
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, res, StateIndexed, func(ctx context.Context) error {
		return p.c.Index.Upsert(ctx, res.Date, res.Improved, map[string]string{
			"language":          string(res.Language),
			"detected_language": res.DetectedLanguage,
			"audio":             filepath.Base(req.AudioPath),
		})
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, res, StateArchived, func(ctx context.Context) error {
		p.archive(ctx, req.AudioPath, res, log)
		return nil
	}); err != nil {
		return err
	}

	res.State = StateDone
	if res.Partial {
		return &StageError{Stage: StatePersisted, Err: res.MentionErr, Partial: true}
	}
	return nil
}

// stage runs fn as the transition into next. The context is checked first
// so a cancelled run stops before starting new work.
func (p *Pipeline) stage(ctx context.Context, res *Result, next State, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fail(res, next, err)
	}

	ctx, span := observe.StartSpan(ctx, "pipeline."+string(next))
	start := time.Now()
	err := fn(ctx)
	p.metrics.RecordStage(ctx, string(next), time.Since(start).Seconds())
	observe.EndSpan(span, err)

	if err != nil {
		return fail(res, next, err)
	}
	res.State = next
	return nil
}

func fail(res *Result, stage State, err error) error {
	res.State = StateFailed
	res.FailedStage = stage
	return &StageError{Stage: stage, Err: err}
}

// ---- stages ----

func (p *Pipeline) transcribe(ctx context.Context, audioPath, forced string, res *Result) error {
	if p.transcriptionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.transcriptionTimeout)
		defer cancel()
	}

	out, err := p.c.Transcriber.Transcribe(ctx, stt.Request{AudioPath: audioPath, Language: forced})
	if err != nil {
		p.metrics.RecordProviderRequest(ctx, p.sttName, "stt", "error")
		p.metrics.RecordProviderError(ctx, p.sttName, "stt")
		return err
	}
	p.metrics.RecordProviderRequest(ctx, p.sttName, "stt", "ok")

	if out == nil || strings.TrimSpace(out.Text) == "" {
		return ErrEmptyTranscript
	}
	res.Transcript = strings.TrimSpace(out.Text)
	res.DetectedLanguage = forced
	if res.DetectedLanguage == "" {
		res.DetectedLanguage = out.Language
	}
	return nil
}

func (p *Pipeline) improve(ctx context.Context, res *Result) error {
	if p.improvementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.improvementTimeout)
		defer cancel()
	}

	res.Language = improve.ParseLanguage(res.DetectedLanguage)
	text, err := p.c.Improver.Improve(ctx, res.Transcript, res.Language)
	if err != nil {
		p.metrics.RecordProviderRequest(ctx, p.llmName, "llm", "error")
		p.metrics.RecordProviderError(ctx, p.llmName, "llm")
		return err
	}
	p.metrics.RecordProviderRequest(ctx, p.llmName, "llm", "ok")
	res.Improved = text
	return nil
}

func (p *Pipeline) persist(ctx context.Context, req Request, res *Result, started time.Time, log *slog.Logger) error {
	loc, err := p.c.Journal.Save(ctx, journal.Entry{
		Date:             res.Date,
		Created:          started.Format(journal.CreatedLayout),
		Body:             res.Linked,
		Language:         string(res.Language),
		DetectedLanguage: res.DetectedLanguage,
		Audio:            filepath.Base(req.AudioPath),
	})
	if err != nil {
		return err
	}
	res.EntryLocation = loc

	if len(res.Entities) == 0 {
		return nil
	}

	fresh := p.newEntities(ctx, res.Entities)
	err = p.c.Registry.RecordMentions(ctx, res.Entities, res.Date, p.mentionContext)

	failed := map[string]bool{}
	if err != nil {
		res.Partial = true
		res.MentionErr = asMentionError(err, res.Entities)
		for _, s := range res.MentionErr.Slugs() {
			failed[s] = true
		}
	}
	p.metrics.RecordMentions(ctx, len(res.Entities)-len(failed))

	for _, c := range fresh {
		if failed[c.Slug()] {
			continue
		}
		if la, ok := p.lookalike(ctx, c, log); ok {
			res.Lookalikes = append(res.Lookalikes, la)
		}
	}
	return nil
}

// archive saves the transcripts and copies the recording. Both are best
// effort: failures are recorded in res and logged.
func (p *Pipeline) archive(ctx context.Context, audioPath string, res *Result, log *slog.Logger) {
	if p.c.Archiver == nil {
		return
	}

	if p.saveTranscripts {
		t, err := p.c.Archiver.SaveTranscripts(ctx, audioPath, res.Transcript, res.Improved)
		if err != nil {
			res.TranscriptErr = fmt.Errorf("%w: %w", ErrArchival, err)
			log.Warn("failed to save transcripts", slog.Any("err", err))
		} else {
			res.Transcripts = t
		}
	}

	dst, err := p.c.Archiver.Archive(ctx, audioPath)
	if err != nil {
		res.ArchiveErr = fmt.Errorf("%w: %w", ErrArchival, err)
		log.Warn("failed to archive recording", slog.Any("err", err))
		return
	}
	res.ArchivePath = dst
}

// asMentionError returns err as a *entity.MentionError. Errors of any other
// shape are attributed to every candidate.
func asMentionError(err error, cands []entity.Candidate) *entity.MentionError {
	var me *entity.MentionError
	if errors.As(err, &me) {
		return me
	}
	me = &entity.MentionError{}
	for _, c := range cands {
		me.Failures = append(me.Failures, entity.MentionFailure{Slug: c.Slug(), Err: err})
	}
	return me
}
