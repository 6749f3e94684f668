// Package batch runs many recordings through the pipeline with bounded
// concurrency.
//
// Recordings come from a directory (matched by a doublestar pattern) or from
// an .xlsx manifest. A failed recording never stops the others; the
// [Summary] collects every outcome.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/MrWong99/audiojournal/internal/fsutil"
	"github.com/MrWong99/audiojournal/internal/observe"
	"github.com/MrWong99/audiojournal/internal/pipeline"
)

const defaultConcurrency = 2

// Item is one recording to process.
type Item struct {
	Path     string
	Date     string
	Language string
}

// Runner processes one recording. It is satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Outcome is the result of one item.
type Outcome struct {
	Item   Item
	Result *pipeline.Result
	Err    error
}

// Failed reports whether the item did not produce an entry. Partial runs
// count as processed.
func (o Outcome) Failed() bool {
	return o.Err != nil && !errors.Is(o.Err, pipeline.ErrPartial)
}

// Summary lists the outcomes in input order.
type Summary struct {
	Outcomes []Outcome
}

// Failed returns the number of failed items.
func (s Summary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// Err joins the errors of the failed items, or returns nil.
func (s Summary) Err() error {
	var errs []error
	for _, o := range s.Outcomes {
		if o.Failed() {
			errs = append(errs, fmt.Errorf("%s: %w", o.Item.Path, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Option is a functional option for configuring a [Processor].
type Option func(*Processor)

// WithConcurrency sets how many recordings run at once. Default: 2.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithRate limits how many recordings are started per second. Zero or less
// means unlimited.
func WithRate(perSecond float64) Option {
	return func(p *Processor) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			p.limiter = nil
		}
	}
}

// WithProgress registers a callback invoked after each item finishes. It
// may be called from several goroutines at once.
func WithProgress(fn func(Outcome)) Option {
	return func(p *Processor) { p.progress = fn }
}

// Processor runs items through a [Runner]. Items sharing a date never run
// at the same time, so the entry and the vector of a day always come from
// the same recording.
type Processor struct {
	runner      Runner
	concurrency int
	limiter     *rate.Limiter
	progress    func(Outcome)
	dates       fsutil.KeyedMutex
}

// New returns a Processor backed by r.
func New(r Runner, opts ...Option) *Processor {
	p := &Processor{runner: r, concurrency: defaultConcurrency}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs every item and waits for all of them. Items not yet started
// when ctx is cancelled fail with the context error.
func (p *Processor) Process(ctx context.Context, items []Item) Summary {
	sum := Summary{Outcomes: make([]Outcome, len(items))}
	log := observe.Logger(ctx)

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	start := time.Now()
	for i, item := range items {
		g.Go(func() error {
			out := p.processOne(ctx, item)
			sum.Outcomes[i] = out
			if p.progress != nil {
				p.progress(out)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("batch finished",
		slog.Int("items", len(items)),
		slog.Int("failed", sum.Failed()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return sum
}

func (p *Processor) processOne(ctx context.Context, item Item) Outcome {
	out := Outcome{Item: item}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			out.Err = err
			return out
		}
	}
	unlock := p.dates.Lock(item.Date)
	defer unlock()
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	out.Result, out.Err = p.runner.Run(ctx, pipeline.Request{
		AudioPath: item.Path,
		Date:      item.Date,
		Language:  item.Language,
	})
	return out
}

// Load resolves source into items: a manifest when source is an .xlsx file,
// otherwise a directory scanned with pattern.
func Load(source, pattern string) ([]Item, error) {
	if IsManifest(source) {
		return ReadManifest(source)
	}
	return FromDirectory(source, pattern)
}
