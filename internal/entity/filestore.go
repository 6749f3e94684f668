package entity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/audiojournal/internal/fsutil"
	"github.com/MrWong99/audiojournal/internal/phonetic"
)

const (
	pageExt  = ".md"
	pagePerm = 0o644

	// defaultJournalLink is the journal directory as seen from the entities
	// directory in the default layout.
	defaultJournalLink = "../journal_notes"
)

// Compile-time assertion that FileRegistry satisfies the Registry interface.
var _ Registry = (*FileRegistry)(nil)

// Option is a functional option for configuring a [FileRegistry].
type Option func(*FileRegistry)

// WithJournalDir sets the directory holding the journal entries. Mention
// links on entity pages are written relative to it. When unset, links point
// to ../journal_notes.
func WithJournalDir(dir string) Option {
	return func(r *FileRegistry) {
		r.journalDir = dir
	}
}

// WithMatcher replaces the phonetic matcher used by Similar.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(r *FileRegistry) {
		r.matcher = m
	}
}

// FileRegistry stores one markdown page per entity in a directory. Pages are
// rewritten through an atomic temp-file rename, so a failed write leaves the
// previous page intact. Writers to the same slug are serialised by a per-slug
// lock; no entity state is cached in memory.
type FileRegistry struct {
	dir         string
	journalDir  string
	journalLink string
	matcher     *phonetic.Matcher
	locks       fsutil.KeyedMutex
}

// NewFileRegistry returns a registry rooted at dir, creating the directory
// when needed.
func NewFileRegistry(dir string, opts ...Option) (*FileRegistry, error) {
	if dir == "" {
		return nil, errors.New("entity: directory must not be empty")
	}
	r := &FileRegistry{
		dir:         dir,
		journalLink: defaultJournalLink,
		matcher:     phonetic.New(),
	}
	for _, o := range opts {
		o(r)
	}

	if r.journalDir != "" {
		rel, err := relativeLink(dir, r.journalDir)
		if err != nil {
			return nil, fmt.Errorf("entity: journal link: %w", err)
		}
		r.journalLink = rel
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("entity: create dir: %w", err)
	}
	return r, nil
}

// Dir returns the directory the pages live in.
func (r *FileRegistry) Dir() string { return r.dir }

// PagePath returns the location of the page for slug.
func (r *FileRegistry) PagePath(slug string) string {
	return filepath.Join(r.dir, slug+pageExt)
}

// RecordMentions implements [Registry.RecordMentions].
func (r *FileRegistry) RecordMentions(ctx context.Context, entities []Candidate, date, mentionContext string) error {
	mention := Mention{
		Date:    date,
		Context: singleLine(mentionContext),
		Link:    path.Join(r.journalLink, date+pageExt),
	}
	return recordAll(ctx, entities, func(c Candidate) error {
		return r.appendMention(c, mention)
	})
}

// appendMention rewrites the page of c with m appended, creating the page
// when it does not exist.
func (r *FileRegistry) appendMention(c Candidate, m Mention) error {
	slug := Slug(c.Name)
	unlock := r.locks.Lock(slug)
	defer unlock()

	e, err := r.read(slug)
	switch {
	case errors.Is(err, ErrNotFound):
		e = Entity{Name: c.Name, Slug: slug, Kind: kindOrDefault(c.Kind)}
		slog.Debug("entity: creating page", "slug", slug, "kind", e.Kind)
	case err != nil:
		return err
	}
	e.Mentions = append(e.Mentions, m)

	data, err := renderPage(e)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(r.PagePath(slug), data, pagePerm); err != nil {
		return fmt.Errorf("entity: write page %s: %w", slug, err)
	}
	return nil
}

// Get implements [Registry.Get].
func (r *FileRegistry) Get(ctx context.Context, slug string) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	if err := validateSlug(slug); err != nil {
		return Entity{}, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	return r.read(slug)
}

// List implements [Registry.List]. Pages that cannot be parsed are logged
// and skipped.
func (r *FileRegistry) List(ctx context.Context) ([]Entity, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("entity: list: %w", err)
	}

	out := make([]Entity, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, pageExt) || strings.HasPrefix(name, fsutil.TempFilePrefix) {
			continue
		}
		e, err := r.read(strings.TrimSuffix(name, pageExt))
		if err != nil {
			slog.Warn("entity: skipping unreadable page", "file", name, "err", err)
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entity) int { return strings.Compare(a.Slug, b.Slug) })
	return out, nil
}

// Similar implements [Registry.Similar].
func (r *FileRegistry) Similar(ctx context.Context, name string) ([]Match, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return rankSimilar(r.matcher, name, all), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// read loads and parses the page for slug without taking its lock.
func (r *FileRegistry) read(slug string) (Entity, error) {
	data, err := os.ReadFile(r.PagePath(slug))
	if errors.Is(err, fs.ErrNotExist) {
		return Entity{}, ErrNotFound
	}
	if err != nil {
		return Entity{}, fmt.Errorf("entity: read page %s: %w", slug, err)
	}
	return parsePage(data, slug)
}

// relativeLink returns target relative to base in slash form, for use in
// markdown links.
func relativeLink(base, target string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
