package entity_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/audiojournal/internal/entity"
)

const defaultContext = "Mentioned in this entry"

func newFileRegistry(t *testing.T, opts ...entity.Option) *entity.FileRegistry {
	t.Helper()
	r, err := entity.NewFileRegistry(filepath.Join(t.TempDir(), "journal_entities"), opts...)
	require.NoError(t, err)
	return r
}

func TestFileRegistry_PageLayout(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)

	err := r.RecordMentions(ctx, []entity.Candidate{{Name: "Sarah Connor", Kind: entity.KindPerson}}, "2024-01-01", defaultContext)
	require.NoError(t, err)

	data, err := os.ReadFile(r.PagePath("Sarah_Connor"))
	require.NoError(t, err)

	want := `---
name: Sarah Connor
slug: Sarah_Connor
kind: person
---
# Sarah Connor

Type: person

## Mentions

- [2024-01-01](../journal_notes/2024-01-01.md): Mentioned in this entry
`
	assert.Equal(t, want, string(data))
}

func TestFileRegistry_MentionsAccumulateAcrossDates(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)
	john := []entity.Candidate{{Name: "John Smith", Kind: entity.KindPerson}}

	require.NoError(t, r.RecordMentions(ctx, john, "2024-01-01", defaultContext))
	require.NoError(t, r.RecordMentions(ctx, john, "2024-01-02", defaultContext))

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	e := all[0]
	assert.Equal(t, "John_Smith", e.Slug)
	assert.Equal(t, "John Smith", e.Name)
	require.Len(t, e.Mentions, 2)
	assert.Equal(t, "2024-01-01", e.Mentions[0].Date)
	assert.Equal(t, "2024-01-02", e.Mentions[1].Date)
}

func TestFileRegistry_SameDateTwiceIsNotDeduplicated(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)
	c := []entity.Candidate{{Name: "Olena"}}

	require.NoError(t, r.RecordMentions(ctx, c, "2024-03-08", defaultContext))
	require.NoError(t, r.RecordMentions(ctx, c, "2024-03-08", defaultContext))

	e, err := r.Get(ctx, "Olena")
	require.NoError(t, err)
	assert.Len(t, e.Mentions, 2)
	assert.Equal(t, entity.KindPerson, e.Kind, "empty kind is recorded as person")
}

func TestFileRegistry_KeepsFirstObservedNameAndKind(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)

	require.NoError(t, r.RecordMentions(ctx, []entity.Candidate{{Name: "Kyiv", Kind: entity.KindLocation}}, "2024-01-01", "a"))
	require.NoError(t, r.RecordMentions(ctx, []entity.Candidate{{Name: "Kyiv", Kind: entity.KindPerson}}, "2024-01-02", "b"))

	e, err := r.Get(ctx, "Kyiv")
	require.NoError(t, err)
	assert.Equal(t, entity.KindLocation, e.Kind)
	assert.Equal(t, []string{"a", "b"}, []string{e.Mentions[0].Context, e.Mentions[1].Context})
}

func TestFileRegistry_GetNotFound(t *testing.T) {
	r := newFileRegistry(t)
	_, err := r.Get(context.Background(), "Nobody")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestFileRegistry_GetRejectsPathSlugs(t *testing.T) {
	r := newFileRegistry(t)
	for _, slug := range []string{"..", "../secrets", ""} {
		_, err := r.Get(context.Background(), slug)
		assert.ErrorIs(t, err, entity.ErrInvalidName, "slug %q", slug)
	}
}

func TestFileRegistry_ListSortedBySlug(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)
	cands := []entity.Candidate{{Name: "Zoe"}, {Name: "Adam Ant"}, {Name: "Maria"}}
	require.NoError(t, r.RecordMentions(ctx, cands, "2024-01-01", defaultContext))

	// Stray files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(r.Dir(), "notes.txt"), []byte("x"), 0o644))

	all, err := r.List(ctx)
	require.NoError(t, err)
	var slugs []string
	for _, e := range all {
		slugs = append(slugs, e.Slug)
	}
	assert.Equal(t, []string{"Adam_Ant", "Maria", "Zoe"}, slugs)
}

func TestFileRegistry_PartialFailureKeepsOthers(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)

	// A directory where the page should be makes reading that slug fail.
	require.NoError(t, os.MkdirAll(r.PagePath("Broken"), 0o755))

	cands := []entity.Candidate{{Name: "Alice"}, {Name: "Broken"}, {Name: "   "}, {Name: "Bob"}}
	err := r.RecordMentions(ctx, cands, "2024-01-01", defaultContext)
	require.Error(t, err)

	var me *entity.MentionError
	require.True(t, errors.As(err, &me), "want *MentionError, got %T", err)
	assert.Equal(t, []string{"Broken", ""}, me.Slugs())
	assert.ErrorIs(t, err, entity.ErrInvalidName)

	for _, slug := range []string{"Alice", "Bob"} {
		e, err := r.Get(ctx, slug)
		require.NoError(t, err, slug)
		assert.Len(t, e.Mentions, 1)
	}
}

func TestFileRegistry_FailedWriteLeavesPreviousPage(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)
	c := []entity.Candidate{{Name: "Sarah Connor"}}
	require.NoError(t, r.RecordMentions(ctx, c, "2024-01-01", defaultContext))

	before, err := os.ReadFile(r.PagePath("Sarah_Connor"))
	require.NoError(t, err)

	// Without write permission on the directory the temp file cannot be
	// created. Root ignores permissions, so the check is skipped there.
	if os.Geteuid() == 0 {
		t.Skip("running as root: directory permissions are not enforced")
	}
	require.NoError(t, os.Chmod(r.Dir(), 0o555))
	t.Cleanup(func() { _ = os.Chmod(r.Dir(), 0o755) })

	err = r.RecordMentions(ctx, c, "2024-01-02", defaultContext)
	require.Error(t, err)

	after, err := os.ReadFile(r.PagePath("Sarah_Connor"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestFileRegistry_ConcurrentSameSlug(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			date := fmt.Sprintf("2024-01-%02d", i+1)
			assert.NoError(t, r.RecordMentions(ctx, []entity.Candidate{{Name: "John Smith"}, {Name: fmt.Sprintf("Other %c", 'A'+i)}}, date, defaultContext))
		}()
	}
	wg.Wait()

	e, err := r.Get(ctx, "John_Smith")
	require.NoError(t, err)
	assert.Len(t, e.Mentions, n, "no append may be lost")

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, n+1)
}

func TestFileRegistry_CancelledContext(t *testing.T) {
	r := newFileRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.RecordMentions(ctx, []entity.Candidate{{Name: "Alice"}}, "2024-01-01", defaultContext)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = r.Get(context.Background(), "Alice")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestFileRegistry_WithJournalDir(t *testing.T) {
	root := t.TempDir()
	r, err := entity.NewFileRegistry(filepath.Join(root, "kb", "people"),
		entity.WithJournalDir(filepath.Join(root, "kb", "days")))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.RecordMentions(ctx, []entity.Candidate{{Name: "Ada"}}, "2024-05-01", defaultContext))

	e, err := r.Get(ctx, "Ada")
	require.NoError(t, err)
	require.Len(t, e.Mentions, 1)
	assert.Equal(t, "../days/2024-05-01.md", e.Mentions[0].Link)
}

func TestFileRegistry_LegacyPageWithoutFrontmatter(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)

	legacy := "# Sarah Connor\n\nType: person\n\n## Mentions\n\n" +
		"- [2023-12-31](../journal_notes/2023-12-31.md): Mentioned in this entry\n"
	require.NoError(t, os.WriteFile(r.PagePath("Sarah_Connor"), []byte(legacy), 0o644))

	require.NoError(t, r.RecordMentions(ctx, []entity.Candidate{{Name: "Sarah Connor"}}, "2024-01-01", defaultContext))

	e, err := r.Get(ctx, "Sarah_Connor")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Connor", e.Name)
	require.Len(t, e.Mentions, 2)
	assert.Equal(t, "2023-12-31", e.Mentions[0].Date)
	assert.Equal(t, "2024-01-01", e.Mentions[1].Date)

	data, err := os.ReadFile(r.PagePath("Sarah_Connor"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "---\nname: Sarah Connor\n", "rewritten page gains frontmatter")
}

func TestFileRegistry_Similar(t *testing.T) {
	ctx := context.Background()
	r := newFileRegistry(t)
	cands := []entity.Candidate{{Name: "Sarah Connor"}, {Name: "John Smith"}, {Name: "Sara Conor"}}
	require.NoError(t, r.RecordMentions(ctx, cands, "2024-01-01", defaultContext))

	got, err := r.Similar(ctx, "Sara Conor")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "Sarah_Connor", got[0].Slug)
	for _, m := range got {
		assert.NotEqual(t, "Sara_Conor", m.Slug, "an entity is never its own look-alike")
	}
}

func TestNewFileRegistry_EmptyDir(t *testing.T) {
	_, err := entity.NewFileRegistry("")
	assert.Error(t, err)
}
