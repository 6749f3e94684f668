package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/MrWong99/audiojournal/internal/journal"
)

// DefaultPattern matches the audio formats the transcription backends accept.
const DefaultPattern = "**/*.{wav,mp3,m4a,ogg,flac,webm}"

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Discover returns every file under root matching pattern, as sorted paths
// joined to root. Matching ignores case, so "MEMO.WAV" is found by *.wav.
func Discover(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("batch: invalid pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern,
		doublestar.WithFilesOnly(),
		doublestar.WithCaseInsensitive(),
	)
	if err != nil {
		return nil, fmt.Errorf("batch: discover %s: %w", root, err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if isHidden(m) {
			continue
		}
		out = append(out, filepath.Join(root, filepath.FromSlash(m)))
	}
	slices.Sort(out)
	return out, nil
}

// Matches reports whether the base name of path matches the file part of
// pattern. Used by watch mode for single files.
func Matches(pattern, path string) bool {
	if pattern == "" {
		pattern = DefaultPattern
	}
	file := pattern
	if i := strings.LastIndex(pattern, "/"); i >= 0 {
		file = pattern[i+1:]
	}
	ok, err := doublestar.Match(strings.ToLower(file), strings.ToLower(filepath.Base(path)))
	return err == nil && ok && !isHidden(filepath.Base(path))
}

// InferDate picks the entry date for a recording without an explicit one:
// the first valid YYYY-MM-DD in the file name, else the modification day.
func InferDate(path string, modTime time.Time) string {
	for _, m := range datePattern.FindAllString(filepath.Base(path), -1) {
		if journal.ValidateDate(m) == nil {
			return m
		}
	}
	return modTime.Format(journal.DateLayout)
}

// FromDirectory discovers recordings under root and infers their dates.
func FromDirectory(root, pattern string) ([]Item, error) {
	paths, err := Discover(root, pattern)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("batch: stat %s: %w", p, err)
		}
		items = append(items, Item{Path: p, Date: InferDate(p, info.ModTime())})
	}
	return items, nil
}

// Exclude drops the items whose path lies inside one of dirs. Batch runs use
// it to skip the archive, which may sit inside the scanned directory.
func Exclude(items []Item, dirs ...string) []Item {
	var roots []string
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if abs, err := filepath.Abs(d); err == nil {
			roots = append(roots, abs)
		}
	}
	if len(roots) == 0 {
		return items
	}
	return slices.DeleteFunc(slices.Clone(items), func(it Item) bool {
		abs, err := filepath.Abs(it.Path)
		if err != nil {
			return false
		}
		return slices.ContainsFunc(roots, func(root string) bool {
			rel, err := filepath.Rel(root, abs)
			return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
		})
	})
}

func isHidden(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

