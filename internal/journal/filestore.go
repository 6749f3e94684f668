package journal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/audiojournal/internal/fsutil"
)

const (
	entryExt  = ".md"
	entryPerm = 0o644
)

// Compile-time assertion that FileStore satisfies the Store interface.
var _ Store = (*FileStore)(nil)

// FileStore keeps entries as markdown files in a single directory. Writes go
// through a temp file that is synced and renamed over the target, so a
// reader never observes a partially written entry.
type FileStore struct {
	dir   string
	locks fsutil.KeyedMutex
}

// NewFileStore returns a store rooted at dir, creating the directory when
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("journal: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the entries live in.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file location of the entry for date.
func (s *FileStore) Path(date string) string {
	return filepath.Join(s.dir, date+entryExt)
}

// Save implements [Store.Save].
func (s *FileStore) Save(ctx context.Context, e Entry) (string, error) {
	if err := ValidateDate(e.Date); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := render(e)
	if err != nil {
		return "", err
	}

	unlock := s.locks.Lock(e.Date)
	defer unlock()

	path := s.Path(e.Date)
	if err := fsutil.WriteFileAtomic(path, data, entryPerm); err != nil {
		return "", fmt.Errorf("journal: save %s: %w", e.Date, err)
	}
	return path, nil
}

// Load implements [Store.Load].
func (s *FileStore) Load(ctx context.Context, date string) (Entry, error) {
	if err := ValidateDate(date); err != nil {
		return Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	data, err := os.ReadFile(s.Path(date))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("journal: load %s: %w", date, err)
	}
	e, err := parse(data)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: load %s: %w", date, err)
	}
	if e.Date == "" {
		e.Date = date
	}
	return e, nil
}

// List implements [Store.List]. Files whose names are not dates are ignored.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	dates := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		date, ok := strings.CutSuffix(de.Name(), entryExt)
		if de.IsDir() || !ok || ValidateDate(date) != nil {
			continue
		}
		dates = append(dates, date)
	}
	slices.Sort(dates)
	return dates, nil
}

// Writable reports whether new entries can be created in the store's
// directory. It is used by readiness checks.
func (s *FileStore) Writable(_ context.Context) error {
	f, err := os.CreateTemp(s.dir, fsutil.TempFilePrefix+"probe-*")
	if err != nil {
		return fmt.Errorf("journal: directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
