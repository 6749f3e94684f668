// Package fsutil holds the small file-system primitives shared by the
// journal store, the entity registry and the archiver.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// TempFilePrefix is the prefix of the temporary files created next to the
// target while an atomic write is in flight.
const TempFilePrefix = ".audiojournal-tmp-"

// WriteFileAtomic writes data to filename by writing a temporary file in the
// same directory, syncing it and renaming it over the target. Readers see
// either the old content or the new content, never a torn write. The parent
// directory is created when missing.
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsutil: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("fsutil: create temp file: %w", err)
	}
	// No-op once the rename succeeded.
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: write temp file: %w", err)
	}
	return commit(tmp, filename, perm, time.Time{})
}

// CopyFileAtomic copies src to dst with the same guarantees as
// [WriteFileAtomic]. The copy keeps the modification time of src, which is
// the recording day of an archived memo. The source is left untouched.
func CopyFileAtomic(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fsutil: open %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("fsutil: stat %s: %w", src, err)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsutil: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("fsutil: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: copy %s: %w", src, err)
	}
	return commit(tmp, dst, perm, info.ModTime())
}

// commit syncs and closes tmp, applies perm and mtime (unless zero) and
// renames it to target.
func commit(tmp *os.File, target string, perm os.FileMode, mtime time.Time) error {
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fsutil: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("fsutil: chmod temp file: %w", err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(tmp.Name(), time.Time{}, mtime); err != nil {
			return fmt.Errorf("fsutil: set mtime of temp file: %w", err)
		}
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("fsutil: rename temp file to %s: %w", target, err)
	}
	return nil
}
