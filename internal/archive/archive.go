// Package archive keeps copies of processed recordings and their transcripts
// under a single archive root:
//
//	<root>/processed/<basename>
//	<root>/transcripts/<base>_original.txt
//	<root>/transcripts/<base>_improved.txt
//
// Source files are copied, never moved.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MrWong99/audiojournal/internal/fsutil"
)

const (
	// ProcessedDir is the sub-directory holding archived recordings.
	ProcessedDir = "processed"

	// TranscriptsDir is the sub-directory holding transcript captures.
	TranscriptsDir = "transcripts"

	filePerm = 0o644
)

// Archiver copies recordings and transcripts into the archive root.
// It holds no mutable state and is safe for concurrent use.
type Archiver struct {
	root string
}

// New returns an Archiver rooted at root.
func New(root string) *Archiver {
	return &Archiver{root: root}
}

// Root returns the archive root directory.
func (a *Archiver) Root() string { return a.root }

// ProcessedPath returns where Archive stores audioPath.
func (a *Archiver) ProcessedPath(audioPath string) string {
	return filepath.Join(a.root, ProcessedDir, filepath.Base(audioPath))
}

// Archive copies the recording to <root>/processed/<basename> and returns
// the destination. An existing copy with the same name is replaced. When the
// recording already is the archived copy nothing is written.
func (a *Archiver) Archive(ctx context.Context, audioPath string) (string, error) {
	if audioPath == "" {
		return "", errors.New("archive: audio path must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := a.ProcessedPath(audioPath)
	if samePath(audioPath, dst) {
		return dst, nil
	}
	if err := fsutil.CopyFileAtomic(audioPath, dst, filePerm); err != nil {
		return "", fmt.Errorf("archive: copy audio: %w", err)
	}
	return dst, nil
}

// Transcripts is the result of [Archiver.SaveTranscripts].
type Transcripts struct {
	OriginalPath string
	ImprovedPath string
}

// SaveTranscripts writes the raw transcript and the improved text next to
// each other, named after the recording without its extension.
func (a *Archiver) SaveTranscripts(ctx context.Context, audioPath, original, improved string) (Transcripts, error) {
	if err := ctx.Err(); err != nil {
		return Transcripts{}, err
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return Transcripts{}, fmt.Errorf("archive: cannot derive transcript name from %q", audioPath)
	}
	dir := filepath.Join(a.root, TranscriptsDir)
	out := Transcripts{
		OriginalPath: filepath.Join(dir, base+"_original.txt"),
		ImprovedPath: filepath.Join(dir, base+"_improved.txt"),
	}

	if err := fsutil.WriteFileAtomic(out.OriginalPath, []byte(original), filePerm); err != nil {
		return Transcripts{}, fmt.Errorf("archive: save original transcript: %w", err)
	}
	if err := fsutil.WriteFileAtomic(out.ImprovedPath, []byte(improved), filePerm); err != nil {
		return Transcripts{}, fmt.Errorf("archive: save improved transcript: %w", err)
	}
	return out, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
