// Package sqlite provides a single-file vectorstore.Store backed by SQLite
// (modernc.org/sqlite, no CGO).
//
// Vectors are stored as little-endian float32 blobs and queries compute cosine
// similarity over every row. A personal journal accumulates one vector per
// day, so a full scan stays well below a millisecond per thousand entries.
//
// The database is opened in WAL mode with a busy timeout so that concurrent
// pipeline runs in batch mode do not fail with SQLITE_BUSY.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MrWong99/audiojournal/pkg/vectorstore"
)

// Compile-time assertion that Store implements vectorstore.Store.
var _ vectorstore.Store = (*Store)(nil)

// ddl creates the vectors table. dims records the length of each vector so
// that mismatches are detected before similarity is computed.
const ddl = `
CREATE TABLE IF NOT EXISTS vectors (
    id         TEXT     PRIMARY KEY,
    document   TEXT     NOT NULL,
    metadata   TEXT     NOT NULL DEFAULT '{}',
    embedding  BLOB     NOT NULL,
    dims       INTEGER  NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a SQLite-backed vectorstore.Store. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	dims int
}

// Open opens (or creates) the database at path and ensures the schema
// exists. When dims is positive, vectors of any other length are rejected.
func Open(ctx context.Context, path string, dims int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite vectorstore: path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite vectorstore: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite vectorstore: open: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite vectorstore: migrate: %w", err)
	}
	return &Store{db: db, path: path, dims: dims}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("sqlite vectorstore: upsert: empty id")
	}
	if s.dims > 0 && len(rec.Vector) != s.dims {
		return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(rec.Vector), s.dims)
	}

	meta, err := json.Marshal(nonNil(rec.Metadata))
	if err != nil {
		return fmt.Errorf("sqlite vectorstore: marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO vectors (id, document, metadata, embedding, dims, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
		    document   = excluded.document,
		    metadata   = excluded.metadata,
		    embedding  = excluded.embedding,
		    dims       = excluded.dims,
		    updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.Document, string(meta), float32SliceToBytes(rec.Vector), len(rec.Vector),
	); err != nil {
		return fmt.Errorf("sqlite vectorstore: upsert: %w", err)
	}
	return nil
}

// Query implements vectorstore.Store.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k < 1 {
		return nil, vectorstore.ErrInvalidK
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, document, metadata, embedding, dims FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("sqlite vectorstore: query: %w", err)
	}
	defer rows.Close()

	matches := []vectorstore.Match{}
	for rows.Next() {
		var (
			m    vectorstore.Match
			meta string
			blob []byte
			dims int
		)
		if err := rows.Scan(&m.ID, &m.Document, &meta, &blob, &dims); err != nil {
			return nil, fmt.Errorf("sqlite vectorstore: scan: %w", err)
		}
		if dims != len(vector) {
			return nil, fmt.Errorf("%w: stored %d, query %d", vectorstore.ErrDimensionMismatch, dims, len(vector))
		}
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite vectorstore: unmarshal metadata for %s: %w", m.ID, err)
		}
		if len(m.Metadata) == 0 {
			m.Metadata = nil
		}
		m.Vector = bytesToFloat32Slice(blob)
		m.Similarity = vectorstore.Cosine(vector, m.Vector)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite vectorstore: iterate: %w", err)
	}
	return vectorstore.TopK(matches, k), nil
}

// Count implements vectorstore.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite vectorstore: count: %w", err)
	}
	return n, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---- helpers ----------------------------------------------------------------

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
