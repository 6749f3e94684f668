package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/audiojournal/pkg/vectorstore"
)

// Compile-time interface check.
var _ vectorstore.Store = (*Store)(nil)

// Store is a PostgreSQL-backed vectorstore.Store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// NewStore creates a new Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the vector table and extension exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// (e.g., 384 for all-minilm, 768 for nomic-embed-text). Changing it after the
// first migration requires dropping the journal_vectors table.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	if embeddingDimensions <= 0 {
		return nil, fmt.Errorf("postgres vectorstore: embedding dimensions must be positive, got %d", embeddingDimensions)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres vectorstore: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres vectorstore: migrate: %w", err)
	}

	return &Store{pool: pool, dims: embeddingDimensions}, nil
}

// Upsert implements [vectorstore.Store]. A record with the same ID is
// completely replaced.
func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("postgres vectorstore: upsert: empty id")
	}
	if len(rec.Vector) != s.dims {
		return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(rec.Vector), s.dims)
	}

	meta, err := json.Marshal(nonNil(rec.Metadata))
	if err != nil {
		return fmt.Errorf("postgres vectorstore: marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO journal_vectors (id, document, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
		    document   = EXCLUDED.document,
		    metadata   = EXCLUDED.metadata,
		    embedding  = EXCLUDED.embedding,
		    updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, q, rec.ID, rec.Document, meta, pgvector.NewVector(rec.Vector)); err != nil {
		return fmt.Errorf("postgres vectorstore: upsert: %w", err)
	}
	return nil
}

// Query implements [vectorstore.Store]. Results are ordered by ascending
// cosine distance (most similar first); ties are broken by ID.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k < 1 {
		return nil, vectorstore.ErrInvalidK
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), s.dims)
	}

	const q = `
		SELECT id, document, metadata, embedding,
		       embedding <=> $1 AS distance
		FROM   journal_vectors
		ORDER  BY distance, id
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: query: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorstore.Match, error) {
		var (
			m        vectorstore.Match
			meta     []byte
			vec      pgvector.Vector
			distance float64
		)
		if err := row.Scan(&m.ID, &m.Document, &meta, &vec, &distance); err != nil {
			return vectorstore.Match{}, err
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return vectorstore.Match{}, fmt.Errorf("metadata of %s: %w", m.ID, err)
		}
		if len(m.Metadata) == 0 {
			m.Metadata = nil
		}
		m.Vector = vec.Slice()
		m.Similarity = 1 - distance
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: scan rows: %w", err)
	}
	if results == nil {
		results = []vectorstore.Match{}
	}
	return results, nil
}

// Count implements [vectorstore.Store].
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM journal_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres vectorstore: count: %w", err)
	}
	return n, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
