// Package postgres provides a PostgreSQL + pgvector implementation of
// vectorstore.Store.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS. Nearest
// neighbours are served by an HNSW index over cosine distance.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 384)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Upsert(ctx, vectorstore.Record{ID: "entry_2024-01-01", Vector: vec})
//	matches, _ := store.Query(ctx, queryVec, 3)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlVectors returns the DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlVectors(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS journal_vectors (
    id          TEXT         PRIMARY KEY,
    document    TEXT         NOT NULL,
    metadata    JSONB        NOT NULL DEFAULT '{}',
    embedding   vector(%d)   NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_journal_vectors_date
    ON journal_vectors ((metadata->>'date'));

CREATE INDEX IF NOT EXISTS idx_journal_vectors_embedding
    ON journal_vectors USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the vector table, its indexes and the pgvector
// extension exist. It is idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlVectors(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
