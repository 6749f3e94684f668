package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/audiojournal/pkg/vectorstore"
)

func openTestStore(t *testing.T, dims int) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "vectors", "index.db"), dims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFloat32RoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4e-5}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, bytesToFloat32Slice(nil))
}

func TestStore_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 2)

	recs := []vectorstore.Record{
		{ID: "entry_2024-01-01", Vector: []float32{1, 0}, Document: "walked by the river",
			Metadata: map[string]string{"date": "2024-01-01", "type": "journal_entry"}},
		{ID: "entry_2024-01-02", Vector: []float32{0.6, 0.8}, Document: "new job"},
		{ID: "entry_2024-01-03", Vector: []float32{0, 1}, Document: "rain"},
	}
	for _, r := range recs {
		require.NoError(t, s.Upsert(ctx, r))
	}

	got, err := s.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "entry_2024-01-01", got[0].ID)
	assert.Equal(t, "walked by the river", got[0].Document)
	assert.Equal(t, "journal_entry", got[0].Metadata["type"])
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "entry_2024-01-02", got[1].ID)
	assert.Nil(t, got[1].Metadata)
	assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)
}

func TestStore_UpsertReplacesSameID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 2)

	require.NoError(t, s.Upsert(ctx, vectorstore.Record{ID: "entry_2024-01-01", Vector: []float32{1, 0}, Document: "first"}))
	require.NoError(t, s.Upsert(ctx, vectorstore.Record{ID: "entry_2024-01-01", Vector: []float32{0, 1}, Document: "second"}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Query(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Document)
}

func TestStore_EmptyQuery(t *testing.T) {
	s := openTestStore(t, 3)
	got, err := s.Query(context.Background(), []float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_InvalidK(t *testing.T) {
	s := openTestStore(t, 2)
	_, err := s.Query(context.Background(), []float32{1, 0}, 0)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidK)
}

func TestStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 2)
	assert.ErrorIs(t, s.Upsert(ctx, vectorstore.Record{ID: "x", Vector: []float32{1}}), vectorstore.ErrDimensionMismatch)

	require.NoError(t, s.Upsert(ctx, vectorstore.Record{ID: "y", Vector: []float32{1, 0}}))
	_, err := s.Query(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(ctx, path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, vectorstore.Record{ID: "entry_2024-01-01", Vector: []float32{1, 1}, Document: "kept"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, 0)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	got, err := s.Query(ctx, []float32{1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Document)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "", 0)
	assert.Error(t, err)
}
