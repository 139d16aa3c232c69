package metastore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedsvc/sentencehnsw/pkg/vector"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := Open(context.Background(), path, 4, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVectorCacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.GetVector(ctx, "hello")
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := vector.New([]float32{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	require.NoError(t, s.PutVector(ctx, "hello", v))

	got, ok, err := s.GetVector(ctx, "hello")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32(v), []float32(got))
}

func TestPutVectorUpserts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	v1, _ := vector.New([]float32{1, 0, 0, 0}, 4)
	v2, _ := vector.New([]float32{0, 1, 0, 0}, 4)
	require.NoError(t, s.PutVector(ctx, "k", v1))
	require.NoError(t, s.PutVector(ctx, "k", v2))

	got, ok, err := s.GetVector(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float32(1), got[1])
}

func TestLabelRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.GetLabel(ctx, "dog")
	require.NoError(t, err)
	assert.False(t, ok, "expected miss before write")

	require.NoError(t, s.PutLabel(ctx, "dog", "animal"))

	label, ok, err := s.GetLabel(ctx, "dog")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "animal", label)
}

func TestTruncateClearsBothTables(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	v, _ := vector.New([]float32{1, 0, 0, 0}, 4)
	require.NoError(t, s.PutVector(ctx, "a", v))
	require.NoError(t, s.PutLabel(ctx, "a", "L"))

	require.NoError(t, s.Truncate(ctx))

	_, ok, _ := s.GetVector(ctx, "a")
	assert.False(t, ok, "expected vector cache miss after truncate")
	_, ok, _ = s.GetLabel(ctx, "a")
	assert.False(t, ok, "expected label miss after truncate")
}

func TestCorruptVectorTreatedAsMiss(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO key_value_store(key, value) VALUES(?, ?)`, "bad", `[1,2]`)
	require.NoError(t, err)

	_, ok, err := s.GetVector(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok, "expected corrupt entry to behave as miss")
}
