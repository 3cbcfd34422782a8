package ann

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedivid/recoserver/internal/models"
)

func key(id int64) models.VideoKey {
	return models.VideoKey{VideoID: id, InstanceDomain: "video.example.org"}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-6)

	// degenerate inputs never poison a score
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	require.NotNil(t, v)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	assert.Nil(t, Normalize([]float32{0, 0}))
}

func TestIndexAddAndSearch(t *testing.T) {
	ix := NewIndex(2, true)

	require.NoError(t, ix.Add(key(1), []float32{1, 0}))
	require.NoError(t, ix.Add(key(2), []float32{0.9, 0.1}))
	require.NoError(t, ix.Add(key(3), []float32{0, 1}))
	assert.Equal(t, 3, ix.Len())

	matches := ix.Search([]float32{1, 0}, 2)
	require.Len(t, matches, 2)
	assert.Equal(t, key(1), matches[0].Key)
	assert.Equal(t, key(2), matches[1].Key)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestIndexSearchDescendingOrder(t *testing.T) {
	ix := NewIndex(3, true)
	require.NoError(t, ix.Add(key(1), []float32{1, 0, 0}))
	require.NoError(t, ix.Add(key(2), []float32{0, 1, 0}))
	require.NoError(t, ix.Add(key(3), []float32{0.5, 0.5, 0}))
	require.NoError(t, ix.Add(key(4), []float32{0.9, 0.1, 0}))

	matches := ix.Search([]float32{1, 0, 0}, 4)
	require.Len(t, matches, 4)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestIndexDimensionMismatch(t *testing.T) {
	ix := NewIndex(2, false)
	assert.Error(t, ix.Add(key(1), []float32{1, 2, 3}))
	assert.Empty(t, ix.Search([]float32{1, 2, 3}, 5))
}

func TestIndexAddReplacesExisting(t *testing.T) {
	ix := NewIndex(2, false)
	require.NoError(t, ix.Add(key(1), []float32{1, 0}))
	require.NoError(t, ix.Add(key(1), []float32{0, 1}))

	assert.Equal(t, 1, ix.Len())
	v, ok := ix.Vector(key(1))
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, v)
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex(2, false)
	require.NoError(t, ix.Add(key(1), []float32{1, 0}))
	require.NoError(t, ix.Add(key(2), []float32{0, 1}))

	ix.Remove(key(1))
	assert.Equal(t, 1, ix.Len())
	assert.False(t, ix.Has(key(1)))
	assert.True(t, ix.Has(key(2)))

	// removing a missing key is a no-op
	ix.Remove(key(99))
	assert.Equal(t, 1, ix.Len())
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.jsonl")

	ix := NewIndex(2, true)
	require.NoError(t, ix.Add(key(1), []float32{1, 0}))
	require.NoError(t, ix.Add(key(2), []float32{0, 1}))
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.True(t, loaded.Has(key(1)))
	assert.True(t, loaded.Has(key(2)))

	matches := loaded.Search([]float32{1, 0}, 1)
	require.Len(t, matches, 1)
	assert.Equal(t, key(1), matches[0].Key)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.jsonl"), 2, false)
	assert.Error(t, err)
}
