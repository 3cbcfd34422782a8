package recommendations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fedivid/recoserver/internal/ann"
	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/store"
)

// sourceFixture seeds five videos on two instances, with video 1 and 2
// sharing a channel, and indexes embeddings clustered around video 1.
func sourceFixture(t *testing.T) (*gorm.DB, Deps) {
	db := setupTestDB(t)

	index := ann.NewIndex(2, true)
	vectors := map[int64][]float32{
		1: {1, 0},
		2: {0.95, 0.05},
		3: {0.9, 0.1},
		4: {0.5, 0.5},
		5: {0, 1},
	}
	channels := map[int64]int64{1: 7, 2: 7, 3: 8, 4: 9, 5: 10}

	for id, vec := range vectors {
		instance := "a.example"
		if id == 5 {
			instance = "b.example"
		}
		createTestVideo(t, db, id, instance, channels[id])
		key := models.VideoKey{VideoID: id, InstanceDomain: instance}
		require.NoError(t, index.Add(key, vec))
	}

	return db, Deps{
		Index: index,
		Store: store.NewStore(db),
		Cache: NewSimilarityCache(db),
	}
}

func seedFor(id int64) SeedVideo {
	return SeedVideo{Key: models.VideoKey{VideoID: id, InstanceDomain: "a.example"}}
}

func TestAnnSourceReturnsNeighbors(t *testing.T) {
	_, deps := sourceFixture(t)
	src, err := NewSource(SourceANN, deps, SourceConfig{MinSearch: 10})
	require.NoError(t, err)

	items, err := src.Candidates(seedFor(1), 3, CachePolicy{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	// the seed itself never appears
	for _, item := range items {
		assert.NotEqual(t, seedFor(1).Key, item.Key)
	}

	// dense ranks in descending score order
	for i, item := range items {
		assert.Equal(t, i+1, item.Rank)
		require.NotNil(t, item.Video)
	}
	assert.EqualValues(t, 2, items[0].Key.VideoID)
	assert.EqualValues(t, 3, items[1].Key.VideoID)
}

func TestAnnSourceExcludesSeedAuthor(t *testing.T) {
	_, deps := sourceFixture(t)
	src, err := NewSource(SourceANN, deps, SourceConfig{MinSearch: 10, ExcludeSourceAuthor: true})
	require.NoError(t, err)

	items, err := src.Candidates(seedFor(1), 5, CachePolicy{})
	require.NoError(t, err)
	require.NotEmpty(t, items)

	// video 2 shares channel 7 with the seed
	for _, item := range items {
		assert.NotEqualValues(t, 2, item.Key.VideoID)
	}
}

func TestAnnSourcePerAuthorCap(t *testing.T) {
	db, deps := sourceFixture(t)

	// a second video on channel 8, close to the seed
	createTestVideo(t, db, 6, "a.example", 8)
	require.NoError(t, deps.Index.Add(models.VideoKey{VideoID: 6, InstanceDomain: "a.example"}, []float32{0.85, 0.15}))

	src, err := NewSource(SourceANN, deps, SourceConfig{MinSearch: 10, PerAuthorCap: 1})
	require.NoError(t, err)

	items, err := src.Candidates(seedFor(1), 10, CachePolicy{})
	require.NoError(t, err)

	perAuthor := make(map[string]int)
	for _, item := range items {
		perAuthor[item.Video.AuthorKey()]++
	}
	for author, n := range perAuthor {
		assert.LessOrEqual(t, n, 1, "author %s over cap", author)
	}
}

func TestAnnSourceUnknownSeedIsEmpty(t *testing.T) {
	_, deps := sourceFixture(t)
	src, err := NewSource(SourceANN, deps, SourceConfig{MinSearch: 10})
	require.NoError(t, err)

	items, err := src.Candidates(seedFor(999), 5, CachePolicy{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAnnSourceSeedVectorUUIDFallback(t *testing.T) {
	db, deps := sourceFixture(t)

	// an alias row on another instance sharing video 1's uuid; its own key
	// is not indexed, so the lookup must hop through the canonical row
	var canonical models.Video
	require.NoError(t, db.Where("video_id = ?", 1).First(&canonical).Error)
	alias := models.Video{
		VideoID:        41,
		InstanceDomain: "mirror.example",
		UUID:           canonical.UUID,
		ChannelID:      7,
		Title:          "alias",
	}
	require.NoError(t, db.Create(&alias).Error)

	src, err := NewSource(SourceANN, deps, SourceConfig{MinSearch: 10})
	require.NoError(t, err)

	items, err := src.Candidates(SeedVideo{Key: alias.Key()}, 3, CachePolicy{})
	require.NoError(t, err)
	assert.NotEmpty(t, items)
}

func TestAnnSourceCacheReadThrough(t *testing.T) {
	_, deps := sourceFixture(t)
	src, err := NewSource(SourceANN, deps, SourceConfig{MinSearch: 10})
	require.NoError(t, err)

	seed := seedFor(1)
	policy := CachePolicy{AllowRead: true, AllowWrite: true}

	first, err := src.Candidates(seed, 3, policy)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, SourceANN, first[0].Source)

	// second call is served from the persisted answer set
	second, err := src.Candidates(seed, 3, policy)
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, "cache", second[0].Source)
	for i := range first {
		assert.Equal(t, first[i].Key, second[i].Key)
	}
}

func TestAnnSourceCacheHitHonorsLimit(t *testing.T) {
	_, deps := sourceFixture(t)
	src, err := NewSource(SourceANN, deps, SourceConfig{MinSearch: 10})
	require.NoError(t, err)

	// a stored answer set wider than the caller's limit
	wide := make([]Candidate, 0, 8)
	for i := int64(10); i < 18; i++ {
		wide = append(wide, Candidate{
			Key:   models.VideoKey{VideoID: i, InstanceDomain: "a.example"},
			Score: 1 - float64(i)/100,
		})
	}
	_, err = deps.Cache.Write(seedFor(1).Key, wide, CachePolicy{Refresh: true, AllowWrite: true})
	require.NoError(t, err)

	items, err := src.Candidates(seedFor(1), 3, CachePolicy{AllowRead: true})
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, wide[i].Key, item.Key)
	}
}

func TestCacheOnlySourceNeverComputes(t *testing.T) {
	_, deps := sourceFixture(t)
	src, err := NewSource(SourceCacheOnly, deps, SourceConfig{})
	require.NoError(t, err)

	items, err := src.Candidates(seedFor(1), 3, CachePolicy{AllowRead: true})
	require.NoError(t, err)
	assert.Empty(t, items)

	// prime the cache through the ann source, then the cache-only source
	// starts answering
	annSrc, err := NewSource(SourceANN, deps, SourceConfig{MinSearch: 10})
	require.NoError(t, err)
	_, err = annSrc.Candidates(seedFor(1), 3, CachePolicy{AllowWrite: true})
	require.NoError(t, err)

	items, err = src.Candidates(seedFor(1), 3, CachePolicy{AllowRead: true})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestNewSourceUnknownName(t *testing.T) {
	_, err := NewSource("nope", Deps{}, SourceConfig{})
	assert.Error(t, err)
}

func TestRegisteredSourcesSorted(t *testing.T) {
	names := RegisteredSources()
	assert.Contains(t, names, SourceANN)
	assert.Contains(t, names, SourceCacheOnly)
}
