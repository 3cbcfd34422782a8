package recommendations

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/store"
)

func serviceFixture(t *testing.T, cfg ServiceConfig) (*gorm.DB, *Service) {
	db, deps := sourceFixture(t)

	likes := store.NewLikesStore(db)
	pipeline := NewPipeline(likes, deps.Store, deps.Cache, rand.New(rand.NewSource(7)))

	svc := NewService(deps.Store, likes, deps.Cache, deps.Index, pipeline, DefaultProfiles(), cfg)
	return db, svc
}

func TestServiceRecommendForUserWithLikes(t *testing.T) {
	db, svc := serviceFixture(t, ServiceConfig{CacheReads: true, CacheWrites: true})
	createTestLike(t, db, "u1", likeKey(1))

	resp, err := svc.Recommend(context.Background(), Request{UserID: "u1", Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, "home", resp.Profile)
	assert.Equal(t, StagePrimary, resp.Stage)
	require.NotEmpty(t, resp.Items)
	assert.LessOrEqual(t, len(resp.Items), 3)
	for i, item := range resp.Items {
		assert.Equal(t, i+1, item.Rank)
		require.NotNil(t, item.Video)
		assert.NotEqual(t, likeKey(1), item.Key)
	}
}

func TestServiceRecommendGuestProfile(t *testing.T) {
	_, svc := serviceFixture(t, ServiceConfig{})

	resp, err := svc.Recommend(context.Background(), Request{UserID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, "guest_home", resp.Profile)
}

func TestServiceRecommendProvidedLikes(t *testing.T) {
	_, svc := serviceFixture(t, ServiceConfig{})

	ctx := WithProvidedLikes(context.Background(), []models.UserInteraction{
		{UserID: "anon", VideoID: 1, InstanceDomain: "a.example", EventType: models.EventLike},
	})
	resp, err := svc.Recommend(ctx, Request{UserID: "anon", Limit: 3})
	require.NoError(t, err)

	// provided likes make the caller a non-guest
	assert.Equal(t, "home", resp.Profile)
	assert.NotEmpty(t, resp.Items)
}

func TestServiceRecommendModeration(t *testing.T) {
	db, svc := serviceFixture(t, ServiceConfig{
		Moderation: ModerationConfig{
			FilterInstances:  true,
			InstanceDenylist: []string{"b.example"},
		},
	})
	createTestLike(t, db, "u1", likeKey(4))

	resp, err := svc.Recommend(context.Background(), Request{UserID: "u1", Limit: 5})
	require.NoError(t, err)
	for _, item := range resp.Items {
		assert.NotEqual(t, "b.example", item.Key.Normalized().InstanceDomain)
	}
}

func TestServiceRecommendDebugProvenance(t *testing.T) {
	db, svc := serviceFixture(t, ServiceConfig{})
	createTestLike(t, db, "u1", likeKey(1))

	resp, err := svc.Recommend(context.Background(), Request{UserID: "u1", Limit: 3, Debug: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)
	for _, item := range resp.Items {
		require.NotNil(t, item.Debug)
		assert.NotEmpty(t, item.Debug.Provenance)
		assert.GreaterOrEqual(t, item.Debug.PoolMax, item.Debug.PoolMin)
	}

	// without the flag no debug payloads are attached
	resp, err = svc.Recommend(context.Background(), Request{UserID: "u1", Limit: 3})
	require.NoError(t, err)
	for _, item := range resp.Items {
		assert.Nil(t, item.Debug)
	}
}

func TestServiceRelated(t *testing.T) {
	_, svc := serviceFixture(t, ServiceConfig{})

	resp, err := svc.Related(context.Background(), RelatedRequest{VideoID: 1, Host: "a.example", Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, "related", resp.Profile)
	assert.Equal(t, StagePrimary, resp.Stage)
	require.NotEmpty(t, resp.Items)
	for _, item := range resp.Items {
		assert.NotEqual(t, likeKey(1), item.Key)
	}
}

func TestServiceRelatedUnknownSeedIsEmpty(t *testing.T) {
	_, svc := serviceFixture(t, ServiceConfig{})

	resp, err := svc.Related(context.Background(), RelatedRequest{VideoID: 999})
	require.NoError(t, err)
	assert.Equal(t, StageEmpty, resp.Stage)
	assert.Empty(t, resp.Items)
}

func TestServiceRelatedByUUID(t *testing.T) {
	db, svc := serviceFixture(t, ServiceConfig{})

	var seed models.Video
	require.NoError(t, db.Where("video_id = ?", 1).First(&seed).Error)

	resp, err := svc.Related(context.Background(), RelatedRequest{UUID: seed.UUID, Limit: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Items)
}

func TestServiceRelatedPersonalized(t *testing.T) {
	db, svc := serviceFixture(t, ServiceConfig{})
	createTestLike(t, db, "u1", likeKey(3))

	resp, err := svc.Related(context.Background(), RelatedRequest{VideoID: 1, Host: "a.example", UserID: "u1", Limit: 4})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)

	// personalization reorders but never changes membership size bounds
	assert.LessOrEqual(t, len(resp.Items), 4)
	for i, item := range resp.Items {
		assert.Equal(t, i+1, item.Rank)
	}
}
