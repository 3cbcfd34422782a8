package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fedivid/recoserver/internal/ann"
	"github.com/fedivid/recoserver/internal/logger"
	"github.com/fedivid/recoserver/internal/middleware"
	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/ratelimit"
	"github.com/fedivid/recoserver/internal/recommendations"
	"github.com/fedivid/recoserver/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.InitializeForTests()
	os.Exit(m.Run())
}

type testEnv struct {
	db     *gorm.DB
	index  *ann.Index
	router *gin.Engine
}

func setupEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Video{},
		&models.VideoEmbedding{},
		&models.UserInteraction{},
		&models.SimilarityCacheEntry{},
	))

	index := ann.NewIndex(2, true)
	videoStore := store.NewStore(db)
	likesStore := store.NewLikesStore(db)
	simCache := recommendations.NewSimilarityCache(db)
	pipeline := recommendations.NewPipeline(likesStore, videoStore, simCache, rand.New(rand.NewSource(1)))
	service := recommendations.NewService(videoStore, likesStore, simCache, index, pipeline,
		recommendations.DefaultProfiles(), recommendations.ServiceConfig{CacheReads: true, CacheWrites: true})

	h := NewHandlers(videoStore, likesStore, service)

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.BodyLimitMiddleware(1_000_000))
	api.POST("/videos/resolve", h.ResolveVideo)
	api.POST("/videos/metadata", h.BatchMetadata)
	api.POST("/events", h.IngestEvents)
	api.POST("/recommendations", h.Recommend)
	api.POST("/related", h.Related)

	return &testEnv{db: db, index: index, router: r}
}

func (e *testEnv) addVideo(t *testing.T, id int64, instance string, channelID int64, vec []float32) models.Video {
	published := time.Now().AddDate(0, 0, -7)
	v := models.Video{
		VideoID:        id,
		InstanceDomain: instance,
		UUID:           fmt.Sprintf("uuid-%d-%s", id, instance),
		ChannelID:      channelID,
		Title:          "video",
		PublishedAt:    &published,
	}
	require.NoError(t, e.db.Create(&v).Error)
	if vec != nil {
		require.NoError(t, e.index.Add(v.Key(), vec))
	}
	return v
}

func (e *testEnv) post(t *testing.T, path string, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestResolveVideoByID(t *testing.T) {
	env := setupEnv(t)
	env.addVideo(t, 1, "a.example", 7, nil)

	w, body := env.post(t, "/api/v1/videos/resolve", `{"video_id": 1, "host": "a.example"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])

	video := body["video"].(map[string]interface{})
	assert.EqualValues(t, 1, video["video_id"])
	assert.Equal(t, "a.example", video["instance_domain"])
	assert.EqualValues(t, 7, video["channel_id"])
	assert.Equal(t, "uuid-1-a.example", video["video_uuid"])
}

func TestResolveVideoByUUID(t *testing.T) {
	env := setupEnv(t)
	env.addVideo(t, 1, "a.example", 7, nil)

	w, body := env.post(t, "/api/v1/videos/resolve", `{"uuid": "uuid-1-a.example"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
}

func TestResolveVideoMissingIdentity(t *testing.T) {
	env := setupEnv(t)

	w, body := env.post(t, "/api/v1/videos/resolve", `{"host": "a.example"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["ok"])
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
}

func TestResolveVideoNotFound(t *testing.T) {
	env := setupEnv(t)

	w, body := env.post(t, "/api/v1/videos/resolve", `{"video_id": 42}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestResolveVideoRejectsNonObjectBody(t *testing.T) {
	env := setupEnv(t)

	for _, body := range []string{`[1, 2]`, `"text"`, ``, `{invalid`} {
		w, _ := env.post(t, "/api/v1/videos/resolve", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestBatchMetadataDedupes(t *testing.T) {
	env := setupEnv(t)
	env.addVideo(t, 1, "a.example", 7, nil)
	env.addVideo(t, 2, "a.example", 8, nil)

	w, body := env.post(t, "/api/v1/videos/metadata", `{"entries": [
		{"video_id": 1, "instance_domain": "a.example"},
		{"video_id": 1, "instance_domain": "A.Example"},
		{"video_id": 2, "instance_domain": "a.example"},
		{"video_id": 9, "instance_domain": "a.example"}
	]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])
	assert.Len(t, body["rows"], 2)
}

func TestBatchMetadataEmptyEntries(t *testing.T) {
	env := setupEnv(t)

	w, body := env.post(t, "/api/v1/videos/metadata", `{"entries": []}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])
}

func TestBatchMetadataMissingEntries(t *testing.T) {
	env := setupEnv(t)

	w, _ := env.post(t, "/api/v1/videos/metadata", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.post(t, "/api/v1/videos/metadata", `{"entries": [{"video_id": 1}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestEventsBatchIdempotent(t *testing.T) {
	env := setupEnv(t)

	payload := `{"events": [
		{"user_id": "u1", "video_id": 1, "instance_domain": "a.example", "event_type": "like"},
		{"user_id": "u1", "video_id": 2, "instance_domain": "a.example", "event_type": "view"}
	]}`

	w, body := env.post(t, "/api/v1/events", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])
	assert.EqualValues(t, 2, body["ingested"])
	assert.EqualValues(t, 0, body["duplicates"])

	// replay: same count, everything a duplicate
	w, body = env.post(t, "/api/v1/events", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])
	assert.EqualValues(t, 0, body["ingested"])
	assert.EqualValues(t, 2, body["duplicates"])

	var count int64
	require.NoError(t, env.db.Model(&models.UserInteraction{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestIngestSingleEventObject(t *testing.T) {
	env := setupEnv(t)

	w, body := env.post(t, "/api/v1/events",
		`{"user_id": "u1", "video_id": 1, "instance_domain": "a.example", "event_type": "like"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 1, body["ingested"])
}

func TestIngestEventsValidationFailsWholeBatch(t *testing.T) {
	env := setupEnv(t)

	w, _ := env.post(t, "/api/v1/events", `{"events": [
		{"user_id": "u1", "video_id": 1, "instance_domain": "a.example", "event_type": "like"},
		{"user_id": "u1", "video_id": 2, "instance_domain": "a.example", "event_type": "nope"}
	]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// nothing was written
	var count int64
	require.NoError(t, env.db.Model(&models.UserInteraction{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestIngestEventsMissingEvents(t *testing.T) {
	env := setupEnv(t)

	w, _ := env.post(t, "/api/v1/events", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.post(t, "/api/v1/events", `{"events": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.addVideo(t, 1, "a.example", 7, []float32{1, 0})
	env.addVideo(t, 2, "a.example", 8, []float32{0.9, 0.1})
	env.addVideo(t, 3, "a.example", 9, []float32{0.8, 0.2})

	_, _ = env.post(t, "/api/v1/events",
		`{"user_id": "u1", "video_id": 1, "instance_domain": "a.example", "event_type": "like"}`)

	w, body := env.post(t, "/api/v1/recommendations", `{"user_id": "u1", "limit": 2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])

	result := body["result"].(map[string]interface{})
	assert.Equal(t, "home", result["profile"])
	items := result["items"].([]interface{})
	assert.NotEmpty(t, items)
	assert.LessOrEqual(t, len(items), 2)
}

func TestRecommendRequiresUserOrLikes(t *testing.T) {
	env := setupEnv(t)

	w, _ := env.post(t, "/api/v1/recommendations", `{"limit": 5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendWithProvidedLikes(t *testing.T) {
	env := setupEnv(t)
	env.addVideo(t, 1, "a.example", 7, []float32{1, 0})
	env.addVideo(t, 2, "a.example", 8, []float32{0.9, 0.1})

	w, body := env.post(t, "/api/v1/recommendations",
		`{"likes": [{"video_id": 1, "instance_domain": "a.example"}], "limit": 5}`)
	require.Equal(t, http.StatusOK, w.Code)

	result := body["result"].(map[string]interface{})
	assert.Equal(t, "home", result["profile"])
}

func TestRelatedEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.addVideo(t, 1, "a.example", 7, []float32{1, 0})
	env.addVideo(t, 2, "a.example", 8, []float32{0.9, 0.1})

	w, body := env.post(t, "/api/v1/related", `{"video_id": 1, "host": "a.example", "limit": 5}`)
	require.Equal(t, http.StatusOK, w.Code)

	result := body["result"].(map[string]interface{})
	assert.Equal(t, "related", result["profile"])
	items := result["items"].([]interface{})
	require.Len(t, items, 1)
}

func TestRelatedRequiresSeed(t *testing.T) {
	env := setupEnv(t)

	w, _ := env.post(t, "/api/v1/related", `{"limit": 5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRelatedUnknownSeedIsEmptyList(t *testing.T) {
	env := setupEnv(t)

	w, body := env.post(t, "/api/v1/related", `{"video_id": 99}`)
	require.Equal(t, http.StatusOK, w.Code)

	result := body["result"].(map[string]interface{})
	assert.Equal(t, "empty", result["stage"])
}

func TestBodySizeLimit(t *testing.T) {
	env := setupEnv(t)

	huge := `{"padding": "` + strings.Repeat("x", 1_000_001) + `"}`
	w, _ := env.post(t, "/api/v1/videos/resolve", huge)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	r := gin.New()
	limiter := ratelimit.New(2, 30*time.Second)
	r.Use(middleware.RateLimitMiddleware(limiter, 2, 30*time.Second))
	r.POST("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	var codes []int
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/ping", bytes.NewReader(nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		last = w
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Retry-After reflects the configured window, not a fixed value
	assert.Equal(t, "30", last.Header().Get("Retry-After"))
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
}
