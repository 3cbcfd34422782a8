package recommendations

import (
	"context"
	"fmt"
	"time"

	"github.com/fedivid/recoserver/internal/ann"
	"github.com/fedivid/recoserver/internal/logger"
	"github.com/fedivid/recoserver/internal/metrics"
	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/store"
	"go.uber.org/zap"
)

// Request asks for a user's recommendation list
type Request struct {
	UserID  string `json:"user_id"`
	Mode    string `json:"mode,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Refresh bool   `json:"refresh,omitempty"`
	Debug   bool   `json:"debug,omitempty"`
}

// RelatedRequest asks for videos related to a seed video
type RelatedRequest struct {
	VideoID int64  `json:"video_id,omitempty"`
	UUID    string `json:"uuid,omitempty"`
	Host    string `json:"host,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Refresh bool   `json:"refresh,omitempty"`
	Debug   bool   `json:"debug,omitempty"`
}

// Response is a finalized recommendation list with its provenance
type Response struct {
	Profile    string          `json:"profile"`
	Stage      string          `json:"stage"`
	Items      []Candidate     `json:"items"`
	Moderation ModerationStats `json:"moderation"`
}

// ServiceConfig holds the orchestration knobs that are not per-profile
type ServiceConfig struct {
	// CacheReads / CacheWrites globally gate the similarity cache
	CacheReads  bool
	CacheWrites bool
	Moderation  ModerationConfig
}

// Service composes the candidate pipeline, diversification, optional
// personalization, and moderation into final responses. One instance is
// shared across requests; all per-request state lives on the stack.
type Service struct {
	store    *store.Store
	likes    *store.LikesStore
	cache    *SimilarityCache
	index    *ann.Index
	pipeline *Pipeline
	profiles *ProfileSet
	cfg      ServiceConfig
}

// NewService wires the orchestrator over the shared resources
func NewService(st *store.Store, likes *store.LikesStore, cache *SimilarityCache, index *ann.Index, pipeline *Pipeline, profiles *ProfileSet, cfg ServiceConfig) *Service {
	return &Service{
		store:    st,
		likes:    likes,
		cache:    cache,
		index:    index,
		pipeline: pipeline,
		profiles: profiles,
		cfg:      cfg,
	}
}

// Profiles exposes the active profile table
func (s *Service) Profiles() *ProfileSet {
	return s.profiles
}

// Recommend produces a user's recommendation list: profile resolution,
// likes-based candidate generation with fallback, diversification,
// moderation, truncation.
func (s *Service) Recommend(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()

	hasLikes, err := s.hasLikes(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	profile := s.profiles.Resolve(req.Mode, hasLikes)

	limit := req.Limit
	if limit <= 0 {
		limit = profile.Limit
	}

	policy := CachePolicy{
		Refresh:     req.Refresh,
		RequireFull: profile.RequireFullCache,
		AllowRead:   s.cfg.CacheReads,
		AllowWrite:  s.cfg.CacheWrites,
	}

	primary, secondary, err := s.sources(profile)
	if err != nil {
		return nil, err
	}

	pipelineCfg := PipelineConfig{
		MaxLikes:        profile.MaxLikes,
		MaxLikesForRecs: profile.MaxLikesForRecs,
		SimilarPerLike:  profile.SimilarPerLike,
	}
	pool, stage, err := s.pipeline.FromLikes(ctx, req.UserID, primary, secondary, pipelineCfg, limit, policy)
	if err != nil {
		return nil, err
	}
	metrics.Get().FallbackStageTotal.WithLabelValues(stage).Inc()

	pool = s.hydrate(pool)
	if req.Debug {
		attachDebug(pool)
	}

	pool = Diversify(pool, limit, profile.AuthorCap, profile.InstanceCap, nil)

	pool, modStats := ApplyModeration(pool, s.cfg.Moderation)
	recordModeration(modStats)

	pool = truncate(pool, limit)
	reRank(pool)
	if req.Debug {
		finalizeDebug(pool)
	}

	m := metrics.Get()
	m.CandidatesReturned.WithLabelValues(profile.Name).Observe(float64(len(pool)))
	m.RecommendationDuration.WithLabelValues(profile.Name).Observe(time.Since(started).Seconds())

	logger.Log.Debug("Recommendation response built",
		zap.String("profile", profile.Name),
		zap.String("stage", stage),
		zap.Int("count", len(pool)),
		logger.WithUserID(req.UserID))

	return &Response{
		Profile:    profile.Name,
		Stage:      stage,
		Items:      pool,
		Moderation: modStats,
	}, nil
}

// Related produces the related-video list for a seed, with the post-hoc
// personalization re-ranker applied when a user is present.
func (s *Service) Related(ctx context.Context, req RelatedRequest) (*Response, error) {
	started := time.Now()

	hasLikes, err := s.hasLikes(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	profile := s.profiles.Resolve("related", hasLikes)

	limit := req.Limit
	if limit <= 0 {
		limit = profile.Limit
	}

	seed, ok := s.resolveSeed(req)
	if !ok {
		// Unresolvable seed is an empty list, not an error
		return &Response{Profile: profile.Name, Stage: StageEmpty}, nil
	}

	policy := CachePolicy{
		Refresh:     req.Refresh,
		RequireFull: profile.RequireFullCache,
		AllowRead:   s.cfg.CacheReads,
		AllowWrite:  s.cfg.CacheWrites,
	}

	primary, _, err := s.sources(profile)
	if err != nil {
		return nil, err
	}

	pool, err := primary.Candidates(seed, limit, policy)
	if err != nil {
		return nil, err
	}
	stage := StagePrimary
	if len(pool) == 0 {
		stage = StageEmpty
	}

	pool = s.hydrate(pool)
	if req.Debug {
		attachDebug(pool)
	}

	pool = Diversify(pool, limit, profile.AuthorCap, profile.InstanceCap, nil)

	if req.UserID != "" {
		reranker := NewReranker(s.index, s.likes, RerankConfig{
			Alpha:    profile.Alpha,
			Beta:     profile.Beta,
			MaxLikes: rerankLikes(profile),
		})
		pool = reranker.Rerank(ctx, req.UserID, pool)
	}

	pool, modStats := ApplyModeration(pool, s.cfg.Moderation)
	recordModeration(modStats)

	pool = truncate(pool, limit)
	reRank(pool)
	if req.Debug {
		finalizeDebug(pool)
	}

	m := metrics.Get()
	m.CandidatesReturned.WithLabelValues(profile.Name).Observe(float64(len(pool)))
	m.RecommendationDuration.WithLabelValues(profile.Name).Observe(time.Since(started).Seconds())

	return &Response{
		Profile:    profile.Name,
		Stage:      stage,
		Items:      pool,
		Moderation: modStats,
	}, nil
}

// hasLikes checks for recorded likes, honoring a request-scoped override
func (s *Service) hasLikes(ctx context.Context, userID string) (bool, error) {
	if provided, ok := providedLikes(ctx); ok {
		return len(provided) > 0, nil
	}
	if userID == "" {
		return false, nil
	}
	has, err := s.likes.HasLikes(userID)
	if err != nil {
		return false, fmt.Errorf("failed to check user likes: %w", err)
	}
	return has, nil
}

// sources instantiates the profile's primary and secondary sources
func (s *Service) sources(profile Profile) (Source, Source, error) {
	deps := Deps{Index: s.index, Store: s.store, Cache: s.cache}
	srcCfg := SourceConfig{
		MinSearch:           profile.MinSearch,
		ExcludeSourceAuthor: profile.ExcludeSourceAuthor,
		PerAuthorCap:        profile.SearchAuthorCap,
	}

	primary, err := NewSource(profile.Source, deps, srcCfg)
	if err != nil {
		return nil, nil, err
	}

	var secondary Source
	if profile.SecondarySource != "" {
		secondary, err = NewSource(profile.SecondarySource, deps, srcCfg)
		if err != nil {
			return nil, nil, err
		}
	}
	return primary, secondary, nil
}

// resolveSeed turns the request's id/uuid/host triple into a seed video
func (s *Service) resolveSeed(req RelatedRequest) (SeedVideo, bool) {
	if req.VideoID > 0 {
		if v, err := s.store.ResolveByID(req.VideoID, req.Host); err == nil && v != nil {
			return SeedVideo{Key: v.Key().Normalized(), UUID: v.UUID}, true
		}
	}
	if req.UUID != "" {
		if v, err := s.store.ResolveByUUID(req.UUID, req.Host); err == nil && v != nil {
			return SeedVideo{Key: v.Key().Normalized(), UUID: v.UUID}, true
		}
	}
	return SeedVideo{}, false
}

// hydrate attaches metadata to candidates that arrived without it (cache
// and random pools return bare identities). Candidates whose metadata
// cannot be resolved are skipped silently.
func (s *Service) hydrate(pool []Candidate) []Candidate {
	missing := make([]models.VideoKey, 0, len(pool))
	for _, item := range pool {
		if item.Video == nil {
			missing = append(missing, item.Key)
		}
	}
	if len(missing) == 0 {
		return pool
	}

	metadata, err := s.store.GetByKeys(missing)
	if err != nil {
		logger.Log.Warn("Candidate hydration failed", zap.Error(err))
		metadata = nil
	}

	out := make([]Candidate, 0, len(pool))
	for _, item := range pool {
		if item.Video == nil {
			v, ok := metadata[item.Key.Normalized()]
			if !ok {
				continue
			}
			item.Video = v
		}
		out = append(out, item)
	}
	return out
}

// attachDebug snapshots the raw pool state before downstream filtering
func attachDebug(pool []Candidate) {
	if len(pool) == 0 {
		return
	}
	minScore, maxScore := pool[0].Score, pool[0].Score
	for _, item := range pool {
		if item.Score < minScore {
			minScore = item.Score
		}
		if item.Score > maxScore {
			maxScore = item.Score
		}
	}
	for i := range pool {
		pool[i].Debug = &CandidateDebug{
			RawScore:   pool[i].Score,
			PoolMin:    minScore,
			PoolMax:    maxScore,
			Provenance: pool[i].Source,
			RankBefore: i + 1,
		}
	}
}

// finalizeDebug records each survivor's final position
func finalizeDebug(pool []Candidate) {
	for i := range pool {
		if pool[i].Debug != nil {
			pool[i].Debug.RankAfter = i + 1
		}
	}
}

// recordModeration feeds the per-rule drop counters
func recordModeration(stats ModerationStats) {
	m := metrics.Get()
	if stats.InstanceDropped > 0 {
		m.ModerationDroppedTotal.WithLabelValues("instance").Add(float64(stats.InstanceDropped))
	}
	if stats.ChannelDropped > 0 {
		m.ModerationDroppedTotal.WithLabelValues("channel").Add(float64(stats.ChannelDropped))
	}
}

// rerankLikes bounds how many likes feed the re-ranker
func rerankLikes(profile Profile) int {
	if profile.MaxLikes > 0 {
		return profile.MaxLikes
	}
	return 20
}
