package recommendations

import (
	"context"
	"math/rand"
	"sync"

	"github.com/fedivid/recoserver/internal/logger"
	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/store"
	"go.uber.org/zap"
)

// Fallback stage names, in the order they are tried
const (
	StagePrimary     = "primary"
	StageSecondary   = "secondary"
	StageCacheRandom = "cache-random"
	StageStoreRandom = "store-random"
	StageEmpty       = "empty"
)

// PipelineConfig carries the likes-pipeline knobs of the active profile
type PipelineConfig struct {
	// MaxLikes caps how many recent likes one request reads
	MaxLikes int
	// MaxLikesForRecs caps how many of those feed candidate generation;
	// excess likes are uniformly downsampled
	MaxLikesForRecs int
	// SimilarPerLike is the per-like fan-out into the candidate source
	SimilarPerLike int
}

// Pipeline turns a user's recent likes into one candidate pool, with a
// fallback chain behind it: secondary source, then random-from-cache, then
// a raw random pool from storage.
type Pipeline struct {
	likes *store.LikesStore
	store *store.Store
	cache *SimilarityCache

	// rng is injectable so tests can fix a seed; production uses real
	// entropy. The mutex makes the shared rng safe across requests.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPipeline creates a pipeline over the shared stores. rng may be nil,
// in which case call sites must set one via SetRand before use.
func NewPipeline(likes *store.LikesStore, st *store.Store, cache *SimilarityCache, rng *rand.Rand) *Pipeline {
	return &Pipeline{likes: likes, store: st, cache: cache, rng: rng}
}

// SetRand replaces the random source (tests fix a seed through this)
func (p *Pipeline) SetRand(rng *rand.Rand) {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	p.rng = rng
}

// FromLikes generates up to limit candidates for the user. The returned
// stage names which layer of the fallback chain produced the pool; each
// stage is tried only when the previous one came back empty.
func (p *Pipeline) FromLikes(ctx context.Context, userID string, primary, secondary Source, cfg PipelineConfig, limit int, policy CachePolicy) ([]Candidate, string, error) {
	if limit <= 0 {
		return nil, StageEmpty, nil
	}

	likes, err := p.recentLikes(ctx, userID, cfg.MaxLikes)
	if err != nil {
		return nil, "", err
	}

	likedSet, err := p.likedSet(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	if len(likes) > cfg.MaxLikesForRecs && cfg.MaxLikesForRecs > 0 {
		likes = p.sample(likes, cfg.MaxLikesForRecs)
	}

	pool := p.poolFromSource(likes, likedSet, primary, cfg, limit, policy)
	stage := StagePrimary

	if len(pool) == 0 && secondary != nil {
		pool = p.poolFromSource(likes, likedSet, secondary, cfg, limit, policy)
		stage = StageSecondary
	}

	if len(pool) == 0 {
		pool = p.cacheRandomPool(likedSet, limit)
		stage = StageCacheRandom
	}

	if len(pool) == 0 {
		pool, err = p.storeRandomPool(likedSet, limit)
		if err != nil {
			return nil, "", err
		}
		stage = StageStoreRandom
	}

	if len(pool) == 0 {
		return nil, StageEmpty, nil
	}

	reRank(pool)
	return pool, stage, nil
}

// likedSet builds the exclusion set from every identity the user has ever
// liked. The recent-likes window only bounds candidate generation; a like
// older than that window still keeps its video out of the response.
func (p *Pipeline) likedSet(ctx context.Context, userID string) (map[models.VideoKey]bool, error) {
	if provided, ok := providedLikes(ctx); ok {
		out := make(map[models.VideoKey]bool, len(provided))
		for _, l := range provided {
			out[l.Key().Normalized()] = true
		}
		return out, nil
	}
	if userID == "" {
		return map[models.VideoKey]bool{}, nil
	}
	return p.likes.LikedKeys(userID)
}

// recentLikes reads the request's like set: the context override when one
// was established at request entry, the likes store otherwise.
func (p *Pipeline) recentLikes(ctx context.Context, userID string, max int) ([]models.UserInteraction, error) {
	if provided, ok := providedLikes(ctx); ok {
		if max > 0 && len(provided) > max {
			return provided[:max], nil
		}
		return provided, nil
	}
	if userID == "" {
		return nil, nil
	}
	return p.likes.RecentLikes(userID, max)
}

// poolFromSource fans out over the likes, accumulates one deduped pool,
// shuffles it to break per-like ordering bias, and truncates to limit.
func (p *Pipeline) poolFromSource(likes []models.UserInteraction, likedSet map[models.VideoKey]bool, src Source, cfg PipelineConfig, limit int, policy CachePolicy) []Candidate {
	if src == nil || len(likes) == 0 {
		return nil
	}

	seen := make(map[models.VideoKey]bool, limit)
	pool := make([]Candidate, 0, limit)

	for _, like := range likes {
		seed := SeedVideo{Key: like.Key().Normalized()}
		items, err := src.Candidates(seed, cfg.SimilarPerLike, policy)
		if err != nil {
			// One bad seed must not sink the pool
			logger.Log.Warn("Candidate source failed for seed",
				zap.String("source", src.Name()),
				zap.String("seed", seed.Key.String()),
				zap.Error(err))
			continue
		}
		for _, item := range items {
			key := item.Key.Normalized()
			if likedSet[key] || seen[key] {
				continue
			}
			seen[key] = true
			item.Key = key
			pool = append(pool, item)
		}
	}

	p.shuffle(pool)
	return truncate(pool, limit)
}

// cacheRandomPool samples cached neighbors, excluding already-liked videos
func (p *Pipeline) cacheRandomPool(likedSet map[models.VideoKey]bool, limit int) []Candidate {
	raw := p.cache.RandomPool(limit + len(likedSet))
	out := make([]Candidate, 0, limit)
	for _, item := range raw {
		if likedSet[item.Key] {
			continue
		}
		out = append(out, item)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// storeRandomPool is the terminal fallback: random rows from storage,
// lock-guarded inside the store.
func (p *Pipeline) storeRandomPool(likedSet map[models.VideoKey]bool, limit int) ([]Candidate, error) {
	videos, err := p.store.RandomVideos(limit, likedSet)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(videos))
	for i := range videos {
		v := videos[i]
		out = append(out, Candidate{
			Key:    v.Key().Normalized(),
			Video:  &v,
			Source: "random",
		})
	}
	return out, nil
}

// sample uniformly downsamples likes to n, preserving no particular order
func (p *Pipeline) sample(likes []models.UserInteraction, n int) []models.UserInteraction {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()

	idx := p.rng.Perm(len(likes))[:n]
	out := make([]models.UserInteraction, 0, n)
	for _, i := range idx {
		out = append(out, likes[i])
	}
	return out
}

// shuffle randomizes pool order in place
func (p *Pipeline) shuffle(pool []Candidate) {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()

	p.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
}
