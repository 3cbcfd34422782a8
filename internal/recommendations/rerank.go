package recommendations

import (
	"context"
	"math"
	"sort"

	"github.com/fedivid/recoserver/internal/ann"
	"github.com/fedivid/recoserver/internal/logger"
	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/store"
	"go.uber.org/zap"
)

// RerankConfig carries the blend weights of the personalization re-ranker
type RerankConfig struct {
	// Alpha weights the candidate's base similarity score
	Alpha float64
	// Beta weights user affinity from recent liked-video embeddings
	Beta float64
	// MaxLikes caps how many recent likes contribute affinity vectors
	MaxLikes int
}

// Reranker reorders a finalized pool against the user's recent liked-video
// embeddings. It is a pure reordering: it never adds or removes items.
type Reranker struct {
	index *ann.Index
	likes *store.LikesStore
	cfg   RerankConfig
}

// NewReranker creates a re-ranker over the shared index and likes store
func NewReranker(index *ann.Index, likes *store.LikesStore, cfg RerankConfig) *Reranker {
	return &Reranker{index: index, likes: likes, cfg: cfg}
}

// Rerank returns the pool reordered by alpha*base + beta*affinity, ties
// broken by original position. It short-circuits to the unchanged input
// when there is no user, no resolvable likes, or no embeddings on either
// side. Storage failures also return the input unchanged: re-ranking is an
// enhancement, never a gate.
func (r *Reranker) Rerank(ctx context.Context, userID string, pool []Candidate) []Candidate {
	if userID == "" || len(pool) == 0 {
		return pool
	}

	likeVectors := r.userVectors(ctx, userID)
	if len(likeVectors) == 0 {
		return pool
	}

	type scored struct {
		item  Candidate
		final float64
		pos   int
	}

	scoredPool := make([]scored, 0, len(pool))
	anyEmbedding := false
	for i, item := range pool {
		affinity := 0.0
		if vec, ok := r.index.Vector(item.Key.Normalized()); ok {
			anyEmbedding = true
			// True max over the like vectors: a uniformly dissimilar
			// candidate keeps its negative affinity rather than
			// clamping to zero
			best := math.Inf(-1)
			for _, lv := range likeVectors {
				if sim := ann.Cosine(vec, lv); sim > best {
					best = sim
				}
			}
			if !math.IsInf(best, -1) {
				affinity = best
			}
		}
		final := r.cfg.Alpha*item.Score + r.cfg.Beta*affinity
		scoredPool = append(scoredPool, scored{item: item, final: final, pos: i})
	}
	if !anyEmbedding {
		return pool
	}

	sort.SliceStable(scoredPool, func(i, j int) bool {
		return scoredPool[i].final > scoredPool[j].final
	})

	out := make([]Candidate, 0, len(pool))
	for i, sc := range scoredPool {
		item := sc.item
		if item.Debug != nil {
			item.Debug.RankBefore = sc.pos + 1
			item.Debug.RankAfter = i + 1
		}
		out = append(out, item)
	}
	reRank(out)
	return out
}

// userVectors resolves the normalized embeddings of the user's recent
// likes. Zero-norm or unindexed likes contribute nothing.
func (r *Reranker) userVectors(ctx context.Context, userID string) [][]float32 {
	var likes []models.UserInteraction
	if provided, ok := providedLikes(ctx); ok {
		likes = provided
	} else {
		var err error
		likes, err = r.likes.RecentLikes(userID, r.cfg.MaxLikes)
		if err != nil {
			logger.Log.Warn("Re-ranker could not read likes, skipping personalization",
				zap.String("user_id", userID),
				zap.Error(err))
			return nil
		}
	}

	out := make([][]float32, 0, len(likes))
	for _, like := range likes {
		if vec, ok := r.index.Vector(like.Key().Normalized()); ok {
			out = append(out, vec)
		}
	}
	return out
}
