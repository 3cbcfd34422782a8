package recommendations

import (
	"github.com/fedivid/recoserver/internal/logger"
	"github.com/fedivid/recoserver/internal/metrics"
	"github.com/fedivid/recoserver/internal/models"
	"go.uber.org/zap"
)

const (
	// SourceANN is the index-backed strategy with cache read-through
	SourceANN = "ann"
	// SourceCacheOnly serves stored answer sets and never computes
	SourceCacheOnly = "cache-only"
)

func init() {
	RegisterSource(SourceANN, func(deps Deps, cfg SourceConfig) Source {
		return &annSource{deps: deps, cfg: cfg}
	})
	RegisterSource(SourceCacheOnly, func(deps Deps, cfg SourceConfig) Source {
		return &cacheSource{deps: deps}
	})
}

// annSource searches the in-process vector index for neighbors of the seed,
// consulting the persisted similarity cache first and writing back complete
// answer sets when policy allows.
type annSource struct {
	deps Deps
	cfg  SourceConfig
}

func (s *annSource) Name() string { return SourceANN }

func (s *annSource) Candidates(seed SeedVideo, limit int, policy CachePolicy) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	if cached := s.deps.Cache.Read(seed.Key, limit, policy); len(cached) > 0 {
		metrics.Get().CacheHitsTotal.WithLabelValues(s.Name()).Inc()
		// Stored sets may be wider than this call's limit
		return truncate(cached, limit), nil
	}
	metrics.Get().CacheMissesTotal.WithLabelValues(s.Name()).Inc()

	items, err := s.compute(seed, limit)
	if err != nil {
		return nil, err
	}

	if len(items) > 0 {
		written, err := s.deps.Cache.Write(seed.Key, items, policy)
		if err != nil {
			// Cache failures degrade to no-write, never surfaced
			logger.Log.Warn("Similarity cache write failed",
				zap.String("source", seed.Key.String()),
				zap.Error(err))
		} else if written {
			metrics.Get().CacheWritesTotal.WithLabelValues(s.Name()).Inc()
		}
	}

	return items, nil
}

// compute runs the raw index search and filtering of one call
func (s *annSource) compute(seed SeedVideo, limit int) ([]Candidate, error) {
	seedKey := seed.Key.Normalized()

	vec, ok := s.seedVector(seed)
	if !ok {
		// Seed not found is an empty result, not an error
		return nil, nil
	}

	// Search wider than requested to leave filtering headroom
	k := limit + 1
	if s.cfg.MinSearch > k {
		k = s.cfg.MinSearch
	}
	matches := s.deps.Index.Search(vec, k)
	if len(matches) == 0 {
		return nil, nil
	}

	keys := make([]models.VideoKey, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m.Key)
	}
	metadata, err := s.deps.Store.GetByKeys(keys)
	if err != nil {
		return nil, err
	}

	var seedAuthor string
	if s.cfg.ExcludeSourceAuthor {
		if seedVideo, ok := metadata[seedKey]; ok {
			seedAuthor = seedVideo.AuthorKey()
		} else if v, err := s.deps.Store.ResolveByID(seedKey.VideoID, seedKey.InstanceDomain); err == nil && v != nil {
			seedAuthor = v.AuthorKey()
		}
	}

	authorCounts := make(map[string]int)
	out := make([]Candidate, 0, limit)
	for _, m := range matches {
		key := m.Key.Normalized()
		if key == seedKey {
			continue
		}

		video, ok := metadata[key]
		if !ok {
			// Unresolvable metadata: skip silently
			continue
		}
		author := video.AuthorKey()
		if seedAuthor != "" && author == seedAuthor {
			continue
		}
		if s.cfg.PerAuthorCap > 0 && authorCounts[author] >= s.cfg.PerAuthorCap {
			continue
		}
		authorCounts[author]++

		out = append(out, Candidate{
			Key:    key,
			Video:  video,
			Score:  m.Score,
			Rank:   len(out) + 1,
			Source: SourceANN,
		})
		if len(out) >= limit {
			break
		}
	}

	return out, nil
}

// seedVector resolves the seed embedding: primary lookup by identity,
// fallback through uuid+instance when the primary key is not indexed. The
// fallback covers local alias rows whose canonical (origin instance) row is
// the one the index holds.
func (s *annSource) seedVector(seed SeedVideo) ([]float32, bool) {
	if vec, ok := s.deps.Index.Vector(seed.Key.Normalized()); ok {
		return vec, true
	}

	uuid := seed.UUID
	if uuid == "" {
		if v, err := s.deps.Store.ResolveByID(seed.Key.VideoID, seed.Key.InstanceDomain); err == nil && v != nil {
			uuid = v.UUID
		}
	}
	if uuid == "" {
		return nil, false
	}

	video, err := s.deps.Store.ResolveByUUID(uuid, "")
	if err != nil || video == nil {
		return nil, false
	}
	return s.deps.Index.Vector(video.Key().Normalized())
}

// cacheSource serves only what the similarity cache already holds
type cacheSource struct {
	deps Deps
}

func (s *cacheSource) Name() string { return SourceCacheOnly }

func (s *cacheSource) Candidates(seed SeedVideo, limit int, policy CachePolicy) ([]Candidate, error) {
	items := s.deps.Cache.Read(seed.Key, limit, policy)
	return truncate(items, limit), nil
}
