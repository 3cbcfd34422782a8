package recommendations

import (
	"fmt"

	"github.com/fedivid/recoserver/internal/logger"
	"github.com/fedivid/recoserver/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CachePolicy is a per-request value object deciding cache read/write
// eligibility. It is never persisted.
type CachePolicy struct {
	// Refresh forces recomputation and makes the result eligible to
	// overwrite the stored set
	Refresh bool
	// RequireFull rejects stored sets whose size differs from the
	// requested limit
	RequireFull bool
	AllowRead   bool
	AllowWrite  bool
}

// SimilarityCache persists one complete answer set per source video.
// Replacement is delete+insert inside a single transaction, so a reader
// never observes a partially overwritten set. Two concurrent refreshes for
// the same source race with last-writer-wins semantics; the cache is an
// optimization, not a source of truth, so that is accepted.
type SimilarityCache struct {
	db *gorm.DB
}

// NewSimilarityCache creates a cache over the given connection
func NewSimilarityCache(db *gorm.DB) *SimilarityCache {
	return &SimilarityCache{db: db}
}

// Read returns the stored answer set for source, or nil (forcing
// recomputation) when the policy refuses it: refresh requested, reads
// disallowed, no entry, any invalid score, or a size mismatch under
// RequireFull. Storage failures degrade silently to a miss.
func (c *SimilarityCache) Read(source models.VideoKey, limit int, policy CachePolicy) []Candidate {
	if policy.Refresh || !policy.AllowRead {
		return nil
	}

	var rows []models.SimilarityCacheEntry
	err := c.db.
		Where("source_key = ?", source.String()).
		Order("rank ASC").
		Find(&rows).Error
	if err != nil {
		logger.Log.Warn("Similarity cache read failed, treating as miss",
			zap.String("source", source.String()),
			zap.Error(err))
		return nil
	}

	if len(rows) == 0 {
		return nil
	}
	if policy.RequireFull && len(rows) != limit {
		return nil
	}

	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		if row.Score == nil {
			// A null score means the stored set is internally inconsistent
			return nil
		}
		out = append(out, Candidate{
			Key:    row.TargetKey().Normalized(),
			Score:  *row.Score,
			Rank:   row.Rank,
			Source: "cache",
		})
	}
	return out
}

// ShouldWrite reports whether a freshly computed set may replace the stored
// one: writes allowed, and either refresh was requested or no entry exists.
func (c *SimilarityCache) ShouldWrite(source models.VideoKey, policy CachePolicy) bool {
	if !policy.AllowWrite {
		return false
	}
	if policy.Refresh {
		return true
	}

	var count int64
	err := c.db.Model(&models.SimilarityCacheEntry{}).
		Where("source_key = ?", source.String()).
		Count(&count).Error
	if err != nil {
		logger.Log.Warn("Similarity cache existence check failed, skipping write",
			zap.String("source", source.String()),
			zap.Error(err))
		return false
	}
	return count == 0
}

// Write atomically replaces the stored set for source when ShouldWrite
// holds. Ranks are re-densified from the slice order. The bool reports
// whether a replacement actually happened.
func (c *SimilarityCache) Write(source models.VideoKey, items []Candidate, policy CachePolicy) (bool, error) {
	if !c.ShouldWrite(source, policy) {
		return false, nil
	}

	rows := make([]models.SimilarityCacheEntry, 0, len(items))
	for i, item := range items {
		score := item.Score
		rows = append(rows, models.SimilarityCacheEntry{
			SourceKey:            source.String(),
			TargetVideoID:        item.Key.VideoID,
			TargetInstanceDomain: item.Key.Normalized().InstanceDomain,
			Score:                &score,
			Rank:                 i + 1,
		})
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_key = ?", source.String()).
			Delete(&models.SimilarityCacheEntry{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to replace similarity cache set: %w", err)
	}
	return true, nil
}

// RandomPool samples up to n distinct cached neighbors across all sources,
// for the random-from-cache fallback stage.
func (c *SimilarityCache) RandomPool(n int) []Candidate {
	if n <= 0 {
		return nil
	}

	var rows []models.SimilarityCacheEntry
	err := c.db.Order("random()").Limit(n * 2).Find(&rows).Error
	if err != nil {
		logger.Log.Warn("Similarity cache random pool failed", zap.Error(err))
		return nil
	}

	seen := make(map[models.VideoKey]bool, n)
	out := make([]Candidate, 0, n)
	for _, row := range rows {
		key := row.TargetKey().Normalized()
		if seen[key] {
			continue
		}
		seen[key] = true
		score := 0.0
		if row.Score != nil {
			score = *row.Score
		}
		out = append(out, Candidate{Key: key, Score: score, Source: "cache-random"})
		if len(out) >= n {
			break
		}
	}
	return out
}
