package recommendations

import (
	"context"
	"time"

	"github.com/fedivid/recoserver/internal/models"
	"gorm.io/gorm"
)

// unpublishedAgeDays is the fixed age assigned to rows with no publication
// timestamp, effectively ten years.
const unpublishedAgeDays = 3650.0

// PopularityScore computes the decayed engagement score used for fallback
// ranking and backfill:
//
//	score = (views + likeWeight*likes) / (1 + ageDays/30)
//
// Views and likes clamp to >=0; the score is monotonic non-decreasing in
// both and non-increasing in age.
func PopularityScore(views, likes int64, publishedAt *time.Time, now time.Time, likeWeight float64) float64 {
	if views < 0 {
		views = 0
	}
	if likes < 0 {
		likes = 0
	}

	ageDays := unpublishedAgeDays
	if publishedAt != nil {
		ageMillis := now.UnixMilli() - publishedAt.UnixMilli()
		if ageMillis < 0 {
			ageMillis = 0
		}
		ageDays = float64(ageMillis) / 86_400_000
	}

	engagement := float64(views) + likeWeight*float64(likes)
	return engagement / (1 + ageDays/30)
}

// PopularityJob recomputes stored popularity scores, either for every row
// (periodic full recompute) or only for rows never scored (incremental).
type PopularityJob struct {
	db         *gorm.DB
	likeWeight float64
	now        func() time.Time
}

// NewPopularityJob creates a recompute job. now may be nil for wall-clock
// time.
func NewPopularityJob(db *gorm.DB, likeWeight float64, now func() time.Time) *PopularityJob {
	if now == nil {
		now = time.Now
	}
	return &PopularityJob{db: db, likeWeight: likeWeight, now: now}
}

// RecomputeAll rescores every video row in batches, returning the number of
// rows touched
func (j *PopularityJob) RecomputeAll(ctx context.Context) (int64, error) {
	return j.recompute(ctx, false)
}

// RecomputeUnscored rescores only rows with no stored score yet
func (j *PopularityJob) RecomputeUnscored(ctx context.Context) (int64, error) {
	return j.recompute(ctx, true)
}

func (j *PopularityJob) recompute(ctx context.Context, unscoredOnly bool) (int64, error) {
	now := j.now()
	var touched int64

	q := j.db.WithContext(ctx).Model(&models.Video{})
	if unscoredOnly {
		q = q.Where("popularity_score IS NULL")
	}

	var batch []models.Video
	err := q.FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			v := &batch[i]
			score := PopularityScore(v.Views, v.Likes, v.PublishedAt, now, j.likeWeight)
			if err := j.db.WithContext(ctx).Model(&models.Video{}).
				Where("id = ?", v.ID).
				Update("popularity_score", score).Error; err != nil {
				return err
			}
			touched++
		}
		return nil
	}).Error
	if err != nil {
		return touched, err
	}
	return touched, nil
}
