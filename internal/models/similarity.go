package models

import "time"

// SimilarityCacheEntry is one row of a persisted per-source answer set:
// source identity -> ordered neighbors. Ranks are a dense sequence starting
// at 1, and the stored set is the complete answer for exactly one limit
// value at the time of the last write. Replacement is delete+insert in one
// transaction so readers never observe a partially overwritten set.
type SimilarityCacheEntry struct {
	ID                   uint      `gorm:"primaryKey" json:"-"`
	SourceKey            string    `gorm:"not null;index:idx_similarity_source" json:"source_key"`
	TargetVideoID        int64     `gorm:"not null" json:"target_video_id"`
	TargetInstanceDomain string    `gorm:"not null" json:"target_instance_domain"`
	Score                *float64  `json:"score"`
	Rank                 int       `gorm:"not null" json:"rank"`
	CreatedAt            time.Time `json:"created_at"`
}

// TargetKey returns the identity of the cached neighbor
func (e *SimilarityCacheEntry) TargetKey() VideoKey {
	return VideoKey{VideoID: e.TargetVideoID, InstanceDomain: e.TargetInstanceDomain}
}
