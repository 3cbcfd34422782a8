package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Interaction event types accepted by the ingest endpoint
const (
	EventLike = "like"
	EventView = "view"
)

// UserInteraction is an append-only like/view event. The composite unique
// index makes ingestion idempotent per (user, video, type).
type UserInteraction struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"not null;uniqueIndex:idx_interactions_event;index:idx_interactions_user_created" json:"user_id"`
	VideoID        int64     `gorm:"not null;uniqueIndex:idx_interactions_event" json:"video_id"`
	InstanceDomain string    `gorm:"not null;uniqueIndex:idx_interactions_event" json:"instance_domain"`
	EventType      string    `gorm:"not null;uniqueIndex:idx_interactions_event" json:"event_type"`
	CreatedAt      time.Time `gorm:"index:idx_interactions_user_created" json:"created_at"`
}

// BeforeCreate assigns a UUID primary key when none was supplied
func (i *UserInteraction) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// Key returns the identity of the video this event refers to
func (i *UserInteraction) Key() VideoKey {
	return VideoKey{VideoID: i.VideoID, InstanceDomain: i.InstanceDomain}
}
