package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fedivid/recoserver/internal/models"
	"gorm.io/gorm"
)

// LikesStore serves per-user like events behind its own lock domain
type LikesStore struct {
	mu sync.Mutex
	db *gorm.DB
}

// NewLikesStore creates a likes store over the given connection
func NewLikesStore(db *gorm.DB) *LikesStore {
	return &LikesStore{db: db}
}

// RecentLikes returns the user's most recent like events, newest first,
// capped at max
func (s *LikesStore) RecentLikes(userID string, max int) ([]models.UserInteraction, error) {
	if max <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var likes []models.UserInteraction
	err := s.db.
		Where("user_id = ? AND event_type = ?", userID, models.EventLike).
		Order("created_at DESC").
		Limit(max).
		Find(&likes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent likes: %w", err)
	}
	return likes, nil
}

// HasLikes reports whether the user has any recorded like events
func (s *LikesStore) HasLikes(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	err := s.db.Model(&models.UserInteraction{}).
		Where("user_id = ? AND event_type = ?", userID, models.EventLike).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count likes: %w", err)
	}
	return count > 0, nil
}

// LikedKeys returns the set of video identities the user has liked
func (s *LikesStore) LikedKeys(userID string) (map[models.VideoKey]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var likes []models.UserInteraction
	err := s.db.
		Where("user_id = ? AND event_type = ?", userID, models.EventLike).
		Find(&likes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch liked keys: %w", err)
	}

	out := make(map[models.VideoKey]bool, len(likes))
	for _, l := range likes {
		out[l.Key().Normalized()] = true
	}
	return out, nil
}

// RecordEvent appends one interaction event. Ingestion is idempotent per
// (user, video, type): re-submitting an existing event reports created=false
// and has no further effect.
func (s *LikesStore) RecordEvent(ev *models.UserInteraction) (created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.InstanceDomain = strings.ToLower(ev.InstanceDomain)

	var existing models.UserInteraction
	lookupErr := s.db.
		Where("user_id = ? AND video_id = ? AND instance_domain = ? AND event_type = ?",
			ev.UserID, ev.VideoID, ev.InstanceDomain, ev.EventType).
		First(&existing).Error
	if lookupErr == nil {
		return false, nil
	}
	if lookupErr != gorm.ErrRecordNotFound {
		return false, fmt.Errorf("failed to check for duplicate event: %w", lookupErr)
	}

	if err := s.db.Create(ev).Error; err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}
	return true, nil
}
