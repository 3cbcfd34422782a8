// Package store wraps all persistence behind two coarse mutual-exclusion
// domains: the video metadata store and the per-user likes store. Each
// method takes its own lock for the duration of one storage operation and
// releases it before the caller does anything else, so no code path ever
// holds two domain locks across a blocking call.
package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fedivid/recoserver/internal/models"
	"gorm.io/gorm"
)

// Store resolves video identity and metadata rows
type Store struct {
	mu sync.Mutex
	db *gorm.DB
}

// NewStore creates a metadata store over the given connection
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ResolveByID looks a video up by its per-instance numeric id, optionally
// constrained to one instance. Returns (nil, nil) when no row matches.
func (s *Store) ResolveByID(videoID int64, instanceDomain string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.db.Where("video_id = ?", videoID)
	if instanceDomain != "" {
		q = q.Where("LOWER(instance_domain) = ?", strings.ToLower(instanceDomain))
	}

	var video models.Video
	if err := q.First(&video).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve video by id: %w", err)
	}
	return &video, nil
}

// ResolveByUUID looks a video up by uuid, optionally constrained to one
// instance. Returns (nil, nil) when no row matches.
func (s *Store) ResolveByUUID(uuid string, instanceDomain string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.db.Where("uuid = ?", uuid)
	if instanceDomain != "" {
		q = q.Where("LOWER(instance_domain) = ?", strings.ToLower(instanceDomain))
	}

	var video models.Video
	if err := q.First(&video).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve video by uuid: %w", err)
	}
	return &video, nil
}

// GetByKeys fetches metadata rows for a set of identities in one query.
// Identities with no row are simply absent from the result map.
func (s *Store) GetByKeys(keys []models.VideoKey) (map[models.VideoKey]*models.Video, error) {
	out := make(map[models.VideoKey]*models.Video, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	wanted := make(map[models.VideoKey]bool, len(keys))
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		norm := models.VideoKey{VideoID: k.VideoID, InstanceDomain: strings.ToLower(k.InstanceDomain)}
		if !wanted[norm] {
			wanted[norm] = true
			ids = append(ids, k.VideoID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []models.Video
	if err := s.db.Where("video_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to batch-fetch videos: %w", err)
	}

	for i := range rows {
		v := &rows[i]
		norm := models.VideoKey{VideoID: v.VideoID, InstanceDomain: strings.ToLower(v.InstanceDomain)}
		if wanted[norm] {
			out[norm] = v
		}
	}
	return out, nil
}

// RandomVideos returns up to n random rows, excluding the given identities.
// This is the last stage of the candidate fallback chain.
func (s *Store) RandomVideos(n int, exclude map[models.VideoKey]bool) ([]models.Video, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Over-fetch to leave room for exclusions
	fetch := n + len(exclude)
	var rows []models.Video
	if err := s.db.Order("random()").Limit(fetch).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch random videos: %w", err)
	}

	out := make([]models.Video, 0, n)
	for _, v := range rows {
		norm := models.VideoKey{VideoID: v.VideoID, InstanceDomain: strings.ToLower(v.InstanceDomain)}
		if exclude[norm] {
			continue
		}
		out = append(out, v)
		if len(out) >= n {
			break
		}
	}
	return out, nil
}

// UpsertVideo inserts or updates a metadata row keyed by identity
func (s *Store) UpsertVideo(video *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing models.Video
	err := s.db.Where("video_id = ? AND LOWER(instance_domain) = ?",
		video.VideoID, strings.ToLower(video.InstanceDomain)).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.Create(video).Error
	}
	if err != nil {
		return fmt.Errorf("failed to look up video for upsert: %w", err)
	}

	video.ID = existing.ID
	return s.db.Save(video).Error
}
