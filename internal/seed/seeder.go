// Package seed fills a development database with realistic federated video
// data: videos spread over a handful of instances, content embeddings, and
// like/view events with a skewed popularity distribution.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fedivid/recoserver/internal/ann"
	"github.com/fedivid/recoserver/internal/logger"
	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/recommendations"
)

// Instances used for seeded data. A few large, a few small, mirroring how
// federated traffic actually skews.
var seedInstances = []string{
	"video.example.org",
	"tube.federated.dev",
	"peervideo.net",
	"clips.small.host",
}

// Seeder handles database seeding operations
type Seeder struct {
	db  *gorm.DB
	rng *rand.Rand
	dim int
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, dim int) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:  db,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		dim: dim,
	}
}

// SetRand replaces the random source for reproducible seeding
func (s *Seeder) SetRand(rng *rand.Rand) {
	s.rng = rng
}

// SeedDev seeds the development database with realistic data and returns
// the videos created, so callers can build the index snapshot from them.
func (s *Seeder) SeedDev(videoCount, userCount, eventCount int) ([]models.Video, error) {
	logger.Log.Info("seeding videos", zap.Int("count", videoCount))
	videos, err := s.seedVideos(videoCount)
	if err != nil {
		return nil, fmt.Errorf("failed to seed videos: %w", err)
	}

	logger.Log.Info("seeding embeddings")
	if err := s.seedEmbeddings(videos); err != nil {
		return nil, fmt.Errorf("failed to seed embeddings: %w", err)
	}

	logger.Log.Info("seeding interaction events", zap.Int("count", eventCount))
	if err := s.seedInteractions(videos, userCount, eventCount); err != nil {
		return nil, fmt.Errorf("failed to seed interactions: %w", err)
	}

	logger.Log.Info("computing popularity scores")
	job := recommendations.NewPopularityJob(s.db, 5.0, time.Now)
	if _, err := job.RecomputeAll(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to score videos: %w", err)
	}

	return videos, nil
}

// ExportSnapshot writes seeded embeddings as a JSONL index snapshot
func (s *Seeder) ExportSnapshot(path string) error {
	var embeddings []models.VideoEmbedding
	if err := s.db.Find(&embeddings).Error; err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("no embeddings to export")
	}

	ix := ann.NewIndex(embeddings[0].Dim, false)
	for i := range embeddings {
		if err := ix.Add(embeddings[i].Key(), embeddings[i].Vector); err != nil {
			return fmt.Errorf("failed to index embedding: %w", err)
		}
	}
	return ix.Save(path)
}

// Clean removes all seeded data
func (s *Seeder) Clean() error {
	for _, model := range []interface{}{
		&models.SimilarityCacheEntry{},
		&models.UserInteraction{},
		&models.VideoEmbedding{},
		&models.Video{},
	} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clean table: %w", err)
		}
	}
	return nil
}

func (s *Seeder) seedVideos(count int) ([]models.Video, error) {
	videos := make([]models.Video, 0, count)
	for i := 0; i < count; i++ {
		instance := seedInstances[s.rng.Intn(len(seedInstances))]
		published := gofakeit.DateRange(time.Now().AddDate(-2, 0, 0), time.Now())

		video := models.Video{
			VideoID:        int64(i + 1),
			InstanceDomain: instance,
			UUID:           gofakeit.UUID(),
			// channels are shared across videos so author caps matter
			ChannelID:   int64(1 + s.rng.Intn(count/10+1)),
			Title:       gofakeit.Sentence(5),
			Views:       int64(s.rng.ExpFloat64() * 500),
			Likes:       int64(s.rng.ExpFloat64() * 40),
			PublishedAt: &published,
		}
		if err := s.db.Create(&video).Error; err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, nil
}

func (s *Seeder) seedEmbeddings(videos []models.Video) error {
	for i := range videos {
		vec := make([]float32, s.dim)
		for j := range vec {
			vec[j] = float32(s.rng.NormFloat64())
		}
		embedding := models.VideoEmbedding{
			VideoID:        videos[i].VideoID,
			InstanceDomain: videos[i].InstanceDomain,
			Dim:            s.dim,
			Vector:         vec,
		}
		if err := s.db.Create(&embedding).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedInteractions(videos []models.Video, userCount, eventCount int) error {
	if len(videos) == 0 {
		return nil
	}
	for i := 0; i < eventCount; i++ {
		video := videos[s.rng.Intn(len(videos))]
		eventType := models.EventView
		if s.rng.Float64() < 0.3 {
			eventType = models.EventLike
		}
		ev := models.UserInteraction{
			UserID:         fmt.Sprintf("user-%d", 1+s.rng.Intn(userCount)),
			VideoID:        video.VideoID,
			InstanceDomain: video.InstanceDomain,
			EventType:      eventType,
		}
		// unique index makes replays no-ops, same as the ingest endpoint
		err := s.db.Where(models.UserInteraction{
			UserID:         ev.UserID,
			VideoID:        ev.VideoID,
			InstanceDomain: ev.InstanceDomain,
			EventType:      ev.EventType,
		}).FirstOrCreate(&ev).Error
		if err != nil {
			return err
		}
	}
	return nil
}
