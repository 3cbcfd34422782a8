package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// VideoKey is the natural identity of a federated video: the per-instance
// numeric id plus the instance it lives on.
type VideoKey struct {
	VideoID        int64  `json:"video_id"`
	InstanceDomain string `json:"instance_domain"`
}

// String renders the key in "id@domain" form, used for cache source keys
// and dedup sets.
func (k VideoKey) String() string {
	return fmt.Sprintf("%d@%s", k.VideoID, strings.ToLower(k.InstanceDomain))
}

// Normalized lowercases the instance domain so keys compare equal across
// federated spellings
func (k VideoKey) Normalized() VideoKey {
	return VideoKey{VideoID: k.VideoID, InstanceDomain: strings.ToLower(k.InstanceDomain)}
}

// FloatVector is a custom type storing a float32 vector as a JSON text column,
// portable across PostgreSQL and the SQLite test databases.
type FloatVector []float32

// Scan implements the sql.Scanner interface for reading from database
func (v *FloatVector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("unsupported vector column type %T", value)
	}
	if len(data) == 0 {
		*v = nil
		return nil
	}
	return json.Unmarshal(data, v)
}

// Value implements the driver.Valuer interface for writing to database
func (v FloatVector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Video represents one federated video's identity and metadata. The
// (video_id, instance_domain) pair is immutable once created.
type Video struct {
	ID             uint   `gorm:"primaryKey" json:"-"`
	VideoID        int64  `gorm:"not null;uniqueIndex:idx_videos_identity" json:"video_id"`
	InstanceDomain string `gorm:"not null;uniqueIndex:idx_videos_identity" json:"instance_domain"`
	UUID           string `gorm:"index" json:"video_uuid"`
	ChannelID      int64  `gorm:"index" json:"channel_id"`
	Title          string `json:"title"`

	// Popularity inputs and output
	Views           int64      `gorm:"default:0" json:"views"`
	Likes           int64      `gorm:"default:0" json:"likes"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	PopularityScore *float64   `gorm:"index" json:"popularity_score,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Key returns the natural identity of the video
func (v *Video) Key() VideoKey {
	return VideoKey{VideoID: v.VideoID, InstanceDomain: v.InstanceDomain}
}

// AuthorKey identifies the channel on its instance, used for per-author caps
// and source-author exclusion.
func (v *Video) AuthorKey() string {
	return fmt.Sprintf("%d@%s", v.ChannelID, strings.ToLower(v.InstanceDomain))
}

// VideoEmbedding holds the content embedding for one video. Dimension is
// fixed per deployment; vectors are stored as written and normalized on
// index load when normalization is enabled.
type VideoEmbedding struct {
	ID             uint        `gorm:"primaryKey" json:"-"`
	VideoID        int64       `gorm:"not null;uniqueIndex:idx_embeddings_identity" json:"video_id"`
	InstanceDomain string      `gorm:"not null;uniqueIndex:idx_embeddings_identity" json:"instance_domain"`
	Dim            int         `gorm:"not null" json:"dim"`
	Vector         FloatVector `gorm:"type:text" json:"vector"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Key returns the video identity this embedding belongs to
func (e *VideoEmbedding) Key() VideoKey {
	return VideoKey{VideoID: e.VideoID, InstanceDomain: e.InstanceDomain}
}
