package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fedivid/recoserver/internal/errors"
	"github.com/fedivid/recoserver/internal/models"
)

// resolveRequest identifies a video by numeric id, uuid, or both, optionally
// constrained to a federated instance.
type resolveRequest struct {
	VideoID int64  `json:"video_id,omitempty"`
	UUID    string `json:"uuid,omitempty"`
	Host    string `json:"host,omitempty"`
}

// resolvedVideo is the wire shape of one resolved identity
type resolvedVideo struct {
	VideoID        int64  `json:"video_id"`
	VideoUUID      string `json:"video_uuid"`
	InstanceDomain string `json:"instance_domain"`
	ChannelID      int64  `json:"channel_id"`
	Title          string `json:"title"`
}

func toResolvedVideo(v *models.Video) resolvedVideo {
	return resolvedVideo{
		VideoID:        v.VideoID,
		VideoUUID:      v.UUID,
		InstanceDomain: v.InstanceDomain,
		ChannelID:      v.ChannelID,
		Title:          v.Title,
	}
}

// ResolveVideo handles POST /api/v1/videos/resolve. At least one of
// video_id/uuid is required; host narrows the lookup to one instance.
func (h *Handlers) ResolveVideo(c *gin.Context) {
	var req resolveRequest
	if apiErr := decodeObject(c, &req); apiErr != nil {
		respondError(c, apiErr)
		return
	}

	if req.VideoID == 0 && req.UUID == "" {
		respondError(c, errors.ValidationError("video_id", "one of video_id or uuid is required"))
		return
	}

	host := strings.ToLower(strings.TrimSpace(req.Host))

	var (
		video *models.Video
		err   error
	)
	if req.VideoID != 0 {
		video, err = h.store.ResolveByID(req.VideoID, host)
	} else {
		video, err = h.store.ResolveByUUID(req.UUID, host)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if video == nil {
		respondError(c, errors.NotFound("video"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"video": toResolvedVideo(video),
	})
}

// metadataRequest asks for metadata rows for a batch of video identities
type metadataRequest struct {
	Entries []models.VideoKey `json:"entries"`
}

// BatchMetadata handles POST /api/v1/videos/metadata. Entries are deduped
// by composite key; unknown keys are silently absent from the rows. An
// empty entries list is a valid request with count 0.
func (h *Handlers) BatchMetadata(c *gin.Context) {
	var req metadataRequest
	if apiErr := decodeObject(c, &req); apiErr != nil {
		respondError(c, apiErr)
		return
	}

	if req.Entries == nil {
		respondError(c, errors.ValidationError("entries", "entries is required"))
		return
	}

	seen := make(map[models.VideoKey]bool, len(req.Entries))
	keys := make([]models.VideoKey, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if entry.VideoID == 0 || entry.InstanceDomain == "" {
			respondError(c, errors.ValidationError("entries", "each entry needs video_id and instance_domain"))
			return
		}
		key := entry.Normalized()
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}

	rows := make([]resolvedVideo, 0, len(keys))
	if len(keys) > 0 {
		found, err := h.store.GetByKeys(keys)
		if err != nil {
			respondError(c, err)
			return
		}
		for _, key := range keys {
			if video, ok := found[key]; ok {
				rows = append(rows, toResolvedVideo(video))
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"count": len(rows),
		"rows":  rows,
	})
}
