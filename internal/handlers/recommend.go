package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fedivid/recoserver/internal/errors"
	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/recommendations"
)

// recommendRequest is the wire shape for POST /api/v1/recommendations.
// Likes, when present, replace the user's stored likes for this request
// only, so federated callers can bring their own interaction history.
type recommendRequest struct {
	recommendations.Request
	Likes []models.VideoKey `json:"likes,omitempty"`
}

// Recommend handles POST /api/v1/recommendations
func (h *Handlers) Recommend(c *gin.Context) {
	var req recommendRequest
	if apiErr := decodeObject(c, &req); apiErr != nil {
		respondError(c, apiErr)
		return
	}

	if req.UserID == "" && len(req.Likes) == 0 {
		respondError(c, errors.ValidationError("user_id", "user_id or likes is required"))
		return
	}

	ctx := c.Request.Context()
	if req.Likes != nil {
		ctx = recommendations.WithProvidedLikes(ctx, likesToInteractions(req.UserID, req.Likes))
	}

	resp, err := h.service.Recommend(ctx, req.Request)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"result": resp,
	})
}

// relatedRequest is the wire shape for POST /api/v1/related
type relatedRequest struct {
	recommendations.RelatedRequest
	Likes []models.VideoKey `json:"likes,omitempty"`
}

// Related handles POST /api/v1/related. The seed is identified like the
// resolve endpoint; an unknown seed yields an empty list rather than 404,
// matching how player pages degrade.
func (h *Handlers) Related(c *gin.Context) {
	var req relatedRequest
	if apiErr := decodeObject(c, &req); apiErr != nil {
		respondError(c, apiErr)
		return
	}

	if req.VideoID == 0 && req.UUID == "" {
		respondError(c, errors.ValidationError("video_id", "one of video_id or uuid is required"))
		return
	}

	ctx := c.Request.Context()
	if req.Likes != nil {
		ctx = recommendations.WithProvidedLikes(ctx, likesToInteractions(req.UserID, req.Likes))
	}

	resp, err := h.service.Related(ctx, req.RelatedRequest)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"result": resp,
	})
}

func likesToInteractions(userID string, likes []models.VideoKey) []models.UserInteraction {
	out := make([]models.UserInteraction, 0, len(likes))
	for _, key := range likes {
		norm := key.Normalized()
		out = append(out, models.UserInteraction{
			UserID:         userID,
			VideoID:        norm.VideoID,
			InstanceDomain: norm.InstanceDomain,
			EventType:      models.EventLike,
		})
	}
	return out
}
