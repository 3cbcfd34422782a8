package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fedivid/recoserver/internal/errors"
	"github.com/fedivid/recoserver/internal/models"
)

// eventPayload is one interaction event on the wire
type eventPayload struct {
	UserID         string `json:"user_id"`
	VideoID        int64  `json:"video_id"`
	InstanceDomain string `json:"instance_domain"`
	EventType      string `json:"event_type"`
}

// eventResult reports the outcome for one submitted event
type eventResult struct {
	UserID         string `json:"user_id"`
	VideoID        int64  `json:"video_id"`
	InstanceDomain string `json:"instance_domain"`
	EventType      string `json:"event_type"`
	Status         string `json:"status"`
}

func (p eventPayload) validate(idx int) *errors.APIError {
	field := fmt.Sprintf("events[%d]", idx)
	if p.UserID == "" {
		return errors.ValidationError(field+".user_id", "user_id is required")
	}
	if p.VideoID == 0 {
		return errors.ValidationError(field+".video_id", "video_id is required")
	}
	if p.InstanceDomain == "" {
		return errors.ValidationError(field+".instance_domain", "instance_domain is required")
	}
	switch p.EventType {
	case models.EventLike, models.EventView:
		return nil
	default:
		return errors.ValidationError(field+".event_type", "event_type must be like or view")
	}
}

// IngestEvents handles POST /api/v1/events. The body is either a single
// event object or {"events": [...]}. Ingestion is idempotent per
// (user, video, event type): resubmitting an event counts as a duplicate.
// Validation failures reject the whole batch before any write.
func (h *Handlers) IngestEvents(c *gin.Context) {
	raw, apiErr := readObjectBody(c)
	if apiErr != nil {
		respondError(c, apiErr)
		return
	}

	events, apiErr := parseEvents(raw)
	if apiErr != nil {
		respondError(c, apiErr)
		return
	}

	for i := range events {
		events[i].InstanceDomain = strings.ToLower(events[i].InstanceDomain)
		if apiErr := events[i].validate(i); apiErr != nil {
			respondError(c, apiErr)
			return
		}
	}

	ingested := 0
	duplicates := 0
	results := make([]eventResult, 0, len(events))
	for _, ev := range events {
		created, err := h.likes.RecordEvent(&models.UserInteraction{
			UserID:         ev.UserID,
			VideoID:        ev.VideoID,
			InstanceDomain: ev.InstanceDomain,
			EventType:      ev.EventType,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		status := "ingested"
		if created {
			ingested++
		} else {
			duplicates++
			status = "duplicate"
		}
		results = append(results, eventResult{
			UserID:         ev.UserID,
			VideoID:        ev.VideoID,
			InstanceDomain: ev.InstanceDomain,
			EventType:      ev.EventType,
			Status:         status,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"count":      len(results),
		"ingested":   ingested,
		"duplicates": duplicates,
		"results":    results,
	})
}

// parseEvents accepts {"events": [...]} or a bare event object
func parseEvents(raw []byte) ([]eventPayload, *errors.APIError) {
	var batch struct {
		Events *[]eventPayload `json:"events"`
	}
	if err := json.Unmarshal(raw, &batch); err == nil && batch.Events != nil {
		if len(*batch.Events) == 0 {
			return nil, errors.ValidationError("events", "events must not be empty")
		}
		return *batch.Events, nil
	}

	var single eventPayload
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, errors.BadRequest("invalid request body")
	}
	if single == (eventPayload{}) {
		return nil, errors.ValidationError("events", "events is required")
	}
	return []eventPayload{single}, nil
}
