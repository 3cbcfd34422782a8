// Package handlers exposes the recommendation engine over JSON HTTP.
// Every endpoint takes a single JSON object body; request decoding,
// validation, and error shaping live in helpers.go so the individual
// handlers read as their endpoint contract.
package handlers

import (
	"github.com/fedivid/recoserver/internal/recommendations"
	"github.com/fedivid/recoserver/internal/store"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	store   *store.Store
	likes   *store.LikesStore
	service *recommendations.Service
}

// NewHandlers creates a new handlers instance
func NewHandlers(st *store.Store, likes *store.LikesStore, service *recommendations.Service) *Handlers {
	return &Handlers{
		store:   st,
		likes:   likes,
		service: service,
	}
}
