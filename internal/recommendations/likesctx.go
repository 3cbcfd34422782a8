package recommendations

import (
	"context"

	"github.com/fedivid/recoserver/internal/models"
)

type likesOverrideKey struct{}

// WithProvidedLikes returns a context carrying caller-supplied likes that
// bypass the likes store for the rest of this request. The value is
// request-scoped by construction: it lives and dies with the request
// context, never in ambient process state.
func WithProvidedLikes(ctx context.Context, likes []models.UserInteraction) context.Context {
	return context.WithValue(ctx, likesOverrideKey{}, likes)
}

// providedLikes extracts the override, if the request established one
func providedLikes(ctx context.Context) ([]models.UserInteraction, bool) {
	likes, ok := ctx.Value(likesOverrideKey{}).([]models.UserInteraction)
	return likes, ok
}
