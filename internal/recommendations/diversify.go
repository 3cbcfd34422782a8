package recommendations

import (
	"github.com/fedivid/recoserver/internal/models"
)

// DiversifyState carries per-request counters and the seen-identity set so
// successive diversification calls can compose multiple candidate batches.
// It is never persisted.
type DiversifyState struct {
	Authors   map[string]int
	Instances map[string]int
	Seen      map[models.VideoKey]bool
}

// NewDiversifyState creates empty counters
func NewDiversifyState() *DiversifyState {
	return &DiversifyState{
		Authors:   make(map[string]int),
		Instances: make(map[string]int),
		Seen:      make(map[models.VideoKey]bool),
	}
}

// Diversify is a pure, order-preserving pass over candidates: it drops an
// entry once its author or instance cap is exceeded or its identity was
// already seen, and truncates to limit. Caps <=0 are disabled; with all
// caps disabled it degrades to dedup-plus-truncate. state may be nil for
// a single-batch call.
func Diversify(in []Candidate, limit, authorCap, instanceCap int, state *DiversifyState) []Candidate {
	if state == nil {
		state = NewDiversifyState()
	}

	out := make([]Candidate, 0, len(in))
	for _, item := range in {
		key := item.Key.Normalized()
		if state.Seen[key] {
			continue
		}

		instance := key.InstanceDomain
		if instanceCap > 0 && state.Instances[instance] >= instanceCap {
			continue
		}

		var author string
		if item.Video != nil {
			author = item.Video.AuthorKey()
		}
		if authorCap > 0 && author != "" && state.Authors[author] >= authorCap {
			continue
		}

		state.Seen[key] = true
		state.Instances[instance]++
		if author != "" {
			state.Authors[author]++
		}

		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
