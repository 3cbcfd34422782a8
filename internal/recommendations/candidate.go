package recommendations

import (
	"github.com/fedivid/recoserver/internal/models"
)

// Candidate is one video under consideration, produced and consumed within
// a single request.
type Candidate struct {
	Key   models.VideoKey `json:"key"`
	Video *models.Video   `json:"video,omitempty"`
	Score float64         `json:"score"`
	Rank  int             `json:"rank"`

	// Source names the layer that produced this candidate
	Source string `json:"source,omitempty"`

	Debug *CandidateDebug `json:"debug,omitempty"`
}

// CandidateDebug carries per-candidate provenance attached when a request
// asks for debug output.
type CandidateDebug struct {
	RawScore   float64 `json:"raw_score"`
	PoolMin    float64 `json:"pool_min"`
	PoolMax    float64 `json:"pool_max"`
	Provenance string  `json:"provenance"`
	RankBefore int     `json:"rank_before"`
	RankAfter  int     `json:"rank_after"`
}

// reRank reassigns dense 1-based ranks in slice order
func reRank(items []Candidate) {
	for i := range items {
		items[i].Rank = i + 1
	}
}

// truncate caps a candidate list at limit without copying
func truncate(items []Candidate, limit int) []Candidate {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
