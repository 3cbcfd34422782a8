package ann

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/fedivid/recoserver/internal/models"
)

// Match is one search result: a video identity and its similarity score,
// highest first.
type Match struct {
	Key   models.VideoKey
	Score float64
}

// Index is an in-process vector similarity index over content embeddings.
// All reads and writes go through a single RWMutex; search holds the read
// lock for the duration of the scan. Vectors are unit-normalized on insert
// when normalization is enabled, so cosine similarity reduces to a dot
// product at query time.
type Index struct {
	mu        sync.RWMutex
	dim       int
	normalize bool
	keys      []models.VideoKey
	vectors   [][]float32
	byKey     map[models.VideoKey]int
}

// NewIndex creates an empty index with a fixed dimension
func NewIndex(dim int, normalize bool) *Index {
	return &Index{
		dim:       dim,
		normalize: normalize,
		byKey:     make(map[models.VideoKey]int),
	}
}

// Dim returns the configured embedding dimension
func (ix *Index) Dim() int {
	return ix.dim
}

// Len returns the number of indexed vectors
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keys)
}

// Add inserts or replaces the vector for a video identity
func (ix *Index) Add(key models.VideoKey, vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vec), ix.dim)
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)
	if ix.normalize {
		if n := Normalize(stored); n != nil {
			stored = n
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if pos, ok := ix.byKey[key]; ok {
		ix.vectors[pos] = stored
		return nil
	}
	ix.byKey[key] = len(ix.keys)
	ix.keys = append(ix.keys, key)
	ix.vectors = append(ix.vectors, stored)
	return nil
}

// Remove drops a video from the index, if present
func (ix *Index) Remove(key models.VideoKey) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	pos, ok := ix.byKey[key]
	if !ok {
		return
	}
	last := len(ix.keys) - 1
	if pos != last {
		ix.keys[pos] = ix.keys[last]
		ix.vectors[pos] = ix.vectors[last]
		ix.byKey[ix.keys[pos]] = pos
	}
	ix.keys = ix.keys[:last]
	ix.vectors = ix.vectors[:last]
	delete(ix.byKey, key)
}

// Vector returns the stored (possibly normalized) vector for a video
func (ix *Index) Vector(key models.VideoKey) ([]float32, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	pos, ok := ix.byKey[key]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(ix.vectors[pos]))
	copy(out, ix.vectors[pos])
	return out, true
}

// Has reports whether the video is indexed
func (ix *Index) Has(key models.VideoKey) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.byKey[key]
	return ok
}

// Search returns the k most similar entries to the query vector, best
// first. The query is normalized when the index normalizes; the scan keeps
// a k-sized min-heap so memory stays O(k).
func (ix *Index) Search(query []float32, k int) []Match {
	if k <= 0 || len(query) != ix.dim {
		return nil
	}
	q := query
	if ix.normalize {
		if n := Normalize(query); n != nil {
			q = n
		}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	h := &matchHeap{}
	heap.Init(h)
	for i, vec := range ix.vectors {
		var score float64
		if ix.normalize {
			score = Dot(q, vec)
		} else {
			score = Cosine(q, vec)
		}
		if h.Len() < k {
			heap.Push(h, Match{Key: ix.keys[i], Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = Match{Key: ix.keys[i], Score: score}
			heap.Fix(h, 0)
		}
	}

	// Pop ascending, reverse to descending
	out := make([]Match, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Match)
	}
	return out
}

// matchHeap is a min-heap on score so the weakest candidate is evicted first
type matchHeap []Match

func (h matchHeap) Len() int            { return len(h) }
func (h matchHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h matchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x interface{}) { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
