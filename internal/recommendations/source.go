package recommendations

import (
	"fmt"
	"sort"

	"github.com/fedivid/recoserver/internal/ann"
	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/store"
)

// Source produces similarity candidates for a seed video. Implementations
// are pluggable strategies selected by name through the factory registry.
type Source interface {
	Name() string
	// Candidates returns up to limit items ranked 1..N. A seed that cannot
	// be resolved yields an empty result, not an error.
	Candidates(seed SeedVideo, limit int, policy CachePolicy) ([]Candidate, error)
}

// SeedVideo carries the resolved identity a source starts from, with the
// uuid kept for the fallback embedding lookup.
type SeedVideo struct {
	Key  models.VideoKey
	UUID string
}

// SourceConfig carries the per-profile knobs a source honors
type SourceConfig struct {
	// MinSearch floors the index search width to leave filtering headroom
	MinSearch int
	// ExcludeSourceAuthor drops neighbors sharing the seed's channel
	ExcludeSourceAuthor bool
	// PerAuthorCap caps accepted items per author within one call; <=0
	// disables the cap
	PerAuthorCap int
}

// Deps bundles the shared resources sources draw on
type Deps struct {
	Index *ann.Index
	Store *store.Store
	Cache *SimilarityCache
}

// Constructor builds a source from shared deps and per-profile config
type Constructor func(deps Deps, cfg SourceConfig) Source

var sourceRegistry = map[string]Constructor{}

// RegisterSource adds a named source constructor to the registry
func RegisterSource(name string, ctor Constructor) {
	sourceRegistry[name] = ctor
}

// NewSource instantiates a registered source by name
func NewSource(name string, deps Deps, cfg SourceConfig) (Source, error) {
	ctor, ok := sourceRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown candidate source %q (registered: %v)", name, RegisteredSources())
	}
	return ctor(deps, cfg), nil
}

// RegisteredSources lists the registry contents, sorted for stable output
func RegisteredSources() []string {
	names := make([]string, 0, len(sourceRegistry))
	for name := range sourceRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
