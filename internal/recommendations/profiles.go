package recommendations

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Profile is a named bundle of recommendation configuration: source
// selection, caps, fan-out, and re-ranking weights.
type Profile struct {
	Name string `json:"name"`

	// Source selection
	Source          string `json:"source"`
	SecondarySource string `json:"secondary_source,omitempty"`

	// Likes pipeline
	MaxLikes        int `json:"max_likes"`
	MaxLikesForRecs int `json:"max_likes_for_recs"`
	SimilarPerLike  int `json:"similar_per_like"`

	// Index search behavior
	MinSearch           int  `json:"min_search"`
	ExcludeSourceAuthor bool `json:"exclude_source_author"`
	SearchAuthorCap     int  `json:"search_author_cap"`

	// Diversification caps
	AuthorCap   int `json:"author_cap"`
	InstanceCap int `json:"instance_cap"`

	// Re-ranking weights (related-video path)
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`

	// Cache behavior
	RequireFullCache bool `json:"require_full_cache"`

	// Default response size when the request does not ask for one
	Limit int `json:"limit"`
}

// ProfileSet is the loaded profile table plus the configured default name
type ProfileSet struct {
	Profiles map[string]Profile `json:"profiles"`
	Default  string             `json:"default"`
}

// DefaultProfiles returns the built-in table used when no profile
// configuration is supplied
func DefaultProfiles() *ProfileSet {
	return &ProfileSet{
		Default: "home",
		Profiles: map[string]Profile{
			"home": {
				Name:            "home",
				Source:          SourceANN,
				SecondarySource: SourceCacheOnly,
				MaxLikes:        100,
				MaxLikesForRecs: 20,
				SimilarPerLike:  10,
				MinSearch:       40,
				SearchAuthorCap: 3,
				AuthorCap:       2,
				InstanceCap:     10,
				Alpha:           1.0,
				Beta:            0.5,
				Limit:           30,
			},
			"guest_home": {
				Name:            "guest_home",
				Source:          SourceCacheOnly,
				MaxLikes:        0,
				MaxLikesForRecs: 0,
				SimilarPerLike:  0,
				MinSearch:       40,
				AuthorCap:       2,
				InstanceCap:     10,
				Limit:           30,
			},
			"related": {
				Name:                "related",
				Source:              SourceANN,
				MinSearch:           40,
				ExcludeSourceAuthor: true,
				SearchAuthorCap:     2,
				AuthorCap:           2,
				InstanceCap:         8,
				Alpha:               1.0,
				Beta:                0.5,
				Limit:               15,
			},
		},
	}
}

// LoadProfiles parses a profile table from JSON. Profile map keys win over
// any name field inside the profile body.
func LoadProfiles(data []byte) (*ProfileSet, error) {
	if len(data) == 0 {
		return DefaultProfiles(), nil
	}

	var ps ProfileSet
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("invalid profile configuration: %w", err)
	}
	if len(ps.Profiles) == 0 {
		return nil, fmt.Errorf("profile configuration defines no profiles")
	}
	for name, p := range ps.Profiles {
		p.Name = name
		ps.Profiles[name] = p
	}
	return &ps, nil
}

// Resolve picks the active profile for a request. Precedence: a guest
// profile for the requested mode when the user has no recorded likes, then
// the requested mode's profile, the configured default, a profile named
// "home", and finally the first available profile by name.
func (ps *ProfileSet) Resolve(mode string, hasLikes bool) Profile {
	effectiveMode := mode
	if effectiveMode == "" {
		effectiveMode = ps.Default
	}
	if effectiveMode == "" {
		effectiveMode = "home"
	}

	if !hasLikes {
		if p, ok := ps.Profiles["guest_"+effectiveMode]; ok {
			return p
		}
	}
	if mode != "" {
		if p, ok := ps.Profiles[mode]; ok {
			return p
		}
	}
	if ps.Default != "" {
		if p, ok := ps.Profiles[ps.Default]; ok {
			return p
		}
	}
	if p, ok := ps.Profiles["home"]; ok {
		return p
	}

	names := make([]string, 0, len(ps.Profiles))
	for name := range ps.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return ps.Profiles[names[0]]
}
