package recommendations

import (
	"strings"
)

// ModerationConfig holds the independently toggleable exclusion rules
// applied just before truncation.
type ModerationConfig struct {
	FilterInstances bool
	FilterChannels  bool
	// InstanceDenylist names federated instances to exclude
	InstanceDenylist []string
	// ChannelBlocklist names blocked channels as "channelID@instance"
	ChannelBlocklist []string
}

// ModerationStats counts rows removed by each rule within one request
type ModerationStats struct {
	InstanceDropped int `json:"instance_dropped"`
	ChannelDropped  int `json:"channel_dropped"`
}

// ApplyModeration returns a new, order-preserved list with denylisted
// instances and blocked channels removed, plus removal counts for
// observability. The input is never mutated.
func ApplyModeration(in []Candidate, cfg ModerationConfig) ([]Candidate, ModerationStats) {
	var stats ModerationStats

	denied := make(map[string]bool, len(cfg.InstanceDenylist))
	if cfg.FilterInstances {
		for _, d := range cfg.InstanceDenylist {
			denied[strings.ToLower(d)] = true
		}
	}
	blocked := make(map[string]bool, len(cfg.ChannelBlocklist))
	if cfg.FilterChannels {
		for _, ch := range cfg.ChannelBlocklist {
			blocked[strings.ToLower(ch)] = true
		}
	}

	out := make([]Candidate, 0, len(in))
	for _, item := range in {
		if cfg.FilterInstances && denied[item.Key.Normalized().InstanceDomain] {
			stats.InstanceDropped++
			continue
		}
		if cfg.FilterChannels && item.Video != nil && blocked[strings.ToLower(item.Video.AuthorKey())] {
			stats.ChannelDropped++
			continue
		}
		out = append(out, item)
	}
	return out, stats
}
