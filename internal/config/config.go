package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all process configuration, resolved once at startup from the
// environment. Recommendation profiles are loaded separately (see ProfilesJSON).
type Config struct {
	Port     string
	LogLevel string
	LogFile  string

	// ANN index
	IndexPath    string
	EmbeddingDim int
	Normalize    bool

	// Redis (optional; response cache degrades to disabled without it)
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Rate limiting
	RateLimitMax    int
	RateLimitWindow time.Duration

	// HTTP
	MaxBodyBytes int64

	// Similarity cache
	CacheReadsEnabled  bool
	CacheWritesEnabled bool

	// Popularity
	PopularityLikeWeight float64

	// Moderation lists, comma-separated in the environment
	ModerationFilterInstances bool
	ModerationFilterChannels  bool
	InstanceDenylist          []string
	ChannelBlocklist          []string

	// Profiles: inline JSON wins over a file path
	ProfilesJSON string
	ProfilesPath string
}

// Load resolves configuration from the environment with defaults
func Load() *Config {
	return &Config{
		Port:     GetEnvOrDefault("PORT", "8787"),
		LogLevel: GetEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:  GetEnvOrDefault("LOG_FILE", "recoserver.log"),

		IndexPath:    GetEnvOrDefault("ANN_INDEX_PATH", "data/embeddings.jsonl"),
		EmbeddingDim: GetEnvInt("EMBEDDING_DIM", 384),
		Normalize:    GetEnvBool("EMBEDDING_NORMALIZE", true),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     GetEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		RateLimitMax:    GetEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: time.Duration(GetEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,

		MaxBodyBytes: int64(GetEnvInt("MAX_BODY_BYTES", 1_000_000)),

		CacheReadsEnabled:  GetEnvBool("SIMILARITY_CACHE_READS", true),
		CacheWritesEnabled: GetEnvBool("SIMILARITY_CACHE_WRITES", true),

		PopularityLikeWeight: GetEnvFloat("POPULARITY_LIKE_WEIGHT", 5.0),

		ModerationFilterInstances: GetEnvBool("MODERATION_FILTER_INSTANCES", true),
		ModerationFilterChannels:  GetEnvBool("MODERATION_FILTER_CHANNELS", true),
		InstanceDenylist:          GetEnvList("MODERATION_INSTANCE_DENYLIST"),
		ChannelBlocklist:          GetEnvList("MODERATION_CHANNEL_BLOCKLIST"),

		ProfilesJSON: os.Getenv("RECO_PROFILES_JSON"),
		ProfilesPath: os.Getenv("RECO_PROFILES_PATH"),
	}
}

// LoadProfilesBytes returns the raw profile table, preferring inline JSON over
// a file path. An empty result means the built-in defaults apply.
func (c *Config) LoadProfilesBytes() ([]byte, error) {
	if c.ProfilesJSON != "" {
		return []byte(c.ProfilesJSON), nil
	}
	if c.ProfilesPath != "" {
		data, err := os.ReadFile(c.ProfilesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read profiles file: %w", err)
		}
		return data, nil
	}
	return nil, nil
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns an integer environment variable or default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetEnvFloat returns a float environment variable or default value
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvList splits a comma-separated environment variable, dropping blanks
func GetEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// GetEnvBool returns a boolean environment variable or default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
