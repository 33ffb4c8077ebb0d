package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	LogLevel    slog.Level

	// Credential checked by the scheduler. Either may be empty; checks then
	// report missing credentials instead of failing startup.
	GitHubUsername string
	GitHubToken    string
	GitHubAPIURL   string

	CheckSchedule string
	// CheckTimeout bounds one whole check including retry backoff
	CheckTimeout    time.Duration
	ShutdownTimeout time.Duration
	Location        *time.Location

	MaxRepositories     int
	RepoConcurrency     int
	EventPages          int
	ExcludeMergeCommits bool
	ValidateToken       bool
	CacheMaxEntries     int

	// AllowedOrigins for the local API's CORS; "*" allows all
	AllowedOrigins []string
}

// Load reads configuration from environment variables.
// Returns an error if a variable is set to an unusable value.
func Load() (*Config, error) {
	schedule := getEnv("CHECK_SCHEDULE", "@every 15m")
	if _, err := rcron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid CHECK_SCHEDULE %q: %w", schedule, err)
	}

	loc := time.Local
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
		loc = l
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	port := getEnv("PORT", "8080")
	env := getEnv("ENV", "development")

	return &Config{
		Port:        port,
		Env:         env,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    level,

		GitHubUsername: strings.TrimSpace(os.Getenv("GITHUB_USERNAME")),
		GitHubToken:    strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
		GitHubAPIURL:   getEnv("GITHUB_API_URL", "https://api.github.com"),

		CheckSchedule:   schedule,
		CheckTimeout:    getDuration("CHECK_TIMEOUT", 2*time.Minute),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		Location:        loc,

		MaxRepositories:     getInt("MAX_REPOSITORIES", 20),
		RepoConcurrency:     getInt("REPO_CONCURRENCY", 3),
		EventPages:          getInt("EVENT_PAGES", 3),
		ExcludeMergeCommits: getBool("EXCLUDE_MERGE_COMMITS", false),
		ValidateToken:       getBool("VALIDATE_TOKEN", true),
		CacheMaxEntries:     getInt("CACHE_MAX_ENTRIES", 100),

		AllowedOrigins: allowedOrigins(env, port),
	}, nil
}

// HistoryEnabled reports whether check results are persisted
func (c *Config) HistoryEnabled() bool {
	return c.DatabaseURL != ""
}

// allowedOrigins reads CORS_ORIGINS (comma-separated); development allows all
func allowedOrigins(env, port string) []string {
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		var origins []string
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return origins
	}
	if env == "development" {
		return []string{"*"}
	}
	return []string{"http://localhost:" + port}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
