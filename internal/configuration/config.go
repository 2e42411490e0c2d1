// Package configuration holds runtime configuration for the interview
// pipeline: Temporal connectivity, collaborator credentials, storage paths,
// and the tuning knobs of the grading and aggregation stages.
package configuration

import (
	"os"
	"time"
)

// Grading constants.
const (
	// DefaultGradingMaxAttempts is the per-task oracle attempt budget.
	DefaultGradingMaxAttempts = 3

	// DefaultGradingBackoffStep scales the linear inter-attempt delay.
	DefaultGradingBackoffStep = 200 * time.Millisecond

	// DefaultDedupCacheCapacity bounds the completed-verdict dedup cache.
	DefaultDedupCacheCapacity = 200
)

// Aggregation constants.
const (
	// DefaultAggregationTimeout bounds the wait for all verdicts.
	DefaultAggregationTimeout = 60 * time.Second

	// DefaultAggregationPollInterval is the gap between completion checks.
	DefaultAggregationPollInterval = 400 * time.Millisecond
)

// Service defaults.
const (
	DefaultTemporalHostPort = "localhost:7233"
	DefaultTaskQueue        = "interview-provisioning"
	DefaultDatabasePath     = "interviewd.db"
)

// Config holds the full runtime configuration of the interviewd process.
type Config struct {
	// Temporal connectivity.
	TemporalHostPort string `json:"temporal_host_port"`
	TaskQueue        string `json:"task_queue"`

	// DatabasePath is the SQLite file backing the ledger, reports, and
	// audit log. ":memory:" selects an ephemeral database.
	DatabasePath string `json:"database_path"`

	// OpenAI collaborator configuration.
	OpenAIAPIKey  string `json:"-"` // Sensitive, not serialized
	OpenAIBaseURL string `json:"openai_base_url"`
	OpenAIModel   string `json:"openai_model"`

	Grading     GradingConfig     `json:"grading"`
	Aggregation AggregationConfig `json:"aggregation"`
}

// GradingConfig tunes the grading coordinator.
type GradingConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	BackoffStep   time.Duration `json:"backoff_step"`
	CacheCapacity int           `json:"cache_capacity"`
}

// AggregationConfig tunes the aggregation waiter.
type AggregationConfig struct {
	WaitTimeout  time.Duration `json:"wait_timeout"`
	PollInterval time.Duration `json:"poll_interval"`
}

// DefaultConfig returns a production-ready configuration. The OpenAI API
// key is read from OPENAI_API_KEY; Temporal host and database path fall
// back to local-development values.
func DefaultConfig() *Config {
	return &Config{
		TemporalHostPort: envOr("TEMPORAL_HOST_PORT", DefaultTemporalHostPort),
		TaskQueue:        envOr("TASK_QUEUE", DefaultTaskQueue),
		DatabasePath:     envOr("DATABASE_PATH", DefaultDatabasePath),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		Grading: GradingConfig{
			MaxAttempts:   DefaultGradingMaxAttempts,
			BackoffStep:   DefaultGradingBackoffStep,
			CacheCapacity: DefaultDedupCacheCapacity,
		},
		Aggregation: AggregationConfig{
			WaitTimeout:  DefaultAggregationTimeout,
			PollInterval: DefaultAggregationPollInterval,
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
