package config

import (
	"time"

	"github.com/joho/godotenv"

	"github.com/soaringjerry/Archetype/internal/utils"
)

// Config carries every tunable of the agent. Values come from ARCHETYPE_*
// environment variables, optionally seeded from a .env file.
type Config struct {
	// BaseURL is the root of the remote assessment API.
	BaseURL string
	// RequestTimeout bounds each individual remote call.
	RequestTimeout time.Duration
	// DataDir holds the local sqlite store.
	DataDir string

	// FlushInterval is the periodic sync-queue tick.
	FlushInterval time.Duration
	// ProbeInterval is the connectivity health-check tick.
	ProbeInterval time.Duration

	// DebounceWindow is the quiet period before dirty answers are pushed.
	DebounceWindow time.Duration
	// BatchEvery forces a push after this many pending answers.
	BatchEvery int

	// MaxAttempts is the per-mutation retry ceiling.
	MaxAttempts int
	// BackoffBase seeds the exponential retry delay.
	BackoffBase time.Duration

	// QuestionCount sizes the questionnaire pool.
	QuestionCount int
}

// Load reads configuration from the environment. A missing .env file is
// fine; explicit environment variables always win over file values.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		BaseURL:        utils.SafeEnv("ARCHETYPE_BASE_URL", "http://localhost:8080/api/v1"),
		RequestTimeout: utils.SafeEnvDuration("ARCHETYPE_REQUEST_TIMEOUT", 5*time.Second),
		DataDir:        utils.SafeEnv("ARCHETYPE_DATA_DIR", "./data"),
		FlushInterval:  utils.SafeEnvDuration("ARCHETYPE_FLUSH_INTERVAL", 30*time.Second),
		ProbeInterval:  utils.SafeEnvDuration("ARCHETYPE_PROBE_INTERVAL", 15*time.Second),
		DebounceWindow: utils.SafeEnvDuration("ARCHETYPE_DEBOUNCE_WINDOW", 2*time.Second),
		BatchEvery:     utils.SafeEnvInt("ARCHETYPE_BATCH_EVERY", 10),
		MaxAttempts:    utils.SafeEnvInt("ARCHETYPE_MAX_ATTEMPTS", 5),
		BackoffBase:    utils.SafeEnvDuration("ARCHETYPE_BACKOFF_BASE", 2*time.Second),
		QuestionCount:  utils.SafeEnvInt("ARCHETYPE_QUESTION_COUNT", 93),
	}
}
