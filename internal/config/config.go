package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string
	LogPath  string

	DBType string
	DBDSN  string
	// File backend paths
	FileStates  string
	FileRecords string
	FileEvents  string

	// Check-in semantics
	DefaultTimezone   string
	CutoffHour        int
	ShieldsPerPeriod  int
	CorrectionWindowM int // minutes
	SessionIdleM      int // minutes
	CommitMaxRetries  int

	// Pattern detection
	PatternWindow      int
	PatternMinSample   int
	CorrelationPct     int
	ScanIntervalM      int
	RateLimitPerMinute int

	// Collaborators
	RedisAddr      string
	RedisPassword  string
	OpenAIKey      string
	OpenAIModel    string
	AuthToken      string
	AuthServiceURL string
}

// Load reads configuration from the environment (plus an optional .env file)
// and validates it. The returned Config is constructed once at process start
// and passed explicitly; nothing in this package holds global state.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8088"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),

		DBType:      getEnv("STORAGE_BACKEND", "file"),
		DBDSN:       getEnv("POSTGRES_DSN", ""),
		FileStates:  getEnv("STATES_FILE", "data/user_states.json"),
		FileRecords: getEnv("RECORDS_FILE", "data/checkins.json"),
		FileEvents:  getEnv("EVENTS_FILE", "data/pattern_events.json"),

		DefaultTimezone:   getEnv("DEFAULT_TIMEZONE", "UTC"),
		CutoffHour:        getEnvInt("CUTOFF_HOUR", 3),
		ShieldsPerPeriod:  getEnvInt("SHIELDS_PER_PERIOD", 3),
		CorrectionWindowM: getEnvInt("CORRECTION_WINDOW_MIN", 120),
		SessionIdleM:      getEnvInt("SESSION_IDLE_TIMEOUT_MIN", 15),
		CommitMaxRetries:  getEnvInt("COMMIT_MAX_RETRIES", 5),

		PatternWindow:      getEnvInt("PATTERN_WINDOW", 7),
		PatternMinSample:   getEnvInt("PATTERN_MIN_SAMPLE", 3),
		CorrelationPct:     getEnvInt("PATTERN_CORRELATION_PCT", 70),
		ScanIntervalM:      getEnvInt("SCAN_INTERVAL_MIN", 180),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AuthToken:      getEnv("AUTH_TOKEN", "MOCK-TOKEN"),
		AuthServiceURL: getEnv("AUTH_SERVICE_URL", ""),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.DBType == "postgres" && c.DBDSN == "" {
		return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
	}
	if c.DBType == "file" && (c.FileStates == "" || c.FileRecords == "" || c.FileEvents == "") {
		return errors.New("file storage requires STATES_FILE, RECORDS_FILE and EVENTS_FILE")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.CutoffHour < 0 || c.CutoffHour > 12 {
		return errors.New("CUTOFF_HOUR must be between 0 and 12")
	}
	if c.PatternMinSample < 1 {
		return errors.New("PATTERN_MIN_SAMPLE must be at least 1")
	}
	if c.CorrelationPct < 1 || c.CorrelationPct > 100 {
		return errors.New("PATTERN_CORRELATION_PCT must be within 1..100")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
