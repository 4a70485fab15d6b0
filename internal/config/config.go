// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	LogLevel       string
	AllowedOrigins []string
	Store          StoreConfig
	LLM            LLMConfig
	Coach          CoachConfig
	RateLimit      RateLimitConfig
	Speech         SpeechConfig
}

// StoreConfig selects and configures the session persistence backend.
type StoreConfig struct {
	Driver string // "file" or "sqlite"
	Dir    string
	DBPath string
}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	RequestID        string
	Timeout          time.Duration
	MaxRetries       int
	Concurrency      int
	StructuredOutput bool
	ParamsPath       string
}

// CoachConfig holds the conversation constants.
type CoachConfig struct {
	QuizNum           int
	InitialDistance   int
	MaxReactLength    int
	MaxFeedbackLength int
	AttemptLimit      int
	SituationAttempts int
}

// RateLimitConfig controls the per-client request limiter.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// SpeechConfig controls letter voice synthesis and upload.
type SpeechConfig struct {
	Enabled      bool
	URL          string
	ClientID     string
	ClientSecret string
	Speaker      string
	Bucket       string
	Region       string
	Prefix       string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	quizNum := getEnvInt("QUIZ_NUM", 5)

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "file"),
			Dir:    getEnv("SESSION_DIR", "./data/conversation_logs"),
			DBPath: getEnv("DB_PATH", "./data/sessions.db"),
		},
		LLM: LLMConfig{
			BaseURL:          getEnv("LLM_BASE_URL", "https://clovastudio.stream.ntruss.com/v1/openai/"),
			APIKey:           getEnv("LLM_API_KEY", ""),
			Model:            getEnv("LLM_MODEL", "HCX-007"),
			RequestID:        getEnv("LLM_REQUEST_ID", ""),
			Timeout:          getEnvDuration("LLM_TIMEOUT", 30*time.Second),
			MaxRetries:       getEnvInt("LLM_MAX_RETRIES", 1),
			Concurrency:      getEnvInt("LLM_CONCURRENCY", 16),
			StructuredOutput: getEnvBool("LLM_STRUCTURED_OUTPUT", false),
			ParamsPath:       getEnv("PARAMS_PATH", "./configs/params.yaml"),
		},
		Coach: CoachConfig{
			QuizNum:           quizNum,
			InitialDistance:   getEnvInt("INITIAL_DISTANCE", quizNum),
			MaxReactLength:    getEnvInt("MAX_REACT_LENGTH", 60),
			MaxFeedbackLength: getEnvInt("MAX_FEEDBACK_LENGTH", 300),
			AttemptLimit:      getEnvInt("ATTEMPT_LIMIT", 5),
			SituationAttempts: getEnvInt("SITUATION_ATTEMPTS", 10),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 300),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Speech: SpeechConfig{
			Enabled:      getEnvBool("TTS_ENABLED", false),
			URL:          getEnv("TTS_URL", "https://naveropenapi.apigw.ntruss.com/tts-premium/v1/tts"),
			ClientID:     getEnv("TTS_CLIENT_ID", ""),
			ClientSecret: getEnv("TTS_CLIENT_SECRET", ""),
			Speaker:      getEnv("TTS_SPEAKER", "nwoof"),
			Bucket:       getEnv("S3_BUCKET", ""),
			Region:       getEnv("S3_REGION", "ap-northeast-2"),
			Prefix:       getEnv("S3_PREFIX", "chatrooms/results"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Driver {
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("SESSION_DIR cannot be empty")
		}
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be file or sqlite, got %q", c.Store.Driver)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL cannot be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must be >= 0")
	}
	if c.LLM.Concurrency <= 0 {
		return fmt.Errorf("LLM_CONCURRENCY must be > 0")
	}
	if c.Coach.QuizNum <= 0 {
		return fmt.Errorf("QUIZ_NUM must be > 0")
	}
	if c.Coach.InitialDistance < 0 {
		return fmt.Errorf("INITIAL_DISTANCE must be >= 0")
	}
	if c.Coach.MaxReactLength <= 0 || c.Coach.MaxFeedbackLength <= 0 {
		return fmt.Errorf("MAX_REACT_LENGTH and MAX_FEEDBACK_LENGTH must be > 0")
	}
	if c.Coach.AttemptLimit <= 0 {
		return fmt.Errorf("ATTEMPT_LIMIT must be > 0")
	}
	if c.Coach.SituationAttempts <= 0 {
		return fmt.Errorf("SITUATION_ATTEMPTS must be > 0")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Speech.Enabled && (c.Speech.ClientID == "" || c.Speech.ClientSecret == "") {
		return fmt.Errorf("TTS_CLIENT_ID and TTS_CLIENT_SECRET are required when TTS_ENABLED is set")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
