package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	AMQPURL     string
	NotifyQueue string
	StoragePath string

	JWTSecret      string
	AdminToken     string
	AllowedOrigins []string
	DefaultLocale  string

	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	ModalBaseURL      string
	ModalToken        string
	ReplicateBaseURL  string
	ReplicateToken    string
	MusicGenVersion   string

	WorkersPerJob      int
	GlobalWorkerCap    int
	ProviderRatePerMin int
	MaxItemAttempts    int
	JobPollInterval    time.Duration
	HeartbeatTTL       time.Duration
	SweepInterval      time.Duration
	StaleAfter         time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		AMQPURL:     os.Getenv("AMQP_URL"),
		NotifyQueue: getEnv("NOTIFY_QUEUE", "jobs.notifications"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		AllowedOrigins: splitCSV(os.Getenv("ALLOWED_ORIGINS")),
		DefaultLocale:  getEnv("DEFAULT_LOCALE", "en"),

		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		ModalBaseURL:      os.Getenv("MODAL_BASE_URL"),
		ModalToken:        os.Getenv("MODAL_TOKEN"),
		ReplicateBaseURL:  getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateToken:    os.Getenv("REPLICATE_TOKEN"),
		MusicGenVersion:   getEnv("MUSICGEN_VERSION", "melody-large"),

		WorkersPerJob:      getEnvInt("WORKERS_PER_JOB", 3),
		GlobalWorkerCap:    getEnvInt("GLOBAL_WORKER_CAP", 32),
		ProviderRatePerMin: getEnvInt("PROVIDER_RATE_PER_MINUTE", 60),
		MaxItemAttempts:    getEnvInt("MAX_ITEM_ATTEMPTS", 3),
		JobPollInterval:    time.Second * time.Duration(getEnvInt("JOB_POLL_INTERVAL_SECONDS", 2)),
		HeartbeatTTL:       time.Second * time.Duration(getEnvInt("HEARTBEAT_TTL_SECONDS", 30)),
		SweepInterval:      time.Minute * time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 5)),
		StaleAfter:         time.Minute * time.Duration(getEnvInt("STALE_AFTER_MINUTES", 30)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.WorkersPerJob <= 0 || cfg.GlobalWorkerCap <= 0 {
		return nil, fmt.Errorf("worker caps must be positive")
	}

	return cfg, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
