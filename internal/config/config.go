// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration shared by every SOMS process (taskstore,
// ledger, voice, brain). Each cmd/ binary reads only the fields it needs.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Persistence
	TaskStoreDSN string
	LedgerDSN    string
	VoiceDSN     string

	// Bus
	NATSURL string

	// Redis (optional — mirror of Sanitizer's per-zone speak cooldown)
	RedisURL string

	// Upstream HTTP services consumed by Brain
	TaskStoreURL string
	LedgerURL    string
	VoiceURL     string

	// LLM endpoint (OpenAI-compatible)
	LLMBaseURL           string
	LLMAPIKey            string
	LLMModel             string
	LLMTimeout           time.Duration
	LLMRequestsPerSecond float64

	// Authentication. InternalServiceKey is the single pre-shared key every
	// SOMS process uses when calling a sibling service; it's always a
	// member of APIKeys so the receiving side's allow-list accepts it.
	APIKeyHeader       string
	APIKeys            []string
	InternalServiceKey string

	// CORS
	CORSAllowedOrigins []string

	// Speech synthesis endpoint consumed by VoicePipeline
	SynthBaseURL string
	SynthAPIKey  string

	// Brain device-command allow-list: exact agent ids plus a shared prefix
	DeviceAgentAllowList []string
	DeviceAgentPrefix    string

	// Rate limiting (HTTP layer)
	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int

	// Timeouts
	DefaultTimeout time.Duration

	// Body limits
	MaxBodyBytes int64

	// Brain cycle tuning
	CycleInterval       time.Duration
	MinCycleInterval    time.Duration
	BatchWindow         time.Duration
	ReactMaxIterations  int
	MaxSpeakPerCycle    int
	MaxConsecutiveError int

	// Voice pipeline tuning
	VoiceMaxStock          int
	VoiceRefillThreshold   int
	VoiceIdleInterval      time.Duration
	VoiceGenInterval       time.Duration
	VoiceAudioDir          string
	VoiceRejectionAudioDir string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables and an optional
// .env file, the way services/gateway/config/config.go does.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("SOMS_GRACEFUL_TIMEOUT_SEC", 15)
	defaultTimeoutSec := getEnvInt("SOMS_DEFAULT_TIMEOUT_SEC", 10)
	llmTimeoutSec := getEnvInt("SOMS_LLM_TIMEOUT_SEC", 120)

	internalKey := getEnv("SOMS_INTERNAL_API_KEY", "")
	apiKeys := getEnvCSV("SOMS_API_KEYS", nil)
	if internalKey != "" {
		apiKeys = append(apiKeys, internalKey)
	}

	return &Config{
		Addr:            getEnv("SOMS_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		TaskStoreDSN: getEnv("TASKSTORE_DSN", "file:taskstore.db?_pragma=busy_timeout(5000)"),
		LedgerDSN:    getEnv("LEDGER_DSN", "file:ledger.db?_pragma=busy_timeout(5000)"),
		VoiceDSN:     getEnv("VOICE_DSN", "file:voice.db?_pragma=busy_timeout(5000)"),

		NATSURL:  getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		RedisURL: getEnv("REDIS_URL", "redis://127.0.0.1:6379"),

		TaskStoreURL: getEnv("TASKSTORE_URL", "http://127.0.0.1:8081"),
		LedgerURL:    getEnv("LEDGER_URL", "http://127.0.0.1:8082"),
		VoiceURL:     getEnv("VOICE_URL", "http://127.0.0.1:8083"),

		LLMBaseURL:           getEnv("LLM_BASE_URL", "http://127.0.0.1:8090/v1"),
		LLMAPIKey:            getEnv("LLM_API_KEY", ""),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:           time.Duration(llmTimeoutSec) * time.Second,
		LLMRequestsPerSecond: getEnvFloat("LLM_REQUESTS_PER_SECOND", 1.0),

		APIKeyHeader:       getEnv("API_KEY_HEADER", "Authorization"),
		APIKeys:            apiKeys,
		InternalServiceKey: internalKey,

		CORSAllowedOrigins: getEnvCSV("SOMS_CORS_ALLOWED_ORIGINS", []string{"*"}),

		SynthBaseURL: getEnv("SYNTH_BASE_URL", "http://127.0.0.1:8091"),
		SynthAPIKey:  getEnv("SYNTH_API_KEY", ""),

		DeviceAgentAllowList: getEnvCSV("BRAIN_DEVICE_AGENT_ALLOWLIST", nil),
		DeviceAgentPrefix:    getEnv("BRAIN_DEVICE_AGENT_PREFIX", "swarm-"),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 600),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 50),

		DefaultTimeout: time.Duration(defaultTimeoutSec) * time.Second,
		MaxBodyBytes:   int64(getEnvInt("SOMS_MAX_BODY_BYTES", 1*1024*1024)),

		CycleInterval:       time.Duration(getEnvInt("BRAIN_CYCLE_INTERVAL_SEC", 30)) * time.Second,
		MinCycleInterval:    time.Duration(getEnvInt("BRAIN_MIN_CYCLE_INTERVAL_SEC", 25)) * time.Second,
		BatchWindow:         time.Duration(getEnvInt("BRAIN_BATCH_WINDOW_SEC", 3)) * time.Second,
		ReactMaxIterations:  getEnvInt("BRAIN_REACT_MAX_ITERATIONS", 5),
		MaxSpeakPerCycle:    getEnvInt("BRAIN_MAX_SPEAK_PER_CYCLE", 1),
		MaxConsecutiveError: getEnvInt("BRAIN_MAX_CONSECUTIVE_ERRORS", 1),

		VoiceMaxStock:          getEnvInt("VOICE_MAX_STOCK", 100),
		VoiceRefillThreshold:   getEnvInt("VOICE_REFILL_THRESHOLD", 80),
		VoiceIdleInterval:      time.Duration(getEnvInt("VOICE_IDLE_INTERVAL_SEC", 30)) * time.Second,
		VoiceGenInterval:       time.Duration(getEnvInt("VOICE_GEN_INTERVAL_SEC", 3)) * time.Second,
		VoiceAudioDir:          getEnv("VOICE_AUDIO_DIR", "/app/audio"),
		VoiceRejectionAudioDir: getEnv("VOICE_REJECTION_AUDIO_DIR", "/app/audio/rejections"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvCSV(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
