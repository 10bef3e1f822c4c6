package env

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string
	AppPort string
	TZ      string

	JWTSecret string
	JWTIssuer string

	RedisURL string

	MongoURI string
	DBName   string

	// Voice call-control provider
	VoiceAPIBaseURL    string
	VoiceAPIKey        string
	VoiceAPISecret     string
	VoiceWebhookSecret string

	// Callback URLs embedded in every instruction list
	WebhookBaseURL  string
	DefaultCallerID string

	// Session orchestration
	MaxNoInputAttempts int
	SessionIdleMinutes int
	ReapIntervalMin    int

	// AI responder
	FeatureAI       bool
	AITimeoutMs     int
	OpenAIApiKey    string
	OpenAIModel     string
	OpenAIMaxTokens int

	StorageDriver    string
	LocalStoragePath string

	LogLevel           string
	CORSAllowedOrigins string
	APIRateLimitRPM    int

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Missing .env is fine; environment variables alone are enough
		// (e.g., in production). Only fail on a real read error.
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", "8080"),
		TZ:      getEnv("TZ", "UTC"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "voice-orchestrator"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "voice"),

		VoiceAPIBaseURL:    getEnv("VOICE_API_BASE_URL", "https://api.voice-provider.com"),
		VoiceAPIKey:        getEnv("VOICE_API_KEY", ""),
		VoiceAPISecret:     getEnv("VOICE_API_SECRET", ""),
		VoiceWebhookSecret: getEnv("VOICE_WEBHOOK_SECRET", ""),

		WebhookBaseURL:  getEnv("WEBHOOK_BASE_URL", ""),
		DefaultCallerID: getEnv("DEFAULT_CALLER_ID", ""),

		MaxNoInputAttempts: getEnvInt("MAX_NO_INPUT_ATTEMPTS", 3),
		SessionIdleMinutes: getEnvInt("SESSION_IDLE_MINUTES", 30),
		ReapIntervalMin:    getEnvInt("REAP_INTERVAL_MINUTES", 5),

		FeatureAI:       getEnvBool("FEATURE_AI", true),
		AITimeoutMs:     getEnvInt("AI_TIMEOUT_MS", 3500),
		OpenAIApiKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTokens: getEnvInt("OPENAI_MAX_TOKENS", 2000),

		StorageDriver:    getEnv("STORAGE_DRIVER", "provider-proxy"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "/data/audio"),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		APIRateLimitRPM:    getEnvInt("API_RATE_LIMIT_RPM", 120),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", cfg.TZ, err)
	}
	time.Local = loc

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}
