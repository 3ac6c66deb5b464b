package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser     string
	DBPassword string
	DBName     string
	DBHost     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	BotToken string

	PanelURL     string
	PanelKey     string
	PanelTimeout time.Duration

	PlanLimits string

	GatewayMaxTries     uint
	GatewayRetryBackoff time.Duration

	LockTTL  time.Duration
	LockWait time.Duration

	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	NotifyLead        time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "peergate"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		PanelURL:     getEnv("PANEL_API_URL", ""),
		PanelKey:     getEnv("PANEL_API_KEY", ""),
		PanelTimeout: getEnvDuration("PANEL_TIMEOUT", 10*time.Second),

		PlanLimits: getEnv("PLAN_LIMITS", "trial:1,standard:3,premium:5"),

		GatewayMaxTries:     uint(getEnvInt("GATEWAY_MAX_TRIES", 4)),
		GatewayRetryBackoff: getEnvDuration("GATEWAY_RETRY_BACKOFF", 200*time.Millisecond),

		// Lock TTL must outlast a full gateway call including retries.
		LockTTL:  getEnvDuration("LOCK_TTL", 2*time.Minute),
		LockWait: getEnvDuration("LOCK_WAIT", 5*time.Second),

		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", time.Hour),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute),
		NotifyLead:        getEnvDuration("NOTIFY_LEAD", 24*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}
