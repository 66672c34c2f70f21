package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr string

	RedisAddr string
	RedisPass string

	KafkaBrokers []string
	KafkaGroupID string

	JWTPubKeyPath string
	JWTIssuer     string
	JWTAudience   string

	DedupTTL time.Duration
}

func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("Notification: No .env file found, relying on system env vars")
	}
	return AppConfig{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8013"),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:     getEnv("REDIS_PASS", ""),
		KafkaBrokers:  strings.Split(getEnv("KAFKA_BROKERS", "kafka:9092"), ","),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "notification-service"),
		JWTPubKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", "/app/keys/jwt_public.pem"),
		JWTIssuer:     getEnv("JWT_ISSUER", "auth-service"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "task-platform"),
		DedupTTL:      getEnvAsDuration("EVENT_DEDUP_TTL", 24*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
