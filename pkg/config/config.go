package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	Env                     string
	MetricsPort             string
	FirebaseCredentialsPath string
	FirebaseProjectID       string
	// StoreDriver selects the document store: firestore, mongo or memory.
	StoreDriver           string
	MongoURI              string
	MongoDatabase         string
	PostgresConnStr       string
	RedisAddr             string
	NatsURL               string
	OtelEndpoint          string
	AuthMode              string
	JWTSecret             string
	TriggerSecret         string
	NewsPostSecret        string
	NewsBotUID            string
	NotificationChunkSize int
	PostsCollection       string
	LegacyPostsCollection string
}

// Load reads the configuration from the environment, after loading a .env
// file when one is present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, assuming environment variables are set.")
	}
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		MetricsPort:             getEnv("METRICS_PORT", "9090"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase_credentials.json"),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		StoreDriver:             getEnv("STORE_DRIVER", "firestore"),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "socialmedia"),
		PostgresConnStr:         getEnv("POSTGRES_CONN_STR", ""),
		RedisAddr:               getEnv("REDIS_ADDR", ""),
		NatsURL:                 getEnv("NATS_URL", ""),
		OtelEndpoint:            getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		AuthMode:                getEnv("AUTH_MODE", "firebase"),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		TriggerSecret:           getEnv("TRIGGER_SECRET", ""),
		NewsPostSecret:          getEnv("NEWS_POST_SECRET", ""),
		NewsBotUID:              getEnv("NEWS_BOT_UID", "news-bot"),
		NotificationChunkSize:   getEnvInt("NOTIFICATION_CHUNK_SIZE", 400),
		PostsCollection:         getEnv("POSTS_COLLECTION", "posts"),
		LegacyPostsCollection:   getEnv("LEGACY_POSTS_COLLECTION", "tweets"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}
