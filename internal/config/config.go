package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI   string
	DBName     string
	Collection string

	ElasticURL string
	IndexName  string

	// Redis backs the asynq task queue.
	RedisURL      string
	RedisPassword string
	RedisDB       int

	Port        string
	GinMode     string
	CORSOrigins []string

	// SentimentThreshold is the shared polarity cutoff both scorers use to
	// map a polarity to a discrete label. Keeping it identical for both
	// scorers is what makes their labels comparable in the consensus stage.
	SentimentThreshold float64

	BatchSize     int64
	SyncBatchSize int64
	WorkerCount   int

	MaxRetries     int
	RetryBaseDelay time.Duration
	StoreTimeout   time.Duration
	IndexTimeout   time.Duration

	// IndexRateLimit bounds upserts per second against the search index.
	IndexRateLimit float64

	// ScheduleInterval is how often a full batch run is enqueued.
	ScheduleInterval time.Duration
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:   getEnv("MONGO_URI", "mongodb://localhost:27017/post_insight"),
		DBName:     getEnv("DB_NAME", "post_insight"),
		Collection: getEnv("COLLECTION", "posts"),

		ElasticURL: getEnv("ELASTIC_URL", "http://localhost:9200"),
		IndexName:  getEnv("ELASTIC_INDEX", "posts"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		SentimentThreshold: getEnvFloat64("SENTIMENT_THRESHOLD", 0.05),

		BatchSize:     getEnvInt64("BATCH_SIZE", 100),
		SyncBatchSize: getEnvInt64("SYNC_BATCH_SIZE", 500),
		WorkerCount:   getEnvInt("WORKER_COUNT", 4),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay: time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 250)) * time.Millisecond,
		StoreTimeout:   time.Duration(getEnvInt("STORE_TIMEOUT_SEC", 10)) * time.Second,
		IndexTimeout:   time.Duration(getEnvInt("INDEX_TIMEOUT_SEC", 30)) * time.Second,

		IndexRateLimit: getEnvFloat64("INDEX_RATE_LIMIT", 200),

		ScheduleInterval: time.Duration(getEnvInt("SCHEDULE_INTERVAL_MIN", 60)) * time.Minute,
	}

	// Validate required fields
	if cfg.SentimentThreshold <= 0 || cfg.SentimentThreshold >= 1 {
		return nil, fmt.Errorf("SENTIMENT_THRESHOLD must be in (0,1), got %v", cfg.SentimentThreshold)
	}

	if cfg.BatchSize <= 0 || cfg.SyncBatchSize <= 0 {
		return nil, fmt.Errorf("batch sizes must be positive")
	}

	if cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("WORKER_COUNT must be positive")
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("MAX_RETRIES must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
