package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins []string

	// Redis / job queue
	RedisURL          string
	RedisPassword     string
	RedisDB           int
	WorkerConcurrency int

	// Gemini
	GeminiAPIKey    string
	GeminiModel     string
	EmbeddingsModel string
	GeminiTier      string

	// Uploads
	MaxFileSize    int64
	FileStorageDir string

	// Chunking
	MaxChunkSize int
	ChunkOverlap int

	// Retrieval
	RelevanceThreshold float64
	SearchResults      int

	// OCR binaries (resolved from PATH when empty)
	TesseractPath string
	PdftoppmPath  string

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTLPEndpoint   string
	TracingEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/rag_chatbot"),
		DBName:   getEnv("DB_NAME", "rag_chatbot"),
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GeminiTier:      getEnv("GEMINI_TIER", "free"),

		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./uploads"),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		RelevanceThreshold: getEnvFloat64("RELEVANCE_THRESHOLD", 0.3),
		SearchResults:      getEnvInt("SEARCH_RESULTS", 5),

		TesseractPath: getEnv("TESSERACT_PATH", ""),
		PdftoppmPath:  getEnv("PDFTOPPM_PATH", ""),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
	}

	if cfg.ChunkOverlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than MAX_CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.MaxChunkSize)
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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
