package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI  string
	DBName    string
	Port      string
	GinMode   string
	CORSOrigins []string

	// Auth
	JWTSecret    string
	AccessSecret string
	RefreshSecret string
	BcryptCost   int

	// Gemini provider
	GeminiAPIKey    string
	CompletionModel string
	EmbeddingModel  string
	GeminiTier      string

	// Per-call deadlines and retry bounds for external collaborators
	EmbedTimeoutSecs      int
	CompletionTimeoutSecs int
	ToolTimeoutSecs       int
	EmbedMaxRetries       int

	// Chunking
	MaxChunkSize int
	ChunkOverlap int

	// Orchestrator
	MaxToolIterations int
	MaxHistoryTokens  int

	// Retrieval defaults
	SearchLimit    int
	SearchMinScore float64

	// Uploads
	MaxFileSize    int64
	FileStorageDir string

	// Redis
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Vector index
	VectorSearchEnabled bool
	VectorIndexName     string
	VectorDimensions    int
	EmbedCacheTTLSecs   int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Ingestion sweeper
	SweepIntervalMins int
	StuckAfterMins    int

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
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/rag_chatbot"),
		DBName:      getEnv("DB_NAME", "rag_chatbot"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		AccessSecret:  getEnv("ACCESS_SECRET", ""),
		RefreshSecret: getEnv("REFRESH_SECRET", ""),
		BcryptCost:    getEnvInt("BCRYPT_COST", 12),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		CompletionModel: getEnv("COMPLETION_MODEL", "gemini-2.0-flash"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		GeminiTier:      getEnv("GEMINI_TIER", "free"),

		EmbedTimeoutSecs:      getEnvInt("EMBED_TIMEOUT", 30),
		CompletionTimeoutSecs: getEnvInt("COMPLETION_TIMEOUT", 120),
		ToolTimeoutSecs:       getEnvInt("TOOL_TIMEOUT", 15),
		EmbedMaxRetries:       getEnvInt("EMBED_MAX_RETRIES", 3),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		MaxToolIterations: getEnvInt("MAX_TOOL_ITERATIONS", 5),
		MaxHistoryTokens:  getEnvInt("MAX_HISTORY_TOKENS", 16000),

		SearchLimit:    getEnvInt("SEARCH_LIMIT", 5),
		SearchMinScore: getEnvFloat64("SEARCH_MIN_SCORE", 0.7),

		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		VectorIndexName:     getEnv("MONGODB_VECTOR_INDEX", "vectors_cosine"),
		VectorDimensions:    getEnvInt("VECTOR_DIM", 768),
		EmbedCacheTTLSecs:   getEnvInt("EMBED_CACHE_TTL", 86400),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		SweepIntervalMins: getEnvInt("SWEEP_INTERVAL_MINUTES", 5),
		StuckAfterMins:    getEnvInt("STUCK_AFTER_MINUTES", 30),

		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("REFRESH_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.ChunkOverlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than MAX_CHUNK_SIZE (%d)",
			cfg.ChunkOverlap, cfg.MaxChunkSize)
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
