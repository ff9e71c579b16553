package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Keys       APIKeys
	Ai         AIConfig
	Rag        RagConfig
	Checkpoint CheckpointConfig
	Upload     UploadConfig
	Tracing    TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	WsLogFilePath      string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	AuthEnabled        bool
	Version            string
}

type DatabaseConfig struct {
	Connection string
	Verbose    bool
}

type APIKeys struct {
	OpenAI    string
	JwtSecret string
}

type AIConfig struct {
	LLMProvider string // "ollama" or "openai"
	LLMModel    string // e.g. "llama3", "gpt-4o-mini"
	// QueryModel is the default per-request model in "provider/model" form.
	QueryModel          string
	EmbeddingProvider   string // "ollama" or "openai"
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaBaseURL       string
	OpenAIBaseURL       string
	EmbeddingCacheTTL   time.Duration
}

type RagConfig struct {
	TopK                   int
	SimilarityThreshold    float64
	ChunkSize              int
	ChunkOverlap           int
	HistoryWindow          int
	RefuseWithoutDocuments bool
	ResetDocumentsPerTurn  bool
}

type CheckpointConfig struct {
	Driver     string // memory | postgres | redis | sqlite
	SQLitePath string
	TTL        time.Duration // expiry for memory and redis stores; 0 keeps forever
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type UploadConfig struct {
	MaxBytes int
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			WsLogFilePath:      getEnv("WS_LOG_FILE_PATH", "logs/ws.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			AuthEnabled:        getEnvAsBool("AUTH_ENABLED", false),
			Version:            getEnv("APP_VERSION", "0.1.0"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			Verbose:    getEnvAsBool("DB_VERBOSE", false),
		},
		Keys: APIKeys{
			OpenAI:    getEnv("OPENAI_API_KEY", ""),
			JwtSecret: getEnv("JWT_SECRET", ""),
		},
		Ai: AIConfig{
			LLMProvider:         getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:            getEnv("LLM_MODEL", "llama3"),
			QueryModel:          getEnv("QUERY_MODEL", ""),
			EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
			OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
			EmbeddingCacheTTL:   getEnvAsDuration("EMBEDDING_CACHE_TTL", 10*time.Minute),
		},
		Rag: RagConfig{
			TopK:                   getEnvAsInt("RAG_TOP_K", 5),
			SimilarityThreshold:    getEnvAsFloat("RAG_SIMILARITY_THRESHOLD", 0),
			ChunkSize:              getEnvAsInt("RAG_CHUNK_SIZE", 1500),
			ChunkOverlap:           getEnvAsInt("RAG_CHUNK_OVERLAP", 200),
			HistoryWindow:          getEnvAsInt("RAG_HISTORY_WINDOW", 6),
			RefuseWithoutDocuments: getEnvAsBool("RAG_REFUSE_WITHOUT_DOCUMENTS", false),
			ResetDocumentsPerTurn:  getEnvAsBool("RAG_RESET_DOCUMENTS_PER_TURN", false),
		},
		Checkpoint: CheckpointConfig{
			Driver:     strings.ToLower(getEnv("CHECKPOINT_DRIVER", "memory")),
			SQLitePath: getEnv("CHECKPOINT_SQLITE_PATH", "checkpoints.db"),
			TTL:        getEnvAsDuration("CHECKPOINT_TTL", 0),
		},
		Upload: UploadConfig{
			MaxBytes: getEnvAsInt("UPLOAD_MAX_BYTES", 10*1024*1024),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio: clampRatio(getEnvAsFloat("OTEL_SAMPLE_RATIO", 1)),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
