package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	RAG      RAGConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
	AuthRequired       bool
	OtelEnabled        bool
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	Tavily        string
	Anthropic     string
	OpenAI        string
	Jina          string
	SnapshotTopic string
}

type AIConfig struct {
	EmbeddingProvider   string // "ollama" or "jina"
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaBaseURL       string
	LLMProvider         string // "ollama", "anthropic", "openai"
	LLMModel            string
	LLMBaseURL          string
	WebSearchRate       float64
}

// RAGConfig holds the workflow and session tunables, read from RAG_* variables.
type RAGConfig struct {
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"2"`
	StepCeiling     int           `env:"STEP_CEILING" envDefault:"35"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	MaxCacheSize    int           `env:"MAX_CACHE_SIZE" envDefault:"1000"`
	HistoryMax      int           `env:"HISTORY_MAX" envDefault:"10"`
	ContextWindow   int           `env:"CONTEXT_WINDOW" envDefault:"3"`
	AutosaveEvery   int           `env:"AUTOSAVE_EVERY" envDefault:"3"`
	ScantThreshold  int           `env:"SCANT_THRESHOLD" envDefault:"2"`
	CrossRefMinimum int           `env:"CROSS_REF_MINIMUM" envDefault:"5"`
	TopK            int           `env:"TOP_K" envDefault:"5"`
	WebResults      int           `env:"WEB_RESULTS" envDefault:"3"`
	LLMRouter       bool          `env:"LLM_ROUTER" envDefault:"false"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"90s"`
	SessionIdle     time.Duration `env:"SESSION_IDLE" envDefault:"1h"`
	Persistence     string        `env:"PERSISTENCE" envDefault:"file"`
	SessionDir      string        `env:"SESSION_DIR" envDefault:"sessions"`
	AsyncPersist    bool          `env:"ASYNC_PERSIST" envDefault:"false"`
}

const (
	PersistenceFile     = "file"
	PersistenceRedis    = "redis"
	PersistencePostgres = "postgres"
	PersistenceNone     = "none"
)

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	rag, err := LoadRAG()
	if err != nil {
		return nil, err
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			AuthRequired:       getEnvAsBool("AUTH_REQUIRED", false),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			Tavily:        getEnv("TAVILY_API_KEY", ""),
			Anthropic:     getEnv("ANTHROPIC_API_KEY", ""),
			OpenAI:        getEnv("OPENAI_API_KEY", ""),
			Jina:          getEnv("JINA_API_KEY", ""),
			SnapshotTopic: getEnv("SESSION_SNAPSHOT_TOPIC", "session.snapshot"),
		},
		Ai: AIConfig{
			EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
			OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			LLMProvider:         getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:            getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
			WebSearchRate:       getEnvAsFloat("WEB_SEARCH_RATE", 2),
		},
		RAG: rag,
	}, nil
}

// LoadRAG parses the RAG_* variables and validates them.
func LoadRAG() (RAGConfig, error) {
	var rag RAGConfig
	if err := env.ParseWithOptions(&rag, env.Options{Prefix: "RAG_"}); err != nil {
		return RAGConfig{}, fmt.Errorf("parse RAG settings: %w", err)
	}
	if err := rag.Validate(); err != nil {
		return RAGConfig{}, err
	}
	return rag, nil
}

func (c RAGConfig) Validate() error {
	switch c.Persistence {
	case PersistenceFile, PersistenceRedis, PersistencePostgres, PersistenceNone:
	default:
		return fmt.Errorf("invalid RAG_PERSISTENCE %q: want file, redis, postgres or none", c.Persistence)
	}
	positive := map[string]int{
		"RAG_MAX_RETRIES":    c.MaxRetries,
		"RAG_STEP_CEILING":   c.StepCeiling,
		"RAG_MAX_CACHE_SIZE": c.MaxCacheSize,
		"RAG_HISTORY_MAX":    c.HistoryMax,
		"RAG_TOP_K":          c.TopK,
		"RAG_WEB_RESULTS":    c.WebResults,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("invalid %s %d: must be positive", name, v)
		}
	}
	if c.AutosaveEvery < 0 || c.ContextWindow < 0 || c.ScantThreshold < 0 || c.CrossRefMinimum < 0 {
		return fmt.Errorf("RAG_AUTOSAVE_EVERY, RAG_CONTEXT_WINDOW, RAG_SCANT_THRESHOLD and RAG_CROSS_REF_MINIMUM must not be negative")
	}
	if c.CacheTTL <= 0 || c.SessionIdle <= 0 {
		return fmt.Errorf("RAG_CACHE_TTL and RAG_SESSION_IDLE must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
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
