package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LLMProvider    string
	GeminiAPIKey   string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	ChatModel      string
	EmbeddingModel string
	LLMTimeout     time.Duration

	DatabaseURL        string
	HistoryDatabaseURL string
	HistoryBackend     string
	HistoryMaxMessages int
	HistoryTokenBudget int

	HTTPPort           string
	LogLevel           string
	CORSAllowedOrigins []string

	QdrantHost          string
	QdrantPort          int
	QdrantAPIKey        string
	QdrantUseTLS        bool
	EmbeddingDimensions int
	BlogCollection      string
	PDFCollection       string
	RetrievalTopK       int
	IncludeBlogContext  bool

	LivePagesFile      string
	LiveTopN           int
	LiveConcurrency    int
	LiveFetchRPS       float64
	LiveFetchTimeout   time.Duration
	EmbeddingCacheSize int
	LiveCacheSize      int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = FromEnv()

	if err := AppConfig.Validate(); err != nil {
		log.Fatal(err)
	}
}

// FromEnv builds a Config from the current environment without touching AppConfig.
func FromEnv() Config {
	return Config{
		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:      getEnv("CHAT_MODEL", ""),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", ""),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),

		DatabaseURL:        getEnv("DATABASE_URL", "kcglobed_catalog.db"),
		HistoryDatabaseURL: getEnv("HISTORY_DATABASE_URL", "kcglobed_history.db"),
		HistoryBackend:     strings.ToLower(getEnv("HISTORY_BACKEND", "memory")),
		HistoryMaxMessages: getEnvAsInt("HISTORY_MAX_MESSAGES", 0),
		HistoryTokenBudget: getEnvAsInt("HISTORY_TOKEN_BUDGET", 0),

		HTTPPort:           getEnv("HTTP_PORT", "3001"),
		LogLevel:           strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		QdrantHost:          getEnv("QDRANT_HOST", ""),
		QdrantPort:          getEnvAsInt("QDRANT_PORT", 6334),
		QdrantAPIKey:        getEnv("QDRANT_API_KEY", ""),
		QdrantUseTLS:        getEnvAsBool("QDRANT_USE_TLS", false),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 0),
		BlogCollection:      getEnv("BLOG_COLLECTION", "kcglobed_blogs"),
		PDFCollection:       getEnv("PDF_COLLECTION", "kcglobed_pdfs"),
		RetrievalTopK:       getEnvAsInt("RETRIEVAL_TOP_K", 3),
		IncludeBlogContext:  getEnvAsBool("INCLUDE_BLOG_CONTEXT", false),

		LivePagesFile:      getEnv("LIVE_PAGES_FILE", ""),
		LiveTopN:           getEnvAsInt("LIVE_TOP_N", 5),
		LiveConcurrency:    getEnvAsInt("LIVE_CONCURRENCY", 3),
		LiveFetchRPS:       getEnvAsFloat("LIVE_FETCH_RPS", 5),
		LiveFetchTimeout:   getEnvAsDuration("LIVE_FETCH_TIMEOUT", 0),
		EmbeddingCacheSize: getEnvAsInt("EMBEDDING_CACHE_SIZE", 0),
		LiveCacheSize:      getEnvAsInt("LIVE_CACHE_SIZE", 0),
	}
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q (expected gemini or openai)", c.LLMProvider)
	}

	switch c.HistoryBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported HISTORY_BACKEND %q (expected memory or sqlite)", c.HistoryBackend)
	}

	if c.LiveConcurrency <= 0 {
		return fmt.Errorf("LIVE_CONCURRENCY must be positive, got %d", c.LiveConcurrency)
	}
	if c.LiveTopN <= 0 {
		return fmt.Errorf("LIVE_TOP_N must be positive, got %d", c.LiveTopN)
	}
	return nil
}

// Debugf logs only when LOG_LEVEL is DEBUG.
func Debugf(format string, args ...any) {
	if AppConfig.LogLevel == "DEBUG" {
		log.Output(2, "[DEBUG] "+fmt.Sprintf(format, args...))
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
