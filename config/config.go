package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	InterpreterCanned = "canned"
	InterpreterLLM    = "llm"

	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type LLMConfig struct {
	Provider string
	Model    string
	Timeout  time.Duration
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
	// BatchSize caps the texts sent per embedding request; 0 sends all at once.
	BatchSize int
}

type WhatsAppConfig struct {
	PhoneID    string
	Token      string
	APIVersion string
}

type Config struct {
	ListenAddr string
	Storage    string

	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	GuidelinesDir string

	Interpreter    string
	InterpretDelay time.Duration

	LLM        LLMConfig
	Embeddings EmbeddingConfig

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	WhatsApp WhatsAppConfig
}

func Load() Config {
	return Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		Storage:     strings.ToLower(getEnv("STORAGE", StorageMemory)),
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/nexo?sslmode=disable"),
		Neo4jURI:    getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),

		GuidelinesDir: getEnv("GUIDELINES_DIR", "./guidelines-data"),

		Interpreter:    strings.ToLower(getEnv("INTERPRETER", InterpreterCanned)),
		InterpretDelay: getEnvDuration("INTERPRET_DELAY", 0),

		LLM: LLMConfig{
			Provider: strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama)),
			Model:    getEnv("LLM_MODEL", "llama3.1:8b"),
			Timeout:  getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Embeddings: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderOllama)),
			Model:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDING_DIMENSION", 768),
			BatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 32),
		},

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		WhatsApp: WhatsAppConfig{
			PhoneID:    getEnv("WHATSAPP_PHONE_ID", ""),
			Token:      getEnv("WHATSAPP_TOKEN", ""),
			APIVersion: getEnv("WHATSAPP_API_VERSION", "v14.0"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go duration strings ("2s") or a bare number of
// milliseconds ("2000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
