package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string // Postgres or MySQL; driver is detected from the URL
	Version     string
	LogLevel    string

	OpenAIKey                      string
	AzureOpenAIEndpoint            string
	AzureOpenAIKey                 string
	AzureOpenAIGPTDeployment       string
	AzureOpenAIEmbeddingDeployment string
	OpenAITimeout                  int // Per-call timeout for description, sentiment and embeddings, in seconds

	RedisAddr               string
	RawEventsTopic          string
	EnrichedEventsTopic     string
	EnrichmentConsumerGroup string
	IndexerConsumerGroup    string
	ConsumerName            string

	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantUseTLS     bool
	QdrantCollection string

	EmbeddingDimensions int
	EmbeddingBatchSize  int
	ChunkMaxSize        int
	ChunkOverlap        int
	ChunkMinSize        int
	SentimentMaxBytes   int

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string // signs webhook POSTs; empty disables signature checks
	WhatsAppAPIBase       string

	APITokens map[string]string // bearer token -> user id

	// LegacyThreadFallbackUntil disables the raw-address thread id fallback after this date.
	// Zero means the fallback is always on.
	LegacyThreadFallbackUntil time.Time
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		OpenAIKey:                      os.Getenv("OPENAI_API_KEY"),
		AzureOpenAIEndpoint:            os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIKey:                 os.Getenv("AZURE_OPENAI_KEY"),
		AzureOpenAIGPTDeployment:       getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", "gpt-4o-mini"),
		AzureOpenAIEmbeddingDeployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "text-embedding-3-small"),
		OpenAITimeout:                  getEnvInt("OPENAI_TIMEOUT", 20),

		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RawEventsTopic:          getEnv("RAW_EVENTS_TOPIC", "conversation.raw"),
		EnrichedEventsTopic:     getEnv("ENRICHED_EVENTS_TOPIC", "conversation.enriched"),
		EnrichmentConsumerGroup: getEnv("ENRICHMENT_CONSUMER_GROUP", "enrichment"),
		IndexerConsumerGroup:    getEnv("INDEXER_CONSUMER_GROUP", "indexer"),
		ConsumerName:            getEnv("CONSUMER_NAME", hostname()),

		QdrantHost:       os.Getenv("QDRANT_HOST"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantUseTLS:     getEnvBool("QDRANT_USE_TLS", false),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "conversation_chunks"),

		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingBatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 10),
		ChunkMaxSize:        getEnvInt("CHUNK_MAX_SIZE", 1000),
		ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", 100),
		ChunkMinSize:        getEnvInt("CHUNK_MIN_SIZE", 20),
		SentimentMaxBytes:   getEnvInt("SENTIMENT_MAX_BYTES", 4000),

		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail: os.Getenv("SENDGRID_FROM_EMAIL"),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Convoflow"),

		WhatsAppToken:         os.Getenv("WHATSAPP_TOKEN"),
		WhatsAppPhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		WhatsAppVerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		WhatsAppAppSecret:     os.Getenv("WHATSAPP_APP_SECRET"),
		WhatsAppAPIBase:       getEnv("WHATSAPP_API_BASE", "https://graph.facebook.com/v19.0"),

		APITokens:                 parseTokens(os.Getenv("API_TOKENS")),
		LegacyThreadFallbackUntil: getEnvDate("LEGACY_THREAD_FALLBACK_UNTIL", time.Time{}),
	}

	return config
}

// UseAzureOpenAI reports whether Azure OpenAI credentials are configured
func (c *Config) UseAzureOpenAI() bool {
	return c.AzureOpenAIEndpoint != "" && c.AzureOpenAIKey != ""
}

// HasOpenAIFallback reports whether a platform OpenAI key is configured
func (c *Config) HasOpenAIFallback() bool {
	return c.OpenAIKey != ""
}

// UpstreamTimeout is the bounded per-call timeout for LLM, sentiment and embedding calls
func (c *Config) UpstreamTimeout() time.Duration {
	if c.OpenAITimeout <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.OpenAITimeout) * time.Second
}

// ConfigurationError lists required settings missing for a component.
// Components refuse to start when one is returned.
type ConfigurationError struct {
	Component string
	Missing   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: missing required configuration: %s", e.Component, strings.Join(e.Missing, ", "))
}

type requirement struct {
	key string
	ok  bool
}

func validate(component string, reqs []requirement) error {
	var missing []string
	for _, r := range reqs {
		if !r.ok {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return &ConfigurationError{Component: component, Missing: missing}
	}
	return nil
}

// ValidateServer checks the settings the ingestion server cannot run without
func (c *Config) ValidateServer() error {
	return validate("server", []requirement{
		{"DATABASE_URL", c.DatabaseURL != ""},
		{"REDIS_ADDR", c.RedisAddr != ""},
		{"RAW_EVENTS_TOPIC", c.RawEventsTopic != ""},
	})
}

// ValidateEnrichment checks the settings the enrichment worker cannot run without
func (c *Config) ValidateEnrichment() error {
	return validate("enrichment", []requirement{
		{"REDIS_ADDR", c.RedisAddr != ""},
		{"RAW_EVENTS_TOPIC", c.RawEventsTopic != ""},
		{"ENRICHED_EVENTS_TOPIC", c.EnrichedEventsTopic != ""},
		{"ENRICHMENT_CONSUMER_GROUP", c.EnrichmentConsumerGroup != ""},
		{"OPENAI_API_KEY or AZURE_OPENAI_ENDPOINT+AZURE_OPENAI_KEY", c.UseAzureOpenAI() || c.HasOpenAIFallback()},
	})
}

// ValidateIndexer checks the settings the chunk indexer cannot run without
func (c *Config) ValidateIndexer() error {
	return validate("indexer", []requirement{
		{"REDIS_ADDR", c.RedisAddr != ""},
		{"ENRICHED_EVENTS_TOPIC", c.EnrichedEventsTopic != ""},
		{"INDEXER_CONSUMER_GROUP", c.IndexerConsumerGroup != ""},
		{"QDRANT_HOST", c.QdrantHost != ""},
		{"QDRANT_COLLECTION", c.QdrantCollection != ""},
		{"OPENAI_API_KEY or AZURE_OPENAI_ENDPOINT+AZURE_OPENAI_KEY", c.UseAzureOpenAI() || c.HasOpenAIFallback()},
	})
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDate gets an environment variable as a YYYY-MM-DD date (UTC) with a default fallback
func getEnvDate(key string, defaultValue time.Time) time.Time {
	if value := os.Getenv(key); value != "" {
		if t, err := time.Parse("2006-01-02", value); err == nil {
			return t
		}
	}
	return defaultValue
}

// parseTokens parses "token:user,token:user" pairs
func parseTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || user == "" {
			continue
		}
		tokens[token] = user
	}
	return tokens
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "worker-1"
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "convoflow").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
