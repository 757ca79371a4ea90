package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Inbound API throttling, independent of the model backend limit
	APIRateLimitRPS   float64
	APIRateLimitBurst int

	// Pipeline directories
	InputDir     string
	WorkDir      string
	CodeBankDir  string
	TaxonomyPath string

	// Pipeline behaviour
	ClassifierStrategy string
	AllowInferred      bool
	RetrievalTopK      int
	AuditStrictness    string
	Workers            int
	LabelConcurrency   int
	EntityCategories   []string
	RedactPrompts      bool
	DLPRulesPath       string

	// Model backend
	LLMBaseURL        string
	LLMAPIKey         string
	ClassifierModel   string
	SelectorModel     string
	AuditorModel      string
	EmbeddingModel    string
	LLMTimeout        time.Duration
	EmbeddingTimeout  time.Duration
	LLMMaxAttempts    int
	LLMRateLimitRPS   float64
	LLMRateLimitBurst int

	// OAuth2 client credentials for the model API
	LLMOAuthTokenURL     string
	LLMOAuthClientID     string
	LLMOAuthClientSecret string

	// Redis response cache
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisDB         int
	LLMCacheEnabled bool
	LLMCacheTTL     time.Duration

	// Kafka
	KafkaBrokers    []string
	KafkaGroupID    string
	KafkaTaskTopic  string
	KafkaEventTopic string
	EventsEnabled   bool

	// Postgres audit ledger
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	LedgerEnabled    bool

	// SQLite model-call provenance
	ProvenanceDBPath string
}

func Load() *Config {
	workDir := getEnv("PIPELINE_WORK_DIR", "data")
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8090"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Minute),

		APIRateLimitRPS:   getFloatEnv("API_RATE_LIMIT_RPS", 50),
		APIRateLimitBurst: getIntEnv("API_RATE_LIMIT_BURST", 100),

		InputDir:     getEnv("PIPELINE_INPUT_DIR", filepath.Join(workDir, "raw")),
		WorkDir:      workDir,
		CodeBankDir:  getEnv("CODEBANK_DIR", filepath.Join(workDir, "codebank")),
		TaxonomyPath: getEnv("TAXONOMY_PATH", ""),

		ClassifierStrategy: getEnv("CLASSIFIER_STRATEGY", "batch"),
		AllowInferred:      getBoolEnv("CLASSIFIER_ALLOW_INFERRED", true),
		RetrievalTopK:      getIntEnv("RETRIEVAL_TOP_K", 5),
		AuditStrictness:    getEnv("AUDIT_STRICTNESS", "permissive"),
		Workers:            getIntEnv("PIPELINE_WORKERS", 4),
		LabelConcurrency:   getIntEnv("LABEL_CONCURRENCY", 4),
		EntityCategories:   getStringSliceEnv("ENTITY_CATEGORIES", nil),
		RedactPrompts:      getBoolEnv("REDACT_PROMPTS", false),
		DLPRulesPath:       getEnv("DLP_RULES_PATH", ""),

		LLMBaseURL:        getEnv("LLM_BASE_URL", "http://localhost:11434"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		ClassifierModel:   getEnv("LLM_CLASSIFIER_MODEL", "llama3.1:8b"),
		SelectorModel:     getEnv("LLM_SELECTOR_MODEL", "llama3.1:8b"),
		AuditorModel:      getEnv("LLM_AUDITOR_MODEL", "llama3.1:8b"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "mxbai-embed-large"),
		LLMTimeout:        getDuration("LLM_TIMEOUT", 120*time.Second),
		EmbeddingTimeout:  getDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		LLMMaxAttempts:    getIntEnv("LLM_MAX_ATTEMPTS", 1),
		LLMRateLimitRPS:   getFloatEnv("LLM_RATE_LIMIT_RPS", 0),
		LLMRateLimitBurst: getIntEnv("LLM_RATE_LIMIT_BURST", 1),

		LLMOAuthTokenURL:     getEnv("LLM_OAUTH_TOKEN_URL", ""),
		LLMOAuthClientID:     getEnv("LLM_OAUTH_CLIENT_ID", ""),
		LLMOAuthClientSecret: getEnv("LLM_OAUTH_CLIENT_SECRET", ""),

		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getIntEnv("REDIS_DB", 0),
		LLMCacheEnabled: getBoolEnv("LLM_CACHE_ENABLED", false),
		LLMCacheTTL:     getDuration("LLM_CACHE_TTL", 24*time.Hour),

		KafkaBrokers:    getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:    getEnv("KAFKA_GROUP_ID", "cid-coder"),
		KafkaTaskTopic:  getEnv("KAFKA_TASK_TOPIC", "cid-record-tasks"),
		KafkaEventTopic: getEnv("KAFKA_EVENT_TOPIC", "cid-stage-events"),
		EventsEnabled:   getBoolEnv("EVENTS_ENABLED", false),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "synaptica"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "synaptica123"),
		PostgresDB:       getEnv("POSTGRES_DB", "cid_coder"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		LedgerEnabled:    getBoolEnv("LEDGER_ENABLED", false),

		ProvenanceDBPath: getEnv("PROVENANCE_DB_PATH", ""),
	}
}

// StageDir returns the output directory of a stage under the work directory.
func (c *Config) StageDir(stage string) string {
	return filepath.Join(c.WorkDir, stage)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
