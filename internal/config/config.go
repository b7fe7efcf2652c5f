package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	EmbedderGemini = "gemini"
	EmbedderHTTP   = "http"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"voyagemate"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"voyagemate"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI     bool   `envconfig:"ENABLE_API" default:"true"`
	EnableWorker  bool   `envconfig:"ENABLE_WORKER" default:"true"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Embedding
	Embedder             string `envconfig:"EMBEDDER" default:"gemini"`
	GeminiAPIKey         string `envconfig:"GEMINI_API_KEY"`
	GeminiEmbeddingModel string `envconfig:"GEMINI_EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbeddingServiceURL  string `envconfig:"EMBEDDING_SERVICE_URL" default:"http://embedding-service:8000"`
	EmbedTimeoutSeconds  int    `envconfig:"EMBED_TIMEOUT_SECONDS" default:"60"`

	// Generation
	DeepSeekAPIKey         string `envconfig:"DEEPSEEK_API_KEY"`
	DeepSeekModel          string `envconfig:"DEEPSEEK_MODEL" default:"deepseek-chat"`
	DeepSeekBaseURL        string `envconfig:"DEEPSEEK_BASE_URL" default:"https://api.deepseek.com"`
	GenerateTimeoutSeconds int    `envconfig:"GENERATE_TIMEOUT_SECONDS" default:"60"`

	// Knowledge base
	KBDir  string `envconfig:"KB_DIR" default:"data/index"`
	KBName string `envconfig:"KB_NAME" default:"wikivoyage_cn"`

	// Indexing
	BatchTimeoutSeconds int `envconfig:"BATCH_TIMEOUT_SECONDS" default:"120"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8001"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	CORSOrigin   string `envconfig:"CORS_ORIGIN" default:"*"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win, so a missing .env is fine.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.WeaviateHost == "" {
		return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
	}
	switch c.Embedder {
	case EmbedderGemini:
	case EmbedderHTTP:
		if c.EmbeddingServiceURL == "" {
			return fmt.Errorf("%w: EMBEDDING_SERVICE_URL", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: EMBEDDER=%q", ErrInvalidValue, c.Embedder)
	}
	if c.BatchTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: BATCH_TIMEOUT_SECONDS must be positive", ErrInvalidValue)
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSeconds) * time.Second
}

func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSeconds) * time.Second
}

func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}
