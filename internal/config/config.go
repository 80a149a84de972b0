// Package config loads runtime configuration from the environment, an
// optional .env overlay, and an optional YAML file for settings that are
// awkward to express as single env vars (the forecast backend list).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// RedisConfig describes the connection used by the State Store and the
// Event Fabric.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LLMConfig describes the active Provider.
type LLMConfig struct {
	Provider string // "anthropic" | "openai"
	APIKey   string
	BaseURL  string
	Model    string
}

// ForecastBackend is one entry of the candidate model list, naming the
// HTTP-RPC endpoint that actually runs the model.
type ForecastBackend struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	HTTPAddr string

	Redis RedisConfig
	LLM   LLMConfig

	EntityIndexURL   string
	PriceAPIURL      string
	NewsSearchAPIKey string
	NewsAPIURL       string
	DomainNewsAPIURL string
	RAGServiceURL    string

	QdrantDSN        string
	QdrantCollection string

	KafkaBrokers     []string
	KafkaTopic       string
	KafkaDLQTopic    string
	KafkaReplyTopic  string
	KafkaGroupID     string
	KafkaEnabled     bool

	ArchiveBucket    string
	ArchiveEnabled   bool
	ArchivePrefix    string
	ArchiveRegion    string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string

	OIDCIssuer   string
	OIDCAudience string

	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string

	BaselinePenalty     bool
	DefaultForecastModel string
	ForecastBackends     []ForecastBackend

	LogPath  string
	LogLevel string

	OrchestratorIdleTimeout time.Duration
}

// Load reads configuration from the environment (optionally overlaid by
// a .env file) and, when CONFIG_FILE is set, a YAML file for the parts
// that don't fit neatly into env vars.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		HTTPAddr:                envOr("HTTP_ADDR", ":8080"),
		BaselinePenalty:         envBool("BASELINE_PENALTY", false),
		DefaultForecastModel:    envOr("DEFAULT_FORECAST_MODEL", "prophet"),
		LogPath:                 os.Getenv("LOG_PATH"),
		LogLevel:                envOr("LOG_LEVEL", "info"),
		OrchestratorIdleTimeout: envDuration("ORCHESTRATOR_IDLE_TIMEOUT", 30*time.Second),

		Redis: RedisConfig{
			Addr:     envOr("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		LLM: LLMConfig{
			Provider: envOr("LLM_PROVIDER", "anthropic"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
			Model:    os.Getenv("LLM_MODEL"),
		},

		EntityIndexURL:   os.Getenv("ENTITY_INDEX_URL"),
		PriceAPIURL:      os.Getenv("PRICE_API_URL"),
		NewsSearchAPIKey: os.Getenv("NEWS_SEARCH_API_KEY"),
		NewsAPIURL:       os.Getenv("NEWS_API_URL"),
		DomainNewsAPIURL: os.Getenv("DOMAIN_NEWS_API_URL"),
		RAGServiceURL:    os.Getenv("RAG_SERVICE_URL"),

		QdrantDSN:        envOr("QDRANT_DSN", "http://localhost:6334"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "entities"),

		KafkaEnabled:    envBool("KAFKA_ENABLED", false),
		KafkaTopic:      envOr("KAFKA_COMMAND_TOPIC", "analysis.commands"),
		KafkaDLQTopic:   envOr("KAFKA_DLQ_TOPIC", "analysis.commands.dlq"),
		KafkaReplyTopic: envOr("KAFKA_REPLY_TOPIC", "analysis.responses"),
		KafkaGroupID:    envOr("KAFKA_GROUP_ID", "orchestrator"),

		ArchiveEnabled:   envBool("ARCHIVE_ENABLED", false),
		ArchiveBucket:    os.Getenv("ARCHIVE_S3_BUCKET"),
		ArchivePrefix:    envOr("ARCHIVE_S3_PREFIX", "event-logs"),
		ArchiveRegion:    envOr("ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveEndpoint:  os.Getenv("ARCHIVE_S3_ENDPOINT"),
		ArchiveAccessKey: os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
		ArchiveSecretKey: os.Getenv("ARCHIVE_S3_SECRET_KEY"),

		OIDCIssuer:   os.Getenv("OIDC_ISSUER"),
		OIDCAudience: os.Getenv("OIDC_AUDIENCE"),

		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
		ServiceName:    envOr("SERVICE_NAME", "orchestratord"),
		ServiceVersion: envOr("SERVICE_VERSION", "dev"),
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAMLOverlay(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if len(cfg.ForecastBackends) == 0 {
		cfg.ForecastBackends = defaultForecastBackends()
	}
	return cfg, nil
}

type yamlOverlay struct {
	ForecastBackends []ForecastBackend `yaml:"forecast_backends"`
}

func loadYAMLOverlay(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}
	if len(overlay.ForecastBackends) > 0 {
		cfg.ForecastBackends = overlay.ForecastBackends
	}
	return nil
}

func defaultForecastBackends() []ForecastBackend {
	return []ForecastBackend{
		{Name: "prophet", URL: envOr("FORECAST_PROPHET_URL", "http://localhost:9001/forecast")},
		{Name: "xgboost", URL: envOr("FORECAST_XGBOOST_URL", "http://localhost:9002/forecast")},
		{Name: "randomforest", URL: envOr("FORECAST_RANDOMFOREST_URL", "http://localhost:9003/forecast")},
		{Name: "dlinear", URL: envOr("FORECAST_DLINEAR_URL", "http://localhost:9004/forecast")},
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
