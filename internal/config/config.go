// Package config loads and validates docent's configuration.
//
// Values resolve in priority order: environment variables override the
// config file (~/.docent/config.yaml), which overrides built-in defaults.
// The settings split into groups: models (generation tiers, temperature,
// max tokens, embedder), retrieval, the HTTP server, the chat client,
// PostgreSQL (storage.go), ingestion (ingest.go), and telemetry
// (telemetry.go).
//
// Load fails fast: validation runs before a Config is returned, and the
// PostgreSQL password is masked in MarshalJSON and String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Validation sentinels. Validate wraps each with the offending value;
// callers match with errors.Is.
var (
	ErrConfigNil               = errors.New("configuration is nil")
	ErrMissingAPIKey           = errors.New("missing API key")
	ErrInvalidModel            = errors.New("invalid model")
	ErrInvalidTemperature      = errors.New("invalid temperature")
	ErrInvalidMaxTokens        = errors.New("invalid max tokens")
	ErrInvalidTopK             = errors.New("invalid top k")
	ErrInvalidServerPort       = errors.New("invalid server port")
	ErrInvalidBackendURL       = errors.New("invalid backend URL")
	ErrInvalidPostgresHost     = errors.New("invalid PostgreSQL host")
	ErrInvalidPostgresPort     = errors.New("invalid PostgreSQL port")
	ErrInvalidPostgresDBName   = errors.New("invalid PostgreSQL database name")
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")
	ErrInvalidPostgresSSLMode  = errors.New("invalid PostgreSQL SSL mode")
	ErrInvalidIngestSource     = errors.New("invalid ingest source")
	ErrInvalidChunking         = errors.New("invalid chunking")
)

// Config holds every runtime setting. Fields carrying secrets must be
// masked in MarshalJSON; update it when adding one.
type Config struct {
	// Model configuration. FastModel and CapableModel are the two supported
	// generation tiers; CapableModel is the default for chat.
	Provider      string  `mapstructure:"provider" json:"provider"`
	FastModel     string  `mapstructure:"fast_model" json:"fast_model"`
	CapableModel  string  `mapstructure:"capable_model" json:"capable_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`

	// Retrieval configuration
	TopK int `mapstructure:"top_k" json:"top_k"`

	// HTTP server configuration (serve mode)
	ServerHost     string   `mapstructure:"server_host" json:"server_host"`
	ServerPort     int      `mapstructure:"server_port" json:"server_port"`
	CORSOrigins    []string `mapstructure:"cors_origins" json:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`
	TrustProxy     bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)

	// Chat client configuration (chat mode)
	BackendURL string `mapstructure:"backend_url" json:"backend_url"`
	UserID     string `mapstructure:"user_id" json:"user_id"` // Overrides the persisted identity when set

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // masked by MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Ingestion configuration (see ingest.go)
	Ingest IngestConfig `mapstructure:"ingest" json:"ingest"`

	// Telemetry configuration (see telemetry.go)
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
}

// Load resolves the configuration from defaults, the config file, and
// environment overrides, then validates it.
func Load() (*Config, error) {
	configDir, err := ensureConfigDir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("no config file found, using defaults", "searched", configDir)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* values.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

// ensureConfigDir creates ~/.docent if needed and returns its path.
func ensureConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	dir := filepath.Join(home, ".docent")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

func setDefaults() {
	// Model defaults
	viper.SetDefault("provider", ProviderGoogleAI)
	viper.SetDefault("fast_model", DefaultFastModel)
	viper.SetDefault("capable_model", DefaultCapableModel)
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("max_tokens", 4096)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	// Retrieval defaults
	viper.SetDefault("top_k", 6)

	// Server defaults
	viper.SetDefault("server_host", "localhost")
	viper.SetDefault("server_port", 8080)
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("rate_limit_rps", 5.0)
	viper.SetDefault("rate_limit_burst", 10)
	viper.SetDefault("trust_proxy", false)

	// Client defaults
	viper.SetDefault("backend_url", "http://localhost:8080")

	// PostgreSQL defaults line up with docker-compose.yml.
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "docent")
	viper.SetDefault("postgres_password", "docent_dev_password")
	viper.SetDefault("postgres_db_name", "docent")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Ingestion defaults: the three documentation sites docent indexes.
	viper.SetDefault("ingest.parallelism", 2)
	viper.SetDefault("ingest.delay_ms", 1000)
	viper.SetDefault("ingest.timeout_ms", 30000)
	viper.SetDefault("ingest.chunk_size", 4000)
	viper.SetDefault("ingest.chunk_overlap", 200)
	viper.SetDefault("ingest.sources", defaultIngestSources())

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "localhost:4318")
	viper.SetDefault("telemetry.environment", "dev")
	viper.SetDefault("telemetry.service_name", "docent")
}

// bindEnvVariables binds environment overrides explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a failure here is a programming
	// defect, not a runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("binding %s to %s: %v", key, envVar, err))
		}
	}

	mustBind("provider", "DOCENT_PROVIDER")
	mustBind("fast_model", "DOCENT_FAST_MODEL")
	mustBind("capable_model", "DOCENT_CAPABLE_MODEL")
	mustBind("backend_url", "DOCENT_BACKEND_URL")
	mustBind("user_id", "DOCENT_USER_ID")
	mustBind("server_host", "DOCENT_SERVER_HOST")
	mustBind("server_port", "DOCENT_SERVER_PORT")
	mustBind("cors_origins", "DOCENT_CORS_ORIGINS")
	mustBind("trust_proxy", "DOCENT_TRUST_PROXY")
	mustBind("telemetry.enabled", "DOCENT_TELEMETRY_ENABLED")
	mustBind("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validation checks its presence when the googleai provider is selected.
}

// maskedValue replaces secret characters. Full-width blocks avoid
// substring matches against real secret characters.
const maskedValue = "████████"

// maskSecret hides a secret for logging. Secrets of 8 chars or fewer
// vanish entirely; longer ones keep the first and last two characters
// for debug utility.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return maskedValue
	default:
		return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
	}
}

// MarshalJSON masks the PostgreSQL password before serializing.
func (c Config) MarshalJSON() ([]byte, error) {
	type plain Config
	p := plain(c)
	p.PostgresPassword = maskSecret(p.PostgresPassword)
	return json.Marshal(p)
}

// String keeps fmt printing from leaking secrets.
func (c Config) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("Config{unprintable: %v}", err)
	}
	return string(b)
}
