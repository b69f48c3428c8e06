// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Server       ServerConfig            `mapstructure:"server"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	LLM          LLMConfig               `mapstructure:"llm"`
	OCR          OCRConfig               `mapstructure:"ocr"`
	Interactions InteractionsConfig      `mapstructure:"interactions"`
	LastResult   LastResultConfig        `mapstructure:"last_result"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Logging      LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address        string `mapstructure:"address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Enabled        bool   `mapstructure:"enabled"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
}

// --- LLM providers ---

// LLMConfig lists providers in preference order. A provider without an API
// key is skipped when a call is made.
type LLMConfig struct {
	Order  []string       `mapstructure:"order"`
	Gemini ProviderConfig `mapstructure:"gemini"`
	OpenAI ProviderConfig `mapstructure:"openai"`
}

type ProviderConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds, 0 = none
}

type OCRConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	Language   string `mapstructure:"language"`
}

// --- Drug interactions ---
type InteractionsConfig struct {
	// Source is "openfda" or "elasticsearch".
	Source               string           `mapstructure:"source"`
	MaxConcurrentLookups int              `mapstructure:"max_concurrent_lookups"`
	PromptCharBudget     int              `mapstructure:"prompt_char_budget"`
	FallbackChars        int              `mapstructure:"fallback_chars"`
	OpenFDA              OpenFDAConfig    `mapstructure:"openfda"`
	Elasticsearch        LabelIndexConfig `mapstructure:"elasticsearch"`
}

type OpenFDAConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds, 0 = none
}

type LabelIndexConfig struct {
	Index string `mapstructure:"index"`
}

// LastResultConfig selects the single-slot store backend: memory, redis or postgres.
type LastResultConfig struct {
	Backend string `mapstructure:"backend"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
