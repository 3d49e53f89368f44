// Package config loads the inboxreply configuration from an optional YAML
// file, INBOXREPLY_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/inboxreply/internal/logging"
)

// EnvPrefix is prepended to every environment variable override, with dots
// in the key replaced by underscores (workflow.top_k -> INBOXREPLY_WORKFLOW_TOP_K).
const EnvPrefix = "INBOXREPLY"

// Config holds the complete runtime configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Server    ServerConfig    `mapstructure:"server"`
	Watch     WatchConfig     `mapstructure:"watch"`

	Instrumentation InstrumentationConfig `mapstructure:"instrumentation"`
	Audit           AuditConfig           `mapstructure:"audit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkflowConfig controls a single guard -> draft -> review run.
type WorkflowConfig struct {
	TopK         int           `mapstructure:"top_k"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	// PromptsDir overrides the embedded prompt templates when set.
	PromptsDir string `mapstructure:"prompts_dir"`
}

// LLMConfig configures the Gemini client.
type LLMConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	EmbedModel string `mapstructure:"embed_model"`
	// RequestsPerSecond limits model calls across all workers. Zero disables limiting.
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	MaxElapsed        time.Duration `mapstructure:"max_elapsed"`
}

type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	EmbeddingDim int    `mapstructure:"embedding_dim"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// SentTTL is how long a sent message ID stays in the ledger.
	SentTTL time.Duration `mapstructure:"sent_ttl"`
}

// GmailConfig describes the service mailbox.
type GmailConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
	// Address is the mailbox's own address; messages from it are never answered.
	Address string `mapstructure:"address"`
}

type IngestConfig struct {
	Query       string `mapstructure:"query"`
	MaxMessages int64  `mapstructure:"max_messages"`

	// PollInterval is the fallback between passes when no push arrives; 0 disables polling.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type QueueConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	PopTimeout  time.Duration `mapstructure:"pop_timeout"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type KnowledgeConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

type ServerConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	HTTPAddr       string `mapstructure:"http_addr"`
	// PushToken, when set, must be present as ?token= on Pub/Sub push requests.
	PushToken string `mapstructure:"push_token"`
}

type WatchConfig struct {
	Project string   `mapstructure:"project"`
	Topic   string   `mapstructure:"topic"`
	Labels  []string `mapstructure:"labels"`
}

// InstrumentationConfig controls OpenTelemetry metrics and tracing.
type InstrumentationConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	// InstanceID identifies this process in exported telemetry; the hostname when empty.
	InstanceID string `mapstructure:"instance_id"`

	// MetricsExporter is prometheus, otlp or stdout.
	MetricsExporter string `mapstructure:"metrics_exporter"`
	// TracingExporter is otlp, stdout or none.
	TracingExporter string  `mapstructure:"tracing_exporter"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`

	// DetailedLabels adds sender domains to escalation metrics.
	DetailedLabels bool `mapstructure:"detailed_labels"`
}

// AuditConfig controls the per-run audit log line.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// IncludePII logs full sender addresses and question text instead of
	// anonymized identifiers.
	IncludePII bool `mapstructure:"include_pii"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": logging.FormatText,

	"workflow.top_k":         3,
	"workflow.stage_timeout": 60 * time.Second,
	"workflow.run_timeout":   3 * time.Minute,
	"workflow.prompts_dir":   "",

	"llm.api_key":             "",
	"llm.model":               "gemini-2.5-flash",
	"llm.embed_model":         "gemini-embedding-001",
	"llm.requests_per_second": 2.0,
	"llm.burst":               4,
	"llm.max_retries":         4,
	"llm.max_elapsed":         45 * time.Second,

	"postgres.dsn":           "",
	"postgres.embedding_dim": 768,

	"redis.addr":     "localhost:6379",
	"redis.password": "",
	"redis.db":       0,
	"redis.sent_ttl": 30 * 24 * time.Hour,

	"gmail.credentials_file": "",
	"gmail.token_file":       "",
	"gmail.address":          "",

	"ingest.query":         "is:unread in:inbox",
	"ingest.max_messages":  25,
	"ingest.poll_interval": 5 * time.Minute,

	"queue.max_attempts": 3,
	"queue.pop_timeout":  5 * time.Second,

	"worker.concurrency": 4,

	"knowledge.chunk_size":    1200,
	"knowledge.chunk_overlap": 200,

	"server.metrics_enabled": true,
	"server.metrics_addr":    ":9090",
	"server.http_addr":       ":8080",
	"server.push_token":      "",

	"watch.project": "",
	"watch.topic":   "",
	"watch.labels":  []string{"INBOX"},

	"instrumentation.enabled":          true,
	"instrumentation.service_name":     "inboxreply",
	"instrumentation.instance_id":      "",
	"instrumentation.metrics_exporter": "prometheus",
	"instrumentation.tracing_exporter": "none",
	"instrumentation.otlp_endpoint":    "",
	"instrumentation.otlp_insecure":    false,
	"instrumentation.sampling_rate":    0.1,
	"instrumentation.detailed_labels":  false,

	"audit.enabled":     true,
	"audit.include_pii": false,
}

// Standard OpenTelemetry variables honoured after the INBOXREPLY_* ones.
var otelEnv = map[string]string{
	"instrumentation.service_name":  "OTEL_SERVICE_NAME",
	"instrumentation.otlp_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	"instrumentation.sampling_rate": "OTEL_TRACES_SAMPLER_ARG",
}

// Loader reads configuration through a private viper instance.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader that reads path when it is non-empty, or
// searches ./inboxreply.yaml and $HOME/.config/inboxreply/ otherwise.
func NewLoader(path string) *Loader {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The Gemini SDK convention is honoured as a fallback for the key.
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "GEMINI_API_KEY")
	for key, env := range otelEnv {
		_ = v.BindEnv(key, envName(key), env)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("inboxreply")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "inboxreply"))
		}
	}

	return &Loader{v: v}
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// BindFlag makes a command-line flag override key when the flag is set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag not defined", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads the config file (a missing file in the search path is not an
// error; a missing explicit file is) and decodes the merged result.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed returns the file the configuration was read from, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load is a shorthand for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}
