package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPListen        = ":8080"
	defaultHealthPath        = "/healthz"
	defaultReadyPath         = "/readyz"
	defaultIngestPath        = "/ingest"
	defaultStreamPath        = "/ws"
	defaultMaxBodyBytes      = 1 << 20
	defaultSendBuffer        = 16
	defaultNATSURL           = "nats://127.0.0.1:4222"
	defaultNATSSubject       = "gridalert.observations"
	defaultNATSStream        = "GRIDALERT_OBSERVATIONS"
	defaultNATSConsumer      = "gridalert-ingest"
	defaultNATSDeliverGroup  = "gridalert-workers"
	defaultNATSAckWaitSec    = 30
	defaultNATSNackDelayMS   = 1000
	defaultNATSMaxDeliver    = -1
	defaultNATSMaxAckPending = 1024
	defaultNotifyTimeoutSec  = 10
	defaultRetryInitialMS    = 500
	defaultRetryMaxAttempts  = 3
	defaultNotifyQueueDepth  = 64

	// StoreBackendMemory keeps alerts in process memory (single instance).
	StoreBackendMemory = "memory"
	// StoreBackendPostgres keeps alerts in a relational database.
	StoreBackendPostgres = "postgres"
)

// Config holds the full service runtime configuration.
// Params: TOML sections from one file or a merged directory snapshot.
// Returns: validated runtime settings.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Log      LogConfig      `toml:"log"`
	Ingest   IngestConfig   `toml:"ingest"`
	Store    StoreConfig    `toml:"store"`
	Hub      HubConfig      `toml:"hub"`
	Notify   NotifyConfig   `toml:"notify"`
	Taxonomy TaxonomyConfig `toml:"taxonomy"`
}

// ServiceConfig contains process-level settings.
// Params: service name.
// Returns: service identity used in logs.
type ServiceConfig struct {
	Name string `toml:"name"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// IngestConfig defines inbound observation interfaces.
// Params: embedded HTTP and NATS subscription controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP HTTPConfig       `toml:"http"`
	NATS NATSIngestConfig `toml:"nats"`
}

// HTTPConfig configures the HTTP surface: observation ingest, the operator
// API, and the push-channel upgrade all share one listener.
// Params: listen address, endpoint paths, and body size limit.
// Returns: HTTP runtime options.
type HTTPConfig struct {
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	IngestPath   string `toml:"ingest_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures the JetStream queue-consumer ingest for poller
// fleets. Stream routing keys are runtime-fixed, mirroring the HTTP paths.
// Params: connection plus worker/ack/redelivery policy.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// StoreConfig selects and configures the alert persistence backend.
// Params: backend name, relational DSN, and pool limits.
// Returns: store runtime options.
type StoreConfig struct {
	Backend         string `toml:"backend"`
	DSN             string `toml:"dsn"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	ConnMaxIdleSec  int    `toml:"conn_max_idle_sec"`
}

// HubConfig configures the push-channel fan-out.
// Params: websocket path and per-connection send queue size.
// Returns: hub runtime options.
type HubConfig struct {
	Path       string `toml:"path"`
	SendBuffer int    `toml:"send_buffer"`
}

// NotifyConfig defines optional operator notice channels.
// Params: per-channel transport settings, a shared retry policy, and the
// pending-notice queue depth.
// Returns: notification controls.
type NotifyConfig struct {
	Telegram   TelegramConfig `toml:"telegram"`
	Webhook    WebhookConfig  `toml:"webhook"`
	Retry      RetryConfig    `toml:"retry"`
	QueueDepth int            `toml:"queue_depth"`
}

// TelegramConfig defines the Telegram notice channel.
// Params: enabled flag, bot token, and chat id.
// Returns: Telegram sender configuration.
type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// WebhookConfig defines the generic outbound HTTP notice channel.
// Params: URL, method, timeout, and optional static headers.
// Returns: webhook sender configuration.
type WebhookConfig struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
}

// RetryConfig configures notice delivery retries.
// Params: retry toggle, initial backoff, and attempt limit.
// Returns: retry policy shared by notice channels.
type RetryConfig struct {
	Enabled     bool `toml:"enabled"`
	InitialMS   int  `toml:"initial_ms"`
	MaxAttempts int  `toml:"max_attempts"`
}

// TaxonomyConfig extends the fault taxonomy.
// Params: extra kind names and an optional restricted source registry.
// Returns: taxonomy extension settings.
type TaxonomyConfig struct {
	Kinds   []string `toml:"kinds"`
	Sources []string `toml:"sources"`
}

// Source describes a file or directory configuration source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type Source struct {
	File string
	Dir  string
}

// FromCLI builds the normalized source from CLI flag values.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (Source, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return Source{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return Source{}, errors.New("config source must be either file or dir")
	}
	if filePath != "" {
		return Source{File: filePath}, nil
	}
	return Source{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates the configuration from one source.
// Params: source selecting file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src Source) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML fragments from one directory in name order.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		body, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", file, err)
		}
		// Later fragments overlay earlier ones key by key.
		if err := toml.Unmarshal(body, &merged); err != nil {
			return Config{}, fmt.Errorf("decode config file %q: %w", file, err)
		}
	}
	return merged, nil
}

// applyDefaults fills omitted fields with safe defaults.
// Params: cfg pointer to decoded snapshot.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "gridalert"
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.Ingest.HTTP.Listen) == "" {
		cfg.Ingest.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.HealthPath) == "" {
		cfg.Ingest.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.ReadyPath) == "" {
		cfg.Ingest.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.IngestPath) == "" {
		cfg.Ingest.HTTP.IngestPath = defaultIngestPath
	}
	if cfg.Ingest.HTTP.MaxBodyBytes <= 0 {
		cfg.Ingest.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.Ingest.NATS.Enabled {
		if len(cfg.Ingest.NATS.URL) == 0 {
			cfg.Ingest.NATS.URL = []string{defaultNATSURL}
		}
		cfg.Ingest.NATS.Subject = defaultNATSSubject
		cfg.Ingest.NATS.Stream = defaultNATSStream
		cfg.Ingest.NATS.ConsumerName = defaultNATSConsumer
		cfg.Ingest.NATS.DeliverGroup = defaultNATSDeliverGroup
		if cfg.Ingest.NATS.AckWaitSec <= 0 {
			cfg.Ingest.NATS.AckWaitSec = defaultNATSAckWaitSec
		}
		if cfg.Ingest.NATS.NackDelayMS <= 0 {
			cfg.Ingest.NATS.NackDelayMS = defaultNATSNackDelayMS
		}
		if cfg.Ingest.NATS.MaxDeliver == 0 {
			cfg.Ingest.NATS.MaxDeliver = defaultNATSMaxDeliver
		}
		if cfg.Ingest.NATS.MaxAckPending <= 0 {
			cfg.Ingest.NATS.MaxAckPending = defaultNATSMaxAckPending
		}
	}

	if strings.TrimSpace(cfg.Store.Backend) == "" {
		cfg.Store.Backend = StoreBackendMemory
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))

	if strings.TrimSpace(cfg.Hub.Path) == "" {
		cfg.Hub.Path = defaultStreamPath
	}
	if cfg.Hub.SendBuffer <= 0 {
		cfg.Hub.SendBuffer = defaultSendBuffer
	}

	if cfg.Notify.Webhook.Method == "" {
		cfg.Notify.Webhook.Method = "POST"
	}
	if cfg.Notify.Webhook.TimeoutSec <= 0 {
		cfg.Notify.Webhook.TimeoutSec = defaultNotifyTimeoutSec
	}
	if cfg.Notify.Retry.InitialMS <= 0 {
		cfg.Notify.Retry.InitialMS = defaultRetryInitialMS
	}
	if cfg.Notify.Retry.MaxAttempts <= 0 {
		cfg.Notify.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if cfg.Notify.QueueDepth <= 0 {
		cfg.Notify.QueueDepth = defaultNotifyQueueDepth
	}
}

// validate checks the full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first validation error.
func validate(cfg Config) error {
	switch cfg.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendPostgres:
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return errors.New("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend has unsupported value %q", cfg.Store.Backend)
	}
	if cfg.Store.MaxOpenConns < 0 {
		return errors.New("store.max_open_conns must be >=0")
	}
	if cfg.Store.ConnMaxIdleSec < 0 {
		return errors.New("store.conn_max_idle_sec must be >=0")
	}

	if !strings.HasPrefix(cfg.Hub.Path, "/") {
		return fmt.Errorf("hub.path %q must start with /", cfg.Hub.Path)
	}
	if !strings.HasPrefix(cfg.Ingest.HTTP.IngestPath, "/") {
		return fmt.Errorf("ingest.http.ingest_path %q must start with /", cfg.Ingest.HTTP.IngestPath)
	}

	if cfg.Notify.Telegram.Enabled {
		if strings.TrimSpace(cfg.Notify.Telegram.BotToken) == "" {
			return errors.New("notify.telegram.bot_token is required when telegram is enabled")
		}
		if strings.TrimSpace(cfg.Notify.Telegram.ChatID) == "" {
			return errors.New("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	if cfg.Notify.Webhook.Enabled {
		parsed, err := url.Parse(strings.TrimSpace(cfg.Notify.Webhook.URL))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("notify.webhook.url %q is not a valid URL", cfg.Notify.Webhook.URL)
		}
	}

	for _, kind := range cfg.Taxonomy.Kinds {
		if strings.TrimSpace(kind) == "" {
			return errors.New("taxonomy.kinds must not contain empty entries")
		}
	}
	return nil
}
