// ABOUTME: Configuration loading and parsing for relay-broker
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Modes the broker can run in.
const (
	ModeServer = "server" // terminate WebSockets on our own listener
	ModeLambda = "lambda" // handle API Gateway events behind Lambda
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Config represents the complete relay-broker configuration
type Config struct {
	Mode      string          `yaml:"mode"`
	Store     StoreConfig     `yaml:"store"`
	TTL       TTLConfig       `yaml:"ttl"`
	Matching  MatchingConfig  `yaml:"matching"`
	Relay     RelayConfig     `yaml:"relay"`
	Retry     RetryConfig     `yaml:"retry"`
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig selects and configures the table store backend
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// SQLiteConfig holds the single-node store configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// DynamoDBConfig holds the table handles for the managed store
type DynamoDBConfig struct {
	ClientsTable     string `yaml:"clients_table"`
	GatekeepersTable string `yaml:"gatekeepers_table"`
	PairingsTable    string `yaml:"pairings_table"`
	Region           string `yaml:"region"`
	Endpoint         string `yaml:"endpoint"` // optional, for local DynamoDB
}

// TTLConfig holds record expiry settings
type TTLConfig struct {
	Connection time.Duration `yaml:"-"`
	Pairing    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ConnectionRaw string `yaml:"connection"`
	PairingRaw    string `yaml:"pairing"`
}

// MatchingConfig holds pairing policy settings
type MatchingConfig struct {
	// Cardinality is "one-to-one" (default) or "one-to-many"
	Cardinality string `yaml:"cardinality"`
}

// RelayConfig holds message relay policy settings
type RelayConfig struct {
	// NotifyNoRoute echoes an error frame to senders with no counterpart.
	// Defaults to true; set explicitly to false to drop silently.
	NotifyNoRoute *bool `yaml:"notify_no_route"`
}

// RetryConfig bounds retries for transient store/transport failures
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"-"`
	BackoffRaw  string        `yaml:"backoff"`
}

// ServerConfig holds the self-hosted listener configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// TransportConfig holds delivery configuration for lambda mode
type TransportConfig struct {
	// Endpoint is the API Gateway management endpoint,
	// e.g. https://{api-id}.execute-api.{region}.amazonaws.com/{stage}
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in documented defaults for unset optional fields.
func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeServer
	}
	if c.TTL.Connection == 0 {
		c.TTL.Connection = 2 * time.Hour
	}
	if c.TTL.Pairing == 0 {
		c.TTL.Pairing = 2 * time.Hour
	}
	if c.Matching.Cardinality == "" {
		c.Matching.Cardinality = "one-to-one"
	}
	if c.Relay.NotifyNoRoute == nil {
		notify := true
		c.Relay.NotifyNoRoute = &notify
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.Backoff == 0 {
		c.Retry.Backoff = 100 * time.Millisecond
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.Path == "" {
		c.Server.Path = "/ws"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
// A failure here is fatal: the process must not start serving events.
func (c *Config) Validate() error {
	if c.Mode != ModeServer && c.Mode != ModeLambda {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeServer, ModeLambda, c.Mode)
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite backend")
		}
	case BackendDynamoDB:
		if c.Store.DynamoDB.ClientsTable == "" {
			return fmt.Errorf("store.dynamodb.clients_table is required")
		}
		if c.Store.DynamoDB.GatekeepersTable == "" {
			return fmt.Errorf("store.dynamodb.gatekeepers_table is required")
		}
		if c.Store.DynamoDB.PairingsTable == "" {
			return fmt.Errorf("store.dynamodb.pairings_table is required")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendSQLite, BackendDynamoDB, c.Store.Backend)
	}

	if c.Mode == ModeLambda && c.Transport.Endpoint == "" {
		return fmt.Errorf("transport.endpoint is required in lambda mode")
	}

	if c.TTL.Connection <= 0 {
		return fmt.Errorf("ttl.connection must be positive")
	}
	if c.TTL.Pairing <= 0 {
		return fmt.Errorf("ttl.pairing must be positive")
	}

	if c.Matching.Cardinality != "one-to-one" && c.Matching.Cardinality != "one-to-many" {
		return fmt.Errorf("matching.cardinality must be \"one-to-one\" or \"one-to-many\", got %q", c.Matching.Cardinality)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.TTL.ConnectionRaw != "" {
		cfg.TTL.Connection, err = time.ParseDuration(cfg.TTL.ConnectionRaw)
		if err != nil {
			return fmt.Errorf("parsing ttl.connection %q: %w", cfg.TTL.ConnectionRaw, err)
		}
	}

	if cfg.TTL.PairingRaw != "" {
		cfg.TTL.Pairing, err = time.ParseDuration(cfg.TTL.PairingRaw)
		if err != nil {
			return fmt.Errorf("parsing ttl.pairing %q: %w", cfg.TTL.PairingRaw, err)
		}
	}

	if cfg.Retry.BackoffRaw != "" {
		cfg.Retry.Backoff, err = time.ParseDuration(cfg.Retry.BackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing retry.backoff %q: %w", cfg.Retry.BackoffRaw, err)
		}
	}

	return nil
}
