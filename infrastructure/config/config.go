// Package config loads application configuration from environment
// variables and an optional YAML overlay file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domainconfig "github.com/woragis/woragis-sub002/domain/config"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
	StoragePostgres = "postgres"
)

// Event publishers.
const (
	EventsLog         = "log"
	EventsEventBridge = "eventbridge"
)

// Config holds all application configuration.
type Config struct {
	Environment   string `yaml:"environment"`
	ServerAddress string `yaml:"server_address"`
	LogLevel      string `yaml:"log_level"`

	Storage        StorageConfig        `yaml:"storage"`
	Events         EventsConfig         `yaml:"events"`
	Auth           AuthConfig           `yaml:"auth"`
	CORS           CORSConfig           `yaml:"cors"`
	Tracing        TracingConfig        `yaml:"tracing"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	HTTP           HTTPConfig           `yaml:"http"`

	// Domain rules. Only this section is hot reloaded.
	Domain domainconfig.DomainConfig `yaml:"domain"`

	// ConfigFile is the YAML overlay the config was read from, if any.
	ConfigFile string `yaml:"-"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"`
	TableName   string `yaml:"table_name"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	DatabaseURL string `yaml:"database_url"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type EventsConfig struct {
	Publisher    string `yaml:"publisher"`
	EventBusName string `yaml:"event_bus_name"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled"`
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Defaults returns the configuration for an environment before any file or
// variable is applied.
func Defaults(environment string) *Config {
	return &Config{
		Environment:   environment,
		ServerAddress: ":8080",
		LogLevel:      "info",
		Storage: StorageConfig{
			Backend:     StorageMemory,
			TableName:   "idea-canvas",
			Region:      "us-west-2",
			AutoMigrate: true,
		},
		Events: EventsConfig{
			Publisher:    EventsLog,
			EventBusName: "idea-canvas-events",
		},
		Auth: AuthConfig{
			JWTIssuer: "idea-canvas",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		CircuitBreaker: CircuitBreakerConfig{Enabled: true},
		HTTP: HTTPConfig{
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Domain: *domainconfig.LoadDomainConfig(environment),
	}
}

// Load reads the configuration. Precedence, lowest first: environment
// defaults, the CONFIG_FILE overlay, environment variables.
func Load() (*Config, error) {
	cfg := Defaults(getEnv("ENVIRONMENT", "development"))

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	if port := os.Getenv("PORT"); port != "" {
		c.ServerAddress = ":" + port
	}
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.TableName = getEnv("TABLE_NAME", c.Storage.TableName)
	c.Storage.Region = getEnv("AWS_REGION", c.Storage.Region)
	c.Storage.Endpoint = getEnv("DYNAMODB_ENDPOINT", c.Storage.Endpoint)
	c.Storage.DatabaseURL = getEnv("DATABASE_URL", c.Storage.DatabaseURL)
	c.Storage.AutoMigrate = getEnvBool("AUTO_MIGRATE", c.Storage.AutoMigrate)

	c.Events.Publisher = getEnv("EVENT_PUBLISHER", c.Events.Publisher)
	c.Events.EventBusName = getEnv("EVENT_BUS_NAME", c.Events.EventBusName)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnv("JWT_ISSUER", c.Auth.JWTIssuer)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}

	c.Tracing.Enabled = getEnvBool("ENABLE_TRACING", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.CircuitBreaker.Enabled = getEnvBool("ENABLE_CIRCUIT_BREAKER", c.CircuitBreaker.Enabled)

	c.HTTP.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", c.HTTP.ReadTimeout)
	c.HTTP.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", c.HTTP.WriteTimeout)
	c.HTTP.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout)

	applyDomainEnv(&c.Domain)
}

// applyDomainEnv lets the connection semantics be flipped without a file.
func applyDomainEnv(d *domainconfig.DomainConfig) {
	d.DedupeConnections = getEnvBool("DEDUPE_CONNECTIONS", d.DedupeConnections)
	d.ScrubDanglingOnDelete = getEnvBool("SCRUB_DANGLING_ON_DELETE", d.ScrubDanglingOnDelete)
	d.ValidateConnectionTargets = getEnvBool("VALIDATE_CONNECTION_TARGETS", d.ValidateConnectionTargets)
	d.AllowSelfConnections = getEnvBool("ALLOW_SELF_CONNECTIONS", d.AllowSelfConnections)
	d.MaxConnectionsPerNode = getEnvInt("MAX_CONNECTIONS_PER_NODE", d.MaxConnectionsPerNode)
	d.MaxNodesPerIdea = getEnvInt("MAX_NODES_PER_IDEA", d.MaxNodesPerIdea)
	d.MaxWriteRetries = getEnvInt("MAX_WRITE_RETRIES", d.MaxWriteRetries)
}

// Validate checks that the configuration can start the service.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageDynamoDB:
		if c.Storage.TableName == "" {
			errs = append(errs, errors.New("TABLE_NAME is required for the dynamodb backend"))
		}
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.Events.Publisher {
	case EventsLog:
	case EventsEventBridge:
		if c.Events.EventBusName == "" {
			errs = append(errs, errors.New("EVENT_BUS_NAME is required for the eventbridge publisher"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown event publisher %q", c.Events.Publisher))
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.Storage.Backend == StorageMemory {
			errs = append(errs, errors.New("the memory backend cannot be used in production"))
		}
	}

	if err := c.Domain.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("domain: %w", err))
	}
	return errors.Join(errs...)
}

// IsDevelopment checks if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LoadDomainFile re-reads the domain section of a YAML file on top of the
// environment preset. Used by the watcher.
func LoadDomainFile(path, environment string) (*domainconfig.DomainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var file struct {
		Domain *domainconfig.DomainConfig `yaml:"domain"`
	}
	file.Domain = domainconfig.LoadDomainConfig(environment)
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	applyDomainEnv(file.Domain)
	if err := file.Domain.Validate(); err != nil {
		return nil, err
	}
	return file.Domain, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
