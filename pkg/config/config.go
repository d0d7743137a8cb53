package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envConfigPath = "CHATWIRE_CONFIG"
	envHost       = "CHATWIRE_HOST"
	envPort       = "CHATWIRE_PORT"
	envChannels   = "CHATWIRE_CHANNELS"
	envRedisAddr  = "CHATWIRE_REDIS_ADDR"

	defaultHost        = "0.0.0.0"
	defaultPort        = 5005
	defaultRoutePrefix = "/webhooks/"
	defaultOpenAIModel = "gpt-4.1-mini"
	defaultAPIKeyEnv   = "OPENAI_API_KEY"
	defaultRedisPrefix = "chatwire:stream:"
	defaultShutdown    = 10
)

const (
	ResponderEcho   = "echo"
	ResponderOpenAI = "openai"

	QueueMemory = "memory"
	QueueRedis  = "redis"

	ExporterNoop   = "noop"
	ExporterStdout = "stdout"
)

// errConfigNotFound means no config file exists at any default location.
var errConfigNotFound = errors.New("config.json not found")

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Channels  ChannelsConfig  `json:"channels"`
	Responder ResponderConfig `json:"responder"`
	Stream    StreamConfig    `json:"stream"`
	Tracing   TracingConfig   `json:"tracing,omitempty"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ServerConfig configures the HTTP listener and webhook mounting.
type ServerConfig struct {
	Host                   string `json:"host"`
	Port                   int    `json:"port"`
	RoutePrefix            string `json:"route_prefix"`
	ResponseTimeoutSeconds int    `json:"response_timeout_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ResponseTimeout returns the per-request response bound; zero means unbounded.
func (s ServerConfig) ResponseTimeout() time.Duration {
	return time.Duration(s.ResponseTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long graceful shutdown may take.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// ChannelsConfig selects the input channels to serve.
type ChannelsConfig struct {
	Enabled     []string `json:"enabled"`
	Credentials string   `json:"credentials"`
}

// ResponderConfig selects the response generator.
type ResponderConfig struct {
	Type   string                `json:"type"`
	OpenAI OpenAIResponderConfig `json:"openai"`
}

// OpenAIResponderConfig configures the OpenAI-backed responder.
type OpenAIResponderConfig struct {
	BaseURL               string `json:"base_url"`
	Model                 string `json:"model"`
	Instructions          string `json:"instructions"`
	APIKeyEnv             string `json:"api_key_env"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// StreamConfig selects the queue backing streamed webhook responses.
type StreamConfig struct {
	Queue         string      `json:"queue"`
	QueueCapacity int         `json:"queue_capacity"`
	Redis         RedisConfig `json:"redis"`
}

// RedisConfig configures the Redis stream queue.
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	Exporter    string `json:"exporter"`
	ServiceName string `json:"service_name"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig loads .env, resolves config.json, unmarshals it, and applies environment
// overrides and defaults. Without any config file the defaults are used.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	configPath, err := findConfigPath()
	switch {
	case errors.Is(err, errConfigNotFound):
	case err != nil:
		return nil, err
	default:
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Responder.Type {
	case ResponderEcho, ResponderOpenAI:
	default:
		return fmt.Errorf("unsupported responder.type %q (want %s or %s)", c.Responder.Type, ResponderEcho, ResponderOpenAI)
	}

	switch c.Stream.Queue {
	case QueueMemory, QueueRedis:
	default:
		return fmt.Errorf("unsupported stream.queue %q (want %s or %s)", c.Stream.Queue, QueueMemory, QueueRedis)
	}
	if c.Stream.Queue == QueueRedis && strings.TrimSpace(c.Stream.Redis.Addr) == "" {
		return errors.New("stream.redis.addr is required when stream.queue is redis")
	}

	switch c.Tracing.Exporter {
	case ExporterNoop, ExporterStdout:
	default:
		return fmt.Errorf("unsupported tracing.exporter %q (want %s or %s)", c.Tracing.Exporter, ExporterNoop, ExporterStdout)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	return nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if host := strings.TrimSpace(os.Getenv(envHost)); host != "" {
		cfg.Server.Host = host
	}

	if rawPort := strings.TrimSpace(os.Getenv(envPort)); rawPort != "" {
		port, err := strconv.Atoi(rawPort)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", envPort, err)
		}
		cfg.Server.Port = port
	}

	if rawChannels := strings.TrimSpace(os.Getenv(envChannels)); rawChannels != "" {
		cfg.Channels.Enabled = parseCSV(rawChannels)
	}

	if addr := strings.TrimSpace(os.Getenv(envRedisAddr)); addr != "" {
		cfg.Stream.Redis.Addr = addr
		if cfg.Stream.Queue == "" {
			cfg.Stream.Queue = QueueRedis
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Host) == "" {
		cfg.Server.Host = defaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if strings.TrimSpace(cfg.Server.RoutePrefix) == "" {
		cfg.Server.RoutePrefix = defaultRoutePrefix
	}
	if cfg.Server.ShutdownTimeoutSeconds <= 0 {
		cfg.Server.ShutdownTimeoutSeconds = defaultShutdown
	}
	if len(cfg.Channels.Enabled) == 0 {
		cfg.Channels.Enabled = []string{"rest"}
	}

	cfg.Responder.Type = strings.ToLower(strings.TrimSpace(cfg.Responder.Type))
	if cfg.Responder.Type == "" {
		cfg.Responder.Type = ResponderEcho
	}
	if strings.TrimSpace(cfg.Responder.OpenAI.Model) == "" {
		cfg.Responder.OpenAI.Model = defaultOpenAIModel
	}
	if strings.TrimSpace(cfg.Responder.OpenAI.APIKeyEnv) == "" {
		cfg.Responder.OpenAI.APIKeyEnv = defaultAPIKeyEnv
	}

	cfg.Stream.Queue = strings.ToLower(strings.TrimSpace(cfg.Stream.Queue))
	if cfg.Stream.Queue == "" {
		cfg.Stream.Queue = QueueMemory
	}
	if cfg.Stream.Redis.KeyPrefix == "" {
		cfg.Stream.Redis.KeyPrefix = defaultRedisPrefix
	}

	cfg.Tracing.Exporter = strings.ToLower(strings.TrimSpace(cfg.Tracing.Exporter))
	if cfg.Tracing.Exporter == "" {
		if cfg.Tracing.Enabled {
			cfg.Tracing.Exporter = ExporterStdout
		} else {
			cfg.Tracing.Exporter = ExporterNoop
		}
	}
	if strings.TrimSpace(cfg.Tracing.ServiceName) == "" {
		cfg.Tracing.ServiceName = "chatwire"
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is CHATWIRE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s and %s)", errConfigNotFound, candidates[0], candidates[1])
}
