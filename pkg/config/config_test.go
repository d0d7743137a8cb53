package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, `{
	  "server": {"host": "127.0.0.1", "port": 8080, "route_prefix": "/hooks", "response_timeout_seconds": 30},
	  "channels": {"enabled": ["rest", "telegram"], "credentials": "credentials.yml"},
	  "responder": {"type": "openai", "openai": {"model": "gpt-5", "instructions": "be brief"}},
	  "stream": {"queue": "redis", "queue_capacity": 16, "redis": {"addr": "localhost:6379", "db": 2}},
	  "tracing": {"enabled": true},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`)
	t.Setenv("CHATWIRE_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Fatalf("server addr = %q", cfg.Server.Addr())
	}
	if cfg.Server.RoutePrefix != "/hooks" {
		t.Fatalf("route_prefix = %q", cfg.Server.RoutePrefix)
	}
	if cfg.Server.ResponseTimeout() != 30*time.Second {
		t.Fatalf("response timeout = %s", cfg.Server.ResponseTimeout())
	}
	if cfg.Server.ShutdownTimeout() != 10*time.Second {
		t.Fatalf("shutdown timeout = %s, want default", cfg.Server.ShutdownTimeout())
	}
	if !reflect.DeepEqual(cfg.Channels.Enabled, []string{"rest", "telegram"}) {
		t.Fatalf("channels = %v", cfg.Channels.Enabled)
	}
	if cfg.Responder.Type != ResponderOpenAI || cfg.Responder.OpenAI.Model != "gpt-5" {
		t.Fatalf("responder = %+v", cfg.Responder)
	}
	if cfg.Responder.OpenAI.APIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("api_key_env = %q, want default", cfg.Responder.OpenAI.APIKeyEnv)
	}
	if cfg.Stream.Queue != QueueRedis || cfg.Stream.QueueCapacity != 16 || cfg.Stream.Redis.DB != 2 {
		t.Fatalf("stream = %+v", cfg.Stream)
	}
	if cfg.Stream.Redis.KeyPrefix != "chatwire:stream:" {
		t.Fatalf("key_prefix = %q, want default", cfg.Stream.Redis.KeyPrefix)
	}
	if cfg.Tracing.Exporter != ExporterStdout {
		t.Fatalf("tracing exporter = %q, want stdout when enabled", cfg.Tracing.Exporter)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" || !cfg.Logging.AddSource {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("CHATWIRE_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CHATWIRE_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	want := Default()
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, want)
	}
	if cfg.Server.Addr() != "0.0.0.0:5005" || cfg.Server.RoutePrefix != "/webhooks/" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Responder.Type != ResponderEcho || cfg.Stream.Queue != QueueMemory || cfg.Tracing.Exporter != ExporterNoop {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CHATWIRE_CONFIG", writeConfig(t, `{"server": {"port": 1000}}`))
	t.Setenv("CHATWIRE_HOST", "10.0.0.1")
	t.Setenv("CHATWIRE_PORT", "9000")
	t.Setenv("CHATWIRE_CHANNELS", " rest, socket ,,")
	t.Setenv("CHATWIRE_REDIS_ADDR", "redis:6379")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Server.Addr() != "10.0.0.1:9000" {
		t.Fatalf("server addr = %q", cfg.Server.Addr())
	}
	if !reflect.DeepEqual(cfg.Channels.Enabled, []string{"rest", "socket"}) {
		t.Fatalf("channels = %v", cfg.Channels.Enabled)
	}
	if cfg.Stream.Queue != QueueRedis || cfg.Stream.Redis.Addr != "redis:6379" {
		t.Fatalf("stream = %+v", cfg.Stream)
	}
}

func TestLoadConfigLoadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CHATWIRE_CONFIG", "")
	t.Setenv("CHATWIRE_PORT", "")
	if err := os.Unsetenv("CHATWIRE_PORT"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CHATWIRE_PORT=7001\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Server.Port != 7001 {
		t.Fatalf("port = %d, want value from .env", cfg.Server.Port)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"responder": `{"responder": {"type": "llama"}}`,
		"queue":     `{"stream": {"queue": "kafka"}}`,
		"redis":     `{"stream": {"queue": "redis"}}`,
		"exporter":  `{"tracing": {"exporter": "jaeger"}}`,
		"port":      `{"server": {"port": 70000}}`,
		"json":      `{"server": `,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CHATWIRE_CONFIG", writeConfig(t, content))

			if _, err := LoadConfig(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadConfigRejectsBadPortEnv(t *testing.T) {
	t.Setenv("CHATWIRE_CONFIG", writeConfig(t, `{}`))
	t.Setenv("CHATWIRE_PORT", "http")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}
