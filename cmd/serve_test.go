package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatwire/pkg/channel"
	"chatwire/pkg/config"
	"chatwire/pkg/logger"

	"github.com/alicebob/miniredis/v2"
)

func TestBuildServiceDefaultsServeRestEcho(t *testing.T) {
	svc, cleanup, err := buildService(config.Default(), logger.Discard())
	if err != nil {
		t.Fatalf("buildService() error = %v", err)
	}
	defer cleanup()

	health := httptest.NewRecorder()
	svc.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want %d", health.Code, http.StatusOK)
	}

	webhook := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/rest/webhook", strings.NewReader(`{"sender": "u1", "message": "hello"}`))
	svc.Handler().ServeHTTP(webhook, req)
	if webhook.Code != http.StatusOK {
		t.Fatalf("POST webhook status = %d, body = %s", webhook.Code, webhook.Body.String())
	}

	var fragments []channel.Fragment
	if err := json.Unmarshal(webhook.Body.Bytes(), &fragments); err != nil {
		t.Fatalf("decode fragments: %v", err)
	}
	if len(fragments) != 1 || fragments[0].Text != "hello" || fragments[0].RecipientID != "u1" {
		t.Fatalf("fragments = %#v, want one echo of hello for u1", fragments)
	}

	metrics := httptest.NewRecorder()
	svc.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metrics.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collectors on /metrics")
	}
}

func TestBuildServiceRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Stream.Queue = config.QueueRedis
	cfg.Stream.Redis.Addr = mr.Addr()

	svc, cleanup, err := buildService(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("buildService() error = %v", err)
	}
	defer cleanup()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/rest/webhook?stream=true", strings.NewReader(`{"sender": "u1", "message": "a\n\nb"}`))
	svc.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stream status = %d", rec.Code)
	}
	if lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n"); len(lines) != 2 {
		t.Fatalf("stream lines = %q, want 2", lines)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("redis keys left behind: %v", keys)
	}
}

func TestBuildServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "unknown channel",
			mutate:  func(cfg *config.Config) { cfg.Channels.Enabled = []string{"fax"} },
			wantErr: `unknown channel "fax"`,
		},
		{
			name:    "telegram without credentials",
			mutate:  func(cfg *config.Config) { cfg.Channels.Enabled = []string{"telegram"} },
			wantErr: `build channel "telegram"`,
		},
		{
			name:    "only blank channels",
			mutate:  func(cfg *config.Config) { cfg.Channels.Enabled = []string{" "} },
			wantErr: "no channels are enabled",
		},
		{
			name:    "missing credentials file",
			mutate:  func(cfg *config.Config) { cfg.Channels.Credentials = filepath.Join(t.TempDir(), "nope.yml") },
			wantErr: "read credentials file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			_, cleanup, err := buildService(cfg, logger.Discard())
			cleanup()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("buildService() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildServiceWithCredentialsFile(t *testing.T) {
	t.Setenv("WIDGET_ORIGINS", "chat.example.com")
	path := filepath.Join(t.TempDir(), "credentials.yml")
	content := "socket:\n  origins: ${WIDGET_ORIGINS}\nrest: {}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}

	cfg := config.Default()
	cfg.Channels.Enabled = []string{"rest", "socket"}
	cfg.Channels.Credentials = path

	svc, cleanup, err := buildService(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("buildService() error = %v", err)
	}
	defer cleanup()

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/socket/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("socket health status = %d", rec.Code)
	}
}

func TestApplyServeFlags(t *testing.T) {
	flags := serveCmd.Flags()
	t.Cleanup(func() {
		for _, name := range []string{"port", "channels", "credentials"} {
			flags.Lookup(name).Changed = false
		}
		servePort, serveChannels, serveCredentials = 0, nil, ""
	})

	if err := flags.Set("port", "6000"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if err := flags.Set("channels", "rest,socket"); err != nil {
		t.Fatalf("set channels: %v", err)
	}

	cfg := config.Default()
	cfg.Channels.Credentials = "keep.yml"
	applyServeFlags(serveCmd, cfg)

	if cfg.Server.Port != 6000 {
		t.Fatalf("port = %d, want 6000", cfg.Server.Port)
	}
	if got := strings.Join(cfg.Channels.Enabled, ","); got != "rest,socket" {
		t.Fatalf("channels = %q", got)
	}
	if cfg.Channels.Credentials != "keep.yml" {
		t.Fatalf("credentials overwritten without flag: %q", cfg.Channels.Credentials)
	}
}

func TestQueueFactoryRejectsUnknownBackend(t *testing.T) {
	if _, _, err := queueFactory(config.StreamConfig{Queue: "kafka"}); err == nil {
		t.Fatalf("expected error for unknown queue backend")
	}
}
