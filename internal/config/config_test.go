package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nugget/aide/examples"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listen:\n  port: 8080\n"), 0600)
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestDefaultSearchPaths(t *testing.T) {
	paths := DefaultSearchPaths()
	if paths[0] != "config.yaml" {
		t.Errorf("first path = %q, want config.yaml", paths[0])
	}
	if last := paths[len(paths)-1]; last != "/etc/aide/config.yaml" {
		t.Errorf("last path = %q, want /etc/aide/config.yaml", last)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("max_iterations = %d, want 10", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.TurnTimeout != 5*time.Minute {
		t.Errorf("turn_timeout = %v, want 5m", cfg.Agent.TurnTimeout)
	}
	if cfg.Agent.HistoryLimit != 10 {
		t.Errorf("history_limit = %d, want 10", cfg.Agent.HistoryLimit)
	}
	if cfg.Store.RetentionDays != 30 {
		t.Errorf("retention_days = %d, want 30", cfg.Store.RetentionDays)
	}
	if cfg.Dedup.Capacity != 1000 {
		t.Errorf("dedup capacity = %d, want 1000", cfg.Dedup.Capacity)
	}
	if cfg.Model.Provider != "gemini" {
		t.Errorf("provider = %q, want gemini", cfg.Model.Provider)
	}
	if !cfg.Agent.ProgressEnabled() {
		t.Error("progress notices should default on")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvAndDurations(t *testing.T) {
	t.Setenv("AIDE_TEST_TOKEN", "xoxb-secret")
	path := writeConfig(t, `
slack:
  bot_token: ${AIDE_TEST_TOKEN}
model:
  provider: anthropic
  name: claude-sonnet
  retries: 2
  retry_backoff: 250ms
agent:
  turn_timeout: 90s
  max_iterations: 4
timezone: America/Chicago
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.BotToken != "xoxb-secret" {
		t.Errorf("bot_token = %q", cfg.Slack.BotToken)
	}
	if cfg.Model.RetryBackoff != 250*time.Millisecond {
		t.Errorf("retry_backoff = %v", cfg.Model.RetryBackoff)
	}
	if cfg.Agent.TurnTimeout != 90*time.Second || cfg.Agent.MaxIterations != 4 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Location().String() != "America/Chicago" {
		t.Errorf("location = %v", cfg.Location())
	}
	// Unset fields still get defaults.
	if cfg.Store.RetentionDays != 30 {
		t.Errorf("retention_days = %d, want 30", cfg.Store.RetentionDays)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"provider", "model:\n  provider: watson\n", "model.provider"},
		{"log level", "logging:\n  level: loud\n", "logging.level"},
		{"log format", "logging:\n  format: xml\n", "logging.format"},
		{"timezone", "timezone: Mars/Olympus\n", "timezone"},
		{"socket mode", "slack:\n  socket_mode: true\n", "xapp-"},
		{"mcp command", "mcp:\n  servers:\n    - name: files\n", "command is required"},
		{"mcp duplicate", "mcp:\n  servers:\n    - name: a\n      command: x\n    - name: a\n      command: y\n", "duplicate"},
		{"mcp transport", "mcp:\n  servers:\n    - name: a\n      transport: carrier-pigeon\n", "stdio or http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"", slog.LevelInfo, false},
		{" TRACE ", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseLogLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_TraceName(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, LoggingConfig{Level: "trace", Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Log(t.Context(), LevelTrace, "wire")
	if !strings.Contains(buf.String(), `"level":"TRACE"`) {
		t.Errorf("output = %s", buf.String())
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "SLACK_BOT_TOKEN", "SLACK_SIGNING_SECRET", "MAIL_PASSWORD", "DAV_PASSWORD"} {
		t.Setenv(k, "secret-"+strings.ToLower(k))
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, examples.ConfigYAML, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(example) error: %v", err)
	}
	if cfg.Model.APIKey != "secret-gemini_api_key" {
		t.Errorf("model.api_key = %q, want expanded env value", cfg.Model.APIKey)
	}
	if !cfg.Mail.Configured() || !cfg.Calendar.Configured() || !cfg.Docs.Configured() {
		t.Error("example should configure mail, calendar and docs")
	}
	if cfg.MQTT.Configured() {
		t.Error("example leaves mqtt.broker commented out")
	}
	if cfg.Store.PruneSchedule != "@daily" || cfg.Store.RetentionDays != 30 {
		t.Errorf("store = %+v", cfg.Store)
	}
}
