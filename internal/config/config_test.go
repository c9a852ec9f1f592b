package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults should load: %v", err)
	}
	if cfg.Monitor.Interval() != 5*time.Minute {
		t.Fatalf("interval = %s, want 5m", cfg.Monitor.Interval())
	}
	if cfg.Monitor.SymbolDelay != time.Second {
		t.Fatalf("symbol delay = %s, want 1s", cfg.Monitor.SymbolDelay)
	}
	if cfg.Storage.MaxHistoryRecords != 1000 {
		t.Fatalf("max history = %d, want 1000", cfg.Storage.MaxHistoryRecords)
	}
	if cfg.Alerting.Cooldown != 0 {
		t.Fatalf("cooldown should default to zero, got %s", cfg.Alerting.Cooldown)
	}
	if cfg.HasNotifier() {
		t.Fatal("no notifier should be enabled by default")
	}
}

func TestLoadLegacyEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("POLYGON_API_KEY", "pk")
	t.Setenv("MONITOR_INTERVAL", "0")
	t.Setenv("API_RATE_LIMIT_DELAY", "250")
	t.Setenv("EMAIL_HOST", "smtp.example.com")
	t.Setenv("EMAIL_USER", "bot@example.com")
	t.Setenv("EMAIL_PASS", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider.APIKey != "pk" {
		t.Fatalf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Monitor.SymbolDelay != 250*time.Millisecond {
		t.Fatalf("symbol delay = %s, want 250ms", cfg.Monitor.SymbolDelay)
	}
	if !cfg.Alerting.Email.Enabled {
		t.Fatal("complete legacy SMTP settings should enable email")
	}
	if cfg.Alerting.Email.Recipient() != "bot@example.com" {
		t.Fatalf("recipient = %q", cfg.Alerting.Email.Recipient())
	}

	warnings := strings.Join(cfg.Warnings(), "\n")
	if !strings.Contains(warnings, "below minimum") {
		t.Fatalf("expected interval warning, got %q", warnings)
	}
}

func TestLoadFileAndPrefixedEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	body := "monitor:\n  interval_minutes: 2\nalerting:\n  cooldown: 15m\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STOCKWATCH_STORAGE_MAX_HISTORY_RECORDS", "50")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Monitor.IntervalMinutes != 2 {
		t.Fatalf("interval minutes = %d", cfg.Monitor.IntervalMinutes)
	}
	if cfg.Alerting.Cooldown != 15*time.Minute {
		t.Fatalf("cooldown = %s", cfg.Alerting.Cooldown)
	}
	if cfg.Storage.MaxHistoryRecords != 50 {
		t.Fatalf("max history = %d", cfg.Storage.MaxHistoryRecords)
	}
}

func TestValidateTelegram(t *testing.T) {
	cfg := Config{
		Storage: StorageConfig{AlertsFile: "a", HistoryFile: "h"},
		Export:  ExportConfig{MaxDataPoints: 1},
		Alerting: AlertingConfig{
			Telegram: TelegramConfig{Enabled: true},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("telegram without token should fail validation")
	}
	cfg.Alerting.Telegram.BotToken = "t"
	cfg.Alerting.Telegram.ChatID = "c"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete telegram config should pass: %v", err)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
