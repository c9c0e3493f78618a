package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, envPrefix) || name == "TELEGRAM_TOKEN" || name == "DATABASE_URL" || name == "DEEPSEEK_API_KEY" {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "token" {
		t.Errorf("legacy token not applied: %q", cfg.Telegram.Token)
	}
	if cfg.Reminder.Lookahead != 24*time.Hour {
		t.Errorf("lookahead = %v", cfg.Reminder.Lookahead)
	}
	if cfg.Reminder.Schedule != "@every 15m" {
		t.Errorf("schedule = %q", cfg.Reminder.Schedule)
	}
	if cfg.Routine.MinLength != 20 || cfg.Routine.MaxLength != 1000 {
		t.Errorf("routine bounds = %d..%d", cfg.Routine.MinLength, cfg.Routine.MaxLength)
	}
	if cfg.Database.URL != "taskwise.db" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "taskwise.yaml")
	yml := "telegram:\n  enabled: false\nreminder:\n  lookahead: 12h\nlog:\n  format: json\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKWISE_REMINDER__LOOKAHEAD", "6h")
	t.Setenv("TASKWISE_AI__API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Enabled {
		t.Error("file value not applied")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("format = %q", cfg.Log.Format)
	}
	if cfg.Reminder.Lookahead != 6*time.Hour {
		t.Errorf("env must override file, lookahead = %v", cfg.Reminder.Lookahead)
	}
	if cfg.AI.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.AI.APIKey)
	}
}

func TestLoadRequiresTelegramToken(t *testing.T) {
	clearEnv(t)
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Timezone: "UTC",
			Log:      LogConfig{Format: "console"},
			Reminder: ReminderConfig{Enabled: true, Schedule: "@every 1m", Lookahead: time.Hour},
			Routine:  RoutineConfig{MinLength: 20, MaxLength: 1000},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"zero lookahead", func(c *Config) { c.Reminder.Lookahead = 0 }, false},
		{"empty schedule", func(c *Config) { c.Reminder.Schedule = "" }, false},
		{"bad digest time", func(c *Config) { c.Digest = DigestConfig{Enabled: true, Time: "8am"} }, false},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, false},
		{"inverted bounds", func(c *Config) { c.Routine.MinLength = 2000 }, false},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }, false},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := cfg.Validate(); (err == nil) != tc.ok {
			t.Errorf("%s: err = %v", tc.name, err)
		}
	}
}
