package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TASKWISE_"

// Config keeps runtime settings for every binary.
type Config struct {
	Timezone string         `koanf:"timezone"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Telegram TelegramConfig `koanf:"telegram"`
	HTTP     HTTPConfig     `koanf:"http"`
	Reminder ReminderConfig `koanf:"reminder"`
	Digest   DigestConfig   `koanf:"digest"`
	AI       AIConfig       `koanf:"ai"`
	Routine  RoutineConfig  `koanf:"routine"`
	MCP      MCPConfig      `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type DatabaseConfig struct {
	URL string `koanf:"url"`
}

type TelegramConfig struct {
	Enabled bool   `koanf:"enabled"`
	Token   string `koanf:"token"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// ReminderConfig drives the periodic sweep. Schedule is a cron spec.
type ReminderConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Schedule  string        `koanf:"schedule"`
	Lookahead time.Duration `koanf:"lookahead"`
	Timeout   time.Duration `koanf:"timeout"`
}

// DigestConfig schedules the daily chat summary at Time (HH:MM, local zone).
type DigestConfig struct {
	Enabled bool   `koanf:"enabled"`
	Time    string `koanf:"time"`
}

type AIConfig struct {
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

type RoutineConfig struct {
	MinLength int `koanf:"min_length"`
	MaxLength int `koanf:"max_length"`
}

// MCPConfig scopes the MCP tool server to one owning user.
type MCPConfig struct {
	UserID string `koanf:"user_id"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"timezone": "Local",
		"log": map[string]interface{}{
			"level":  "info",
			"format": "console",
		},
		"database": map[string]interface{}{
			"url": "taskwise.db",
		},
		"telegram": map[string]interface{}{
			"enabled": true,
			"token":   "",
		},
		"http": map[string]interface{}{
			"enabled": true,
			"addr":    ":8080",
		},
		"reminder": map[string]interface{}{
			"enabled":   true,
			"schedule":  "@every 15m",
			"lookahead": "24h",
			"timeout":   "2m",
		},
		"digest": map[string]interface{}{
			"enabled": true,
			"time":    "08:00",
		},
		"ai": map[string]interface{}{
			"api_key":     "",
			"model":       "deepseek-chat",
			"max_tokens":  2048,
			"temperature": 0.3,
		},
		"routine": map[string]interface{}{
			"min_length": 20,
			"max_length": 1000,
		},
		"mcp": map[string]interface{}{
			"user_id": "",
		},
	}
}

// Load layers defaults, an optional YAML file and the environment, then
// validates the result. A missing file at path is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	// TASKWISE_REMINDER__LOOKAHEAD -> reminder.lookahead
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	legacy := map[string]string{
		"TELEGRAM_TOKEN":   "telegram.token",
		"DATABASE_URL":     "database.url",
		"DEEPSEEK_API_KEY": "ai.api_key",
	}
	for name, key := range legacy {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("apply %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every misconfiguration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram is enabled"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	if c.Reminder.Lookahead <= 0 {
		errs = append(errs, errors.New("reminder.lookahead must be positive"))
	}
	if c.Reminder.Enabled && strings.TrimSpace(c.Reminder.Schedule) == "" {
		errs = append(errs, errors.New("reminder.schedule is required when the sweep is enabled"))
	}
	if c.Digest.Enabled {
		if _, err := time.Parse("15:04", c.Digest.Time); err != nil {
			errs = append(errs, fmt.Errorf("digest.time %q must be HH:MM", c.Digest.Time))
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.Routine.MinLength < 0 || c.Routine.MinLength > c.Routine.MaxLength {
		errs = append(errs, fmt.Errorf("routine length bounds %d..%d are invalid", c.Routine.MinLength, c.Routine.MaxLength))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone; Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
