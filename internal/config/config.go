// Package config loads service configuration: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Telegram  TelegramConfig  `koanf:"telegram"`
	JSONBin   JSONBinConfig   `koanf:"jsonbin"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Family    FamilyConfig    `koanf:"family"`
}

type TelegramConfig struct {
	BotToken   string `koanf:"bot_token"`
	MiniAppURL string `koanf:"mini_app_url"`
}

type JSONBinConfig struct {
	BinID     string `koanf:"bin_id"`
	MasterKey string `koanf:"master_key"`
	Timeout   int    `koanf:"timeout"` // seconds per store call
}

type SchedulerConfig struct {
	Enabled    bool     `koanf:"enabled"`
	Interval   int      `koanf:"interval"` // seconds between ticks
	Thresholds []string `koanf:"thresholds"`
}

type FamilyConfig struct {
	// AllowTransfer preserves the legacy invite behavior that lets an
	// invitee who already has a family be added to a second one.
	AllowTransfer bool `koanf:"allow_transfer"`
}

func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)

		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	// TASKBOT_ variables map onto config keys with "__" as the level
	// separator, e.g. TASKBOT_SCHEDULER__INTERVAL=60.
	if err := k.Load(env.Provider("TASKBOT_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "TASKBOT_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Environment variables matching the original deployment.
	for env, key := range map[string]string{
		"TELEGRAM_BOT_TOKEN": "telegram.bot_token",
		"MINI_APP_URL":       "telegram.mini_app_url",
		"JSONBIN_ID":         "jsonbin.bin_id",
		"JSONBIN_ACCESS_KEY": "jsonbin.master_key",
	} {
		if v := os.Getenv(env); v != "" {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required (set TELEGRAM_BOT_TOKEN or add to config file)")
	}

	if c.JSONBin.BinID == "" {
		return fmt.Errorf("jsonbin bin id is required (set JSONBIN_ID or add to config file)")
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}

	if len(c.Scheduler.Thresholds) == 0 {
		return fmt.Errorf("at least one reminder threshold is required")
	}

	return nil
}

func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	return path
}
