package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Admin struct {
		Password string `yaml:"password"`
	} `yaml:"admin"`

	Store struct {
		// Backend selects the table store: memory, sqlite, postgres or sheets.
		Backend string `yaml:"backend"`

		// FallbackToSQLite fronts a remote backend with a local sqlite
		// fallback used while the remote is unreachable.
		FallbackToSQLite bool `yaml:"fallback_to_sqlite"`

		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`

		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`

		Sheets struct {
			SpreadsheetID   string `yaml:"spreadsheet_id"`
			CredentialsFile string `yaml:"credentials_file"`
		} `yaml:"sheets"`
	} `yaml:"store"`

	Redis struct {
		Enabled    bool   `yaml:"enabled"`
		Address    string `yaml:"address"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"redis"`

	API struct {
		Port int `yaml:"port"`
	} `yaml:"api"`

	Telegram struct {
		Enabled          bool   `yaml:"enabled"`
		BotToken         string `yaml:"bot_token"`
		ChatID           int64  `yaml:"chat_id"`
		RemindersEnabled bool   `yaml:"reminders_enabled"`
		ReminderHour     int    `yaml:"reminder_hour"`
	} `yaml:"telegram"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Export struct {
		Enabled       bool   `yaml:"enabled"`
		OutputDir     string `yaml:"output_dir"`
		ExportOnStart bool   `yaml:"export_on_start"`
	} `yaml:"export"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	switch cfg.Store.Backend {
	case "memory", "sqlite", "postgres", "sheets":
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = "data/labreserve.db"
	}
	if cfg.Store.Backend == "sqlite" || cfg.Store.FallbackToSQLite {
		if err = os.MkdirAll(filepath.Dir(cfg.Store.SQLite.Path), 0o755); err != nil {
			return nil, err
		}
	}

	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "backups"
	}
	if cfg.Backup.IntervalHours <= 0 {
		cfg.Backup.IntervalHours = 24
	}
	if cfg.Backup.RetentionDays <= 0 {
		cfg.Backup.RetentionDays = 14
	}
	if cfg.Telegram.ReminderHour <= 0 || cfg.Telegram.ReminderHour > 23 {
		cfg.Telegram.ReminderHour = 9
	}

	if cfg.Admin.Password == "" {
		return nil, fmt.Errorf("admin.password is required")
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8081
	}
	if cfg.Monitoring.PrometheusPort == 0 {
		cfg.Monitoring.PrometheusPort = 9090
	}
	if cfg.Export.OutputDir == "" {
		cfg.Export.OutputDir = "reports"
	}

	return &cfg, nil
}

// RedisTTL falls back to five minutes when the TTL is unset.
func (c *Config) RedisTTL() time.Duration {
	if c.Redis.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}
