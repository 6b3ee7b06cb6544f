package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	SiteAPI     SiteAPIConfig             `json:"site_api"`
	Limits      LimitsConfig              `json:"limits"`
	Assessment  AssessmentConfig          `json:"assessment"`
}

type BasicConfig struct {
	ServerAddress       string `json:"server_address"`
	WebhookSecret       string `json:"webhook_secret"`
	AIProvider          string `json:"ai_provider"`
	MinWorkers          int    `json:"min_workers"`
	MaxWorkers          int    `json:"max_workers"`
	QueueSize           int    `json:"queue_size"`
	WorkerIdleTimeout   int    `json:"worker_idle_timeout_minutes"`
	SessionIdleTimeout  int    `json:"session_idle_timeout_minutes"`
	SessionSweepEvery   int    `json:"session_sweep_interval_minutes"`
	EventDedupeTTLHours int    `json:"event_dedupe_ttl_hours"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type SiteAPIConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

type LimitsConfig struct {
	ConsultationMessages int `json:"consultation_messages"`
	QuotaPeriodDays      int `json:"quota_period_days"`
}

type AssessmentConfig struct {
	DataPath string `json:"data_path"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	if cfg.SiteAPI.BaseURL == "" {
		return nil, fmt.Errorf("site_api.base_url must be configured")
	}

	// sqlite paths are resolved relative to the config file.
	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}
	if cfg.Assessment.DataPath != "" && !filepath.IsAbs(cfg.Assessment.DataPath) {
		cfg.Assessment.DataPath = filepath.Join(filepath.Dir(absPath), cfg.Assessment.DataPath)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.AIProvider == "" {
		c.BasicConfig.AIProvider = "openai"
	}
	if c.BasicConfig.MinWorkers <= 0 {
		c.BasicConfig.MinWorkers = 2
	}
	if c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		c.BasicConfig.MaxWorkers = c.BasicConfig.MinWorkers * 4
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 64
	}
	if c.BasicConfig.SessionIdleTimeout <= 0 {
		c.BasicConfig.SessionIdleTimeout = 30
	}
	if c.BasicConfig.SessionSweepEvery <= 0 {
		c.BasicConfig.SessionSweepEvery = 5
	}
	if c.BasicConfig.EventDedupeTTLHours <= 0 {
		c.BasicConfig.EventDedupeTTLHours = 24
	}
	if c.Limits.ConsultationMessages <= 0 {
		c.Limits.ConsultationMessages = 5
	}
	if c.Limits.QuotaPeriodDays <= 0 {
		c.Limits.QuotaPeriodDays = 30
	}
}
