package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the monitor.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Model    ModelConfig    `yaml:"model"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Alerting AlertingConfig `yaml:"alerting"`
	State    StateConfig    `yaml:"state"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP control listener and metrics endpoint.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StoreConfig configures access to the external log/event store.
type StoreConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	Indices     []string      `yaml:"indices"`
	AlertsIndex string        `yaml:"alertsIndex"`
	PageSize    int           `yaml:"pageSize"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ModelConfig locates the trained scoring artifact bundle.
type ModelConfig struct {
	Dir string `yaml:"dir"`
}

// MonitorConfig controls the check loop.
type MonitorConfig struct {
	CheckInterval   time.Duration `yaml:"checkInterval"`
	WindowSize      time.Duration `yaml:"windowSize"`
	InitialLookback time.Duration `yaml:"initialLookback"`
	HistoryLimit    int           `yaml:"historyLimit"`
}

// AlertingConfig tunes alert severity assignment.
type AlertingConfig struct {
	HighSeverityBelow float64       `yaml:"highSeverityBelow"`
	DedupeTTL         time.Duration `yaml:"dedupeTTL"`
}

// StateConfig locates the local bolt database carrying the watermark.
type StateConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls the optional Valkey-backed alert dedupe keys.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	TLS          bool          `yaml:"tls"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PULSE_MONITOR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8085",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			BaseURL:     "http://localhost:9200",
			Indices:     []string{"api-training-data", "api-logs-*"},
			AlertsIndex: "api-anomaly-alerts",
			PageSize:    10000,
			Timeout:     10 * time.Second,
		},
		Model: ModelConfig{Dir: "models"},
		Monitor: MonitorConfig{
			CheckInterval:   30 * time.Second,
			WindowSize:      time.Minute,
			InitialLookback: 5 * time.Minute,
			HistoryLimit:    100,
		},
		Alerting: AlertingConfig{
			HighSeverityBelow: -0.15,
			DedupeTTL:         10 * time.Minute,
		},
		State: StateConfig{Path: "pulse-monitor.db"},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func (c *Config) validate() error {
	if c.Store.PageSize <= 0 {
		return fmt.Errorf("store.pageSize must be positive")
	}
	if c.Monitor.CheckInterval <= 0 {
		return fmt.Errorf("monitor.checkInterval must be positive")
	}
	if c.Monitor.WindowSize <= 0 {
		return fmt.Errorf("monitor.windowSize must be positive")
	}
	if c.Monitor.HistoryLimit < 0 {
		return fmt.Errorf("monitor.historyLimit cannot be negative")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PULSE_MONITOR_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PULSE_MONITOR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("PULSE_MONITOR_STORE_URL"); v != "" {
		cfg.Store.BaseURL = v
	}
	if v := os.Getenv("PULSE_MONITOR_STORE_INDICES"); v != "" {
		parts := strings.Split(v, ",")
		indices := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				indices = append(indices, p)
			}
		}
		if len(indices) > 0 {
			cfg.Store.Indices = indices
		}
	}
	if v := os.Getenv("PULSE_MONITOR_ALERTS_INDEX"); v != "" {
		cfg.Store.AlertsIndex = v
	}
	if v := os.Getenv("PULSE_MONITOR_STORE_PAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Store.PageSize = size
		}
	}
	if v := os.Getenv("PULSE_MONITOR_MODEL_DIR"); v != "" {
		cfg.Model.Dir = v
	}
	if v := os.Getenv("PULSE_MONITOR_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.CheckInterval = d
		}
	}
	if v := os.Getenv("PULSE_MONITOR_WINDOW_SIZE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.WindowSize = d
		}
	}
	if v := os.Getenv("PULSE_MONITOR_INITIAL_LOOKBACK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.InitialLookback = d
		}
	}
	if v := os.Getenv("PULSE_MONITOR_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}
	if v := os.Getenv("PULSE_MONITOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PULSE_MONITOR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("PULSE_MONITOR_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("PULSE_MONITOR_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("PULSE_MONITOR_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("PULSE_MONITOR_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("PULSE_MONITOR_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("PULSE_MONITOR_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
}
