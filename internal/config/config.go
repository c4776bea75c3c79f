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

// Config captures the settings required to boot the anomaly engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Detector DetectorConfig `yaml:"detector"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig controls the operational HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ProviderConfig configures access to the instrumented service's counters.
type ProviderConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	CountersPath string        `yaml:"countersPath"`
	ResourcePath string        `yaml:"resourcePath"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DetectorConfig controls the detection cycle and severity classification.
type DetectorConfig struct {
	Interval          time.Duration `yaml:"interval"`
	SampleTimeout     time.Duration `yaml:"sampleTimeout"`
	WindowSize        int           `yaml:"windowSize"`
	WarningThreshold  float64       `yaml:"warningThreshold"`
	CriticalThreshold float64       `yaml:"criticalThreshold"`
	RulesPath         string        `yaml:"rulesPath"`
	Source            string        `yaml:"source"`
	HistorySize       int           `yaml:"historySize"`
	DedupeTTL         time.Duration `yaml:"dedupeTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls the Redis-backed dedupe window and alert history.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	AlertTTL     time.Duration `yaml:"alertTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("WATCHSTACK_ANOMALY_CONFIG")
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
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			GracefulTimeout: 10 * time.Second,
		},
		Provider: ProviderConfig{
			CountersPath: "/internal/counters",
			ResourcePath: "/internal/resources",
			Timeout:      5 * time.Second,
		},
		Detector: DetectorConfig{
			Interval:          time.Minute,
			SampleTimeout:     10 * time.Second,
			WindowSize:        50,
			WarningThreshold:  3.0,
			CriticalThreshold: 6.0,
			Source:            "watchstack-anomaly",
			HistorySize:       256,
			DedupeTTL:         time.Hour,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			AlertTTL:     24 * time.Hour,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WATCHSTACK_ANOMALY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_PROVIDER_COUNTERS_PATH"); v != "" {
		cfg.Provider.CountersPath = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_PROVIDER_RESOURCE_PATH"); v != "" {
		cfg.Provider.ResourcePath = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Provider.Timeout = d
		}
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detector.Interval = d
		}
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_SAMPLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detector.SampleTimeout = d
		}
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_WINDOW_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			cfg.Detector.WindowSize = size
		}
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_WARNING_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Detector.WarningThreshold = f
		}
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_CRITICAL_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Detector.CriticalThreshold = f
		}
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_RULES_PATH"); v != "" {
		cfg.Detector.RulesPath = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_SOURCE"); v != "" {
		cfg.Detector.Source = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("WATCHSTACK_ANOMALY_CACHE_ALERT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.AlertTTL = d
		}
	}
}
