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

// Config captures the settings required to boot the slow query analysis service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// IngestConfig controls log file ingestion.
type IngestConfig struct {
	BatchSize int      `yaml:"batchSize"`
	Sources   []string `yaml:"sources"`
}

// AnalysisConfig controls filtering defaults and suggestion thresholds.
type AnalysisConfig struct {
	SlowQueryThresholdMS   int64   `yaml:"slowQueryThresholdMS"`
	ExcludeSystemDatabases bool    `yaml:"excludeSystemDatabases"`
	LimitPerCollection     int     `yaml:"limitPerCollection"`
	MinOccurrences         int64   `yaml:"minOccurrences"`
	MinAvgDurationMS       float64 `yaml:"minAvgDurationMS"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_SLOWLOG_CONFIG")
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
			Address:         ":8080",
			GracefulTimeout: 10 * time.Second,
		},
		Ingest: IngestConfig{
			BatchSize: 1000,
		},
		Analysis: AnalysisConfig{
			SlowQueryThresholdMS:   100,
			ExcludeSystemDatabases: true,
			LimitPerCollection:     10,
			MinOccurrences:         3,
			MinAvgDurationMS:       250,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_SLOWLOG_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingest.BatchSize = n
		}
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_SOURCES"); v != "" {
		var sources []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				sources = append(sources, part)
			}
		}
		cfg.Ingest.Sources = sources
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_THRESHOLD_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Analysis.SlowQueryThresholdMS = n
		}
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_EXCLUDE_SYSTEM"); v != "" {
		cfg.Analysis.ExcludeSystemDatabases = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_LIMIT_PER_COLLECTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Analysis.LimitPerCollection = n
		}
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_MIN_OCCURRENCES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Analysis.MinOccurrences = n
		}
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_MIN_AVG_DURATION_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Analysis.MinAvgDurationMS = f
		}
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_SLOWLOG_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
