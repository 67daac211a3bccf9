// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowbase/datasync/internal/models"
)

var dddPattern = regexp.MustCompile(`^[0-9]{2}$`)

// Config holds all configuration for the conversion service.
type Config struct {
	// Conversion
	DefaultDDD string
	Labels     models.Labels

	// Postgres; empty selects the in-memory job store.
	DatabaseURL string

	// Redis; empty disables the queue and workers poll the store.
	RedisURL  string
	JobsQueue string

	// Artifacts
	StorageDir string

	// Worker
	WorkerConcurrency  int
	WorkerPollInterval time.Duration

	// Server
	Port             int
	MaxUploadBytes   int64
	PreviewRows      int
	UploadsPerMinute int

	LogLevel string
}

// UseMemoryStore reports whether jobs are kept in process memory.
func (c *Config) UseMemoryStore() bool {
	return c.DatabaseURL == "" || strings.EqualFold(c.DatabaseURL, "memory")
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Conversion struct {
		DefaultDDD string        `yaml:"default_ddd"`
		Labels     models.Labels `yaml:"labels"`
	} `yaml:"conversion"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Jobs string `yaml:"jobs"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Storage struct {
		Dir string `yaml:"dir"`
	} `yaml:"storage"`
	Worker struct {
		Concurrency  int    `yaml:"concurrency"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"worker"`
	Server struct {
		Port             int   `yaml:"port"`
		MaxUploadBytes   int64 `yaml:"max_upload_bytes"`
		PreviewRows      int   `yaml:"preview_rows"`
		UploadsPerMinute *int  `yaml:"uploads_per_minute"`
	} `yaml:"server"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for settings the file leaves empty. A missing
// config file is not an error.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Defaults and environment only.
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	pollInterval := envOrDefaultDuration("WORKER_POLL_INTERVAL", 5*time.Second)
	if raw.Worker.PollInterval != "" {
		d, err := time.ParseDuration(raw.Worker.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("parse worker.poll_interval: %w", err)
		}
		pollInterval = d
	}

	cfg := &Config{
		DefaultDDD:         firstNonEmpty(raw.Conversion.DefaultDDD, envOrDefault("DEFAULT_DDD", "85")),
		Labels:             mergeLabels(raw.Conversion.Labels),
		DatabaseURL:        firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:           firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		JobsQueue:          firstNonEmpty(raw.Redis.Queues.Jobs, envOrDefault("JOBS_QUEUE", "conversions")),
		StorageDir:         firstNonEmpty(raw.Storage.Dir, envOrDefault("STORAGE_DIR", "/var/lib/datasync")),
		WorkerConcurrency:  firstPositive(raw.Worker.Concurrency, envOrDefaultInt("WORKER_CONCURRENCY", 2)),
		WorkerPollInterval: pollInterval,
		Port:               firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8080)),
		MaxUploadBytes:     int64(firstPositive(int(raw.Server.MaxUploadBytes), envOrDefaultInt("MAX_UPLOAD_BYTES", 10<<20))),
		PreviewRows:        firstPositive(raw.Server.PreviewRows, envOrDefaultInt("PREVIEW_ROWS", 20)),
		UploadsPerMinute:   envOrDefaultInt("UPLOADS_PER_MINUTE", 30),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
	}
	// 0 in the file disables the limit, so it is not treated as unset.
	if raw.Server.UploadsPerMinute != nil {
		cfg.UploadsPerMinute = *raw.Server.UploadsPerMinute
	}
	if err := cfg.SetDefaultDDD(cfg.DefaultDDD); err != nil {
		return nil, err
	}
	if cfg.WorkerPollInterval <= 0 {
		return nil, fmt.Errorf("worker poll interval must be positive, got %s", cfg.WorkerPollInterval)
	}
	return cfg, nil
}

// SetDefaultDDD replaces the default area code, taking precedence over the
// file and the environment.
func (c *Config) SetDefaultDDD(ddd string) error {
	ddd = strings.TrimSpace(ddd)
	if !dddPattern.MatchString(ddd) {
		return fmt.Errorf("default DDD %q must be exactly 2 digits", ddd)
	}
	c.DefaultDDD = ddd
	return nil
}

// mergeLabels fills labels left empty in the file with the defaults.
func mergeLabels(l models.Labels) models.Labels {
	def := models.DefaultLabels()
	return models.Labels{
		Pipeline: firstNonEmpty(l.Pipeline, def.Pipeline),
		Stage:    firstNonEmpty(l.Stage, def.Stage),
		Status:   firstNonEmpty(l.Status, def.Status),
		Source:   firstNonEmpty(l.Source, def.Source),
		Tags:     firstNonEmpty(l.Tags, def.Tags),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
