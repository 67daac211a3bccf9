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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv isolates a test from the variables Load reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_PATH", "DEFAULT_DDD", "DATABASE_URL", "REDIS_URL", "JOBS_QUEUE",
		"STORAGE_DIR", "PORT", "MAX_UPLOAD_BYTES", "WORKER_CONCURRENCY",
		"WORKER_POLL_INTERVAL", "PREVIEW_ROWS", "UPLOADS_PER_MINUTE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
}

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
}

// TestLoad_Defaults verifies a missing file falls back to defaults.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultDDD != "85" {
		t.Errorf("DefaultDDD = %q, want 85", cfg.DefaultDDD)
	}
	if !cfg.UseMemoryStore() {
		t.Error("expected memory store without DATABASE_URL")
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
	if cfg.JobsQueue != "conversions" {
		t.Errorf("JobsQueue = %q", cfg.JobsQueue)
	}
	if cfg.Port != 8080 || cfg.MaxUploadBytes != 10<<20 || cfg.PreviewRows != 20 {
		t.Errorf("server config = %d/%d/%d", cfg.Port, cfg.MaxUploadBytes, cfg.PreviewRows)
	}
	if cfg.WorkerConcurrency != 2 || cfg.WorkerPollInterval != 5*time.Second {
		t.Errorf("worker config = %d/%s", cfg.WorkerConcurrency, cfg.WorkerPollInterval)
	}
	if cfg.UploadsPerMinute != 30 {
		t.Errorf("UploadsPerMinute = %d, want 30", cfg.UploadsPerMinute)
	}
	if cfg.Labels.Pipeline != "Sales Pipeline" || cfg.Labels.Tags != "DataSync Import" {
		t.Errorf("labels = %+v", cfg.Labels)
	}
}

// TestLoad_Env verifies environment overrides.
func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEFAULT_DDD", "11")
	t.Setenv("DATABASE_URL", "postgres://localhost/datasync")
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultDDD != "11" {
		t.Errorf("DefaultDDD = %q, want 11", cfg.DefaultDDD)
	}
	if cfg.UseMemoryStore() {
		t.Error("expected postgres store")
	}
	if cfg.WorkerConcurrency != 4 || cfg.WorkerPollInterval != 250*time.Millisecond {
		t.Errorf("worker config = %d/%s", cfg.WorkerConcurrency, cfg.WorkerPollInterval)
	}
}

// TestLoad_YAML verifies file values, env expansion and label merging.
func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_REDIS_HOST", "redis.internal")
	writeConfig(t, `
conversion:
  default_ddd: "21"
  labels:
    pipeline: Vendas
    stage: Novo
redis:
  url: redis://${TEST_REDIS_HOST}:6379/0
  queues:
    jobs: imports
worker:
  poll_interval: 2s
server:
  port: 9090
  uploads_per_minute: 0
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultDDD != "21" {
		t.Errorf("DefaultDDD = %q, want 21", cfg.DefaultDDD)
	}
	if cfg.RedisURL != "redis://redis.internal:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.JobsQueue != "imports" || cfg.Port != 9090 || cfg.WorkerPollInterval != 2*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.UploadsPerMinute != 0 {
		t.Errorf("UploadsPerMinute = %d, want 0 (disabled)", cfg.UploadsPerMinute)
	}
	if cfg.Labels.Pipeline != "Vendas" || cfg.Labels.Stage != "Novo" || cfg.Labels.Status != "Open" {
		t.Errorf("labels = %+v", cfg.Labels)
	}
}

// TestLoad_Invalid verifies configuration errors.
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{"one digit DDD", map[string]string{"DEFAULT_DDD": "8"}, ""},
		{"letters in DDD", map[string]string{"DEFAULT_DDD": "ab"}, ""},
		{"three digit DDD", map[string]string{"DEFAULT_DDD": "085"}, ""},
		{"bad yaml", nil, "conversion: [unclosed"},
		{"bad poll interval", nil, "worker:\n  poll_interval: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.yaml != "" {
				writeConfig(t, tt.yaml)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// TestSetDefaultDDD verifies an explicit override beats the file and is
// validated like the loaded value.
func TestSetDefaultDDD(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEFAULT_DDD", "21")
	writeConfig(t, "conversion:\n  default_ddd: \"11\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.SetDefaultDDD("9"); err == nil {
		t.Error("SetDefaultDDD(9) accepted")
	}
	if cfg.DefaultDDD != "11" {
		t.Errorf("rejected override changed DDD to %q", cfg.DefaultDDD)
	}
	if err := cfg.SetDefaultDDD("85"); err != nil {
		t.Fatalf("SetDefaultDDD(85): %v", err)
	}
	if cfg.DefaultDDD != "85" {
		t.Errorf("DefaultDDD = %q, want 85", cfg.DefaultDDD)
	}
}
