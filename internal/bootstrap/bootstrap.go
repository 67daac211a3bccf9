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

// Package bootstrap connects the backing services shared by the server and
// worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/flowbase/datasync/internal/api"
	"github.com/flowbase/datasync/internal/config"
	"github.com/flowbase/datasync/internal/dedup"
	"github.com/flowbase/datasync/internal/jobs"
	"github.com/flowbase/datasync/internal/pipeline"
	"github.com/flowbase/datasync/internal/queue"
	"github.com/flowbase/datasync/internal/storage"
	"github.com/flowbase/datasync/internal/worker"
)

// Services holds the connected backing services.
type Services struct {
	Manager *jobs.Manager
	Files   *storage.FS
	// Queue and Dedup are nil when Redis is not configured.
	Queue *queue.Publisher
	Dedup *dedup.Filter

	pool *pgxpool.Pool
	rdb  *redis.Client
}

// SetupLogging installs a JSON slog handler writing to out at cfg's level.
func SetupLogging(cfg *config.Config, out *os.File) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
}

// Open connects the job store, artifact storage and optional queue.
func Open(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{}

	files, err := storage.New(cfg.StorageDir)
	if err != nil {
		return nil, err
	}
	s.Files = files

	// --- Job store ---
	var store jobs.Store
	if cfg.UseMemoryStore() {
		slog.Warn("DATABASE_URL not set, using in-memory job store")
		store = jobs.NewMemoryStore()
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create Postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		s.pool = pool
		slog.Info("connected to PostgreSQL")

		pg, err := jobs.NewPGStore(ctx, pool)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("initialise job store: %w", err)
		}
		store = pg
	}

	// --- Queue ---
	mcfg := jobs.ManagerConfig{Store: store, Files: files}
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		s.rdb = redis.NewClient(opt)
		s.Queue = queue.NewPublisher(s.rdb, cfg.JobsQueue)
		if err := s.Queue.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to Redis: %w", err)
		}
		slog.Info("connected to Redis", "queue", cfg.JobsQueue)
		mcfg.Queue = s.Queue
		s.Dedup = dedup.NewFilter(s.rdb)
	} else {
		slog.Info("REDIS_URL not set, workers will poll the job store")
	}

	s.Manager = jobs.NewManager(mcfg)
	return s, nil
}

// Worker builds a worker pool over the services.
func (s *Services) Worker(cfg *config.Config) *worker.Worker {
	wcfg := worker.Config{
		Jobs:  s.Manager,
		Files: s.Files,
		Options: pipeline.Options{
			DefaultDDD: cfg.DefaultDDD,
			Labels:     cfg.Labels,
		},
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
	}
	if s.Queue != nil {
		wcfg.Waiter = s.Queue
	}
	return worker.New(wcfg)
}

// APIConfig builds the API handler configuration over the services.
func (s *Services) APIConfig(cfg *config.Config) api.HandlerConfig {
	hcfg := api.HandlerConfig{
		Jobs:             s.Manager,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		PreviewRows:      cfg.PreviewRows,
		Ping:             s.Ping,
		UploadsPerMinute: cfg.UploadsPerMinute,
	}
	if s.Dedup != nil {
		hcfg.Idempotency = s.Dedup
	}
	return hcfg
}

// Ping checks the connected services.
func (s *Services) Ping(ctx context.Context) error {
	if s.Queue != nil {
		if err := s.Queue.Ping(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres unhealthy: %w", err)
		}
	}
	return nil
}

// Close releases the connections.
func (s *Services) Close() {
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
