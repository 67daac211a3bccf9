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

// DataSync — Conversion Worker
//
// Standalone worker pool. It claims queued jobs from the shared job store,
// converts them and records the outcome, until SIGTERM/SIGINT.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowbase/datasync/internal/bootstrap"
	"github.com/flowbase/datasync/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	bootstrap.SetupLogging(cfg, os.Stdout)

	if cfg.UseMemoryStore() {
		slog.Error("DATABASE_URL is required: a standalone worker cannot share an in-memory job store")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	svc, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	w := svc.Worker(cfg)
	w.Start(ctx)

	<-ctx.Done()
	slog.Info("received shutdown signal")
	w.Stop()
}
