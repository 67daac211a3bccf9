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

// DataSync — Conversion Service
//
// Entry point for the HTTP API. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects the job store (Postgres or in-memory), artifact storage and Redis
//  3. Starts an embedded worker pool unless --worker=false
//  4. Serves the job API
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowbase/datasync/internal/api"
	"github.com/flowbase/datasync/internal/bootstrap"
	"github.com/flowbase/datasync/internal/config"
)

func main() {
	withWorker := flag.Bool("worker", true, "Run an embedded worker pool alongside the API")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	bootstrap.SetupLogging(cfg, os.Stdout)
	slog.Info("starting DataSync conversion service",
		"port", cfg.Port,
		"default_ddd", cfg.DefaultDDD,
		"embedded_worker", *withWorker,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	svc, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// --- Worker Pool ---
	if *withWorker {
		w := svc.Worker(cfg)
		w.Start(ctx)
		defer w.Stop()
	}

	// --- API Server ---
	handler := api.NewHandler(svc.APIConfig(cfg))
	ready, err := api.Serve(ctx, cfg.Port, handler.Routes())
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready

	<-ctx.Done()
	slog.Info("received shutdown signal")
	// Deferred Stop and Close run here; Stop waits for in-flight jobs.
}
