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

package bootstrap

import (
	"context"
	"strings"
	"testing"

	"github.com/flowbase/datasync/internal/config"
)

// TestOpen_Memory verifies the service graph without Postgres or Redis.
func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		DefaultDDD:        "85",
		StorageDir:        t.TempDir(),
		WorkerConcurrency: 1,
		MaxUploadBytes:    1 << 20,
		PreviewRows:       5,
	}

	svc, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close()

	if svc.Queue != nil || svc.Dedup != nil {
		t.Error("expected no Redis-backed services")
	}
	if err := svc.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}

	hcfg := svc.APIConfig(cfg)
	if hcfg.Idempotency != nil {
		t.Error("Idempotency should be nil without Redis")
	}

	job, err := svc.Manager.Create(ctx, "user-1", "contatos.csv", strings.NewReader("Nome,Email\nAna,ana@test.com\n"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n := svc.Worker(cfg).Drain(ctx); n != 1 {
		t.Fatalf("Drain = %d, want 1", n)
	}
	got, err := svc.Manager.Get(ctx, "user-1", job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "done" {
		t.Errorf("status = %q, want done", got.Status)
	}
}

// TestOpen_BadRedisURL verifies connection errors surface.
func TestOpen_BadRedisURL(t *testing.T) {
	cfg := &config.Config{DefaultDDD: "85", StorageDir: t.TempDir(), RedisURL: "not-a-url"}
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error for invalid REDIS_URL")
	}
}
