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

//go:build integration

package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/flowbase/datasync/internal/models"
)

func startPostgres(t *testing.T) *PGStore {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "datasync",
				"POSTGRES_PASSWORD": "datasync",
				"POSTGRES_DB":       "datasync",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://datasync:datasync@%s:%d/datasync?sslmode=disable", host, port.Int())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	store, err := NewPGStore(ctx, pool)
	if err != nil {
		t.Fatalf("NewPGStore: %v", err)
	}
	return store
}

func newJob(userID string, createdAt time.Time) *models.Job {
	id := uuid.NewString()
	return &models.Job{
		ID:               id,
		UserID:           userID,
		Status:           models.StatusQueued,
		FilenameOriginal: "contatos.csv",
		FilePath:         id + "/source.csv",
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func TestPGStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := startPostgres(t)
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := newJob("user-1", base)
	second := newJob("user-1", base.Add(time.Second))
	for _, j := range []*models.Job{first, second} {
		if err := store.Insert(ctx, j); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID || claimed.Status != models.StatusProcessing {
		t.Fatalf("claimed = %+v, want %s processing", claimed, first.ID)
	}

	ok, err := store.Complete(ctx, first.ID, models.Artifacts{
		OutputPath: first.ID + "/output.csv",
		ReportPath: first.ID + "/report.json",
	})
	if err != nil || !ok {
		t.Fatalf("Complete = %v, %v", ok, err)
	}
	ok, err = store.Complete(ctx, first.ID, models.Artifacts{OutputPath: "x/y"})
	if err != nil || ok {
		t.Errorf("second Complete = %v, %v; want false", ok, err)
	}

	got, err := store.Get(ctx, first.ID)
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.Status != models.StatusDone || got.OutputPath != first.ID+"/output.csv" {
		t.Errorf("job = %+v", got)
	}

	jobs, total, err := store.ListByUser(ctx, "user-1", 10, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if total != 2 || len(jobs) != 2 || jobs[0].ID != second.ID {
		t.Errorf("list = %v (total %d)", jobs, total)
	}

	deleted, err := store.Delete(ctx, "user-2", second.ID)
	if err != nil || deleted != nil {
		t.Errorf("Delete by other user = %v, %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "user-1", second.ID)
	if err != nil || deleted == nil {
		t.Errorf("Delete = %v, %v", deleted, err)
	}
	if got, _ := store.Get(ctx, second.ID); got != nil {
		t.Errorf("job survived Delete: %+v", got)
	}
}

func TestPGStore_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	store := startPostgres(t)
	base := time.Now().UTC()

	const jobsCount = 25
	for i := 0; i < jobsCount; i++ {
		if err := store.Insert(ctx, newJob("user-1", base.Add(time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	var mu sync.Mutex
	claims := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.ClaimNext(ctx)
				if err != nil {
					t.Errorf("ClaimNext: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claims[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claims) != jobsCount {
		t.Errorf("claimed %d distinct jobs, want %d", len(claims), jobsCount)
	}
	for id, n := range claims {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}
