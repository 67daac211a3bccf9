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

// Package jobs owns the lifecycle of asynchronous conversion jobs:
// queued → processing → done | failed. It persists job rows through a
// Store, keeps uploaded and generated files in a FileStore, and hands new
// jobs to a work queue.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowbase/datasync/internal/models"
	"github.com/flowbase/datasync/internal/tabular"
)

var (
	// ErrNotFound is returned for jobs that do not exist or belong to
	// another user. The two cases are indistinguishable to callers.
	ErrNotFound = errors.New("job not found")

	// ErrNotReady is returned when results are requested before the job
	// is done.
	ErrNotReady = errors.New("job results not available yet")

	// ErrInvalidTransition is returned when a state change is not allowed
	// from the job's current status.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

const (
	// DefaultListLimit applies when List is called without a limit.
	DefaultListLimit = 50
	// MaxListLimit caps a single List page.
	MaxListLimit = 200
)

// FileStore keeps job artifacts.
type FileStore interface {
	Put(jobID, name string, r io.Reader) (string, error)
	Open(handle string) (io.ReadCloser, error)
	RemoveJob(jobID string) error
}

// Enqueuer hands a queued job to the work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Manager applies job state transitions.
type Manager struct {
	store Store
	files FileStore
	queue Enqueuer
	now   func() time.Time
}

// ManagerConfig holds the dependencies of a Manager. Queue may be nil, in
// which case workers discover jobs by polling the store.
type ManagerConfig struct {
	Store Store
	Files FileStore
	Queue Enqueuer
}

// NewManager creates a job lifecycle manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		store: cfg.Store,
		files: cfg.Files,
		queue: cfg.Queue,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create persists the uploaded source, records a queued job and hands it
// to the queue. A queue failure is logged but does not fail the upload:
// the job is durable and workers poll for it.
func (m *Manager) Create(ctx context.Context, userID, filename string, source io.Reader) (*models.Job, error) {
	if userID == "" {
		return nil, fmt.Errorf("create job: empty user id")
	}

	id := uuid.NewString()
	handle, err := m.files.Put(id, "source"+strings.ToLower(filepath.Ext(filename)), source)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	now := m.now()
	job := &models.Job{
		ID:               id,
		UserID:           userID,
		Status:           models.StatusQueued,
		FilenameOriginal: filepath.Base(filename),
		FilePath:         handle,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.Insert(ctx, job); err != nil {
		if rmErr := m.files.RemoveJob(id); rmErr != nil {
			slog.Warn("failed to clean up upload after insert error", "job_id", id, "error", rmErr)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	slog.Info("job created",
		"job_id", id,
		"user_id", userID,
		"filename", job.FilenameOriginal,
	)

	if m.queue != nil {
		if err := m.queue.Enqueue(ctx, job); err != nil {
			slog.Warn("enqueue failed, job left for polling workers", "job_id", id, "error", err)
		}
	}
	return job, nil
}

// ClaimNext atomically moves one queued job to processing. It returns nil
// when nothing is queued.
func (m *Manager) ClaimNext(ctx context.Context) (*models.Job, error) {
	job, err := m.store.ClaimNext(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job != nil {
		slog.Info("job claimed", "job_id", job.ID, "user_id", job.UserID)
	}
	return job, nil
}

// Complete marks a processing job done. The artifacts must already be
// fully written.
func (m *Manager) Complete(ctx context.Context, jobID string, a models.Artifacts) error {
	if a.OutputPath == "" {
		return fmt.Errorf("complete job %s: empty output artifact", jobID)
	}
	ok, err := m.store.Complete(ctx, jobID, a)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	if !ok {
		return m.transitionError(ctx, jobID, models.StatusDone)
	}
	slog.Info("job done", "job_id", jobID)
	return nil
}

// Fail marks a processing job failed with an error summary.
func (m *Manager) Fail(ctx context.Context, jobID, summary string) error {
	ok, err := m.store.Fail(ctx, jobID, summary)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	if !ok {
		return m.transitionError(ctx, jobID, models.StatusFailed)
	}
	slog.Error("job failed", "job_id", jobID, "error", summary)
	return nil
}

func (m *Manager) transitionError(ctx context.Context, jobID string, to models.JobStatus) error {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("look up job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return fmt.Errorf("job %s %s -> %s: %w", jobID, job.Status, to, ErrInvalidTransition)
}

// Get returns the user's job.
func (m *Manager) Get(ctx context.Context, userID, jobID string) (*models.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, ErrNotFound
	}
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil || job.UserID != userID {
		return nil, ErrNotFound
	}
	return job, nil
}

// List returns a page of the user's jobs, most recent first, and the
// user's total job count.
func (m *Manager) List(ctx context.Context, userID string, limit, offset int) ([]models.Job, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	jobs, total, err := m.store.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

// Delete removes the user's job and every artifact it owns. Deleting a
// processing job does not stop its worker; the worker's final transition
// then fails with ErrNotFound.
func (m *Manager) Delete(ctx context.Context, userID, jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return ErrNotFound
	}
	job, err := m.store.Delete(ctx, userID, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if job == nil {
		return ErrNotFound
	}
	if err := m.files.RemoveJob(jobID); err != nil {
		slog.Warn("failed to remove job artifacts", "job_id", jobID, "error", err)
	}
	slog.Info("job deleted", "job_id", jobID, "user_id", userID, "status", job.Status)
	return nil
}

// Retry creates a new queued job from the source of a finished one. The
// original job is left untouched.
func (m *Manager) Retry(ctx context.Context, userID, jobID string) (*models.Job, error) {
	job, err := m.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("retry job %s in status %s: %w", jobID, job.Status, ErrInvalidTransition)
	}

	src, err := m.files.Open(job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open source of job %s: %w", jobID, err)
	}
	defer src.Close()

	retry, err := m.Create(ctx, userID, job.FilenameOriginal, src)
	if err != nil {
		return nil, err
	}
	slog.Info("job retried", "job_id", jobID, "retry_job_id", retry.ID)
	return retry, nil
}

// done returns the user's job if it is done, or ErrNotReady.
func (m *Manager) done(ctx context.Context, userID, jobID string) (*models.Job, error) {
	job, err := m.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusDone {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, ErrNotReady)
	}
	return job, nil
}

// Download opens the output artifact of a done job. The caller closes it.
func (m *Manager) Download(ctx context.Context, userID, jobID string) (*models.Job, io.ReadCloser, error) {
	job, err := m.done(ctx, userID, jobID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := m.files.Open(job.OutputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return job, rc, nil
}

// Preview returns the first limit output rows of a done job.
func (m *Manager) Preview(ctx context.Context, userID, jobID string, limit int) ([]map[string]string, error) {
	_, rc, err := m.Download(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return tabular.Preview(rc, limit)
}

// Report returns the validation report of a done job.
func (m *Manager) Report(ctx context.Context, userID, jobID string) (*models.Report, error) {
	job, err := m.done(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	rc, err := m.files.Open(job.ReportPath)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer rc.Close()

	var report models.Report
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
