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

// Package worker runs conversion jobs in the background. Each worker
// goroutine claims queued jobs from the job manager, converts the stored
// source and records the outcome.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/flowbase/datasync/internal/jobs"
	"github.com/flowbase/datasync/internal/models"
	"github.com/flowbase/datasync/internal/pipeline"
	"github.com/flowbase/datasync/internal/queue"
	"github.com/flowbase/datasync/internal/tabular"
)

const (
	outputName = "output.csv"
	reportName = "report.json"
)

// Jobs is the part of the job manager a worker drives.
type Jobs interface {
	ClaimNext(ctx context.Context) (*models.Job, error)
	Complete(ctx context.Context, jobID string, a models.Artifacts) error
	Fail(ctx context.Context, jobID, summary string) error
}

// Files reads sources and writes artifacts.
type Files interface {
	Open(handle string) (io.ReadCloser, error)
	Write(jobID, name string, fn func(w io.Writer) error) (string, error)
	Remove(handle string) error
	RemoveJob(jobID string) error
}

// Waiter blocks until a job hint arrives or the timeout elapses.
// Implemented by queue.Publisher.
type Waiter interface {
	Wait(ctx context.Context, timeout time.Duration) (*queue.Message, error)
}

// Worker processes queued conversion jobs.
type Worker struct {
	jobs         Jobs
	files        Files
	waiter       Waiter
	opts         pipeline.Options
	concurrency  int
	pollInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds the configuration for a worker pool. Waiter may be nil, in
// which case idle workers poll every PollInterval.
type Config struct {
	Jobs         Jobs
	Files        Files
	Waiter       Waiter
	Options      pipeline.Options
	Concurrency  int
	PollInterval time.Duration
}

// New creates a worker pool.
func New(cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Worker{
		jobs:         cfg.Jobs,
		files:        cfg.Files,
		waiter:       cfg.Waiter,
		opts:         cfg.Options,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
	}
}

// Start launches the worker goroutines. They run until Stop is called or
// ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func(n int) {
			defer w.wg.Done()
			w.loop(loopCtx, n)
		}(i)
	}
	slog.Info("workers started",
		"concurrency", w.concurrency,
		"poll_interval", w.pollInterval.String(),
		"queue", w.waiter != nil,
	)
}

// Stop cancels the worker goroutines and waits for in-flight jobs to
// finish their current step.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	slog.Info("workers stopped")
}

func (w *Worker) loop(ctx context.Context, n int) {
	for {
		w.Drain(ctx)
		if ctx.Err() != nil {
			return
		}
		w.idle(ctx, n)
		if ctx.Err() != nil {
			return
		}
	}
}

// idle waits for a queue hint, or for the poll interval without a queue.
func (w *Worker) idle(ctx context.Context, n int) {
	if w.waiter != nil {
		msg, err := w.waiter.Wait(ctx, w.pollInterval)
		if err == nil {
			if msg != nil {
				slog.Debug("queue hint received", "worker", n, "job_id", msg.JobID)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		slog.Warn("queue wait failed, falling back to polling", "worker", n, "error", err)
	}

	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Drain claims and processes jobs until none is queued. It returns the
// number of jobs processed.
func (w *Worker) Drain(ctx context.Context) int {
	processed := 0
	for ctx.Err() == nil {
		job, err := w.jobs.ClaimNext(ctx)
		if err != nil {
			slog.Error("failed to claim job", "error", err)
			return processed
		}
		if job == nil {
			return processed
		}
		// A claimed job runs to completion even when the pool is stopping.
		w.Process(context.WithoutCancel(ctx), job)
		processed++
	}
	return processed
}

// Process converts a claimed job and records its outcome. Conversion errors
// and panics fail the job; they never escape the worker.
func (w *Worker) Process(ctx context.Context, job *models.Job) {
	start := time.Now()

	artifacts, err := w.convert(job)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	err = w.jobs.Complete(ctx, job.ID, artifacts)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		// Deleted while processing.
		w.discard(job)
	case err != nil:
		slog.Error("failed to complete job", "job_id", job.ID, "error", err)
	default:
		slog.Info("job converted",
			"job_id", job.ID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (w *Worker) fail(ctx context.Context, job *models.Job, cause error) {
	err := w.jobs.Fail(ctx, job.ID, cause.Error())
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		w.discard(job)
	case err != nil:
		slog.Error("failed to mark job failed", "job_id", job.ID, "cause", cause, "error", err)
	}
}

func (w *Worker) discard(job *models.Job) {
	slog.Info("job deleted during processing, discarding artifacts", "job_id", job.ID)
	if err := w.files.RemoveJob(job.ID); err != nil {
		slog.Warn("failed to remove artifacts", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) removeArtifact(job *models.Job, handle string) {
	if err := w.files.Remove(handle); err != nil {
		slog.Warn("failed to remove partial artifact", "job_id", job.ID, "handle", handle, "error", err)
	}
}

// convert runs the pipeline for job and writes its artifacts.
func (w *Worker) convert(job *models.Job) (a models.Artifacts, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("conversion panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
		// A failed job keeps no output.
		if err != nil && a.OutputPath != "" {
			w.removeArtifact(job, a.OutputPath)
			a = models.Artifacts{}
		}
	}()

	src, err := w.files.Open(job.FilePath)
	if err != nil {
		return a, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	table, err := tabular.Decode(job.FilePath, src)
	if err != nil {
		return a, fmt.Errorf("decode %s: %w", job.FilenameOriginal, err)
	}

	result := pipeline.Convert(table, w.opts)

	a.OutputPath, err = w.files.Write(job.ID, outputName, func(out io.Writer) error {
		return tabular.WriteCSV(out, result.Records)
	})
	if err != nil {
		return a, fmt.Errorf("write output: %w", err)
	}
	a.ReportPath, err = w.files.Write(job.ID, reportName, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Report)
	})
	if err != nil {
		return a, fmt.Errorf("write report: %w", err)
	}

	slog.Debug("job artifacts written",
		"job_id", job.ID,
		"total_rows", result.Report.TotalRows,
		"rows_output", result.Report.RowsOutput,
	)
	return a, nil
}
