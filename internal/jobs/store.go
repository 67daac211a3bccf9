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

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbase/datasync/internal/models"
)

// Store persists job rows. Implementations must apply ClaimNext, Complete
// and Fail atomically so that concurrent workers never both advance the
// same job.
type Store interface {
	Insert(ctx context.Context, job *models.Job) error
	// ClaimNext moves the oldest queued job to processing and returns it,
	// or returns nil when no job is queued.
	ClaimNext(ctx context.Context) (*models.Job, error)
	// Complete and Fail report false when the job is missing or not
	// processing.
	Complete(ctx context.Context, id string, a models.Artifacts) (bool, error)
	Fail(ctx context.Context, id, message string) (bool, error)
	// Get returns nil when the job does not exist.
	Get(ctx context.Context, id string) (*models.Job, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Job, int, error)
	// Delete removes the user's job and returns it, or nil when no such
	// job is owned by userID.
	Delete(ctx context.Context, userID, id string) (*models.Job, error)
}

// PGStore is a Store backed by Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a job store backed by the given pool. It ensures the
// jobs table exists on creation.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	s := &PGStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure jobs schema: %w", err)
	}
	slog.Info("job store initialised", "backend", "postgres")
	return s, nil
}

func (s *PGStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			status            TEXT NOT NULL DEFAULT 'queued'
			                  CHECK (status IN ('queued', 'processing', 'done', 'failed')),
			filename_original TEXT NOT NULL,
			file_path         TEXT NOT NULL,
			output_path       TEXT NOT NULL DEFAULT '',
			report_path       TEXT NOT NULL DEFAULT '',
			error_message     TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((status = 'done') = (output_path <> ''))
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_jobs_queued ON jobs(created_at) WHERE status = 'queued';
	`)
	return err
}

const jobColumns = `id, user_id, status, filename_original, file_path,
	output_path, report_path, error_message, created_at, updated_at`

// Insert adds a new job row.
func (s *PGStore) Insert(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, user_id, status, filename_original, file_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, job.ID, job.UserID, string(job.Status), job.FilenameOriginal, job.FilePath, job.CreatedAt)
	return err
}

// ClaimNext claims the oldest queued job. FOR UPDATE SKIP LOCKED lets
// concurrent workers claim different jobs without blocking each other.
func (s *PGStore) ClaimNext(ctx context.Context) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'processing', updated_at = NOW()
		WHERE status = 'queued' AND id = (
			SELECT id FROM jobs
			WHERE status = 'queued'
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns)
	return scanJob(row)
}

// Complete marks a processing job done and records its artifacts.
func (s *PGStore) Complete(ctx context.Context, id string, a models.Artifacts) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'done', output_path = $2, report_path = $3, error_message = '', updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, a.OutputPath, a.ReportPath)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Fail marks a processing job failed with an error summary.
func (s *PGStore) Fail(ctx context.Context, id, message string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, message)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Get retrieves a single job by ID.
func (s *PGStore) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ListByUser returns a page of the user's jobs, most recent first, and the
// user's total job count.
func (s *PGStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Job, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	return jobs, total, err
}

// Delete removes a job owned by userID.
func (s *PGStore) Delete(ctx context.Context, userID, id string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM jobs WHERE id = $1 AND user_id = $2
		RETURNING `+jobColumns, id, userID)
	return scanJob(row)
}

// scanJob scans a single row into a Job. No row yields nil, nil.
func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var status string
	err := row.Scan(
		&j.ID, &j.UserID, &status, &j.FilenameOriginal, &j.FilePath,
		&j.OutputPath, &j.ReportPath, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	return &j, nil
}

// collectJobs scans multiple rows into a slice of Jobs.
func collectJobs(rows pgx.Rows) ([]models.Job, error) {
	jobs := []models.Job{}
	for rows.Next() {
		var j models.Job
		var status string
		if err := rows.Scan(
			&j.ID, &j.UserID, &status, &j.FilenameOriginal, &j.FilePath,
			&j.OutputPath, &j.ReportPath, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		j.Status = models.JobStatus(status)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
