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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowbase/datasync/internal/models"
)

// MemoryStore is an in-process Store for development and tests. A single
// mutex serializes every transition.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores a copy of job. Inserting an existing ID is an error.
func (s *MemoryStore) Insert(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	j := *job
	j.UpdatedAt = j.CreatedAt
	s.jobs[j.ID] = &j
	return nil
}

// ClaimNext moves the oldest queued job to processing and returns a copy,
// or nil when nothing is queued. Ties on CreatedAt break on ID.
func (s *MemoryStore) ClaimNext(_ context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *models.Job
	for _, j := range s.jobs {
		if j.Status != models.StatusQueued {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) ||
			(j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}
	next.Status = models.StatusProcessing
	next.UpdatedAt = s.now()
	j := *next
	return &j, nil
}

// Complete marks a processing job done and records its artifacts. It
// returns false when the job is missing or not processing.
func (s *MemoryStore) Complete(_ context.Context, id string, a models.Artifacts) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != models.StatusProcessing {
		return false, nil
	}
	j.Status = models.StatusDone
	j.OutputPath = a.OutputPath
	j.ReportPath = a.ReportPath
	j.ErrorMessage = ""
	j.UpdatedAt = s.now()
	return true, nil
}

// Fail marks a processing job failed with message. It returns false when
// the job is missing or not processing.
func (s *MemoryStore) Fail(_ context.Context, id, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != models.StatusProcessing {
		return false, nil
	}
	j.Status = models.StatusFailed
	j.ErrorMessage = message
	j.UpdatedAt = s.now()
	return true, nil
}

// Get returns a copy of the job, or nil when it does not exist.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	out := *j
	return &out, nil
}

// ListByUser returns one page of the user's jobs, newest first, and the
// user's total job count.
func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []models.Job
	for _, j := range s.jobs {
		if j.UserID == userID {
			all = append(all, *j)
		}
	}
	sort.Slice(all, func(a, b int) bool {
		if !all[a].CreatedAt.Equal(all[b].CreatedAt) {
			return all[a].CreatedAt.After(all[b].CreatedAt)
		}
		return all[a].ID > all[b].ID
	})

	total := len(all)
	if offset >= total {
		return []models.Job{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// Delete removes the job if userID owns it and returns it, or nil when no
// such job exists.
func (s *MemoryStore) Delete(_ context.Context, userID, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.UserID != userID {
		return nil, nil
	}
	delete(s.jobs, id)
	return j, nil
}
