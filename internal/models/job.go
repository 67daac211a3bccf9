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

package models

import "time"

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is one asynchronous file-conversion request.
//
// OutputPath and ReportPath are set if and only if Status is StatusDone.
type Job struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Status           JobStatus `json:"status"`
	FilenameOriginal string    `json:"filename_original"`
	FilePath         string    `json:"-"`
	OutputPath       string    `json:"-"`
	ReportPath       string    `json:"-"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Artifacts are the storage handles produced by a successful conversion.
type Artifacts struct {
	OutputPath string
	ReportPath string
}
