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

// Package models defines the data structures shared across the conversion
// service: the decoded input table, the canonical CRM record, the
// validation report, and the conversion job.
package models

// Row associates each source header with its raw cell text.
type Row map[string]string

// Table is a decoded tabular dataset. Headers keep the source column order
// and are unique; every Row is keyed by those headers.
type Table struct {
	Headers []string
	Rows    []Row
}

// Get returns the cell for header, or "" when the row lacks it.
func (r Row) Get(header string) string {
	if r == nil {
		return ""
	}
	return r[header]
}
