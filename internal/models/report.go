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

import (
	"math"
	"time"
)

// Report accumulates validation counters for a single conversion run.
// A Report is never shared between runs.
type Report struct {
	TotalRows          int      `json:"total_rows"`
	RowsOutput         int      `json:"rows_output"`
	ValidEmails        int      `json:"valid_emails"`
	InvalidEmails      int      `json:"invalid_emails"`
	ValidPhones        int      `json:"valid_phones"`
	InvalidPhones      int      `json:"invalid_phones"`
	PhonesWithDDDAdded int      `json:"phones_with_ddd_added"`
	PctWithEmail       float64  `json:"pct_with_email"`
	PctWithPhone       float64  `json:"pct_with_phone"`
	Errors             []string `json:"errors"`
	CreatedAt          string   `json:"created_at"`
}

// NewReport returns an empty report stamped with the current time.
func NewReport() *Report {
	return &Report{
		Errors:    []string{},
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Finalize computes the output-level percentages from the converted records.
func (r *Report) Finalize(records []Record) {
	r.RowsOutput = len(records)
	if len(records) == 0 {
		r.PctWithEmail, r.PctWithPhone = 0, 0
		return
	}
	var withEmail, withPhone int
	for _, rec := range records {
		if rec.Email != "" {
			withEmail++
		}
		if rec.Phone != "" {
			withPhone++
		}
	}
	r.PctWithEmail = percent(withEmail, len(records))
	r.PctWithPhone = percent(withPhone, len(records))
}

func percent(n, total int) float64 {
	return math.Round(float64(n)*1000/float64(total)) / 10
}
