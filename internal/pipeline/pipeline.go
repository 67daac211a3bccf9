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

// Package pipeline drives a decoded source table through column mapping and
// record transformation, producing the canonical CRM rows and a validation
// report.
package pipeline

import (
	"log/slog"

	"github.com/flowbase/datasync/internal/mapping"
	"github.com/flowbase/datasync/internal/models"
	"github.com/flowbase/datasync/internal/normalize"
	"github.com/flowbase/datasync/internal/transform"
)

// Options configures a conversion run.
type Options struct {
	DefaultDDD string
	Labels     models.Labels

	// NewID overrides the identifier generator; nil uses transform.GenerateID.
	NewID func() string
}

// Result is the output of a conversion run.
type Result struct {
	Mapping mapping.Mapping
	Records []models.Record
	Report  *models.Report
}

// Convert maps and transforms every row of table in source order. It is
// single-pass and side-effect free; each call gets its own report.
func Convert(table models.Table, opts Options) Result {
	report := models.NewReport()
	m, records := run(table, opts, report)
	return Result{
		Mapping: m,
		Records: records,
		Report:  report,
	}
}

// ConvertInto is Convert with a caller-owned report accumulator. The report
// must not be shared with a concurrent run.
func ConvertInto(table models.Table, opts Options, report *models.Report) []models.Record {
	_, records := run(table, opts, report)
	return records
}

func run(table models.Table, opts Options, report *models.Report) (mapping.Mapping, []models.Record) {
	m := mapping.Find(table.Headers)
	if m.Len() == 0 && len(table.Headers) > 0 {
		report.Errors = append(report.Errors, "no column matched a known field; all columns folded into Notes")
	}

	labels := opts.Labels
	if labels == (models.Labels{}) {
		labels = models.DefaultLabels()
	}

	tr := transform.New(m, table.Headers, normalize.New(opts.DefaultDDD, report), labels)
	if opts.NewID != nil {
		tr.NewID = opts.NewID
	}

	records := make([]models.Record, 0, len(table.Rows))
	for _, row := range table.Rows {
		records = append(records, tr.Transform(row))
	}

	report.TotalRows = len(table.Rows)
	report.Finalize(records)

	slog.Debug("conversion complete",
		"rows", report.TotalRows,
		"mapped_fields", m.Len(),
		"valid_emails", report.ValidEmails,
		"valid_phones", report.ValidPhones,
	)
	return m, records
}
