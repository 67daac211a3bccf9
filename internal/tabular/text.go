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

package tabular

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/flowbase/datasync/internal/models"
)

// maxCellWidth truncates long cells in text tables.
const maxCellWidth = 40

// FormatTable renders up to limit records as a pipe table over the given
// columns, padded by display width so accented and wide characters line up.
func FormatTable(records []models.Record, columns []string, limit int) []string {
	if limit > len(records) || limit < 0 {
		limit = len(records)
	}

	table := make([][]string, 0, limit+1)
	table = append(table, columns)
	for _, rec := range records[:limit] {
		m := rec.Map()
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = runewidth.Truncate(m[col], maxCellWidth, "…")
		}
		table = append(table, row)
	}

	widths := make([]int, len(columns))
	for _, row := range table {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] < 3 {
			widths[i] = 3
		}
	}

	lines := make([]string, 0, len(table)+1)
	for i, row := range table {
		lines = append(lines, formatRow(row, widths))
		if i == 0 {
			sep := make([]string, len(widths))
			for j, w := range widths {
				sep[j] = strings.Repeat("-", w)
			}
			lines = append(lines, formatRow(sep, widths))
		}
	}
	return lines
}

func formatRow(cells []string, widths []int) string {
	var sb strings.Builder
	sb.WriteString("|")
	for i, cell := range cells {
		sb.WriteString(" ")
		sb.WriteString(runewidth.FillRight(cell, widths[i]))
		sb.WriteString(" |")
	}
	return sb.String()
}
