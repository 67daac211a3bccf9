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
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/flowbase/datasync/internal/models"
)

const sheetName = "Contacts"

// WriteCSV writes the canonical header followed by one line per record.
func WriteCSV(w io.Writer, records []models.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, rec := range records {
		if err := cw.Write(rec.Values()); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the records to a single-sheet workbook with a bold header.
func WriteXLSX(w io.Writer, records []models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(models.Columns))
	for i, col := range models.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(models.Columns), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header row: %w", err)
	}

	for i, rec := range records {
		values := rec.Values()
		row := make([]interface{}, len(values))
		for j, v := range values {
			row[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(models.Columns))
	if err := f.SetColWidth(sheetName, "A", lastCol, 20); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Preview reads up to limit rows of a CSV previously written by WriteCSV
// and returns them as header→value maps.
func Preview(r io.Reader, limit int) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preview header: %w", err)
	}

	rows := make([]map[string]string, 0, limit)
	for len(rows) < limit {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read preview row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
