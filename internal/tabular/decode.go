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

// Package tabular decodes uploaded CSV and XLSX files into a models.Table
// and serializes canonical records back to CSV or XLSX.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/flowbase/datasync/internal/models"
)

var (
	// ErrUnsupportedFormat is returned for extensions other than .csv and .xlsx.
	ErrUnsupportedFormat = errors.New("unsupported file format: only .csv and .xlsx are accepted")

	// ErrEmptyFile is returned when the input has no header row.
	ErrEmptyFile = errors.New("file has no header row")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Supported reports whether filename has an accepted extension.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Decode picks the decoder from the filename extension.
func Decode(filename string, r io.Reader) (models.Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return DecodeCSV(r)
	case ".xlsx":
		return DecodeXLSX(r)
	default:
		return models.Table{}, fmt.Errorf("%w (got %q)", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// DecodeCSV reads a delimited text file. Non-UTF-8 input is decoded as
// Windows-1252 and the delimiter is sniffed from the header line.
func DecodeCSV(r io.Reader) (models.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.Table{}, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		data, _, err = transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return models.Table{}, fmt.Errorf("decode windows-1252: %w", err)
		}
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return models.Table{}, fmt.Errorf("parse csv: %w", err)
	}
	return build(records)
}

// DecodeXLSX reads the first sheet of a workbook.
func DecodeXLSX(r io.Reader) (models.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return models.Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return models.Table{}, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return models.Table{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return build(rows)
}

// build turns raw cell rows into a Table. The first non-blank row is the
// header, unless it is a single-cell title above a wider row; blank rows
// are skipped; ragged rows are padded or truncated.
func build(rows [][]string) (models.Table, error) {
	start := nextFilled(rows, 0)
	if start < 0 {
		return models.Table{}, ErrEmptyFile
	}
	if next := nextFilled(rows, start+1); next > 0 && filled(rows[start]) == 1 && filled(rows[next]) > 1 {
		start = next
	}

	headers := uniqueHeaders(rows[start])
	table := models.Table{
		Headers: headers,
		Rows:    make([]models.Row, 0, len(rows)-start-1),
	}
	for _, cells := range rows[start+1:] {
		if blank(cells) {
			continue
		}
		row := make(models.Row, len(headers))
		for i, h := range headers {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// uniqueHeaders trims headers, names blank ones "Column N" and suffixes
// duplicates with " (2)", " (3)", ...
func uniqueHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		base := h
		for seen[h] > 0 {
			seen[base]++
			h = fmt.Sprintf("%s (%d)", base, seen[base])
		}
		seen[h]++
		out[i] = h
	}
	return out
}

func nextFilled(rows [][]string, from int) int {
	for i := from; i < len(rows); i++ {
		if !blank(rows[i]) {
			return i
		}
	}
	return -1
}

func filled(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func blank(cells []string) bool {
	return filled(cells) == 0
}

// sniffDelimiter picks the most frequent of ',', ';' and '\t' on the first
// line, ignoring quoted text. pt-BR Excel exports default to ';'.
func sniffDelimiter(data []byte) rune {
	counts := map[rune]int{',': 0, ';': 0, '\t': 0}
	inQuotes := false
	for _, c := range string(data) {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if c == '\n' {
			break
		}
		if _, ok := counts[c]; ok {
			counts[c]++
		}
	}

	best := ','
	for _, d := range []rune{';', '\t'} {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}
