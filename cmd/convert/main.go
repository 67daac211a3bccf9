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

// DataSync — Offline Conversion Command
//
// Converts a local CSV or XLSX contact export into the CRM import layout
// and prints the validation report as JSON on stdout.
//
// Usage:
//
//	go run ./cmd/convert/ --in contatos.xlsx [--out contatos_crm.csv] [--format csv|xlsx] [--ddd 85] [--preview 10]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowbase/datasync/internal/bootstrap"
	"github.com/flowbase/datasync/internal/config"
	"github.com/flowbase/datasync/internal/models"
	"github.com/flowbase/datasync/internal/pipeline"
	"github.com/flowbase/datasync/internal/tabular"
)

func main() {
	// --- CLI Flags ---
	inFlag := flag.String("in", "", "Input .csv or .xlsx file (required)")
	outFlag := flag.String("out", "", "Output file (default: <input>_crm.<format>)")
	formatFlag := flag.String("format", "", "Output format: csv or xlsx (default: from --out, else csv)")
	dddFlag := flag.String("ddd", "", "Default area code for numbers without one (overrides config file and DEFAULT_DDD)")
	previewFlag := flag.Int("preview", 0, "Print the first N converted rows as a table on stderr")
	flag.Parse()

	if *inFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --in is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*dddFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the report.
	bootstrap.SetupLogging(cfg, os.Stderr)

	format, err := outputFormat(*formatFlag, *outFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	out := *outFlag
	if out == "" {
		out = strings.TrimSuffix(*inFlag, filepath.Ext(*inFlag)) + "_crm." + format
	}

	records, report, err := convert(*inFlag, out, format, pipeline.Options{
		DefaultDDD: cfg.DefaultDDD,
		Labels:     cfg.Labels,
	})
	if err != nil {
		slog.Error("conversion failed", "in", *inFlag, "error", err)
		os.Exit(1)
	}

	if *previewFlag > 0 {
		for _, line := range tabular.FormatTable(records, previewColumns, *previewFlag) {
			fmt.Fprintln(os.Stderr, line)
		}
	}

	slog.Info("conversion complete",
		"in", *inFlag,
		"out", out,
		"rows", report.RowsOutput,
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("failed to print report", "error", err)
		os.Exit(1)
	}
}

var previewColumns = []string{"Full Name", "Phone", "Email", "Business Name", "Notes"}

// loadConfig loads the shared config and applies the --ddd override on top.
func loadConfig(ddd string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if ddd != "" {
		if err := cfg.SetDefaultDDD(ddd); err != nil {
			return nil, fmt.Errorf("--ddd: %w", err)
		}
	}
	return cfg, nil
}

func outputFormat(flagValue, out string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(flagValue))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
	}
	switch format {
	case "", "csv":
		return "csv", nil
	case "xlsx":
		return "xlsx", nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

func convert(in, out, format string, opts pipeline.Options) ([]models.Record, *models.Report, error) {
	src, err := os.Open(in)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	table, err := tabular.Decode(in, src)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", in, err)
	}
	result := pipeline.Convert(table, opts)

	dst, err := os.Create(out)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	var write func(io.Writer, []models.Record) error = tabular.WriteCSV
	if format == "xlsx" {
		write = tabular.WriteXLSX
	}
	if err := write(dst, result.Records); err != nil {
		dst.Close()
		return nil, nil, fmt.Errorf("write output: %w", err)
	}
	if err := dst.Close(); err != nil {
		return nil, nil, fmt.Errorf("close output: %w", err)
	}
	return result.Records, result.Report, nil
}
