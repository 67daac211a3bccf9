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

// Package transform turns one mapped source row into a canonical CRM record.
package transform

import (
	"crypto/rand"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/flowbase/datasync/internal/mapping"
	"github.com/flowbase/datasync/internal/models"
	"github.com/flowbase/datasync/internal/normalize"
)

const (
	// IDLength is the length of generated contact and opportunity IDs.
	IDLength = 20

	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	notesSeparator = " | "
)

// Transformer builds records for a single table. It is not safe for
// concurrent use; each conversion run creates its own.
type Transformer struct {
	mapping    mapping.Mapping
	headers    []string
	normalizer *normalize.Normalizer
	labels     models.Labels
	caser      cases.Caser

	// NewID generates synthetic identifiers. Uniqueness is probabilistic:
	// 36^20 possible values, no collision check.
	NewID func() string
}

// New creates a transformer for a table with the given headers and mapping.
func New(m mapping.Mapping, headers []string, n *normalize.Normalizer, labels models.Labels) *Transformer {
	return &Transformer{
		mapping:    m,
		headers:    headers,
		normalizer: n,
		labels:     labels,
		caser:      cases.Title(language.BrazilianPortuguese),
		NewID:      GenerateID,
	}
}

// Transform builds the canonical record for row. Every field is populated,
// possibly with "".
func (t *Transformer) Transform(row models.Row) models.Record {
	fullName := cleanName(t.value(row, mapping.FullName))
	first, last := t.splitName(fullName)

	phones := t.normalizer.Phones(t.value(row, mapping.Phone))
	emails := t.normalizer.Emails(t.value(row, mapping.Email))
	business := strings.TrimSpace(t.value(row, mapping.CompanyName))

	rec := models.Record{
		ContactID:       t.NewID(),
		FullName:        fullName,
		FirstName:       first,
		LastName:        last,
		BusinessName:    business,
		OpportunityID:   t.NewID(),
		OpportunityName: opportunityName(business, fullName),
		Pipeline:        t.labels.Pipeline,
		Stage:           t.labels.Stage,
		Source:          t.labels.Source,
		Status:          t.labels.Status,
		Tags:            t.labels.Tags,
		Notes:           t.notes(row),
	}
	rec.Phone, rec.AdditionalPhones = primary(phones)
	rec.Email, rec.AdditionalEmails = primary(emails)
	return rec
}

func (t *Transformer) value(row models.Row, f mapping.Field) string {
	header, ok := t.mapping.Column(f)
	if !ok {
		return ""
	}
	return row.Get(header)
}

// notes renders every unconsumed, non-blank cell as "Header: value".
func (t *Transformer) notes(row models.Row) string {
	var parts []string
	for _, header := range t.headers {
		if t.mapping.Consumed(header) {
			continue
		}
		v := strings.TrimSpace(row.Get(header))
		if v == "" {
			continue
		}
		parts = append(parts, header+": "+v)
	}
	return strings.Join(parts, notesSeparator)
}

// splitName returns the title-cased first token and the remaining tokens.
func (t *Transformer) splitName(name string) (first, last string) {
	tokens := strings.Fields(name)
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return t.caser.String(tokens[0]), ""
	default:
		return t.caser.String(tokens[0]), t.caser.String(strings.Join(tokens[1:], " "))
	}
}

// cleanName keeps the first of several slash-separated names and collapses
// whitespace.
func cleanName(raw string) string {
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return strings.Join(strings.Fields(raw), " ")
}

func opportunityName(business, fullName string) string {
	switch {
	case business != "":
		return "Opportunity - " + business
	case fullName != "":
		return "Opportunity - " + fullName
	default:
		return "Opportunity"
	}
}

func primary(values []string) (first, rest string) {
	if len(values) == 0 {
		return "", ""
	}
	return values[0], strings.Join(values[1:], ", ")
}

// GenerateID returns a random IDLength-character uppercase alphanumeric token.
func GenerateID() string {
	const maxByte = 256 - 256%len(idAlphabet)

	out := make([]byte, 0, IDLength)
	buf := make([]byte, IDLength*2)
	for len(out) < IDLength {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			out = append(out, idAlphabet[int(b)%len(idAlphabet)])
			if len(out) == IDLength {
				break
			}
		}
	}
	return string(out)
}
