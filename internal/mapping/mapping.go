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

// Package mapping matches arbitrary source column headers, in Portuguese or
// English, to the canonical contact fields.
package mapping

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is a canonical target field.
type Field string

const (
	FullName    Field = "Full Name"
	Email       Field = "Email"
	Phone       Field = "Phone"
	CompanyName Field = "Company Name"
)

// Target describes how source headers are recognised for a Field.
type Target struct {
	Field    Field
	Synonyms []string
	// Exclude disqualifies a header that also contains any of these.
	Exclude []string
}

// Registry lists the targets in evaluation order. A header is assigned to
// the first target it matches, so the specific targets precede the generic
// name target ("Contact Phone" is a Phone, "Nome da Empresa" a Company Name).
var Registry = []Target{
	{
		Field:    Email,
		Synonyms: []string{"email", "e-mail"},
	},
	{
		Field:    Phone,
		Synonyms: []string{"telefone", "fone", "phone", "celular", "whatsapp"},
	},
	{
		Field:    CompanyName,
		Synonyms: []string{"empresa", "company", "business", "razao social", "nome fantasia"},
	},
	{
		Field:    FullName,
		Synonyms: []string{"nome", "contato", "name", "contact"},
		Exclude:  []string{"telefone", "fone", "phone", "celular", "whatsapp"},
	},
}

// Mapping associates each mapped Field with the source header it consumes.
// Fields with no matching header are absent.
type Mapping struct {
	columns  map[Field]string
	consumed map[string]bool
}

// Column returns the header mapped to f.
func (m Mapping) Column(f Field) (string, bool) {
	h, ok := m.columns[f]
	return h, ok
}

// Consumed reports whether header is used by some Field. Unconsumed
// headers are folded into Notes.
func (m Mapping) Consumed(header string) bool {
	return m.consumed[header]
}

// Len returns the number of mapped fields.
func (m Mapping) Len() int {
	return len(m.columns)
}

// Fields returns the Field→header association as a plain string map, with
// unmapped fields set to "".
func (m Mapping) Fields() map[string]string {
	out := make(map[string]string, len(Registry))
	for _, t := range Registry {
		out[string(t.Field)] = m.columns[t.Field]
	}
	return out
}

// Find computes the mapping for headers. Each header is classified to the
// first target in Registry it matches; when that target is already taken by
// an earlier column the header stays unmapped.
func Find(headers []string) Mapping {
	m := Mapping{
		columns:  make(map[Field]string, len(Registry)),
		consumed: make(map[string]bool, len(Registry)),
	}

	for _, header := range headers {
		key := fold(NormalizeHeader(header))
		if key == "" {
			continue
		}
		target, ok := classify(key)
		if !ok {
			continue
		}
		if _, taken := m.columns[target.Field]; taken {
			continue
		}
		m.columns[target.Field] = header
		m.consumed[header] = true
	}
	return m
}

func classify(key string) (Target, bool) {
	for _, t := range Registry {
		if containsAny(key, t.Exclude) {
			continue
		}
		if containsAny(key, t.Synonyms) {
			return t, true
		}
	}
	return Target{}, false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// NormalizeHeader trims, collapses internal whitespace and lower-cases a
// header.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFC.String(h)), " "))
}

// fold strips diacritics so "Razão Social" matches "razao social".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
