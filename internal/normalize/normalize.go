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

// Package normalize canonicalizes single contact field values: e-mail
// address lists and Brazilian phone numbers.
//
// Every function is total. Malformed tokens are dropped (e-mail) or
// formatted on a best-effort basis (phone) and counted on the optional
// report; nothing ever returns an error.
package normalize

import (
	"regexp"
	"strings"

	"github.com/flowbase/datasync/internal/models"
)

// DefaultDDD is the area code injected when none is configured.
const DefaultDDD = "85"

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	emailSeparator = regexp.MustCompile(`[;,\s]+`)
	phoneSeparator = regexp.MustCompile(`[;,]`)
)

// Normalizer holds the default area code and an optional report that
// receives telemetry counts. A nil Report is allowed.
type Normalizer struct {
	DDD    string
	Report *models.Report
}

// New creates a normalizer. An empty ddd falls back to DefaultDDD.
func New(ddd string, report *models.Report) *Normalizer {
	if ddd == "" {
		ddd = DefaultDDD
	}
	return &Normalizer{DDD: ddd, Report: report}
}

// Emails splits a multi-valued cell on ';', ',' or whitespace and returns
// the valid, lower-cased addresses in first-seen order without duplicates.
// Each distinct token is counted once, as valid or invalid.
func (n *Normalizer) Emails(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, token := range emailSeparator.Split(strings.ToLower(raw), -1) {
		token = strings.Trim(token, `<>()[]"'`)
		token = strings.TrimRight(token, ".")
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		if !strings.Contains(token, "@") || !emailPattern.MatchString(token) {
			n.count(func(r *models.Report) { r.InvalidEmails++ })
			continue
		}
		out = append(out, token)
		n.count(func(r *models.Report) { r.ValidEmails++ })
	}
	return out
}

// EmailField normalizes a multi-valued e-mail cell and joins the survivors
// with ", ". Empty or all-invalid input yields "".
func (n *Normalizer) EmailField(raw string) string {
	return strings.Join(n.Emails(raw), ", ")
}

// Phone normalizes a single phone value to the compact +55<DDD><number>
// form. 8 or 9 digit local numbers get the default DDD. Lengths that are
// not a valid national number after that are still emitted as
// +55<default DDD><digits> and counted as invalid.
func (n *Normalizer) Phone(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	p := n.parse(raw)
	n.tally(p)
	return p.compact(n.DDD)
}

// FormatPhone renders a phone value for display: "+55 85 99999-1234" for
// mobile numbers, "+55 85 3333-1234" for landlines, and
// "+55 <default DDD> <digits>" for anything else.
func (n *Normalizer) FormatPhone(raw string) string {
	p := n.parse(raw)
	national := p.national
	if national == "" {
		return ""
	}
	if !p.ok {
		return "+55 " + n.DDD + " " + national
	}
	if len(national) == 11 {
		return "+55 " + national[:2] + " " + national[2:7] + "-" + national[7:]
	}
	return "+55 " + national[:2] + " " + national[2:6] + "-" + national[6:]
}

// Phones splits a multi-valued cell on ';' or ',' and returns the
// normalized numbers in first-seen order without duplicates. Like Emails,
// each distinct value is counted once.
func (n *Normalizer) Phones(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range phoneSeparator.Split(raw, -1) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p := n.parse(part)
		phone := p.compact(n.DDD)
		key := phone
		if key == "" {
			key = strings.TrimSpace(part)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		n.tally(p)
		if phone != "" {
			out = append(out, phone)
		}
	}
	return out
}

// PhonesField normalizes a multi-valued phone cell and joins the numbers
// with ", ".
func (n *Normalizer) PhonesField(raw string) string {
	return strings.Join(n.Phones(raw), ", ")
}

// parsedPhone is a phone value reduced to its national significant number
// (DDD + number). ok is false when the digit count is not a valid 10 or 11
// digit number.
type parsedPhone struct {
	national string
	ok       bool
	dddAdded bool
}

func (p parsedPhone) compact(ddd string) string {
	switch {
	case p.national == "":
		return ""
	case !p.ok:
		return "+55" + ddd + p.national
	}
	return "+55" + p.national
}

func (n *Normalizer) parse(raw string) parsedPhone {
	digits := digitsOnly(raw)

	// International (00) and trunk (0) prefixes; DDDs never start with 0.
	digits = strings.TrimLeft(digits, "0")
	if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	if digits == "" {
		return parsedPhone{}
	}

	var p parsedPhone
	if len(digits) == 8 || len(digits) == 9 {
		digits = n.DDD + digits
		p.dddAdded = true
	}
	p.national = digits
	p.ok = len(digits) == 10 || len(digits) == 11
	return p
}

// tally records one non-blank phone value in the report.
func (n *Normalizer) tally(p parsedPhone) {
	n.count(func(r *models.Report) {
		if p.dddAdded {
			r.PhonesWithDDDAdded++
		}
		if p.ok {
			r.ValidPhones++
		} else {
			r.InvalidPhones++
		}
	})
}

func (n *Normalizer) count(fn func(r *models.Report)) {
	if n.Report != nil {
		fn(n.Report)
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
