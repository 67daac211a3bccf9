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

package normalize

import (
	"strings"
	"testing"

	"github.com/flowbase/datasync/internal/models"
)

// TestEmailField verifies splitting, lower-casing, validation and dedup.
func TestEmailField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"single", "User@Example.COM", "user@example.com"},
		{"comma", "a@b.com, c@d.com", "a@b.com, c@d.com"},
		{"semicolon", "a@b.com;c@d.com", "a@b.com, c@d.com"},
		{"whitespace", "a@b.com   c@d.com\te@f.org", "a@b.com, c@d.com, e@f.org"},
		{"dedup", "a@b.com, a@b.com, c@d.com", "a@b.com, c@d.com"},
		{"dedup case", "A@B.com; a@b.COM", "a@b.com"},
		{"empty", "", ""},
		{"blank", "   ", ""},
		{"no at", "not-an-email", ""},
		{"short tld", "joao@test.c", ""},
		{"no dot in domain", "joao@localhost", ""},
		{"mixed", "bad@, ok@site.com.br", "ok@site.com.br"},
		{"angle brackets", "<joao@test.com>", "joao@test.com"},
	}

	n := New("85", nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.EmailField(tt.raw); got != tt.want {
				t.Errorf("EmailField(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestEmails_SubstringsOfInput verifies survivors come from the lower-cased input.
func TestEmails_SubstringsOfInput(t *testing.T) {
	raw := "Foo@Bar.com; x@y; baz@qux.io, FOO@bar.com"
	n := New("", nil)
	got := n.Emails(raw)
	if len(got) != 2 {
		t.Fatalf("got %d emails, want 2: %v", len(got), got)
	}
	for _, e := range got {
		if !strings.Contains(strings.ToLower(raw), e) {
			t.Errorf("%q is not a substring of the lower-cased input", e)
		}
		if !emailPattern.MatchString(e) {
			t.Errorf("%q does not match the address pattern", e)
		}
	}
	if got[0] != "foo@bar.com" || got[1] != "baz@qux.io" {
		t.Errorf("order = %v, want [foo@bar.com baz@qux.io]", got)
	}
}

// TestEmails_Counts verifies report counters for e-mail tokens.
func TestEmails_Counts(t *testing.T) {
	r := models.NewReport()
	n := New("85", r)
	n.EmailField("a@b.com, bad@x, plain, N/A, a@b.com, plain")

	if r.ValidEmails != 1 {
		t.Errorf("ValidEmails = %d, want 1", r.ValidEmails)
	}
	if r.InvalidEmails != 3 {
		t.Errorf("InvalidEmails = %d, want 3", r.InvalidEmails)
	}
}

// TestPhonesField_Counts verifies phone counters follow the same
// distinct-per-cell rule as e-mails.
func TestPhonesField_Counts(t *testing.T) {
	r := models.NewReport()
	n := New("85", r)
	got := n.PhonesField("99999-1234; 85999991234, 123, n/a, 123, n/a; ")

	if got != "+5585999991234, +5585123" {
		t.Errorf("PhonesField = %q", got)
	}
	if r.ValidPhones != 1 {
		t.Errorf("ValidPhones = %d, want 1", r.ValidPhones)
	}
	if r.InvalidPhones != 2 {
		t.Errorf("InvalidPhones = %d, want 2", r.InvalidPhones)
	}
	if r.PhonesWithDDDAdded != 1 {
		t.Errorf("PhonesWithDDDAdded = %d, want 1", r.PhonesWithDDDAdded)
	}

	n.PhonesField("")
	if r.ValidPhones+r.InvalidPhones != 3 {
		t.Errorf("empty cell changed counters: %+v", r)
	}
}

// TestPhone verifies the compact phone form.
func TestPhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"mobile with ddd", "85999991234", "+5585999991234"},
		{"with country code", "+5585999991234", "+5585999991234"},
		{"formatted", "(85) 99999-1234", "+5585999991234"},
		{"landline", "(11) 3333-4444", "+551133334444"},
		{"9 digits no ddd", "99999-1234", "+5585999991234"},
		{"8 digits no ddd", "3333-4444", "+558533334444"},
		{"trunk prefix", "0 85 99999 1234", "+5585999991234"},
		{"international prefix", "00 55 85 99999 1234", "+5585999991234"},
		{"landline with country code", "55 11 3333 4444", "+551133334444"},
		{"too short falls back", "12345", "+558512345"},
		{"empty", "", ""},
		{"no digits", "n/a", ""},
	}

	n := New("85", nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Phone(tt.raw); got != tt.want {
				t.Errorf("Phone(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestPhone_LocalNumbersGetDDD verifies DDD injection for 8 and 9 digit numbers.
func TestPhone_LocalNumbersGetDDD(t *testing.T) {
	r := models.NewReport()
	n := New("21", r)

	for _, raw := range []string{"999991234", "98765-4321", "912345678"} {
		got := n.Phone(raw)
		if !strings.HasPrefix(got, "+5521") {
			t.Errorf("Phone(%q) = %q, want +5521 prefix", raw, got)
		}
		if digits := digitsOnly(got); len(digits) != 13 {
			t.Errorf("Phone(%q) = %q has %d digits, want 13", raw, got, len(digits))
		}
	}
	if got := n.Phone("3333-4444"); got != "+552133334444" {
		t.Errorf("Phone(landline) = %q, want +552133334444", got)
	}

	if r.PhonesWithDDDAdded != 4 {
		t.Errorf("PhonesWithDDDAdded = %d, want 4", r.PhonesWithDDDAdded)
	}
	if r.ValidPhones != 4 {
		t.Errorf("ValidPhones = %d, want 4", r.ValidPhones)
	}
}

// TestPhone_Idempotent verifies that normalizing a normalized number is a no-op.
func TestPhone_Idempotent(t *testing.T) {
	n := New("85", nil)
	for _, raw := range []string{"+5585999991234", "5511987654321", "(85) 3333-1234", "999991234"} {
		once := n.Phone(raw)
		if twice := n.Phone(once); twice != once {
			t.Errorf("Phone(Phone(%q)) = %q, want %q", raw, twice, once)
		}
	}
}

// TestPhone_FallbackCountsInvalid verifies the permissive fallback is reported.
func TestPhone_FallbackCountsInvalid(t *testing.T) {
	r := models.NewReport()
	n := New("85", r)
	n.Phone("123")
	n.Phone("12345678901234")

	if r.InvalidPhones != 2 {
		t.Errorf("InvalidPhones = %d, want 2", r.InvalidPhones)
	}
	if r.ValidPhones != 0 {
		t.Errorf("ValidPhones = %d, want 0", r.ValidPhones)
	}
}

// TestFormatPhone verifies the display grouping.
func TestFormatPhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"85999991234", "+55 85 99999-1234"},
		{"8533331234", "+55 85 3333-1234"},
		{"99999-1234", "+55 85 99999-1234"},
		{"+55 (11) 3333-4444", "+55 11 3333-4444"},
		{"1234567", "+55 85 1234567"},
		{"", ""},
	}

	n := New("85", nil)
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := n.FormatPhone(tt.raw); got != tt.want {
				t.Errorf("FormatPhone(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestPhonesField verifies splitting and dedup of multi-valued cells.
func TestPhonesField(t *testing.T) {
	n := New("85", nil)

	got := n.PhonesField("85999991234;85988881234")
	if got != "+5585999991234, +5585988881234" {
		t.Errorf("PhonesField = %q", got)
	}

	got = n.PhonesField("85999991234,85999991234")
	if strings.Count(got, "+5585999991234") != 1 {
		t.Errorf("PhonesField dedup = %q, want a single occurrence", got)
	}

	got = n.PhonesField("(85) 99999-1234, 999991234")
	if got != "+5585999991234" {
		t.Errorf("PhonesField equivalent forms = %q, want +5585999991234", got)
	}

	if got := n.PhonesField(""); got != "" {
		t.Errorf("PhonesField(\"\") = %q, want empty", got)
	}
	if got := n.PhonesField(" ; , "); got != "" {
		t.Errorf("PhonesField(separators) = %q, want empty", got)
	}
}

// TestNew_DefaultDDD verifies the fallback area code.
func TestNew_DefaultDDD(t *testing.T) {
	if n := New("", nil); n.DDD != DefaultDDD {
		t.Errorf("DDD = %q, want %q", n.DDD, DefaultDDD)
	}
}
