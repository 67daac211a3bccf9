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

package mapping

import (
	"reflect"
	"testing"
)

// TestNormalizeHeader verifies trim, whitespace collapse and lower-casing.
func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Email", "email"},
		{"  Nome  ", "nome"},
		{"Nome  Completo", "nome completo"},
		{"\tE-Mail\n Principal", "e-mail principal"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeHeader(tt.in); got != tt.want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestFind_Portuguese verifies the Portuguese synonyms.
func TestFind_Portuguese(t *testing.T) {
	m := Find([]string{"Nome", "Email", "Telefone", "Empresa"})
	want := map[string]string{
		"Full Name":    "Nome",
		"Email":        "Email",
		"Phone":        "Telefone",
		"Company Name": "Empresa",
	}
	if got := m.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
}

// TestFind_English verifies the English synonyms.
func TestFind_English(t *testing.T) {
	m := Find([]string{"Full Name", "Email", "Phone", "Company Name"})
	for field, header := range map[Field]string{
		FullName:    "Full Name",
		Email:       "Email",
		Phone:       "Phone",
		CompanyName: "Company Name",
	} {
		got, ok := m.Column(field)
		if !ok || got != header {
			t.Errorf("Column(%s) = %q, %v; want %q", field, got, ok, header)
		}
	}
}

// TestFind_Unmapped verifies that unmatched targets are absent.
func TestFind_Unmapped(t *testing.T) {
	m := Find([]string{"Nome", "CampoDesconhecido"})

	if h, _ := m.Column(FullName); h != "Nome" {
		t.Errorf("Full Name = %q, want Nome", h)
	}
	if _, ok := m.Column(Email); ok {
		t.Error("Email should be unmapped")
	}
	if m.Consumed("CampoDesconhecido") {
		t.Error("CampoDesconhecido should not be consumed")
	}
	if !m.Consumed("Nome") {
		t.Error("Nome should be consumed")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

// TestFind_TieBreaks verifies that specific targets win over the name target.
func TestFind_TieBreaks(t *testing.T) {
	tests := []struct {
		header string
		want   Field
	}{
		{"Contact Phone", Phone},
		{"Telefone do Contato", Phone},
		{"Nome da Empresa", CompanyName},
		{"Razão Social", CompanyName},
		{"E-mail do contato", Email},
		{"  CONTATO  ", FullName},
		{"Business Name", CompanyName},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			m := Find([]string{tt.header})
			got, ok := m.Column(tt.want)
			if !ok || got != tt.header {
				t.Errorf("Find(%q): %s = %q, %v", tt.header, tt.want, got, ok)
			}
			if m.Len() != 1 {
				t.Errorf("Find(%q) mapped %d fields, want 1", tt.header, m.Len())
			}
		})
	}
}

// TestFind_FirstColumnWins verifies that a target keeps the first matching header.
func TestFind_FirstColumnWins(t *testing.T) {
	m := Find([]string{"Telefone", "Celular", "Email", "Email 2"})

	if h, _ := m.Column(Phone); h != "Telefone" {
		t.Errorf("Phone = %q, want Telefone", h)
	}
	if h, _ := m.Column(Email); h != "Email" {
		t.Errorf("Email = %q, want Email", h)
	}
	if m.Consumed("Celular") || m.Consumed("Email 2") {
		t.Error("later duplicates must stay unconsumed")
	}
	if _, ok := m.Column(FullName); ok {
		t.Error("a second phone column must not fall through to Full Name")
	}
}

// TestFind_Deterministic verifies repeated runs give the same mapping.
func TestFind_Deterministic(t *testing.T) {
	headers := []string{"Cliente", "Nome", "Fone Comercial", "e-mail", "Empresa", "CPF"}
	first := Find(headers).Fields()
	for i := 0; i < 10; i++ {
		if got := Find(headers).Fields(); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %v, want %v", i, got, first)
		}
	}
}
