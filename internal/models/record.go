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

package models

// Columns is the fixed header of the CRM import file, in output order.
var Columns = []string{
	"Contact ID",
	"Full Name",
	"First Name",
	"Last Name",
	"Phone",
	"Additional Phones",
	"Email",
	"Additional Emails",
	"Business Name",
	"Opportunity ID",
	"Opportunity Name",
	"Pipeline",
	"Stage",
	"Opportunity Value",
	"Source",
	"Status",
	"Tags",
	"Notes",
}

// Record is one row of the CRM import file.
//
// The field order MUST match Columns; Values relies on it.
type Record struct {
	ContactID        string `json:"Contact ID"`
	FullName         string `json:"Full Name"`
	FirstName        string `json:"First Name"`
	LastName         string `json:"Last Name"`
	Phone            string `json:"Phone"`
	AdditionalPhones string `json:"Additional Phones"`
	Email            string `json:"Email"`
	AdditionalEmails string `json:"Additional Emails"`
	BusinessName     string `json:"Business Name"`
	OpportunityID    string `json:"Opportunity ID"`
	OpportunityName  string `json:"Opportunity Name"`
	Pipeline         string `json:"Pipeline"`
	Stage            string `json:"Stage"`
	OpportunityValue string `json:"Opportunity Value"`
	Source           string `json:"Source"`
	Status           string `json:"Status"`
	Tags             string `json:"Tags"`
	Notes            string `json:"Notes"`
}

// Values returns the record's cells in Columns order.
func (r Record) Values() []string {
	return []string{
		r.ContactID,
		r.FullName,
		r.FirstName,
		r.LastName,
		r.Phone,
		r.AdditionalPhones,
		r.Email,
		r.AdditionalEmails,
		r.BusinessName,
		r.OpportunityID,
		r.OpportunityName,
		r.Pipeline,
		r.Stage,
		r.OpportunityValue,
		r.Source,
		r.Status,
		r.Tags,
		r.Notes,
	}
}

// Map returns the record as a header→value association, used for previews.
func (r Record) Map() map[string]string {
	values := r.Values()
	out := make(map[string]string, len(Columns))
	for i, col := range Columns {
		out[col] = values[i]
	}
	return out
}

// Labels are the fixed CRM pipeline labels stamped on every record.
type Labels struct {
	Pipeline string `yaml:"pipeline"`
	Stage    string `yaml:"stage"`
	Status   string `yaml:"status"`
	Source   string `yaml:"source"`
	Tags     string `yaml:"tags"`
}

// DefaultLabels returns the labels used when none are configured.
func DefaultLabels() Labels {
	return Labels{
		Pipeline: "Sales Pipeline",
		Stage:    "New Lead",
		Status:   "Open",
		Source:   "DataSync API",
		Tags:     "DataSync Import",
	}
}
