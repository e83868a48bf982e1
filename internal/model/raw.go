// Package model defines the raw source records, the canonical mentor entity
// and the diagnostic records produced by a reconciliation run.
package model

import "time"

// RawSignup is one submission of the recurring mentor signup form.
// SubmissionID is unique per submission, not per person; MnID may be blank.
type RawSignup struct {
	SubmissionID  string    `json:"submission_id"`
	MnID          string    `json:"mn_id"`
	FirstName     string    `json:"first_name"`
	MiddleName    string    `json:"middle_name,omitempty"`
	LastName      string    `json:"last_name"`
	PreferredName string    `json:"preferred_name,omitempty"`
	Phone         string    `json:"phone"`
	PersonalEmail string    `json:"personal_email,omitempty"`
	UWEmail       string    `json:"uw_email,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// RawSetupRecord is one submission of the fundraising-page setup form.
type RawSetupRecord struct {
	SubmissionID string    `json:"submission_id"`
	MnID         string    `json:"mn_id,omitempty"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// RawFundraisingMember is one row of the fundraising campaign roster.
type RawFundraisingMember struct {
	MemberID  int64   `json:"member_id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     string  `json:"phone"`
	Email     string  `json:"email"`
	Amount    float64 `json:"amount"`
	Goal      float64 `json:"goal"`
	Donors    int     `json:"donors"`
}

// RawContact is one row of the full external contact export. ContactID is
// the platform's stable id; ExternalID is the optional free-form external
// identifier field, which mentors populate with their MnID.
type RawContact struct {
	ContactID  int64    `json:"contact_id"`
	ExternalID string   `json:"external_id,omitempty"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	Phone      string   `json:"phone"`
	Email      string   `json:"email"`
	Tags       []string `json:"tags"`
}

// HasTag reports whether the contact carries tag, compared case-insensitively
// after trimming.
func (c *RawContact) HasTag(tag string) bool {
	want := foldTag(tag)
	if want == "" {
		return false
	}
	for _, t := range c.Tags {
		if foldTag(t) == want {
			return true
		}
	}
	return false
}
