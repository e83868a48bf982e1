package model

import "time"

// Status is the derived lifecycle category of a mentor.
type Status string

const (
	StatusComplete         Status = "complete"
	StatusNeedsFundraising Status = "needs_fundraising"
	StatusNeedsPage        Status = "needs_page"
	StatusNeedsSetup       Status = "needs_setup"
)

// AllStatuses lists every status in decision-table priority order.
var AllStatuses = []Status{StatusComplete, StatusNeedsFundraising, StatusNeedsPage, StatusNeedsSetup}

// Mentor is the canonical, reconciled person record keyed by MnID.
// The record is rebuilt on every run except GBContactID and GBMemberID,
// which are carried forward once resolved.
type Mentor struct {
	MnID               string    `json:"mn_id"`
	IsPlaceholderID    bool      `json:"is_placeholder_id"`
	Phone              string    `json:"phone"`
	PersonalEmail      string    `json:"personal_email,omitempty"`
	UWEmail            string    `json:"uw_email,omitempty"`
	FirstName          string    `json:"first_name"`
	MiddleName         string    `json:"middle_name,omitempty"`
	LastName           string    `json:"last_name"`
	PreferredName      string    `json:"preferred_name,omitempty"`
	GBContactID        *int64    `json:"gb_contact_id,omitempty"`
	GBMemberID         *int64    `json:"gb_member_id,omitempty"`
	Amount             float64   `json:"amount"`
	IsFundraiser       bool      `json:"is_fundraiser"`
	HasSetup           bool      `json:"has_setup"`
	Status             Status    `json:"status"`
	SignupSubmissionID string    `json:"signup_submission_id"`
	SetupSubmissionID  string    `json:"setup_submission_id,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Identity holds the external ids persisted for a mentor across runs.
type Identity struct {
	MnID        string `json:"mn_id"`
	GBContactID *int64 `json:"gb_contact_id,omitempty"`
	GBMemberID  *int64 `json:"gb_member_id,omitempty"`
}

// StagingRow is the delivery-platform projection of a mentor.
type StagingRow struct {
	MnID           string `json:"mn_id"`
	GBContactID    *int64 `json:"gb_contact_id,omitempty"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	StatusCategory Status `json:"status_category"`
	Tags           string `json:"tags"`
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }
