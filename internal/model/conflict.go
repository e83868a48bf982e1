package model

import (
	"strings"
	"time"
)

// Severity ranks a conflict by how much operator attention it needs.
type Severity string

const (
	SeverityCritical Severity = "critical" // blocks correctness
	SeverityError    Severity = "error"    // record dropped
	SeverityWarning  Severity = "warning"  // needs eventual review
	SeverityInfo     Severity = "info"     // expected, benign
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// ConflictType tags the judgment call or anomaly a conflict records.
type ConflictType string

const (
	ConflictMissingIdentifier   ConflictType = "missing_identifier"
	ConflictInvalidPhone        ConflictType = "invalid_phone"
	ConflictDuplicateSignup     ConflictType = "duplicate_signup"
	ConflictDuplicateIdentifier ConflictType = "duplicate_identifier"
	ConflictMultipleCandidates  ConflictType = "multiple_candidate_contacts"
	ConflictDuplicateContact    ConflictType = "duplicate_external_contact"
	ConflictWithdrawn           ConflictType = "withdrawn_person"
	ConflictSharedContact       ConflictType = "shared_external_contact"
	ConflictSharedMember        ConflictType = "shared_fundraising_member"
	ConflictSharedSetup         ConflictType = "shared_setup_record"
)

// Conflict is an append-only diagnostic fact. Conflicts are never updated
// after insertion; the whole set is replaced on every run.
type Conflict struct {
	ID        int64          `json:"id,omitempty"`
	Severity  Severity       `json:"severity"`
	Type      ConflictType   `json:"type"`
	MnID      string         `json:"mn_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func foldTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
