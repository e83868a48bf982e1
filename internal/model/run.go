package model

import "time"

// RunStatus is the state of a reconciliation run in the sync log.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunStats summarizes one reconciliation run.
type RunStats struct {
	Signups             int              `json:"signups"`
	Setups              int              `json:"setups"`
	Members             int              `json:"members"`
	Contacts            int              `json:"contacts"`
	Unique              int              `json:"unique"`
	Mentors             int              `json:"mentors"`
	Withdrawn           int              `json:"withdrawn"`
	MatchedContacts     int              `json:"matched_contacts"`
	PreservedContacts   int              `json:"preserved_contacts"`
	PreservedMembers    int              `json:"preserved_members"`
	Pruned              int64            `json:"pruned,omitempty"`
	ConflictsBySeverity map[Severity]int `json:"conflicts_by_severity,omitempty"`
	StatusCounts        map[Status]int   `json:"status_counts,omitempty"`
	DurationMs          int64            `json:"duration_ms"`
}

// Run is one entry of the sync log.
type Run struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      RunStatus  `json:"status"`
	DryRun      bool       `json:"dry_run"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Stats       *RunStats  `json:"stats,omitempty"`
	Error       string     `json:"error,omitempty"`
}
