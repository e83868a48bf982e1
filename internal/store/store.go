// Package store persists the raw source tables, the canonical mentor table,
// the identity ledger, the conflict table, the staging feed and the run log.
package store

import (
	"context"
	"time"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/source"
)

// MentorFilter narrows ListMentors.
type MentorFilter struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// ConflictFilter narrows ListConflicts.
type ConflictFilter struct {
	Severity model.Severity     `json:"severity,omitempty"`
	Type     model.ConflictType `json:"type,omitempty"`
	MnID     string             `json:"mn_id,omitempty"`
	Limit    int                `json:"limit,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Kind         string          `json:"kind,omitempty"`
	StartedAfter time.Time       `json:"started_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
}

// RunOutput is everything one reconciliation run writes.
type RunOutput struct {
	Mentors   []model.Mentor
	Conflicts []model.Conflict
	Staging   []model.StagingRow
}

// RawWriter upserts fetched source rows by their source key.
type RawWriter interface {
	UpsertSignups(ctx context.Context, rows []model.RawSignup) (int64, error)
	UpsertSetups(ctx context.Context, rows []model.RawSetupRecord) (int64, error)
	UpsertMembers(ctx context.Context, rows []model.RawFundraisingMember) (int64, error)
	UpsertContacts(ctx context.Context, rows []model.RawContact) (int64, error)
	// PruneRaw deletes rows of the named source (source.NameSignups, ...)
	// whose key is not in keep. Integer keys are compared in decimal form.
	PruneRaw(ctx context.Context, name string, keep []string) (int64, error)
}

// Store defines the persistence interface for mentor reconciliation.
type Store interface {
	source.RawReader
	RawWriter

	// PriorIdentities returns the identity ledger keyed by mentor id.
	PriorIdentities(ctx context.Context) (map[string]model.Identity, error)
	// WriteRun atomically replaces conflicts and staging, upserts mentors,
	// removes mentors absent from out, and folds resolved ids into the
	// identity ledger without ever clearing a stored id.
	WriteRun(ctx context.Context, out RunOutput) error

	ListMentors(ctx context.Context, filter MentorFilter) ([]model.Mentor, error)
	ListConflicts(ctx context.Context, filter ConflictFilter) ([]model.Conflict, error)
	ListStaging(ctx context.Context) ([]model.StagingRow, error)

	// Run log
	StartRun(ctx context.Context, kind string, dryRun bool) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, stats *model.RunStats) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 1000
