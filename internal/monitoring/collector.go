// Package monitoring watches the run log and raises webhook alerts for
// failed runs, critical conflicts and stalled reconciliation.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	// Runs started within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// Latest completed write run, regardless of the window.
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastSuccessRunID  string     `json:"last_success_run_id,omitempty"`
	CriticalConflicts int        `json:"critical_conflicts"`
	ErrorConflicts    int        `json:"error_conflicts"`

	LastFailure     string `json:"last_failure,omitempty"`
	LastFailedRunID string `json:"last_failed_run_id,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run health from the sync log.
type Collector struct {
	runs RunLister
	kind string
}

// NewCollector creates a collector over runs of the given kind.
func NewCollector(runs RunLister, kind string) *Collector {
	return &Collector{runs: runs, kind: kind}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		Kind:         c.kind,
		StartedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
			if snap.LastFailedRunID == "" {
				snap.LastFailedRunID = r.ID
				snap.LastFailure = r.Error
			}
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}

	complete, err := c.runs.ListRuns(ctx, store.RunFilter{
		Kind:   c.kind,
		Status: model.RunStatusComplete,
		Limit:  50,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list completed runs")
	}
	// Runs are newest first; dry runs never replace the canonical tables.
	for _, r := range complete {
		if r.DryRun {
			continue
		}
		snap.LastSuccessAt = r.CompletedAt
		snap.LastSuccessRunID = r.ID
		if r.Stats != nil {
			snap.CriticalConflicts = r.Stats.ConflictsBySeverity[model.SeverityCritical]
			snap.ErrorConflicts = r.Stats.ConflictsBySeverity[model.SeverityError]
		}
		break
	}

	return snap, nil
}
