package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/pipeline"
)

var ts = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

func TestFormatMentors(t *testing.T) {
	var buf bytes.Buffer
	formatMentors(&buf, []model.Mentor{
		{MnID: "MN001", FirstName: "Adaline", PreferredName: "Ada", LastName: "Lovelace", Phone: "+14045551234",
			Status: model.StatusComplete, Amount: 80, GBContactID: model.Int64Ptr(77)},
	})

	out := buf.String()
	assert.Contains(t, out, "MN_ID")
	assert.Contains(t, out, "Ada Lovelace")
	assert.NotContains(t, out, "Adaline")
	assert.Contains(t, out, "80.00")
	assert.Contains(t, out, "77")
}

func TestFormatConflicts_TruncatesMessage(t *testing.T) {
	long := "x"
	for len(long) < 100 {
		long += "x"
	}
	var buf bytes.Buffer
	formatConflicts(&buf, []model.Conflict{
		{ID: 1, Severity: model.SeverityCritical, Type: model.ConflictMissingIdentifier, MnID: "TEMP-0001", Message: long},
	})

	out := buf.String()
	assert.Contains(t, out, "TEMP-0001")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, long)
}

func TestFormatStaging(t *testing.T) {
	var buf bytes.Buffer
	formatStaging(&buf, []model.StagingRow{{MnID: "MN002", FirstName: "Bo", LastName: "Diddley", Tags: "Mentors 2025, Needs Setup"}})
	assert.Contains(t, buf.String(), "Bo Diddley")
	assert.Contains(t, buf.String(), "Mentors 2025, Needs Setup")
	assert.Contains(t, buf.String(), "-")
}

func TestFormatReconcileResult(t *testing.T) {
	var buf bytes.Buffer
	formatReconcileResult(&buf, &pipeline.Result{
		Run: &model.Run{ID: "run-1"},
		Stats: model.RunStats{
			Signups: 3, Unique: 3, Mentors: 2, Withdrawn: 1,
			StatusCounts:        map[model.Status]int{model.StatusComplete: 1, model.StatusNeedsSetup: 1},
			ConflictsBySeverity: map[model.Severity]int{model.SeverityInfo: 1},
		},
		Conflicts: []model.Conflict{{Severity: model.SeverityInfo}},
	}, true)

	out := buf.String()
	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "needs_fundraising:")
	assert.Contains(t, out, "info:")
	assert.NotContains(t, out, "critical:")
}

func TestFormatRunsList(t *testing.T) {
	done := ts.Add(1500 * time.Millisecond)
	runs := []model.Run{
		{ID: "abcdef12-3456-7890-abcd-ef1234567890", Kind: "reconcile", Status: model.RunStatusComplete,
			StartedAt: ts, CompletedAt: &done, Stats: &model.RunStats{Mentors: 42}},
		{ID: "short", Kind: "ingest", Status: model.RunStatusFailed, StartedAt: ts,
			Error: "ingest: fetch contacts: givebutter: unexpected status 401"},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "abcdef12")
	assert.NotContains(t, out, "abcdef12-3456")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "2025-09-01 12:00")
	assert.Contains(t, out, "...")
}

func TestComputeRunStats(t *testing.T) {
	done := ts.Add(2 * time.Second)
	runs := []model.Run{
		{Status: model.RunStatusFailed, Error: "newest failure", StartedAt: ts},
		{Status: model.RunStatusComplete, StartedAt: ts, CompletedAt: &done},
		{Status: model.RunStatusComplete, DryRun: true, StartedAt: ts, CompletedAt: &done},
		{Status: model.RunStatusFailed, Error: "older failure", StartedAt: ts},
		{Status: model.RunStatusRunning, StartedAt: ts},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 1, s.DryRuns)
	assert.InDelta(t, 2.0, s.AvgDurSecs, 0.001)
	assert.Equal(t, "newest failure", s.LastError)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.Contains(t, buf.String(), "Avg duration:")
	assert.Contains(t, buf.String(), "newest failure")
}

func TestComputeRunStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AvgDurSecs)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.NotContains(t, buf.String(), "Avg duration")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("1234567890"))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestFormatIngestStats(t *testing.T) {
	var buf bytes.Buffer
	formatIngestStats(&buf, &model.RunStats{Signups: 3, Contacts: 2, Pruned: 4, DurationMs: 12})

	out := buf.String()
	assert.Contains(t, out, "Signups:")
	assert.Regexp(t, `Pruned:\s+4`, out)
	assert.Contains(t, out, "12ms")
}
