package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mentor-sync/internal/model"
)

var t0 = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

func signup(sub, mnID, phone string, at time.Time) model.RawSignup {
	return model.RawSignup{SubmissionID: sub, MnID: mnID, Phone: phone, FirstName: "Ada", LastName: "Lovelace", SubmittedAt: at}
}

func TestAssignIdentifiers_Placeholders(t *testing.T) {
	sink := NewSink(t0)
	people := AssignIdentifiers([]model.RawSignup{
		signup("1", "  MN001 ", "4045551234", t0),
		signup("2", "", "4045551235", t0),
		signup("3", "   ", "4045551236", t0),
	}, NewPlaceholders(1), sink)

	require.Len(t, people, 3)
	assert.Equal(t, "MN001", people[0].Signup.MnID)
	assert.False(t, people[0].Placeholder)
	assert.Equal(t, "TEMP-0001", people[1].Signup.MnID)
	assert.Equal(t, "TEMP-0002", people[2].Signup.MnID)
	assert.True(t, people[2].Placeholder)

	conflicts := sink.Conflicts()
	require.Len(t, conflicts, 2)
	for _, c := range conflicts {
		assert.Equal(t, model.SeverityCritical, c.Severity)
		assert.Equal(t, model.ConflictMissingIdentifier, c.Type)
		assert.Equal(t, t0, c.CreatedAt)
	}
}

func TestDedupe_PlaceholderWithBadPhoneReportedOnce(t *testing.T) {
	sink := NewSink(t0)
	people := AssignIdentifiers([]model.RawSignup{
		signup("1", "", "555", t0),
		signup("2", "MN002", "12", t0),
	}, NewPlaceholders(1), sink)

	out := Dedupe(people, sink)
	assert.Empty(t, out)

	conflicts := sink.Conflicts()
	require.Len(t, conflicts, 2)
	assert.Equal(t, model.ConflictMissingIdentifier, conflicts[0].Type)
	assert.Equal(t, "1", conflicts[0].Payload["submission_id"])
	assert.Contains(t, conflicts[0].Message, "dropped")
	assert.Equal(t, model.ConflictInvalidPhone, conflicts[1].Type)
	assert.Equal(t, "MN002", conflicts[1].MnID)
}

func TestPlaceholders_Independent(t *testing.T) {
	a, b := NewPlaceholders(1), NewPlaceholders(1)
	assert.Equal(t, "TEMP-0001", a.Next())
	assert.Equal(t, "TEMP-0002", a.Next())
	assert.Equal(t, "TEMP-0001", b.Next())
	assert.True(t, IsPlaceholder("TEMP-0042"))
	assert.False(t, IsPlaceholder("MN042"))
}

func TestDedupe_KeepsLatest(t *testing.T) {
	sink := NewSink(t0)
	people := AssignIdentifiers([]model.RawSignup{
		signup("old", "MN001", "(404) 555-1234", t0),
		signup("new", "MN001", "404.555.1234", t0.Add(time.Hour)),
	}, NewPlaceholders(1), sink)

	out := Dedupe(people, sink)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].Signup.SubmissionID)
	assert.Equal(t, "+14045551234", out[0].Phone)

	conflicts := sink.Conflicts()
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, model.SeverityWarning, c.Severity)
	assert.Equal(t, model.ConflictDuplicateSignup, c.Type)
	assert.Equal(t, "new", c.Payload["kept_submission_id"])
	assert.Equal(t, "old", c.Payload["discarded_submission_id"])
}

func TestDedupe_LaterFirstInInput(t *testing.T) {
	sink := NewSink(t0)
	people := AssignIdentifiers([]model.RawSignup{
		signup("new", "MN001", "4045551234", t0.Add(time.Hour)),
		signup("old", "MN001", "4045551234", t0),
	}, NewPlaceholders(1), sink)

	out := Dedupe(people, sink)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].Signup.SubmissionID)
	assert.Equal(t, 1, sink.Len())
}

func TestDedupe_TieKeepsFirst(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
	}{
		{"equal timestamps", t0},
		{"missing timestamps", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewSink(t0)
			people := AssignIdentifiers([]model.RawSignup{
				signup("a", "MN001", "4045551234", tt.at),
				signup("b", "MN002", "4045551234", tt.at),
				signup("c", "MN003", "4045551234", tt.at),
			}, NewPlaceholders(1), sink)

			out := Dedupe(people, sink)
			require.Len(t, out, 1)
			assert.Equal(t, "a", out[0].Signup.SubmissionID)
			assert.Equal(t, 2, sink.Len())
		})
	}
}

func TestDedupe_InvalidPhoneDropped(t *testing.T) {
	sink := NewSink(t0)
	people := AssignIdentifiers([]model.RawSignup{
		signup("1", "MN001", "555-1234", t0),
		signup("2", "MN002", "4045550199", t0),
	}, NewPlaceholders(1), sink)

	out := Dedupe(people, sink)
	require.Len(t, out, 1)
	assert.Equal(t, "MN002", out[0].Signup.MnID)

	conflicts := sink.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.SeverityError, conflicts[0].Severity)
	assert.Equal(t, model.ConflictInvalidPhone, conflicts[0].Type)
	assert.Equal(t, "MN001", conflicts[0].MnID)
}

func TestDedupe_SameIDDifferentPhones(t *testing.T) {
	sink := NewSink(t0)
	people := AssignIdentifiers([]model.RawSignup{
		signup("1", "MN001", "4045551234", t0),
		signup("2", "MN001", "4045559999", t0.Add(time.Minute)),
	}, NewPlaceholders(1), sink)

	out := Dedupe(people, sink)
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].Signup.SubmissionID)

	conflicts := sink.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictDuplicateIdentifier, conflicts[0].Type)
}

func TestDedupe_PreservesFirstPosition(t *testing.T) {
	sink := NewSink(t0)
	people := AssignIdentifiers([]model.RawSignup{
		signup("a1", "MN001", "4045550001", t0),
		signup("b", "MN002", "4045550002", t0),
		signup("a2", "MN001", "4045550001", t0.Add(time.Hour)),
	}, NewPlaceholders(1), sink)

	out := Dedupe(people, sink)
	require.Len(t, out, 2)
	assert.Equal(t, "a2", out[0].Signup.SubmissionID)
	assert.Equal(t, "b", out[1].Signup.SubmissionID)
}
