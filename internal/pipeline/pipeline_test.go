package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/config"
	"github.com/sells-group/mentor-sync/internal/metrics"
	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/monitoring"
	"github.com/sells-group/mentor-sync/internal/resilience"
	"github.com/sells-group/mentor-sync/internal/source"
	"github.com/sells-group/mentor-sync/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var t0 = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testOptions() Options {
	return Options{
		Source: source.Options{
			PageSize: 2,
			MaxPages: 10,
			Retry:    resilience.RetryConfig{MaxAttempts: 1},
		},
	}
}

// seed loads the end-to-end scenario: MN001 matched by phone to contact 77
// with $80 raised, plus MN002 with no contact and a withdrawn MN003.
func seed(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.UpsertSignups(ctx, []model.RawSignup{
		{SubmissionID: "s1", MnID: "MN001", FirstName: "Ada", LastName: "Lovelace", Phone: "4045551234", PersonalEmail: "ada@example.com", SubmittedAt: t0},
		{SubmissionID: "s2", MnID: "MN002", FirstName: "Bo", LastName: "Diddley", Phone: "(404) 555-0199", UWEmail: "bo@uw.edu", SubmittedAt: t0},
		{SubmissionID: "s3", MnID: "MN003", FirstName: "Cy", LastName: "Young", Phone: "404-555-7777", SubmittedAt: t0},
	})
	require.NoError(t, err)
	_, err = s.UpsertContacts(ctx, []model.RawContact{
		{ContactID: 77, FirstName: "Ada", LastName: "Lovelace", Phone: "+14045551234", Tags: []string{}},
		{ContactID: 88, FirstName: "Cy", LastName: "Young", Phone: "+14045557777", Tags: []string{"dropped"}},
	})
	require.NoError(t, err)
	_, err = s.UpsertMembers(ctx, []model.RawFundraisingMember{
		{MemberID: 501, FirstName: "Ada", LastName: "Lovelace", Phone: "4045551234", Amount: 80, Goal: 75},
	})
	require.NoError(t, err)
	_, err = s.UpsertSetups(ctx, []model.RawSetupRecord{
		{SubmissionID: "u1", MnID: "MN001", Phone: "4045551234", Email: "ada@example.com", SubmittedAt: t0},
	})
	require.NoError(t, err)
}

func mentorsByID(t *testing.T, s store.Store) map[string]model.Mentor {
	t.Helper()
	ms, err := s.ListMentors(context.Background(), store.MentorFilter{})
	require.NoError(t, err)
	out := make(map[string]model.Mentor, len(ms))
	for _, m := range ms {
		out[m.MnID] = m
	}
	return out
}

func TestPipeline_Run(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	m := metrics.New(prometheus.NewRegistry())

	res, err := New(s, testOptions(), m, nil).Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Run)
	assert.Equal(t, model.RunStatusComplete, res.Run.Status)
	assert.Equal(t, 2, res.Stats.Mentors)
	assert.Equal(t, 1, res.Stats.Withdrawn)

	mentors := mentorsByID(t, s)
	require.Len(t, mentors, 2)
	ada := mentors["MN001"]
	require.NotNil(t, ada.GBContactID)
	assert.Equal(t, int64(77), *ada.GBContactID)
	require.NotNil(t, ada.GBMemberID)
	assert.Equal(t, int64(501), *ada.GBMemberID)
	assert.Equal(t, model.StatusComplete, ada.Status)
	assert.Equal(t, "+14045550199", mentors["MN002"].Phone)
	assert.Equal(t, model.StatusNeedsSetup, mentors["MN002"].Status)
	assert.NotContains(t, mentors, "MN003")

	staging, err := s.ListStaging(context.Background())
	require.NoError(t, err)
	require.Len(t, staging, 2)
	for _, row := range staging {
		assert.NotEqual(t, "MN003", row.MnID)
	}

	conflicts, err := s.ListConflicts(context.Background(), store.ConflictFilter{Type: model.ConflictWithdrawn})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.SeverityInfo, conflicts[0].Severity)

	runs, err := s.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Stats)
	assert.Equal(t, 2, runs[0].Stats.Mentors)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("complete", "write")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Mentors.WithLabelValues("complete")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.SourceRows.WithLabelValues(source.NameSignups)), 0)
}

func TestPipeline_IdempotentRerun(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	p := New(s, testOptions(), nil, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	first := mentorsByID(t, s)
	firstConflicts, err := s.ListConflicts(context.Background(), store.ConflictFilter{})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	second := mentorsByID(t, s)
	secondConflicts, err := s.ListConflicts(context.Background(), store.ConflictFilter{})
	require.NoError(t, err)

	assert.Len(t, second, len(first))
	for id, m := range first {
		assert.Equal(t, m.Status, second[id].Status)
		assert.Equal(t, m.GBContactID, second[id].GBContactID)
	}
	// Conflicts are replaced, not accumulated.
	assert.Len(t, secondConflicts, len(firstConflicts))
}

func TestPipeline_PreservesIdentityAcrossRuns(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	p := New(s, testOptions(), nil, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// Contact 77 changes its phone so MN001 no longer matches it.
	_, err = s.UpsertContacts(context.Background(), []model.RawContact{
		{ContactID: 77, FirstName: "Ada", LastName: "Lovelace", Phone: "+12125550000"},
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.PreservedContacts)

	ada := mentorsByID(t, s)["MN001"]
	require.NotNil(t, ada.GBContactID)
	assert.Equal(t, int64(77), *ada.GBContactID)
}

func TestPipeline_DryRun(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	opts := testOptions()
	opts.DryRun = true

	res, err := New(s, opts, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Mentors, 2)
	assert.Len(t, res.Staging, 2)

	assert.Empty(t, mentorsByID(t, s))
	staging, err := s.ListStaging(context.Background())
	require.NoError(t, err)
	assert.Empty(t, staging)

	runs, err := s.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].DryRun)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
}

func TestPipeline_WithDryRun(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	p := New(s, testOptions(), nil, nil)
	_, err := p.WithDryRun(true).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mentorsByID(t, s))

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, mentorsByID(t, s), 2)
}

// failingContacts fails every contact page after the store has data.
type failingContacts struct {
	store.Store
	err error
}

func (f *failingContacts) ContactPage(context.Context, int, int) ([]model.RawContact, error) {
	return nil, f.err
}

func TestPipeline_LoadFailureWritesNothing(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	_, err := New(s, testOptions(), nil, nil).Run(context.Background())
	require.NoError(t, err)
	before := mentorsByID(t, s)
	beforeConflicts, err := s.ListConflicts(context.Background(), store.ConflictFilter{})
	require.NoError(t, err)

	// A successful run would add MN009.
	_, err = s.UpsertSignups(context.Background(), []model.RawSignup{
		{SubmissionID: "s9", MnID: "MN009", FirstName: "New", LastName: "Person", Phone: "4045559999", SubmittedAt: t0},
	})
	require.NoError(t, err)

	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	alerter := monitoring.NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})

	broken := &failingContacts{Store: s, err: errors.New("connection reset")}
	m := metrics.New(prometheus.NewRegistry())
	_, err = New(broken, testOptions(), m, alerter).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: load")

	assert.Equal(t, before, mentorsByID(t, s))
	afterConflicts, err := s.ListConflicts(context.Background(), store.ConflictFilter{})
	require.NoError(t, err)
	assert.Len(t, afterConflicts, len(beforeConflicts))

	failed, err := s.ListRuns(context.Background(), store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "connection reset")

	assert.Equal(t, int32(1), received.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("failed", "write")), 0)
}

func TestPipeline_CriticalConflictAlert(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertSignups(context.Background(), []model.RawSignup{
		{SubmissionID: "s1", MnID: "", FirstName: "No", LastName: "Id", Phone: "4045551234", SubmittedAt: t0},
	})
	require.NoError(t, err)

	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	alerter := monitoring.NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})

	res, err := New(s, testOptions(), nil, alerter).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Mentors, 1)
	assert.Equal(t, "TEMP-0001", res.Mentors[0].MnID)
	assert.Equal(t, 1, res.Stats.ConflictsBySeverity[model.SeverityCritical])
	assert.Equal(t, int32(1), received.Load())
}

// failingStart fails to open a run log entry.
type failingStart struct {
	store.Store
}

func (failingStart) StartRun(context.Context, string, bool) (*model.Run, error) {
	return nil, errors.New("sync_log missing")
}

func TestPipeline_StartRunError(t *testing.T) {
	s := newTestStore(t)
	_, err := New(failingStart{Store: s}, testOptions(), nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: start run")
}

func TestPipeline_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	run := New(s, testOptions(), nil, nil)
	cancel()

	_, err := run.Run(ctx)
	require.Error(t, err)
	assert.Empty(t, mentorsByID(t, s))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Source.PageSize = 500
	cfg.Source.MaxPages = 20
	cfg.Source.RetryAttempts = 5
	cfg.Source.RetryBackoffMs = 100
	cfg.Reconcile.FundraisingThreshold = 100
	cfg.Reconcile.WithdrawnTag = "Withdrawn"
	cfg.Reconcile.Workers = 4

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 500, opts.Source.PageSize)
	assert.Equal(t, 20, opts.Source.MaxPages)
	assert.Equal(t, 5, opts.Source.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, opts.Source.Retry.InitialBackoff)
	assert.InDelta(t, 100.0, opts.Reconcile.Threshold, 0.001)
	assert.Equal(t, "Withdrawn", opts.Reconcile.WithdrawnTag)
	assert.Equal(t, 4, opts.Reconcile.Workers)
	assert.False(t, opts.DryRun)
}
