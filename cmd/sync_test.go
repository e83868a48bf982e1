package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/mentor-sync/internal/export"
	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/store"
)

func TestIngestThenReconcile(t *testing.T) {
	c := testConfig(t)
	withAPIs(t, c)
	st := testStore(t, c)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runIngest(ctx, c, st, nil, &out))
	assert.Contains(t, out.String(), "Signups:")
	assert.Contains(t, out.String(), "Contacts:")

	signups, err := st.SignupPage(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, signups, 3)
	assert.Equal(t, "MN001", signups[0].MnID)
	assert.Equal(t, "(404) 555-1234", signups[0].Phone)

	out.Reset()
	require.NoError(t, runReconcile(ctx, c, st, reconcileFlags{}, &out))
	assert.Contains(t, out.String(), "Withdrawn:")

	mentors, err := st.ListMentors(ctx, store.MentorFilter{})
	require.NoError(t, err)
	require.Len(t, mentors, 2)
	assert.Equal(t, "MN001", mentors[0].MnID)
	assert.Equal(t, model.StatusComplete, mentors[0].Status)
	require.NotNil(t, mentors[0].GBContactID)
	assert.Equal(t, int64(77), *mentors[0].GBContactID)
	assert.Equal(t, model.StatusNeedsSetup, mentors[1].Status)

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	kinds := []string{runs[0].Kind, runs[1].Kind}
	assert.ElementsMatch(t, []string{"ingest", "reconcile"}, kinds)
}

func TestIngest_MissingCredentials(t *testing.T) {
	c := testConfig(t)
	st := testStore(t, c)

	err := runIngest(context.Background(), c, st, nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jotform.api_key")
}

func TestIngest_Unauthorized(t *testing.T) {
	c := testConfig(t)
	withAPIs(t, c)
	c.Givebutter.APIKey = "wrong"
	st := testStore(t, c)

	err := runIngest(context.Background(), c, st, nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestReconcile_DryRunWithWorkbook(t *testing.T) {
	c := testConfig(t)
	withAPIs(t, c)
	st := testStore(t, c)
	ctx := context.Background()
	require.NoError(t, runIngest(ctx, c, st, nil, &bytes.Buffer{}))

	path := filepath.Join(t.TempDir(), "dry.xlsx")
	var out bytes.Buffer
	require.NoError(t, runReconcile(ctx, c, st, reconcileFlags{dryRun: true, xlsx: path}, &out))
	assert.Contains(t, out.String(), "Dry run")
	assert.Contains(t, out.String(), "Wrote "+path)

	mentors, err := st.ListMentors(ctx, store.MentorFilter{})
	require.NoError(t, err)
	assert.Empty(t, mentors)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Contains(t, f.Sheet, export.SheetMentors)
	assert.Len(t, f.Sheet[export.SheetMentors].Rows, 3)
	require.Contains(t, f.Sheet, export.SheetStaging)
	assert.Len(t, f.Sheet[export.SheetStaging].Rows, 3)
}

func TestRunCheck(t *testing.T) {
	c := testConfig(t)
	withAPIs(t, c)

	var out bytes.Buffer
	require.NoError(t, runCheck(context.Background(), c, newJotform(c), newGivebutter(c), &out))
	assert.Contains(t, out.String(), "user mentors")
	assert.Contains(t, out.String(), "1 campaigns")
	assert.NotContains(t, out.String(), "FAIL")
}

func TestRunCheck_Failures(t *testing.T) {
	c := testConfig(t)
	withAPIs(t, c)
	c.Jotform.APIKey = "wrong"
	c.Givebutter.APIKey = ""

	var out bytes.Buffer
	err := runCheck(context.Background(), c, newJotform(c), newGivebutter(c), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 checks failed")
	assert.Contains(t, out.String(), "skipped: no api key")
}
