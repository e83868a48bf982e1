// Package ingest copies the four external sources into the raw tables.
// It runs independently of reconciliation, which only ever reads the raw
// tables.
package ingest

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mentor-sync/internal/metrics"
	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/source"
	"github.com/sells-group/mentor-sync/internal/store"
	"github.com/sells-group/mentor-sync/pkg/givebutter"
	"github.com/sells-group/mentor-sync/pkg/jotform"
)

// RunKind labels ingest runs in the sync log.
const RunKind = "ingest"

// Options identifies the forms and campaign to ingest.
type Options struct {
	SignupFormID string
	SetupFormID  string
	CampaignID   string
	Fields       jotform.FieldMap
	// Paging over form submissions.
	Source source.Options
}

// Ingester fetches every source and upserts it into the raw tables.
type Ingester struct {
	store      store.Store
	jotform    jotform.Client
	givebutter givebutter.Client
	opts       Options
	metrics    *metrics.Metrics
}

// New creates an Ingester. m may be nil.
func New(st store.Store, jf jotform.Client, gb givebutter.Client, opts Options, m *metrics.Metrics) *Ingester {
	return &Ingester{store: st, jotform: jf, givebutter: gb, opts: opts, metrics: m}
}

// Run fetches the four sources concurrently and replaces each raw table as
// soon as its fetch is complete: fetched rows are upserted, then rows the
// source no longer returns are deleted. An empty fetch leaves its table
// untouched. The first failure cancels the remaining fetches; sources
// already written stay written since raw rows are keyed by source id.
func (in *Ingester) Run(ctx context.Context) (*model.RunStats, error) {
	start := time.Now()
	run, err := in.store.StartRun(ctx, RunKind, false)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: start run")
	}
	log := zap.L().With(zap.String("component", "ingest"), zap.String("run_id", run.ID))
	log.Info("ingest: started")

	stats, err := in.fetchAll(ctx, log)
	if err != nil {
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := in.store.FailRun(failCtx, run.ID, err.Error()); ferr != nil {
			log.Error("ingest: failed to record run failure", zap.Error(ferr))
		}
		in.metrics.ObserveRun(string(model.RunStatusFailed), false)
		return nil, err
	}

	stats.DurationMs = time.Since(start).Milliseconds()
	if err := in.store.CompleteRun(ctx, run.ID, stats); err != nil {
		log.Error("ingest: failed to complete run", zap.Error(err))
	}
	log.Info("ingest: complete",
		zap.Int("signups", stats.Signups),
		zap.Int("setups", stats.Setups),
		zap.Int("members", stats.Members),
		zap.Int("contacts", stats.Contacts),
		zap.Int64("pruned", stats.Pruned),
		zap.Int64("duration_ms", stats.DurationMs),
	)
	return stats, nil
}

func (in *Ingester) fetchAll(ctx context.Context, log *zap.Logger) (*model.RunStats, error) {
	var stats model.RunStats
	var pruned atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		subs, err := in.submissions(gCtx, source.NameSignups, in.opts.SignupFormID)
		if err != nil {
			return err
		}
		rows := convertAll(subs, func(s jotform.Submission) model.RawSignup {
			return SignupFromSubmission(s, in.opts.Fields.Signup)
		})
		stats.Signups = len(rows)
		keys := convertAll(rows, func(r model.RawSignup) string { return r.SubmissionID })
		return in.replace(gCtx, log, source.NameSignups, keys, &pruned, func(ctx context.Context) (int64, error) {
			return in.store.UpsertSignups(ctx, rows)
		})
	})
	g.Go(func() error {
		subs, err := in.submissions(gCtx, source.NameSetups, in.opts.SetupFormID)
		if err != nil {
			return err
		}
		rows := convertAll(subs, func(s jotform.Submission) model.RawSetupRecord {
			return SetupFromSubmission(s, in.opts.Fields.Setup)
		})
		stats.Setups = len(rows)
		keys := convertAll(rows, func(r model.RawSetupRecord) string { return r.SubmissionID })
		return in.replace(gCtx, log, source.NameSetups, keys, &pruned, func(ctx context.Context) (int64, error) {
			return in.store.UpsertSetups(ctx, rows)
		})
	})
	g.Go(func() error {
		members, err := in.givebutter.AllMembers(gCtx, in.opts.CampaignID)
		if err != nil {
			return eris.Wrap(err, "ingest: fetch members")
		}
		rows := convertAll(members, MemberFromAPI)
		stats.Members = len(rows)
		keys := convertAll(rows, func(r model.RawFundraisingMember) string { return strconv.FormatInt(r.MemberID, 10) })
		return in.replace(gCtx, log, source.NameMembers, keys, &pruned, func(ctx context.Context) (int64, error) {
			return in.store.UpsertMembers(ctx, rows)
		})
	})
	g.Go(func() error {
		contacts, err := in.givebutter.AllContacts(gCtx)
		if err != nil {
			return eris.Wrap(err, "ingest: fetch contacts")
		}
		rows := convertAll(contacts, ContactFromAPI)
		stats.Contacts = len(rows)
		keys := convertAll(rows, func(r model.RawContact) string { return strconv.FormatInt(r.ContactID, 10) })
		return in.replace(gCtx, log, source.NameContacts, keys, &pruned, func(ctx context.Context) (int64, error) {
			return in.store.UpsertContacts(ctx, rows)
		})
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.Pruned = pruned.Load()
	return &stats, nil
}

// submissions pages through one form with the same loader reconcile uses
// for the raw tables.
func (in *Ingester) submissions(ctx context.Context, name, formID string) ([]jotform.Submission, error) {
	fetch := func(ctx context.Context, offset, limit int) ([]jotform.Submission, error) {
		return in.jotform.SubmissionsPage(ctx, formID, offset, limit)
	}
	subs, err := source.LoadAll(ctx, name, fetch, in.opts.Source)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: fetch %s", name)
	}
	return activeSubmissions(subs), nil
}

func (in *Ingester) replace(ctx context.Context, log *zap.Logger, name string, keys []string, pruned *atomic.Int64, upsert func(context.Context) (int64, error)) error {
	n, err := upsert(ctx)
	if err != nil {
		return eris.Wrapf(err, "ingest: upsert %s", name)
	}
	in.metrics.ObserveIngest(name, n)

	if len(keys) == 0 {
		log.Warn("ingest: source returned no rows, keeping existing raw rows", zap.String("source", name))
		return nil
	}
	removed, err := in.store.PruneRaw(ctx, name, keys)
	if err != nil {
		return eris.Wrapf(err, "ingest: prune %s", name)
	}
	pruned.Add(removed)
	log.Info("ingest: source replaced",
		zap.String("source", name),
		zap.Int64("rows", n),
		zap.Int64("pruned", removed),
	)
	return nil
}
