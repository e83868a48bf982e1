// Package pipeline runs one end-to-end reconciliation: load the raw
// snapshot, reconcile it in memory and write every output in a single
// transaction, recording the run in the sync log.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/config"
	"github.com/sells-group/mentor-sync/internal/metrics"
	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/monitoring"
	"github.com/sells-group/mentor-sync/internal/reconcile"
	"github.com/sells-group/mentor-sync/internal/resilience"
	"github.com/sells-group/mentor-sync/internal/source"
	"github.com/sells-group/mentor-sync/internal/store"
)

// RunKind labels reconciliation runs in the sync log.
const RunKind = "reconcile"

// Phase names used for logging and metrics.
const (
	PhaseLoad      = "load"
	PhaseReconcile = "reconcile"
	PhaseWrite     = "write"
)

// Options controls a pipeline run.
type Options struct {
	Source      source.Options
	Reconcile   reconcile.Options
	StagingTags []string
	// DryRun computes everything but writes nothing except the run log.
	DryRun bool
}

// OptionsFromConfig maps loaded configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	retry := resilience.DefaultRetryConfig()
	if cfg.Source.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Source.RetryAttempts
	}
	if cfg.Source.RetryBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(cfg.Source.RetryBackoffMs) * time.Millisecond
	}
	if cfg.Source.RetryMaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(cfg.Source.RetryMaxBackoffMs) * time.Millisecond
	}
	return Options{
		Source: source.Options{
			PageSize: cfg.Source.PageSize,
			MaxPages: cfg.Source.MaxPages,
			Retry:    retry,
		},
		Reconcile: reconcile.Options{
			Threshold:    cfg.Reconcile.FundraisingThreshold,
			WithdrawnTag: cfg.Reconcile.WithdrawnTag,
			Workers:      cfg.Reconcile.Workers,
		},
		StagingTags: cfg.Reconcile.StagingTags,
	}
}

// Result is the outcome of a successful run.
type Result struct {
	Run       *model.Run
	Mentors   []model.Mentor
	Conflicts []model.Conflict
	Staging   []model.StagingRow
	Stats     model.RunStats
}

// Pipeline wires the store to the reconciliation core.
type Pipeline struct {
	store   store.Store
	opts    Options
	metrics *metrics.Metrics
	alerter *monitoring.Alerter
}

// New creates a Pipeline. metrics and alerter may be nil.
func New(st store.Store, opts Options, m *metrics.Metrics, alerter *monitoring.Alerter) *Pipeline {
	return &Pipeline{store: st, opts: opts, metrics: m, alerter: alerter}
}

// WithDryRun returns a copy of p with the dry-run mode set to dry.
func (p *Pipeline) WithDryRun(dry bool) *Pipeline {
	cp := *p
	cp.opts.DryRun = dry
	return &cp
}

// Run executes one reconciliation. A failure before the write phase leaves
// every canonical table untouched; the run is still recorded as failed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	run, err := p.store.StartRun(ctx, RunKind, p.opts.DryRun)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("run_id", run.ID),
		zap.Bool("dry_run", p.opts.DryRun),
	)
	log.Info("pipeline: run started")

	res, err := p.execute(ctx, log)
	if err != nil {
		p.fail(ctx, run, err, log)
		return nil, err
	}

	res.Stats.DurationMs = time.Since(start).Milliseconds()
	if err := p.store.CompleteRun(ctx, run.ID, &res.Stats); err != nil {
		// The outputs are already committed; only the log entry is missing.
		log.Error("pipeline: failed to complete run", zap.Error(err))
	}
	now := time.Now().UTC()
	run.Status = model.RunStatusComplete
	run.CompletedAt = &now
	run.Stats = &res.Stats
	res.Run = run

	p.metrics.ObserveRun(string(model.RunStatusComplete), p.opts.DryRun)
	p.metrics.SetConflicts(res.Conflicts)
	p.metrics.SetStatusCounts(res.Stats.StatusCounts)
	p.alert(ctx, run)

	log.Info("pipeline: run complete",
		zap.Int("mentors", res.Stats.Mentors),
		zap.Int("conflicts", len(res.Conflicts)),
		zap.Int("withdrawn", res.Stats.Withdrawn),
		zap.Int64("duration_ms", res.Stats.DurationMs),
	)
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, log *zap.Logger) (*Result, error) {
	phaseStart := time.Now()
	snap, err := source.LoadSnapshot(ctx, p.store, p.opts.Source, p.metrics.ObserveSource)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load")
	}
	prior, err := p.store.PriorIdentities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load prior identities")
	}
	p.metrics.ObservePhase(PhaseLoad, time.Since(phaseStart))
	log.Debug("pipeline: sources loaded", zap.Int("prior_identities", len(prior)))

	phaseStart = time.Now()
	out, err := reconcile.Reconcile(ctx, reconcile.Input{
		Signups:  snap.Signups,
		Setups:   snap.Setups,
		Members:  snap.Members,
		Contacts: snap.Contacts,
		Prior:    prior,
	}, p.opts.Reconcile)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: reconcile")
	}
	staging := BuildStaging(out.Mentors, p.opts.StagingTags)
	p.metrics.ObservePhase(PhaseReconcile, time.Since(phaseStart))

	res := &Result{
		Mentors:   out.Mentors,
		Conflicts: out.Conflicts,
		Staging:   staging,
		Stats:     out.Stats,
	}
	if p.opts.DryRun {
		log.Info("pipeline: dry run, skipping writes")
		return res, nil
	}

	phaseStart = time.Now()
	if err := p.store.WriteRun(ctx, store.RunOutput{
		Mentors:   out.Mentors,
		Conflicts: out.Conflicts,
		Staging:   staging,
	}); err != nil {
		return nil, eris.Wrap(err, "pipeline: write")
	}
	p.metrics.ObservePhase(PhaseWrite, time.Since(phaseStart))
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, run *model.Run, runErr error, log *zap.Logger) {
	log.Error("pipeline: run failed", zap.Error(runErr))

	// Record the failure even when ctx was cancelled.
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.FailRun(failCtx, run.ID, runErr.Error()); err != nil {
		log.Error("pipeline: failed to record run failure", zap.Error(err))
	}

	run.Status = model.RunStatusFailed
	run.Error = runErr.Error()
	p.metrics.ObserveRun(string(model.RunStatusFailed), p.opts.DryRun)
	p.alert(failCtx, run)
}

func (p *Pipeline) alert(ctx context.Context, run *model.Run) {
	if !p.alerter.Enabled() {
		return
	}
	p.alerter.SendAlerts(ctx, p.alerter.RunAlerts(run))
}
