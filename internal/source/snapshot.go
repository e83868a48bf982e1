package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mentor-sync/internal/model"
)

// Source names, also used as metric and log labels.
const (
	NameSignups  = "signups"
	NameSetups   = "setups"
	NameMembers  = "members"
	NameContacts = "contacts"
)

// RawReader pages through the four raw source tables. Implementations must
// use a stable ordering so that offsets are meaningful across requests.
type RawReader interface {
	SignupPage(ctx context.Context, offset, limit int) ([]model.RawSignup, error)
	SetupPage(ctx context.Context, offset, limit int) ([]model.RawSetupRecord, error)
	MemberPage(ctx context.Context, offset, limit int) ([]model.RawFundraisingMember, error)
	ContactPage(ctx context.Context, offset, limit int) ([]model.RawContact, error)
}

// Snapshot is the full set of raw rows one run reconciles.
type Snapshot struct {
	Signups  []model.RawSignup
	Setups   []model.RawSetupRecord
	Members  []model.RawFundraisingMember
	Contacts []model.RawContact
}

// Observer receives per-source load durations. It may be nil.
type Observer func(source string, d time.Duration, rows int)

// LoadSnapshot fetches the four sources concurrently and joins them. The
// first failure cancels the remaining loads and is returned; no partial
// snapshot is ever returned.
func LoadSnapshot(ctx context.Context, r RawReader, opts Options, observe Observer) (*Snapshot, error) {
	var snap Snapshot
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := timed(gCtx, NameSignups, observe, func(ctx context.Context) ([]model.RawSignup, error) {
			return LoadAll(ctx, NameSignups, r.SignupPage, opts)
		})
		snap.Signups = rows
		return err
	})
	g.Go(func() error {
		rows, err := timed(gCtx, NameSetups, observe, func(ctx context.Context) ([]model.RawSetupRecord, error) {
			return LoadAll(ctx, NameSetups, r.SetupPage, opts)
		})
		snap.Setups = rows
		return err
	})
	g.Go(func() error {
		rows, err := timed(gCtx, NameMembers, observe, func(ctx context.Context) ([]model.RawFundraisingMember, error) {
			return LoadAll(ctx, NameMembers, r.MemberPage, opts)
		})
		snap.Members = rows
		return err
	})
	g.Go(func() error {
		rows, err := timed(gCtx, NameContacts, observe, func(ctx context.Context) ([]model.RawContact, error) {
			return LoadAll(ctx, NameContacts, r.ContactPage, opts)
		})
		snap.Contacts = rows
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "source: load snapshot")
	}

	zap.L().Info("source: snapshot loaded",
		zap.Int("signups", len(snap.Signups)),
		zap.Int("setups", len(snap.Setups)),
		zap.Int("members", len(snap.Members)),
		zap.Int("contacts", len(snap.Contacts)),
	)
	return &snap, nil
}

func timed[T any](ctx context.Context, name string, observe Observer, fn func(context.Context) ([]T, error)) ([]T, error) {
	start := time.Now()
	rows, err := fn(ctx)
	if observe != nil && err == nil {
		observe(name, time.Since(start), len(rows))
	}
	return rows, err
}
