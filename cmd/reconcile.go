package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/mentor-sync/internal/config"
	"github.com/sells-group/mentor-sync/internal/export"
	"github.com/sells-group/mentor-sync/internal/metrics"
	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/monitoring"
	"github.com/sells-group/mentor-sync/internal/pipeline"
	"github.com/sells-group/mentor-sync/internal/store"
)

type reconcileFlags struct {
	dryRun bool
	xlsx   string
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild canonical mentors, conflicts and staging from the raw tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var f reconcileFlags
		f.dryRun, _ = cmd.Flags().GetBool("dry-run")
		f.xlsx, _ = cmd.Flags().GetString("xlsx")

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return runReconcile(ctx, cfg, st, f, cmd.OutOrStdout())
	},
}

func init() {
	reconcileCmd.Flags().Bool("dry-run", false, "compute everything but write only the run log")
	reconcileCmd.Flags().String("xlsx", "", "also write mentors, conflicts and staging to this workbook")
	rootCmd.AddCommand(reconcileCmd)
}

func newPipeline(c *config.Config, st store.Store, m *metrics.Metrics) *pipeline.Pipeline {
	return pipeline.New(st, pipeline.OptionsFromConfig(c), m, monitoring.NewAlerter(c.Monitoring))
}

func runReconcile(ctx context.Context, c *config.Config, st store.Store, f reconcileFlags, out io.Writer) error {
	res, err := newPipeline(c, st, nil).WithDryRun(f.dryRun).Run(ctx)
	if err != nil {
		return err
	}
	formatReconcileResult(out, res, f.dryRun)

	if f.xlsx != "" {
		if err := export.Write(f.xlsx, export.Report{
			Mentors:   res.Mentors,
			Conflicts: res.Conflicts,
			Staging:   res.Staging,
		}); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Wrote %s\n", f.xlsx)
	}
	return nil
}

func formatReconcileResult(out io.Writer, res *pipeline.Result, dryRun bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if dryRun {
		_, _ = fmt.Fprintln(w, "Dry run: no tables were written.")
	}
	if res.Run != nil {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.Run.ID)
	}
	s := res.Stats
	_, _ = fmt.Fprintf(w, "Signups:\t%d (%d unique)\n", s.Signups, s.Unique)
	_, _ = fmt.Fprintf(w, "Mentors:\t%d\n", s.Mentors)
	_, _ = fmt.Fprintf(w, "Withdrawn:\t%d\n", s.Withdrawn)
	_, _ = fmt.Fprintf(w, "Matched contacts:\t%d\n", s.MatchedContacts)
	for _, st := range model.AllStatuses {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", st, s.StatusCounts[st])
	}
	_, _ = fmt.Fprintf(w, "Conflicts:\t%d\n", len(res.Conflicts))
	for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityError, model.SeverityWarning, model.SeverityInfo} {
		if n := s.ConflictsBySeverity[sev]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", sev, n)
		}
	}
	_, _ = fmt.Fprintf(w, "Duration:\t%dms\n", s.DurationMs)
	_ = w.Flush()
}
