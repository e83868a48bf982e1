package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/mentor-sync/internal/config"
	"github.com/sells-group/mentor-sync/internal/ingest"
	"github.com/sells-group/mentor-sync/internal/metrics"
	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/resilience"
	"github.com/sells-group/mentor-sync/internal/source"
	"github.com/sells-group/mentor-sync/internal/store"
	"github.com/sells-group/mentor-sync/pkg/givebutter"
	"github.com/sells-group/mentor-sync/pkg/jotform"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Copy form submissions and fundraising data into the raw tables",
	Long: "Fetches both Jotform forms, the Givebutter campaign roster and the full Givebutter contact list " +
		"and upserts them into the raw tables. With --reconcile a reconciliation runs afterwards.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		andReconcile, _ := cmd.Flags().GetBool("reconcile")

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		if err := runIngest(ctx, cfg, st, nil, out); err != nil {
			return err
		}
		if !andReconcile {
			return nil
		}
		return runReconcile(ctx, cfg, st, reconcileFlags{}, out)
	},
}

func init() {
	ingestCmd.Flags().Bool("reconcile", false, "run a reconciliation after a successful ingest")
	rootCmd.AddCommand(ingestCmd)
}

func newJotform(c *config.Config) jotform.Client {
	opts := []jotform.Option{jotform.WithBaseURL(c.Jotform.BaseURL)}
	if c.Jotform.RateLimit > 0 {
		opts = append(opts, jotform.WithRateLimit(c.Jotform.RateLimit))
	}
	return jotform.NewClient(c.Jotform.APIKey, opts...)
}

func newGivebutter(c *config.Config) givebutter.Client {
	opts := []givebutter.Option{givebutter.WithBaseURL(c.Givebutter.BaseURL)}
	if c.Givebutter.RateLimit > 0 {
		opts = append(opts, givebutter.WithRateLimit(c.Givebutter.RateLimit))
	}
	if c.Givebutter.MaxPages > 0 {
		opts = append(opts, givebutter.WithMaxPages(c.Givebutter.MaxPages))
	}
	return givebutter.NewClient(c.Givebutter.APIKey, opts...)
}

func ingestOptions(c *config.Config) (ingest.Options, error) {
	fields, err := jotform.LoadFieldMap(c.Jotform.FieldMapPath)
	if err != nil {
		return ingest.Options{}, err
	}
	return ingest.Options{
		SignupFormID: c.Jotform.SignupFormID,
		SetupFormID:  c.Jotform.SetupFormID,
		CampaignID:   c.Givebutter.CampaignID,
		Fields:       fields,
		Source: source.Options{
			PageSize: c.Jotform.PageSize,
			MaxPages: c.Source.MaxPages,
			// The API clients already retry each request.
			Retry: resilience.RetryConfig{MaxAttempts: 1},
		},
	}, nil
}

func runIngest(ctx context.Context, c *config.Config, st store.Store, m *metrics.Metrics, out io.Writer) error {
	if err := c.ValidateIngest(); err != nil {
		return err
	}
	opts, err := ingestOptions(c)
	if err != nil {
		return err
	}

	stats, err := ingest.New(st, newJotform(c), newGivebutter(c), opts, m).Run(ctx)
	if err != nil {
		return err
	}
	formatIngestStats(out, stats)
	return nil
}

func formatIngestStats(out io.Writer, s *model.RunStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Signups:\t%d\n", s.Signups)
	_, _ = fmt.Fprintf(w, "Setups:\t%d\n", s.Setups)
	_, _ = fmt.Fprintf(w, "Members:\t%d\n", s.Members)
	_, _ = fmt.Fprintf(w, "Contacts:\t%d\n", s.Contacts)
	_, _ = fmt.Fprintf(w, "Pruned:\t%d\n", s.Pruned)
	_, _ = fmt.Fprintf(w, "Duration:\t%dms\n", s.DurationMs)
	_ = w.Flush()
}
