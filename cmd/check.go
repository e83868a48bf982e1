package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mentor-sync/internal/config"
	"github.com/sells-group/mentor-sync/pkg/givebutter"
	"github.com/sells-group/mentor-sync/pkg/jotform"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify database and API connectivity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCheck(cmd.Context(), cfg, newJotform(cfg), newGivebutter(cfg), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

type checkResult struct {
	name   string
	detail string
	err    error
}

func runCheck(ctx context.Context, c *config.Config, jf jotform.Client, gb givebutter.Client, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	results := []checkResult{checkStore(ctx, c)}
	if c.Jotform.APIKey != "" {
		user, err := jf.User(ctx)
		results = append(results, checkResult{name: "jotform", detail: "user " + user, err: err})
	} else {
		results = append(results, checkResult{name: "jotform", detail: "skipped: no api key"})
	}
	if c.Givebutter.APIKey != "" {
		n, err := gb.Ping(ctx)
		results = append(results, checkResult{name: "givebutter", detail: fmt.Sprintf("%d campaigns", n), err: err})
	} else {
		results = append(results, checkResult{name: "givebutter", detail: "skipped: no api key"})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	failed := 0
	for _, r := range results {
		status, detail := "ok", r.detail
		if r.err != nil {
			status, detail = "FAIL", r.err.Error()
			failed++
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.name, status, detail)
	}
	_ = w.Flush()

	if failed > 0 {
		return eris.Errorf("check: %d of %d checks failed", failed, len(results))
	}
	return nil
}

func checkStore(ctx context.Context, c *config.Config) checkResult {
	res := checkResult{name: "store", detail: c.Store.Driver}
	st, err := initStore(ctx, c)
	if err != nil {
		res.err = err
		return res
	}
	defer st.Close() //nolint:errcheck
	res.err = st.Ping(ctx)
	return res
}
