package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mentor-sync/internal/export"
	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/store"
)

// -- mentors --

var mentorsCmd = &cobra.Command{
	Use:   "mentors",
	Short: "List canonical mentors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")

		filter := store.MentorFilter{Status: model.Status(status), Limit: limit}
		if filter.Status != "" && !slices.Contains(model.AllStatuses, filter.Status) {
			return eris.Errorf("unknown status %q", status)
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mentors, err := st.ListMentors(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "mentors")
		}

		out := cmd.OutOrStdout()
		switch {
		case xlsxPath != "":
			if err := export.Write(xlsxPath, export.Report{Mentors: nonNil(mentors)}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Wrote %d mentors to %s\n", len(mentors), xlsxPath)
		case asJSON:
			return writeJSON(out, mentors)
		case len(mentors) == 0:
			fmt.Fprintln(os.Stderr, "No mentors found.")
		default:
			formatMentors(out, mentors)
		}
		return nil
	},
}

// -- conflicts --

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List conflicts logged by the latest reconciliation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		severity, _ := cmd.Flags().GetString("severity")
		typ, _ := cmd.Flags().GetString("type")
		mnID, _ := cmd.Flags().GetString("mn-id")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")

		filter := store.ConflictFilter{
			Severity: model.Severity(severity),
			Type:     model.ConflictType(typ),
			MnID:     mnID,
			Limit:    limit,
		}
		if filter.Severity != "" && !filter.Severity.Valid() {
			return eris.Errorf("unknown severity %q", severity)
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		conflicts, err := st.ListConflicts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "conflicts")
		}

		out := cmd.OutOrStdout()
		switch {
		case xlsxPath != "":
			if err := export.Write(xlsxPath, export.Report{Conflicts: nonNil(conflicts)}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Wrote %d conflicts to %s\n", len(conflicts), xlsxPath)
		case asJSON:
			return writeJSON(out, conflicts)
		case len(conflicts) == 0:
			fmt.Fprintln(os.Stderr, "No conflicts found.")
		default:
			formatConflicts(out, conflicts)
		}
		return nil
	},
}

// -- staging --

var stagingCmd = &cobra.Command{
	Use:   "staging",
	Short: "Show or export the contact staging feed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		asJSON, _ := cmd.Flags().GetBool("json")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := st.ListStaging(ctx)
		if err != nil {
			return eris.Wrap(err, "staging")
		}

		out := cmd.OutOrStdout()
		switch {
		case xlsxPath != "":
			if err := export.Write(xlsxPath, export.Report{Staging: nonNil(rows)}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Wrote %d staging rows to %s\n", len(rows), xlsxPath)
		case asJSON:
			return writeJSON(out, rows)
		case len(rows) == 0:
			fmt.Fprintln(os.Stderr, "Staging feed is empty.")
		default:
			formatStaging(out, rows)
		}
		return nil
	},
}

func init() {
	mentorsCmd.Flags().String("status", "", "filter by status (complete, needs_fundraising, needs_page, needs_setup)")
	mentorsCmd.Flags().Int("limit", 0, "max number of mentors (default all)")

	conflictsCmd.Flags().String("severity", "", "filter by severity (critical, error, warning, info)")
	conflictsCmd.Flags().String("type", "", "filter by conflict type")
	conflictsCmd.Flags().String("mn-id", "", "filter by mentor id")
	conflictsCmd.Flags().Int("limit", 0, "max number of conflicts (default all)")

	for _, c := range []*cobra.Command{mentorsCmd, conflictsCmd, stagingCmd} {
		c.Flags().Bool("json", false, "print JSON instead of a table")
		c.Flags().String("xlsx", "", "write an XLSX workbook to this path instead of printing")
		rootCmd.AddCommand(c)
	}
}

func formatMentors(out io.Writer, mentors []model.Mentor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MN_ID\tNAME\tPHONE\tSTATUS\tAMOUNT\tCONTACT\tMEMBER")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----\t------\t------\t-------\t------")
	for i := range mentors {
		m := &mentors[i]
		first := m.FirstName
		if m.PreferredName != "" {
			first = m.PreferredName
		}
		_, _ = fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%.2f\t%s\t%s\n",
			m.MnID, first, m.LastName, m.Phone, m.Status, m.Amount,
			optionalID(m.GBContactID), optionalID(m.GBMemberID),
		)
	}
	_ = w.Flush()
}

func formatConflicts(out io.Writer, conflicts []model.Conflict) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSEVERITY\tTYPE\tMN_ID\tMESSAGE")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t-----\t-------")
	for _, c := range conflicts {
		msg := c.Message
		if len(msg) > 80 {
			msg = msg[:77] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Severity, c.Type, c.MnID, msg)
	}
	_ = w.Flush()
}

func formatStaging(out io.Writer, rows []model.StagingRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MN_ID\tCONTACT\tNAME\tEMAIL\tPHONE\tTAGS")
	_, _ = fmt.Fprintln(w, "-----\t-------\t----\t-----\t-----\t----")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
			r.MnID, optionalID(r.GBContactID), r.FirstName, r.LastName, r.Email, r.Phone, r.Tags)
	}
	_ = w.Flush()
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
