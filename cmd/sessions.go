package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List logged scrape sessions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		kindName, _ := cmd.Flags().GetString("kind")
		output, _ := cmd.Flags().GetString("output")

		filter := store.SessionFilter{Limit: limit}
		if kindName != "" {
			kind, ok := model.ParseKind(kindName)
			if !ok {
				return eris.Errorf("unknown record kind %q", kindName)
			}
			filter.Kind = kind
		}

		sessions, err := st.ListSessions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "sessions")
		}
		if len(sessions) == 0 && output == "table" {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}
		return writeSessions(os.Stdout, sessions, output)
	},
}

func writeSessions(w io.Writer, sessions []model.ScrapeSession, format string) error {
	switch format {
	case "table", "":
		formatSessionsTable(w, sessions)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sessions); err != nil {
			return eris.Wrap(err, "sessions: encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func formatSessionsTable(w io.Writer, sessions []model.ScrapeSession) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTARTED\tDURATION\tCANDIDATES\tSCRAPED\tNEW\tSKIPPED\tERRORS\tSUCCESS")
	for _, s := range sessions {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0fs\t%d\t%d\t%d\t%d\t%d\t%t\n",
			id,
			s.Kind,
			s.StartedAt.Format("2006-01-02 15:04"),
			s.DurationSeconds,
			s.TotalCandidates,
			s.TotalScraped,
			s.NewRecords,
			s.Skipped,
			s.Errors,
			s.Success,
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	sessionsCmd.Flags().Int("limit", 20, "maximum sessions to list")
	sessionsCmd.Flags().String("kind", "", "only sessions of this kind (bids or awards)")
	sessionsCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(sessionsCmd)
}
