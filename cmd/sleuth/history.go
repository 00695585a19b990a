package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bytesleuth/sleuth/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagHistoryDB     string
	flagHistorySHA256 string
	flagHistoryLimit  int
	flagHistoryJSON   bool
)

func init() {
	f := historyCmd.Flags()
	f.StringVar(&flagHistoryDB, "db", "", "SQLite file with recorded reports, defaults to output.database")
	f.StringVar(&flagHistorySHA256, "sha256", "", "show the full reports of a blob with this digest")
	f.IntVar(&flagHistoryLimit, "limit", 20, "number of latest reports to list")
	f.BoolVar(&flagHistoryJSON, "json", false, "print records as JSON")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "history lists reports recorded by analyze --db",
	Args:  cobra.NoArgs,
	RunE:  doHistory,
}

func doHistory(cmd *cobra.Command, _ []string) error {
	path := config.Output.Database
	if flagHistoryDB != "" {
		path = flagHistoryDB
	}
	if path == "" {
		return errors.New("no report database, use --db or output.database")
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("opening report database: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()

	var recs []store.Record
	if flagHistorySHA256 != "" {
		recs, err = st.Lookup(ctx, flagHistorySHA256)
	} else {
		recs, err = st.List(ctx, flagHistoryLimit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagHistoryJSON || flagHistorySHA256 != "" {
		if recs == nil {
			recs = []store.Record{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tANALYZED\tWORST\tFINDINGS\tSHA256\tPATH")
	for _, r := range recs {
		worst := r.Worst
		if worst == "" {
			worst = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.12s\t%s\n",
			r.ID, r.AnalyzedAt.Local().Format(time.DateTime), worst, r.Findings, r.SHA256, r.Path)
	}
	return tw.Flush()
}
