package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dungeonload/internal/report"
	"dungeonload/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show and delete recorded runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := historyStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.List(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded in", store.Path())
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tURL\tVUS\tREQS\tFAIL%\tP95 MS\tRESULT")
		for _, r := range runs {
			result := "pass"
			if !r.Passed() {
				result = "FAIL"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%.2f\t%.1f\t%s\n",
				r.ID,
				r.StartedAt.Local().Format(time.DateTime),
				r.Duration().Round(time.Second),
				r.BaseURL,
				r.MaxVUs,
				r.Summary.Requests,
				r.Summary.FailRate()*100,
				r.Summary.Duration.P95,
				result,
			)
		}
		return tw.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the summary of a recorded run (id or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := historyStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Target: %s (%s)\n", rec.BaseURL, rec.Variant)
		report.WriteText(cmd.OutOrStdout(), rec.Result())
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded run (id or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := historyStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Deleted", args[0])
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
	historyListCmd.Flags().IntP("limit", "n", 20, "Number of runs to list (0 lists all)")
	historyShowCmd.Flags().Bool("json", false, "Print the stored record as JSON")
}

func historyStore(cmd *cobra.Command) (*storage.Store, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if cfg.NoHistory {
		return nil, errors.New("run history is disabled")
	}
	path := cfg.HistoryDB
	if path == "" {
		if path, err = storage.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return storage.Open(path)
}
