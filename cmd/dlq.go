package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and clear pages that failed during collection",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered pages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListDLQ(ctx, dlqFilter(cmd))
		if err != nil {
			return err
		}
		formatDLQEntries(os.Stdout, entries)
		return nil
	},
}

var dlqClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete dead-lettered pages matching the filter",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListDLQ(ctx, dlqFilter(cmd))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := st.DeleteDLQ(ctx, e.ID); err != nil {
				return err
			}
		}
		zap.L().Info("cleared dead letters", zap.Int("deleted", len(entries)))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{dlqListCmd, dlqClearCmd} {
		c.Flags().String("source", "", "only this source")
		c.Flags().String("type", "", "only this error type: transient, permanent")
		c.Flags().Int("limit", 100, "maximum entries")
		dlqCmd.AddCommand(c)
	}
	rootCmd.AddCommand(dlqCmd)
}

func dlqFilter(cmd *cobra.Command) resilience.DLQFilter {
	src, _ := cmd.Flags().GetString("source")
	typ, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	return resilience.DLQFilter{Source: src, ErrorType: typ, Limit: limit}
}

// formatDLQEntries writes dead letters as a table.
func formatDLQEntries(out io.Writer, entries []resilience.DLQEntry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "No dead letters.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tTYPE\tATTEMPTS\tLAST FAILED\tURL\tERROR")
	for _, e := range entries {
		msg := e.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.Source, e.ErrorType, e.Attempts, e.LastFailedAt.Format("2006-01-02 15:04"), e.URL, msg)
	}
	_ = w.Flush()
}
