package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/storemap/internal/nearest"
	"github.com/sells-group/storemap/internal/table"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a distances file",
	Long:  "Prints the count, minimum, maximum, mean and median of a file written by 'distances'.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		inPath, _ := cmd.Flags().GetString("in")
		format, _ := cmd.Flags().GetString("format")

		in, err := openInput(inPath)
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		distances, err := table.ReadDistances(in)
		if err != nil {
			return err
		}
		s, err := nearest.Summarize(distances)
		if err != nil {
			return err
		}
		return formatSummary(os.Stdout, s, format)
	},
}

func init() {
	statsCmd.Flags().String("in", stdio, "distances file (- for stdin)")
	statsCmd.Flags().String("format", "text", "output format: text, json, yaml")
	rootCmd.AddCommand(statsCmd)
}

// formatSummary writes s to w as text, JSON or YAML.
func formatSummary(w io.Writer, s nearest.Summary, format string) error {
	switch format {
	case "text", "":
		_, err := fmt.Fprintf(w, "Stores:          %d\n"+
			"Minimum distance: %.1f meters\n"+
			"Maximum distance: %.1f meters\n"+
			"Mean distance:    %.1f meters\n"+
			"Median distance:  %.1f meters\n",
			s.Count, s.Min, s.Max, s.Mean, s.Median)
		return eris.Wrap(err, "stats: write")
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(s), "stats: encode json")
	case "yaml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(s); err != nil {
			return eris.Wrap(err, "stats: encode yaml")
		}
		return eris.Wrap(enc.Close(), "stats: encode yaml")
	default:
		return eris.Errorf("stats: unknown format %q (valid: text, json, yaml)", format)
	}
}
