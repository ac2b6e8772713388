package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/address"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/table"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse Bing map links into address records",
	Long: `Reads one Bing map link per line (as found on the Lidl store pages) and
writes a Street, Postalcode, City, Latitude, Longitude table. Links that do
not match the expected format are logged and, with --errors, written to a
file; they never stop the run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		inPath, _ := cmd.Flags().GetString("in")
		outPath, _ := cmd.Flags().GetString("out")
		format, _ := cmd.Flags().GetString("format")
		errPath, _ := cmd.Flags().GetString("errors")
		log := zap.L().With(zap.String("command", "parse"))

		in, err := openInput(inPath)
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		addrs, failed, err := parseLinks(in)
		if err != nil {
			return err
		}
		for _, f := range failed {
			log.Warn("unparsable map link", zap.String("link", f.Input), zap.String("reason", f.Reason))
		}
		if errPath != "" {
			if err := writeParseErrors(errPath, failed); err != nil {
				return err
			}
		}
		if err := writeRecords(outPath, format, addrs); err != nil {
			return err
		}

		log.Info("parse complete", zap.Int("parsed", len(addrs)), zap.Int("failed", len(failed)))
		return nil
	},
}

func init() {
	parseCmd.Flags().String("in", stdio, "map links file, one per line (- for stdin)")
	parseCmd.Flags().String("out", stdio, "output table (- for stdout)")
	parseCmd.Flags().String("format", formatCSV, "output format: csv, xlsx, shp")
	parseCmd.Flags().String("errors", "", "write unparsable links to this file")
	rootCmd.AddCommand(parseCmd)
}

func parseLinks(in io.Reader) ([]model.GeoAddress, []*address.AddressFormatError, error) {
	links, err := table.ReadLines(in)
	if err != nil {
		return nil, nil, err
	}
	addrs, failed := address.Split(address.ParseMapLinks(links))
	return addrs, failed, nil
}

func writeParseErrors(path string, failed []*address.AddressFormatError) error {
	out, err := createOutput(path)
	if err != nil {
		return err
	}
	lines := make([]string, len(failed))
	for i, f := range failed {
		lines[i] = f.Input
	}
	if err := table.WriteLines(out, lines); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
