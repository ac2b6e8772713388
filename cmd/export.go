package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored locations as a record table",
	Example: `  storemap export --chain lidl --out lidl.csv
  storemap export --source aldi_sued --format shp --out aldi_sued.shp`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		sourceName, _ := cmd.Flags().GetString("source")
		chainStr, _ := cmd.Flags().GetString("chain")
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")

		filter := store.LocationFilter{Source: sourceName}
		if chainStr != "" {
			c, err := model.ParseChain(chainStr)
			if err != nil {
				return err
			}
			filter.Chain = c
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		locs, err := listAll(ctx, st, filter)
		if err != nil {
			return err
		}
		if err := writeRecords(outPath, format, model.Addresses(locs)); err != nil {
			return err
		}
		zap.L().Info("exported locations",
			zap.Int("records", len(locs)),
			zap.String("format", format),
			zap.String("out", outPath),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("source", "", "only this source (e.g., aldi_nord)")
	exportCmd.Flags().String("chain", "", "only this chain: aldi, lidl")
	exportCmd.Flags().String("format", formatCSV, "output format: csv, xlsx, shp")
	exportCmd.Flags().String("out", stdio, "output file (- for stdout, csv only)")
	rootCmd.AddCommand(exportCmd)
}
