package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL",
	Short: "Download one upstream document with the crawler's client",
	Long: `Downloads URL with the configured user agent and host delay and writes
it to --out. Useful for capturing store-finder pages as test fixtures.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return eris.Wrapf(err, "fetch: create dir for %s", outPath)
		}

		n, err := newFetcher().DownloadToFile(cmd.Context(), args[0], outPath)
		if err != nil {
			return err
		}
		zap.L().Info("fetched", zap.String("url", args[0]), zap.String("out", outPath), zap.Int64("bytes", n))
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("out", "", "output file")
	_ = fetchCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(fetchCmd)
}
