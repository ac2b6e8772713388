package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "storemap",
	Short: "Discount store locator and nearest-competitor distances",
	Long: `Collects Aldi Nord, Aldi Süd and Lidl store addresses from the chains' store
finders, parses Bing map links into address records, saves them to SQLite or
Postgres and computes the WGS-84 distance from every Aldi store to the nearest
Lidl. Settings come from config.yaml, .env and STOREMAP_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		cfg = c

		zap.L().Debug("command starting", zap.String("command", cmd.CommandPath()))
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
