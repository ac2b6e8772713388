package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/archive"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/monitoring"
	"github.com/sells-group/storemap/internal/publish"
	"github.com/sells-group/storemap/internal/source"
	"github.com/sells-group/storemap/internal/store"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect store locations from the chains' store finders",
	Long: `Runs the store sources (aldi_nord, aldi_sued, lidl) and saves what they
find to the store. Raw upstream documents go to the archive and locations are
published when those are configured.

Use --chain or --sources to restrict the run, --out-dir to also write one
record table per source, and --no-store to skip the database.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("collect"); err != nil {
			return err
		}
		log := zap.L().With(zap.String("command", "collect"))

		opts, err := parseCollectOpts(cmd)
		if err != nil {
			return err
		}
		outDir, _ := cmd.Flags().GetString("out-dir")
		format, _ := cmd.Flags().GetString("format")
		noStore, _ := cmd.Flags().GetBool("no-store")

		var st store.Store
		if !noStore {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		log.Info("starting collect",
			zap.String("chain", string(opts.Chain)),
			zap.Strings("sources", opts.Sources),
		)
		rep, err := runCollect(ctx, st, opts)
		if err != nil {
			return err
		}

		if outDir != "" {
			if err := writeCollectTables(outDir, format, rep); err != nil {
				return err
			}
		}
		formatCollectReport(os.Stdout, rep)

		if rep.Synced == 0 && rep.Failed > 0 {
			return eris.Errorf("collect: all %d sources failed", rep.Failed)
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().String("chain", "", "restrict to chain: aldi, lidl")
	collectCmd.Flags().String("sources", "", "comma-separated source names (e.g., aldi_sued,lidl)")
	collectCmd.Flags().String("out-dir", "", "also write one record table per source into this directory")
	collectCmd.Flags().String("format", formatCSV, "record table format for --out-dir: csv, xlsx, shp")
	collectCmd.Flags().Bool("no-store", false, "do not save to the store")
	rootCmd.AddCommand(collectCmd)
}

// parseCollectOpts extracts source.RunOpts from the cobra command flags.
func parseCollectOpts(cmd *cobra.Command) (source.RunOpts, error) {
	chainStr, _ := cmd.Flags().GetString("chain")
	sourcesStr, _ := cmd.Flags().GetString("sources")

	opts := source.RunOpts{Timeout: cfg.Crawl.SourceTimeout}
	if chainStr != "" {
		c, err := model.ParseChain(chainStr)
		if err != nil {
			return source.RunOpts{}, err
		}
		opts.Chain = c
	}
	if sourcesStr != "" {
		opts.Sources = splitAndTrim(sourcesStr)
	}
	return opts, nil
}

// runCollect wires the archive, the publisher and the engine for one run
// and raises alerts for what went wrong.
// st may be nil.
func runCollect(ctx context.Context, st store.Store, opts source.RunOpts) (*source.Report, error) {
	arch, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}
	pub, err := publish.Open(cfg.Publish)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		defer func() {
			if err := pub.Close(); err != nil {
				zap.L().Warn("collect: close publisher", zap.Error(err))
			}
		}()
	}

	engine := source.NewEngine(source.NewDefaultRegistry(cfg.Sources), newQueue(), st, arch, pub)
	rep, err := engine.Run(ctx, opts)
	if err != nil {
		return nil, eris.Wrap(err, "collect")
	}

	alerter := monitoring.NewAlerter(cfg.Alerts)
	if alerts := alerter.Evaluate(rep); len(alerts) > 0 {
		for _, a := range alerts {
			zap.L().Warn("collect alert", zap.String("type", string(a.Type)), zap.String("message", a.Message))
		}
		alerter.SendAlerts(ctx, alerts)
	}
	return rep, nil
}

// writeCollectTables writes <out-dir>/<source>.<ext> for every source that
// succeeded.
func writeCollectTables(dir, format string, rep *source.Report) error {
	for _, o := range rep.Outcomes {
		if o.Result == nil {
			continue
		}
		path := filepath.Join(dir, o.Source+recordsExt(format))
		if err := writeRecords(path, format, model.Addresses(o.Result.Locations)); err != nil {
			return err
		}
		zap.L().Info("wrote record table", zap.String("path", path), zap.Int("records", len(o.Result.Locations)))
	}
	return nil
}

// formatCollectReport writes one row per source to w.
func formatCollectReport(out io.Writer, rep *source.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tCHAIN\tSTATUS\tLOCATIONS\tLINKS\tFAILED PAGES\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "------\t-----\t------\t---------\t-----\t------------\t--------\t-----")

	for _, o := range rep.Outcomes {
		status, locs, links, failed, errMsg := "ok", "-", "-", "-", ""
		if o.Err != nil {
			status = "failed"
			errMsg = o.Err.Error()
			if len(errMsg) > 60 {
				errMsg = errMsg[:57] + "..."
			}
		} else if o.Result != nil {
			locs = fmt.Sprint(len(o.Result.Locations))
			links = fmt.Sprint(len(o.Result.Links))
			failed = fmt.Sprint(len(o.Result.Failed))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Source, o.Chain, status, locs, links, failed, o.Elapsed.Round(time.Second), errMsg)
	}
	_ = w.Flush()
}
