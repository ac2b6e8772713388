package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/api"
	"github.com/sells-group/storemap/internal/source"
	"github.com/sells-group/storemap/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the dedup, parse, nearest and locations endpoints. When
schedule.cron is set (or --schedule is given), collection also runs
periodically in the background.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if expr, _ := cmd.Flags().GetString("schedule"); expr != "" {
			cfg.Schedule.Cron = expr
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		opts, err := nearestOptions("")
		if err != nil {
			return err
		}
		handler := api.NewRouter(st, api.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Nearest:        opts,
		})

		if cfg.Schedule.Cron != "" {
			sched, err := startSchedule(ctx, st, cfg.Schedule.Cron, cfg.Schedule.Sources)
			if err != nil {
				return err
			}
			defer func() { <-sched.Stop().Done() }()
		}

		return startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().String("schedule", "", "cron expression for background collection (overrides schedule.cron)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves handler on port until ctx is done, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	<-done
	return nil
}

// startSchedule runs collection on expr until ctx is done. A run that is
// still going when the next one is due is skipped.
func startSchedule(ctx context.Context, st store.Store, expr string, sources []string) (*cron.Cron, error) {
	log := zap.L().With(zap.String("component", "schedule"))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	_, err := c.AddFunc(expr, func() {
		if ctx.Err() != nil {
			return
		}
		log.Info("scheduled collect starting", zap.Strings("sources", sources))
		rep, err := runCollect(ctx, st, source.RunOpts{
			Sources: sources,
			Timeout: cfg.Crawl.SourceTimeout,
		})
		if err != nil {
			log.Error("scheduled collect failed", zap.Error(err))
			return
		}
		log.Info("scheduled collect complete",
			zap.Int64("synced", rep.Synced),
			zap.Int64("failed", rep.Failed),
			zap.Int("locations", len(rep.Locations())),
		)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: parse %q", expr)
	}
	c.Start()
	log.Info("collection scheduled", zap.String("cron", expr))
	return c, nil
}
