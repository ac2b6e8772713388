package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/storemap/internal/crawl"
	"github.com/sells-group/storemap/internal/fetcher"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/nearest"
	"github.com/sells-group/storemap/internal/resilience"
	"github.com/sells-group/storemap/internal/store"
	"github.com/sells-group/storemap/internal/table"
)

// stdio is the path that selects stdin or stdout.
const stdio = "-"

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// openInput opens path for reading; "-" or "" is stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == stdio {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// createOutput creates path for writing; "-" or "" is stdout.
func createOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == stdio {
		return nopWriteCloser{os.Stdout}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "create %s", path)
	}
	return f, nil
}

// initStore opens the configured store and brings its schema up to date.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: cfg.Crawl.UserAgent,
		Timeout:   cfg.Crawl.Timeout,
		HostDelay: cfg.Crawl.HostDelay,
	})
}

func newQueue() *crawl.Queue {
	return crawl.New(newFetcher(), crawl.Options{
		Workers: cfg.Crawl.Workers,
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Crawl.MaxAttempts,
			InitialBackoff: cfg.Crawl.InitialBackoff,
			MaxBackoff:     cfg.Crawl.MaxBackoff,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Crawl.BreakerFailures,
			ResetTimeout:     cfg.Crawl.BreakerReset,
		},
	})
}

func nearestOptions(strategy string) (nearest.Options, error) {
	if strategy == "" {
		strategy = cfg.Distance.Strategy
	}
	s, err := nearest.ParseStrategy(strategy)
	if err != nil {
		return nearest.Options{}, err
	}
	return nearest.Options{Strategy: s, Workers: cfg.Distance.Workers}, nil
}

// Record table formats accepted by --format.
const (
	formatCSV  = "csv"
	formatXLSX = "xlsx"
	formatSHP  = "shp"
)

// writeRecords writes addrs to path in format. XLSX and shapefile output
// need a real path.
func writeRecords(path, format string, addrs []model.GeoAddress) error {
	switch format {
	case formatCSV, "":
		out, err := createOutput(path)
		if err != nil {
			return err
		}
		if err := table.WriteRecordsCSV(out, addrs); err != nil {
			_ = out.Close()
			return err
		}
		return eris.Wrapf(out.Close(), "close %s", path)
	case formatXLSX, formatSHP:
		if path == "" || path == stdio {
			return eris.Errorf("--format %s needs an output file", format)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return eris.Wrapf(err, "create dir for %s", path)
		}
		if format == formatXLSX {
			return table.WriteRecordsXLSX(path, "", addrs)
		}
		return table.WriteShapefile(path, addrs)
	default:
		return eris.Errorf("unknown format %q (valid: csv, xlsx, shp)", format)
	}
}

// recordsExt returns the file extension for a record format.
func recordsExt(format string) string {
	switch format {
	case formatXLSX, formatSHP:
		return "." + format
	default:
		return ".csv"
	}
}
