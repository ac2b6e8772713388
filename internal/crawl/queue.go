// Package crawl fetches batches of store pages with bounded concurrency,
// per-host circuit breakers and retries. URLs that never succeed come back
// as dead-letter entries instead of failing the batch.
package crawl

import (
	"context"
	"io"
	"net/url"
	"runtime"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/storemap/internal/fetcher"
	"github.com/sells-group/storemap/internal/resilience"
)

// maxBodyBytes caps a single page read.
const maxBodyBytes = 16 << 20

// Options configures a Queue.
type Options struct {
	Workers int // default: GOMAXPROCS
	Retry   resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
}

// Queue is shared by every source in a collect run so that breakers and
// host limits apply across sources.
type Queue struct {
	fetcher  fetcher.Fetcher
	workers  int
	retry    resilience.RetryConfig
	breakers *resilience.ServiceBreakers
}

// New creates a Queue on top of f.
func New(f fetcher.Fetcher, opts Options) *Queue {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	breaker := opts.Breaker
	if breaker.OnStateChange == nil {
		breaker.OnStateChange = func(host string, from, to resilience.CircuitState) {
			zap.L().Warn("crawl: circuit state change",
				zap.String("host", host),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &Queue{
		fetcher:  f,
		workers:  workers,
		retry:    opts.Retry,
		breakers: resilience.NewServiceBreakers(breaker),
	}
}

// Breakers exposes the per-host breakers for status reporting.
func (q *Queue) Breakers() *resilience.ServiceBreakers { return q.breakers }

// Fetch downloads one URL through the host's breaker, retrying transient
// failures.
func (q *Queue) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := q.fetch(ctx, rawURL, func(b []byte) ([]byte, error) { return b, nil })
	return body, err
}

func (q *Queue) fetch(ctx context.Context, rawURL string, parse func([]byte) ([]byte, error)) ([]byte, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 1, eris.Wrapf(err, "crawl: parse url %q", rawURL)
	}
	cb := q.breakers.Get(u.Host)

	cfg := q.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("crawl", rawURL)
	}

	attempts := 0
	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		attempts++
		raw, err := resilience.Call(ctx, cb, func(ctx context.Context) ([]byte, error) {
			rc, err := q.fetcher.Download(ctx, rawURL)
			if err != nil {
				return nil, err
			}
			defer rc.Close() //nolint:errcheck
			b, err := io.ReadAll(io.LimitReader(rc, maxBodyBytes))
			if err != nil {
				return nil, resilience.NewTransientError(eris.Wrapf(err, "crawl: read %s", rawURL), 0)
			}
			return b, nil
		})
		if err != nil {
			return nil, err
		}
		return parse(raw)
	})
	return body, attempts, err
}

// ParseFunc turns one downloaded page into a T. Errors that are not
// transient are not retried.
type ParseFunc[T any] func(pageURL string, body []byte) (T, error)

// Report is the outcome of Run. Items keeps the order of the input URLs
// with failed URLs left out.
type Report[T any] struct {
	Items  []T
	Failed []resilience.DLQEntry
}

// Run downloads and parses every URL using q's workers. It only returns an
// error when ctx ends; per-URL failures are reported in Report.Failed.
func Run[T any](ctx context.Context, q *Queue, source string, urls []string, parse ParseFunc[T]) (*Report[T], error) {
	log := zap.L().With(zap.String("component", "crawl"), zap.String("source", source))

	type slot struct {
		item T
		ok   bool
		dead *resilience.DLQEntry
	}
	slots := make([]slot, len(urls))
	var done, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.workers)
	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "crawl: cancelled")
			}

			var item T
			_, attempts, err := q.fetch(gctx, u, func(b []byte) ([]byte, error) {
				var perr error
				item, perr = parse(u, b)
				return b, perr
			})
			if err != nil {
				if gctx.Err() != nil {
					return eris.Wrap(gctx.Err(), "crawl: cancelled")
				}
				entry := resilience.NewDLQEntry(source, u, attempts, err)
				slots[i].dead = &entry
				failed.Add(1)
				log.Warn("page failed", zap.String("url", u), zap.Int("attempts", attempts), zap.Error(err))
				return nil
			}
			slots[i] = slot{item: item, ok: true}
			if n := done.Add(1); n%100 == 0 {
				log.Info("crawl progress", zap.Int64("done", n), zap.Int("total", len(urls)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report[T]{Items: make([]T, 0, done.Load())}
	for _, s := range slots {
		switch {
		case s.ok:
			rep.Items = append(rep.Items, s.item)
		case s.dead != nil:
			rep.Failed = append(rep.Failed, *s.dead)
		}
	}
	log.Info("crawl complete", zap.Int64("ok", done.Load()), zap.Int64("failed", failed.Load()))
	return rep, nil
}
