package source

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/storemap/internal/archive"
	"github.com/sells-group/storemap/internal/crawl"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/publish"
	"github.com/sells-group/storemap/internal/store"
)

// maxParallelSources bounds how many sources crawl at once. Sources share
// the queue's workers, so this mostly limits memory.
const maxParallelSources = 3

// Engine runs selected sources and hands their results to the store, the
// archive and the publisher. Any of the three may be nil.
type Engine struct {
	reg       *Registry
	queue     *crawl.Queue
	store     store.Store
	archive   archive.Archiver
	publisher publish.Publisher
}

// NewEngine creates a new engine.
func NewEngine(reg *Registry, queue *crawl.Queue, st store.Store, arch archive.Archiver, pub publish.Publisher) *Engine {
	return &Engine{
		reg:       reg,
		queue:     queue,
		store:     st,
		archive:   arch,
		publisher: pub,
	}
}

// RunOpts selects the sources to run.
type RunOpts struct {
	Chain   model.Chain   // restrict to one chain
	Sources []string      // restrict to specific source names
	Timeout time.Duration // per source; 0 for none
}

// Outcome is the result of one source in a run.
type Outcome struct {
	Source  string
	Chain   model.Chain
	Result  *Result // nil when Err is set
	Err     error
	Elapsed time.Duration
}

// Report summarizes a run. Outcomes follow registry order.
type Report struct {
	RunAt    time.Time
	Outcomes []Outcome
	Synced   int64
	Failed   int64
}

// Locations returns every collected location of the run.
func (r *Report) Locations() []model.Location {
	var out []model.Location
	for _, o := range r.Outcomes {
		if o.Result != nil {
			out = append(out, o.Result.Locations...)
		}
	}
	return out
}

// ChainLocations returns the collected locations of one chain.
func (r *Report) ChainLocations(chain model.Chain) []model.Location {
	var out []model.Location
	for _, o := range r.Outcomes {
		if o.Result != nil && o.Chain == chain {
			out = append(out, o.Result.Locations...)
		}
	}
	return out
}

// Run collects from the selected sources in parallel. A failing source is
// logged and counted but does not stop the others; only an invalid selection
// or ctx ending returns an error.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*Report, error) {
	log := zap.L().With(zap.String("component", "source.engine"))

	sources, err := e.reg.Select(opts.Chain, opts.Sources)
	if err != nil {
		return nil, err
	}
	rep := &Report{RunAt: time.Now().UTC(), Outcomes: make([]Outcome, len(sources))}
	if len(sources) == 0 {
		log.Info("no sources selected")
		return rep, nil
	}
	log.Info("selected sources", zap.Int("count", len(sources)))

	var synced, failed atomic.Int64
	var storeMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSources)
	for i, s := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "engine: cancelled")
			}
			sLog := log.With(zap.String("source", s.Name()), zap.String("chain", string(s.Chain())))
			sLog.Info("starting collect")

			runCtx, cancel := gctx, context.CancelFunc(func() {})
			if opts.Timeout > 0 {
				runCtx, cancel = context.WithTimeout(gctx, opts.Timeout)
			}
			start := time.Now()
			res, err := s.Collect(runCtx, Env{Queue: e.queue})
			cancel()
			out := Outcome{Source: s.Name(), Chain: s.Chain(), Elapsed: time.Since(start)}

			if err == nil {
				storeMu.Lock()
				err = e.persist(gctx, s.Name(), res)
				storeMu.Unlock()
			}
			if err != nil {
				if ctx.Err() != nil {
					return eris.Wrap(ctx.Err(), "engine: cancelled")
				}
				sLog.Error("collect failed", zap.Error(err), zap.Duration("elapsed", out.Elapsed))
				out.Err = err
				rep.Outcomes[i] = out
				failed.Add(1)
				return nil
			}

			e.archiveDocuments(gctx, sLog, s.Name(), rep.RunAt, res.Documents)
			if e.publisher != nil && len(res.Locations) > 0 {
				if err := e.publisher.Publish(gctx, res.Locations); err != nil {
					sLog.Warn("publish failed", zap.Error(err))
				}
			}

			sLog.Info("collect complete",
				zap.Int("locations", len(res.Locations)),
				zap.Int("links", len(res.Links)),
				zap.Int("failed_pages", len(res.Failed)),
				zap.Duration("elapsed", out.Elapsed),
			)
			out.Result = res
			rep.Outcomes[i] = out
			synced.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.Synced, rep.Failed = synced.Load(), failed.Load()
	log.Info("engine run complete", zap.Int64("synced", rep.Synced), zap.Int64("failed", rep.Failed))
	return rep, nil
}

func (e *Engine) persist(ctx context.Context, name string, res *Result) error {
	if e.store == nil {
		return nil
	}
	if len(res.Locations) > 0 {
		if _, err := e.store.SaveLocations(ctx, res.Locations); err != nil {
			return eris.Wrapf(err, "engine: save locations for %s", name)
		}
	}
	if len(res.Links) > 0 {
		if _, err := e.store.SaveLinks(ctx, name, res.Links); err != nil {
			return eris.Wrapf(err, "engine: save links for %s", name)
		}
	}
	if len(res.Failed) > 0 {
		if err := e.store.EnqueueDLQ(ctx, res.Failed...); err != nil {
			return eris.Wrapf(err, "engine: enqueue dead letters for %s", name)
		}
	}
	return nil
}

func (e *Engine) archiveDocuments(ctx context.Context, log *zap.Logger, name string, runAt time.Time, docs []Document) {
	if e.archive == nil {
		return
	}
	for _, d := range docs {
		key := archive.Key(name, runAt, d.Name)
		if err := e.archive.Put(ctx, key, d.Body, d.ContentType); err != nil {
			log.Warn("archive failed", zap.String("key", key), zap.Error(err))
		}
	}
}
