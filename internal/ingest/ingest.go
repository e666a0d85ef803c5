package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/zugdienste/internal/config"
	"github.com/roach88/zugdienste/internal/ir"
	"github.com/roach88/zugdienste/internal/scan"
	"github.com/roach88/zugdienste/internal/store"
	"github.com/roach88/zugdienste/internal/zusi"
)

// Deps are the collaborators of a run. Zero fields get production defaults.
type Deps struct {
	Logger *slog.Logger
	Clock  Clock
	RunIDs RunIDGenerator
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.RunIDs == nil {
		d.RunIDs = UUIDv7Generator{}
	}
	return d
}

// Run performs one scan with cfg.
//
// The returned error is non-nil only when the run failed as a whole: a
// fatal configuration, root or store error (see IsFatal), a failure to
// record the run, or cancellation. Per-file problems are counted in the
// Summary instead. The Summary is valid in every case.
func Run(ctx context.Context, cfg config.Config, deps Deps) (Summary, error) {
	deps = deps.withDefaults()
	r := &runner{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger,
		metrics: newMetrics(),
		summary: Summary{
			State:    StateIdle,
			Database: cfg.Database,
			Reasons:  map[string]int64{},
		},
	}
	return r.run(ctx)
}

type runner struct {
	cfg     config.Config
	deps    Deps
	log     *slog.Logger
	metrics *metrics
	store   *store.Store
	extract *zusi.Extractor
	summary Summary
}

func (r *runner) transition(s State) {
	r.log.Debug("scan state", "from", r.summary.State, "to", s)
	r.summary.State = s
}

func (r *runner) fail(err error) (Summary, error) {
	r.transition(StateFailed)
	return r.summary, err
}

func (r *runner) run(ctx context.Context) (Summary, error) {
	r.transition(StateResolvingPaths)

	// Roots are resolved before the store is opened, so a bad installation
	// path never creates a database file.
	roots, err := scan.Resolve(r.cfg, r.log)
	if err != nil {
		return r.fail(err)
	}
	for _, root := range roots.All() {
		r.summary.Roots = append(r.summary.Roots, root.Path)
	}

	classifier, err := zusi.NewClassifier(0)
	if err != nil {
		return r.fail(fmt.Errorf("new classifier: %w", err))
	}
	r.extract, err = zusi.NewExtractor(zusi.Options{
		ServiceSuffix:     r.cfg.ServiceSuffix,
		TrainSuffix:       r.cfg.TrainSuffix,
		ExclusionKeywords: r.cfg.ExclusionKeywords,
	}, classifier)
	if err != nil {
		return r.fail(err)
	}

	r.store, err = store.Open(r.cfg.Database)
	if err != nil {
		return r.fail(err)
	}
	defer func() {
		if closeErr := r.store.Close(); closeErr != nil {
			r.log.Error("error closing database", "path", r.cfg.Database, "error", closeErr)
		}
	}()

	r.summary.RunID = r.deps.RunIDs.Generate()
	r.summary.StartedAt = r.deps.Clock.Now()
	r.summary.Status = ir.RunStatusRunning
	if err := r.store.BeginRun(ctx, r.summary.scanRun(r.summary.StartedAt)); err != nil {
		return r.fail(err)
	}

	r.log.Info("scan started",
		"run_id", r.summary.RunID,
		"roots", r.summary.Roots,
		"database", r.cfg.Database,
		"workers", r.workers(),
	)

	r.transition(StateWalking)
	pipeErr := r.pipeline(ctx, roots)

	if pipeErr == nil && r.cfg.Prune {
		r.prune(ctx, roots)
	}

	return r.finish(ctx, pipeErr)
}

func (r *runner) workers() int {
	switch {
	case r.cfg.Workers < 1:
		return 1
	case r.cfg.Workers > config.MaxWorkers:
		return config.MaxWorkers
	default:
		return r.cfg.Workers
	}
}

// pipeline walks every root and writes each outcome. It returns only the
// cancellation error.
func (r *runner) pipeline(ctx context.Context, roots scan.Roots) error {
	walkOpts := scan.OptionsFromConfig(r.cfg, r.log)

	if r.workers() == 1 {
		for _, root := range roots.All() {
			for entry := range scan.Walk(ctx, root, walkOpts) {
				if entry.Kind == scan.KindCompanion {
					continue
				}
				o := r.process(entry)
				if ctx.Err() != nil {
					break
				}
				r.write(ctx, o)
			}
		}
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	entries := make(chan scan.Entry)
	outcomes := make(chan Outcome, r.workers())

	g.Go(func() error {
		defer close(entries)
		for _, root := range roots.All() {
			for entry := range scan.Walk(gctx, root, walkOpts) {
				if entry.Kind == scan.KindCompanion {
					continue
				}
				select {
				case entries <- entry:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return gctx.Err()
	})

	var workers sync.WaitGroup
	for range r.workers() {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for entry := range entries {
				select {
				case outcomes <- r.process(entry):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		workers.Wait()
		close(outcomes)
		return nil
	})

	// Single writer: the store is only touched from this goroutine.
	for o := range outcomes {
		if ctx.Err() != nil {
			continue
		}
		r.write(ctx, o)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// process extracts one entry. It never returns an error: every failure
// becomes an Outcome.
func (r *runner) process(entry scan.Entry) Outcome {
	if entry.Kind != scan.KindService {
		return Outcome{
			Kind: OutcomeSkipped,
			Path: entry.Path,
			Err:  &zusi.ParseError{Path: entry.Path, Err: zusi.ErrUnrecognizedFormat},
		}
	}

	r.log.Debug("scan state", "state", StateExtracting, "path", entry.Path)
	rec, err := r.extract.Extract(zusi.Source{
		Path:   entry.Path,
		Rel:    entry.Rel,
		Origin: entry.Root.Origin,
	})
	return Outcome{Kind: Classify(err), Path: entry.Path, Record: rec, Err: err}
}

// write applies one outcome to the store and the counters.
func (r *runner) write(ctx context.Context, o Outcome) {
	r.summary.Scanned++
	r.metrics.files.WithLabelValues(o.Kind.String()).Inc()

	switch o.Kind {
	case OutcomeOK:
		r.log.Debug("scan state", "state", StateWriting, "path", o.Path)
		res, err := r.store.UpsertService(ctx, o.Record, r.summary.RunID, r.deps.Clock.Now())
		if err != nil {
			r.summary.Failed++
			r.summary.Reasons["write_error"]++
			r.metrics.upserts.WithLabelValues("error").Inc()
			r.log.Error("failed to write service", "path", o.Path, "reason", "write_error", "error", err)
			return
		}
		r.metrics.upserts.WithLabelValues(res.String()).Inc()
		switch res {
		case store.Inserted:
			r.summary.Inserted++
		case store.Updated:
			r.summary.Updated++
		case store.Unchanged:
			r.summary.Unchanged++
		}

	case OutcomeExcluded:
		r.summary.Excluded++
		r.log.Debug("excluded service", "path", o.Path, "error", o.Err)

	default:
		reason := zusi.Reason(o.Err)
		r.summary.Skipped++
		r.summary.Reasons[reason]++
		r.metrics.skips.WithLabelValues(reason).Inc()
		if errors.Is(o.Err, zusi.ErrUnrecognizedFormat) {
			r.log.Debug("skipping file", "path", o.Path, "reason", reason)
			return
		}
		r.log.Warn("skipping file", "path", o.Path, "reason", reason, "error", o.Err)
	}
}

func (r *runner) prune(ctx context.Context, roots scan.Roots) {
	var prefixes []string
	for _, root := range roots.All() {
		prefixes = append(prefixes, filepath.ToSlash(filepath.Clean(root.Path)))
	}

	n, err := r.store.Prune(ctx, prefixes, r.summary.RunID)
	r.summary.Pruned = n
	r.metrics.pruned.Add(float64(n))
	if err != nil {
		r.log.Error("failed to prune stale services", "error", err)
		return
	}
	if n > 0 {
		r.log.Info("pruned stale services", "count", n)
	}
}

// finish records the run and writes the metrics file. It runs even after
// cancellation so the scan_runs row reflects what was committed. Only
// cancellation and a failure to record the run are returned.
func (r *runner) finish(ctx context.Context, pipeErr error) (Summary, error) {
	ctx = context.WithoutCancel(ctx)

	finishedAt := r.deps.Clock.Now()
	r.summary.Duration = finishedAt.Sub(r.summary.StartedAt)
	r.summary.Status = ir.RunStatusDone
	if pipeErr != nil {
		r.summary.Status = ir.RunStatusInterrupted
	}

	var errs []error
	if pipeErr != nil {
		errs = append(errs, fmt.Errorf("scan interrupted: %w", pipeErr))
	}
	if err := r.store.FinishRun(ctx, r.summary.scanRun(finishedAt)); err != nil {
		errs = append(errs, err)
	}

	if n, err := r.store.CountServices(ctx); err == nil {
		r.metrics.services.Set(float64(n))
	}
	r.metrics.duration.Set(r.summary.Duration.Seconds())
	r.metrics.finished.Set(float64(finishedAt.Unix()))

	// The metrics file is optional output; failing to write it does not
	// fail the scan.
	if r.cfg.MetricsFile != "" {
		if err := r.metrics.writeTextfile(r.cfg.MetricsFile); err != nil {
			r.log.Error("failed to write metrics file", "path", r.cfg.MetricsFile, "error", err)
		}
	}

	r.log.Info("scan finished",
		"run_id", r.summary.RunID,
		"status", r.summary.Status,
		"scanned", r.summary.Scanned,
		"ingested", r.summary.Ingested(),
		"unchanged", r.summary.Unchanged,
		"skipped", r.summary.Skipped,
		"excluded", r.summary.Excluded,
		"failed", r.summary.Failed,
		"pruned", r.summary.Pruned,
	)

	r.transition(StateDone)
	return r.summary, errors.Join(errs...)
}
