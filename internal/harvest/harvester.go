// Package harvest drives the sweep: for every target it walks the size
// domain bucket by bucket, probing and narrowing until a bucket fits under
// the page ceiling, fetching its pages, recording the identifiers and
// resizing the next bucket from what came back.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/slsharvest/internal/artifact"
	"github.com/FranksOps/slsharvest/internal/metrics"
	"github.com/FranksOps/slsharvest/internal/partition"
	"golang.org/x/sync/errgroup"
)

// Config provides parameters for a sweep.
type Config struct {
	Targets     []Target
	MinInterval int64
	MaxInterval int64
	LowResults  int
	// Concurrency bounds how many targets run at once (0 or 1 = sequential).
	Concurrency int
	// CombinedPath is where the canonical URL list is written.
	CombinedPath string
}

// TargetReport summarizes one target's sweep.
type TargetReport struct {
	Target        Target
	Buckets       int
	Identifiers   int
	Narrowed      int
	Capped        int
	FinalInterval int64
	// Err is set when the target was aborted, e.g. by a degenerate bucket.
	Err error
}

// Report summarizes a sweep.
type Report struct {
	Targets []TargetReport
	URLs    []string
}

// planner is the bucket arithmetic a target walks. partition.Partitioner
// implements it.
type planner interface {
	Start() partition.State
	Bucket(s partition.State) (partition.Bucket, bool, error)
	Narrow(s partition.State) (partition.State, bool)
	Step(s partition.State, used partition.Bucket, fb partition.Feedback) (partition.State, partition.Bucket, bool, error)
}

// Harvester coordinates the sweep across targets.
type Harvester struct {
	cfg     Config
	fetcher *Fetcher
	results *artifact.ResultWriter
	logger  *slog.Logger
	plan    func(Target) (planner, error)
}

// New creates a Harvester.
func New(cfg Config, fetcher *Fetcher, results *artifact.ResultWriter, logger *slog.Logger) (*Harvester, error) {
	if fetcher == nil || results == nil {
		return nil, errors.New("harvest: fetcher and result writer are required")
	}
	if len(cfg.Targets) == 0 {
		return nil, errors.New("harvest: no targets")
	}
	if cfg.CombinedPath == "" {
		return nil, errors.New("harvest: combined output path is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Harvester{cfg: cfg, fetcher: fetcher, results: results, logger: logger}
	h.plan = h.partitioner
	return h, nil
}

func (h *Harvester) partitioner(t Target) (planner, error) {
	return partition.New(partition.Config{
		Lower:       t.Lower,
		Upper:       t.Upper,
		MinInterval: h.cfg.MinInterval,
		MaxInterval: h.cfg.MaxInterval,
		LowResults:  h.cfg.LowResults,
	})
}

// Run sweeps every target and then merges the artifacts. Degraded pages and
// aborted targets are reported, not returned; the error is non-nil only for
// cancellation or an artifact write failure.
func (h *Harvester) Run(ctx context.Context) (Report, error) {
	reports := make([]TargetReport, len(h.cfg.Targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Concurrency)
	for i, t := range h.cfg.Targets {
		g.Go(func() error {
			rep, err := h.harvestTarget(gctx, t)
			reports[i] = rep
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Report{Targets: reports}, err
	}

	urls, err := artifact.Finalize(h.results.Paths(), h.cfg.CombinedPath, h.logger)
	if err != nil {
		return Report{Targets: reports}, fmt.Errorf("harvest: finalize: %w", err)
	}
	return Report{Targets: reports, URLs: urls}, nil
}

func (h *Harvester) harvestTarget(ctx context.Context, t Target) (TargetReport, error) {
	rep := TargetReport{Target: t}
	logger := h.logger.With("target", t.Filename)

	p, err := h.plan(t)
	if err != nil {
		logger.Warn("target aborted", "err", err)
		rep.Err = err
		return rep, nil
	}

	if _, err := h.results.Begin(t.Filename); err != nil {
		if errors.Is(err, artifact.ErrCollision) {
			logger.Warn("target aborted", "err", err)
			rep.Err = err
			return rep, nil
		}
		return rep, err
	}

	logger.Info("target started", "lower", t.Lower, "upper", t.Upper)
	state := p.Start()
	b, ok, err := p.Bucket(state)
	ceiling := h.fetcher.PageCeiling()

	for ok && err == nil {
		metrics.SetInterval(t.Filename, state.Interval)

		pages, perr := h.fetcher.Probe(ctx, t, b)
		if perr != nil {
			return rep, perr
		}
		for pages >= ceiling {
			narrowed, changed := p.Narrow(state)
			if !changed {
				rep.Capped++
				logger.Warn("page ceiling reached at minimum interval, accepting capped bucket",
					"range", b.Range(), "pages", pages, "ceiling", ceiling)
				break
			}
			state = narrowed
			rep.Narrowed++
			metrics.RecordNarrow(t.Filename)

			b, _, err = p.Bucket(state)
			if err != nil {
				break
			}
			logger.Debug("bucket narrowed", "range", b.Range(), "interval", state.Interval)
			if pages, perr = h.fetcher.Probe(ctx, t, b); perr != nil {
				return rep, perr
			}
		}
		if err != nil {
			break
		}

		out, ferr := h.fetcher.FetchPages(ctx, t, b, pages)
		if ferr != nil {
			return rep, ferr
		}
		if err := h.results.RecordBucket(t.Filename, b, out.IDs); err != nil {
			return rep, err
		}
		metrics.RecordBucket(t.Filename, out.HitCeiling)
		rep.Buckets++
		rep.Identifiers += len(out.IDs)

		state, b, ok, err = p.Step(state, b, partition.Feedback{Results: out.Results, HitCeiling: out.HitCeiling})
	}

	rep.FinalInterval = state.Interval
	if err != nil {
		logger.Warn("target aborted", "err", err, "offset", state.Offset, "interval", state.Interval)
		rep.Err = err
		return rep, nil
	}

	logger.Info("target finished",
		"buckets", rep.Buckets,
		"identifiers", rep.Identifiers,
		"narrowed", rep.Narrowed,
		"capped", rep.Capped,
		"interval", rep.FinalInterval,
	)
	return rep, nil
}
