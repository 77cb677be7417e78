package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/slsharvest/internal/artifact"
	"github.com/FranksOps/slsharvest/internal/metrics"
	"github.com/FranksOps/slsharvest/internal/partition"
	"github.com/FranksOps/slsharvest/internal/search"
	"github.com/FranksOps/slsharvest/internal/storage"
	"github.com/google/uuid"
)

// DefaultPageCeiling is the deepest page the search API will serve for one
// query at 100 hits per page.
const DefaultPageCeiling = 10

// Target is one filename swept across a size domain.
type Target struct {
	Filename string
	Lower    int64
	Upper    int64
}

// Query returns the search query for bucket b of the target.
func (t Target) Query(b partition.Bucket) search.Query {
	return search.Query{Filename: t.Filename, MinSize: b.Start, MaxSize: b.End}
}

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Client      *search.Client
	PageCeiling int
	// Diagnostics receives malformed bodies. Nil disables dumps.
	Diagnostics *artifact.Diagnostics
	// Backend is the fetch ledger. Nil disables it.
	Backend storage.Backend
	RunID   string
}

// Outcome is what one bucket yielded.
type Outcome struct {
	IDs        []string
	Results    int
	HitCeiling bool
	// Pages is the last page reported by the probe.
	Pages int
	// Malformed and Failed count pages that contributed nothing.
	Malformed int
	Failed    int
}

// Fetcher probes and retrieves the pages of one bucket. Per-request
// failures never escape it: they are logged, recorded and counted as zero
// identifiers. Only context cancellation is returned as an error.
type Fetcher struct {
	cfg    FetchConfig
	logger *slog.Logger
}

// NewFetcher validates cfg and returns a Fetcher.
func NewFetcher(cfg FetchConfig, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Client == nil {
		return nil, errors.New("harvest: search client is required")
	}
	if cfg.PageCeiling <= 0 {
		cfg.PageCeiling = DefaultPageCeiling
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{cfg: cfg, logger: logger}, nil
}

// PageCeiling returns the page ceiling in effect.
func (f *Fetcher) PageCeiling() int {
	return f.cfg.PageCeiling
}

// Fetch probes the bucket and then retrieves its pages.
func (f *Fetcher) Fetch(ctx context.Context, t Target, b partition.Bucket) (Outcome, error) {
	pages, err := f.Probe(ctx, t, b)
	if err != nil {
		return Outcome{}, err
	}
	return f.FetchPages(ctx, t, b, pages)
}

// Probe returns the number of result pages for the bucket. A failed probe
// counts as a single page.
func (f *Fetcher) Probe(ctx context.Context, t Target, b partition.Bucket) (int, error) {
	pages, resp, err := f.cfg.Client.Probe(ctx, t.Query(b))
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	rec := f.newRecord(storage.KindProbe, t, b, 0, resp)
	rec.Pages = pages
	if err != nil {
		rec.Outcome = classify(err)
		rec.Error = err.Error()
		pages = 1
		f.logger.Warn("probe failed, assuming one page", "target", t.Filename, "range", b.Range(), "err", err)
	}
	f.record(ctx, rec)

	f.logger.Debug("probed bucket", "target", t.Filename, "range", b.Range(), "pages", pages)
	return pages, nil
}

// FetchPages retrieves pages 1..min(maxPage, PageCeiling) in order.
func (f *Fetcher) FetchPages(ctx context.Context, t Target, b partition.Bucket, maxPage int) (Outcome, error) {
	if maxPage < 1 {
		maxPage = 1
	}
	out := Outcome{
		Pages:      maxPage,
		HitCeiling: maxPage >= f.cfg.PageCeiling,
	}
	last := min(maxPage, f.cfg.PageCeiling)
	q := t.Query(b)

	for k := 1; k <= last; k++ {
		page, err := f.cfg.Client.FetchPage(ctx, q, k)
		if ctx.Err() != nil {
			out.Results = len(out.IDs)
			return out, ctx.Err()
		}

		rec := f.newRecord(storage.KindPage, t, b, k, page.Response)
		switch {
		case err == nil:
			out.IDs = append(out.IDs, page.IDs...)
			rec.Items = len(page.IDs)
			if page.Incomplete {
				f.logger.Warn("search reported incomplete results", "target", t.Filename, "range", b.Range(), "page", k)
			}
		case errors.Is(err, search.ErrMalformed):
			out.Malformed++
			rec.Outcome = storage.OutcomeMalformed
			rec.Error = err.Error()
			f.dump(t, b, k, page.Body, err)
		default:
			out.Failed++
			rec.Outcome = classify(err)
			rec.Error = err.Error()
			f.logger.Warn("page fetch failed", "target", t.Filename, "range", b.Range(), "page", k, "status", page.StatusCode, "err", err)
		}
		f.record(ctx, rec)
	}

	out.Results = len(out.IDs)
	f.logger.Info("bucket fetched",
		"target", t.Filename,
		"range", b.Range(),
		"pages", last,
		"results", out.Results,
		"hit_ceiling", out.HitCeiling,
	)
	return out, nil
}

// VerifyCredential checks the credential once. A rejected credential is an
// error unless tolerant is set, in which case the credential is dropped and
// the run continues unauthenticated.
func (f *Fetcher) VerifyCredential(ctx context.Context, tolerant bool) error {
	start := time.Now()
	login, err := f.cfg.Client.VerifyCredential(ctx)

	rec := f.newRecord(storage.KindAuth, Target{}, partition.Bucket{}, 0, search.Response{Duration: time.Since(start)})
	if err != nil {
		rec.Outcome = classify(err)
		rec.Error = err.Error()
	}
	f.record(ctx, rec)

	if err == nil {
		f.logger.Info("credential verified", "login", login)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !tolerant {
		return fmt.Errorf("harvest: verify credential: %w", err)
	}

	f.logger.Warn("credential check failed, continuing unauthenticated", "err", err)
	f.cfg.Client.DropCredential()
	return nil
}

func (f *Fetcher) dump(t Target, b partition.Bucket, page int, body []byte, cause error) {
	if f.cfg.Diagnostics == nil {
		f.logger.Error("malformed page", "target", t.Filename, "range", b.Range(), "page", page, "err", cause)
		return
	}
	path, err := f.cfg.Diagnostics.Dump(t.Filename, b, page, body)
	if err != nil {
		f.logger.Error("malformed page, dump failed", "target", t.Filename, "range", b.Range(), "page", page, "err", cause, "dump_err", err)
		return
	}
	f.logger.Error("malformed page", "target", t.Filename, "range", b.Range(), "page", page, "err", cause, "dump", path)
}

func (f *Fetcher) newRecord(kind storage.Kind, t Target, b partition.Bucket, page int, resp search.Response) *storage.PageRecord {
	return &storage.PageRecord{
		ID:         uuid.New().String(),
		RunID:      f.cfg.RunID,
		Kind:       kind,
		Filename:   t.Filename,
		RangeStart: b.Start,
		RangeEnd:   b.End,
		Page:       page,
		StatusCode: resp.StatusCode,
		Outcome:    storage.OutcomeOK,
		Duration:   resp.Duration,
		CreatedAt:  time.Now().UTC(),
	}
}

func (f *Fetcher) record(ctx context.Context, rec *storage.PageRecord) {
	metrics.RecordRequest(rec)
	if f.cfg.Backend == nil {
		return
	}
	if err := f.cfg.Backend.Save(ctx, rec); err != nil {
		f.logger.Error("failed to save ledger record", "kind", rec.Kind, "target", rec.Filename, "err", err)
	}
}

func classify(err error) storage.Outcome {
	switch {
	case errors.Is(err, search.ErrMalformed):
		return storage.OutcomeMalformed
	case errors.Is(err, search.ErrStatus), errors.Is(err, search.ErrUnauthorized):
		return storage.OutcomeStatus
	default:
		return storage.OutcomeTransport
	}
}
