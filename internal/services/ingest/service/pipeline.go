package service

import (
	"context"
	"fmt"
	"time"

	"searchbeat/internal/platform/clock"
	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/platform/logger"
	"searchbeat/internal/platform/store"
	"searchbeat/internal/services/ingest/domain"
	"searchbeat/internal/services/ingest/guardrails"
)

// Chunking and retry policy, fixed per dimension class
const (
	chunkDaysTotals = 2
	chunkDaysAux    = 1

	maxChunksTotals = 10
	maxChunksAux    = 5

	delayTotals = 2 * time.Second
	delayAux    = 3 * time.Second

	chunkTimeout = 5 * time.Minute

	errThresholdTotals = 5
	errThresholdAux    = 3

	backoffBase = time.Second
	backoffCap  = 30 * time.Second

	upsertBatchSize = 50

	defaultRowLimit = 1000
)

// chFactsTable is the analytical mirror written best-effort after each chunk
const chFactsTable = "facts_daily"

var chFactsColumns = []string{
	"site_url", "fact_date", "search_type", "dimension", "key_text",
	"clicks", "impressions", "ctr", "position",
}

// Pipeline pulls one (site, search-type) window from upstream in calendar
// chunks and lands it through idempotent upserts. Dimensions run serially,
// totals before queries before pages
type Pipeline struct {
	log       logger.Logger
	client    domain.Client
	repo      domain.StorageRepo
	ch        store.Clickhouse
	clk       clock.Clock
	rowLimit  int
	sleep     func(context.Context, time.Duration) error
	keepAlive func(context.Context)
}

// PipelineOptions configures a Pipeline
type PipelineOptions struct {
	Client   domain.Client
	Repo     domain.StorageRepo
	CH       store.Clickhouse // optional analytical mirror
	Clock    clock.Clock
	RowLimit int

	// KeepAlive, when set, is invoked at every chunk boundary so the caller
	// can refresh its leader lease during long runs
	KeepAlive func(context.Context)
}

// NewPipeline creates a Pipeline
func NewPipeline(o PipelineOptions) *Pipeline {
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.RowLimit <= 0 {
		o.RowLimit = defaultRowLimit
	}
	return &Pipeline{
		log:       *logger.Named("pipeline"),
		client:    o.Client,
		repo:      o.Repo,
		ch:        o.CH,
		clk:       o.Clock,
		rowLimit:  o.RowLimit,
		sleep:     guardrails.SleepCtx,
		keepAlive: o.KeepAlive,
	}
}

// dimPolicy returns the chunking constants for a dimension class
func dimPolicy(dim domain.Dimension) (chunkDays, maxChunks, threshold int, delay time.Duration) {
	if dim == domain.DimTotals {
		return chunkDaysTotals, maxChunksTotals, errThresholdTotals, delayTotals
	}
	return chunkDaysAux, maxChunksAux, errThresholdAux, delayAux
}

// Run ingests the window for each requested dimension in order. It returns
// early only on context cancellation; per-dimension failures are folded
// into the summary
func (p *Pipeline) Run(ctx context.Context, site string, st domain.SearchType, w domain.Window, dims []domain.Dimension) (domain.RunSummary, error) {
	sum := domain.RunSummary{Site: site, Type: st, Window: w}
	for _, dim := range dims {
		ds, err := p.runDimension(ctx, site, st, w, dim)
		sum.Dimensions = append(sum.Dimensions, ds)
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (p *Pipeline) runDimension(ctx context.Context, site string, st domain.SearchType, plan domain.Window, dim domain.Dimension) (domain.DimensionSummary, error) {
	out := domain.DimensionSummary{Dim: dim}
	w := plan

	// queries and pages resume past what the journal already covers
	if dim != domain.DimTotals {
		status, err := p.repo.SyncStatusGet(ctx, site, st, dim)
		if err != nil {
			return out, err
		}
		if status != nil {
			w = ResumeWindow(w, status.LastSyncedDate)
		}
	}
	if w.Empty() {
		return out, nil
	}

	chunkDays, maxChunks, threshold, delay := dimPolicy(dim)
	chunks := SplitWindow(w, chunkDays)
	out.TotalChunks = len(chunks)
	if len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
		out.Capped = true
	}

	log := p.log.With().
		Str("site", site).
		Str("search_type", string(st)).
		Str("dimension", string(dim)).
		Str("window", w.String()).
		Logger()
	log.Info().Int("chunks", len(chunks)).Int("planned", out.TotalChunks).Msg("dimension start")

	if err := p.repo.SyncStatusUpsert(ctx, domain.StatusPatch{
		Site: site, Type: st, Dim: dim,
		Status:  domain.StatusRunning,
		Message: fmt.Sprintf("0/%d (0%%). Estimating…", out.TotalChunks),
		RunAt:   p.clk.Now(),
	}); err != nil {
		return out, err
	}

	consecutive := 0
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if p.keepAlive != nil {
			p.keepAlive(ctx)
		}

		rows, err := p.fetchChunk(ctx, site, st, dim, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			switch {
			case dim == domain.DimPage && perr.IsCode(err, perr.ErrorCodeNotFound):
				// only pages are optional upstream; count the range as done.
				// A 404 on any other dimension means a misconfigured site or
				// endpoint and aborts below
				log.Info().Str("chunk", chunk.String()).Msg("dimension not available upstream")
				if jerr := p.journalOK(ctx, site, st, dim, chunk.End, "not available"); jerr != nil {
					return out, jerr
				}
				consecutive = 0
				out.ProcessedChunks++

			case perr.Permanent(err) || perr.IsCode(err, perr.ErrorCodeNotFound):
				log.Error().Err(err).Str("chunk", chunk.String()).Msg("permanent upstream failure")
				if jerr := p.journalError(ctx, site, st, dim, chunk, err); jerr != nil {
					return out, jerr
				}
				out.Aborted = true
				return out, nil

			default:
				// transient or unclassified; back off and keep walking
				consecutive++
				log.Warn().Err(err).Str("chunk", chunk.String()).Int("consecutive", consecutive).Msg("chunk failed")
				if jerr := p.journalError(ctx, site, st, dim, chunk, err); jerr != nil {
					return out, jerr
				}
				if consecutive >= threshold {
					log.Error().Int("threshold", threshold).Msg("dimension aborted on consecutive errors")
					out.Aborted = true
					return out, nil
				}
				if serr := p.sleep(ctx, backoff(consecutive)); serr != nil {
					return out, serr
				}
			}
		} else {
			consecutive = 0
			n, uerr := p.upsertBatches(ctx, dim, rows)
			out.Records += n
			if uerr != nil {
				return out, uerr
			}
			p.mirror(ctx, dim, rows)
			if jerr := p.journalOK(ctx, site, st, dim, chunk.End, ""); jerr != nil {
				return out, jerr
			}
			out.ProcessedChunks++
		}

		if i < len(chunks)-1 {
			if serr := p.sleep(ctx, delay); serr != nil {
				return out, serr
			}
		}
	}

	log.Info().Int("records", out.Records).Int("processed", out.ProcessedChunks).Msg("dimension done")
	return out, nil
}

// fetchChunk calls the matching client method under the per-chunk timeout
func (p *Pipeline) fetchChunk(ctx context.Context, site string, st domain.SearchType, dim domain.Dimension, w domain.Window) ([]domain.FactRow, error) {
	cctx, cancel := guardrails.ForChunk(ctx, chunkTimeout)
	defer cancel()

	switch dim {
	case domain.DimTotals:
		return p.client.FetchTotals(cctx, site, st, w)
	case domain.DimQuery:
		return p.client.FetchQueries(cctx, site, st, w, p.rowLimit)
	case domain.DimPage:
		return p.client.FetchPages(cctx, site, st, w, p.rowLimit)
	}
	return nil, perr.Invariantf("unknown dimension %q", dim)
}

func (p *Pipeline) upsertBatches(ctx context.Context, dim domain.Dimension, rows []domain.FactRow) (int, error) {
	total := 0
	for start := 0; start < len(rows); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(rows))
		n, err := p.repo.UpsertFacts(ctx, dim, rows[start:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// mirror pushes the chunk into the analytical store; failures only log
func (p *Pipeline) mirror(ctx context.Context, dim domain.Dimension, rows []domain.FactRow) {
	if p.ch == nil || len(rows) == 0 {
		return
	}
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{
			r.Site, r.Date, string(r.Type), string(dim), r.KeyText(dim),
			r.Clicks, r.Impressions, r.CTR, r.Position,
		})
	}
	if err := p.ch.Insert(ctx, chFactsTable, chFactsColumns, out); err != nil {
		p.log.Warn().Err(err).Int("rows", len(out)).Msg("clickhouse mirror failed")
	}
}

func (p *Pipeline) journalOK(ctx context.Context, site string, st domain.SearchType, dim domain.Dimension, through time.Time, msg string) error {
	return p.repo.SyncStatusUpsert(ctx, domain.StatusPatch{
		Site: site, Type: st, Dim: dim,
		Status:    domain.StatusOK,
		Message:   msg,
		AdvanceTo: &through,
		RunAt:     p.clk.Now(),
	})
}

func (p *Pipeline) journalError(ctx context.Context, site string, st domain.SearchType, dim domain.Dimension, chunk domain.Window, cause error) error {
	return p.repo.SyncStatusUpsert(ctx, domain.StatusPatch{
		Site: site, Type: st, Dim: dim,
		Status:  domain.StatusError,
		Message: chunk.String() + " " + cause.Error(),
		RunAt:   p.clk.Now(),
	})
}

// backoff grows exponentially with the consecutive-error count, capped
func backoff(consecutive int) time.Duration {
	d := backoffBase << uint(consecutive-1)
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}
