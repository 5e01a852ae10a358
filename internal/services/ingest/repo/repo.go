// Package repo provides postgres access for ingest state and fact tables
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"searchbeat/internal/modkit/repokit"
	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/platform/logger"
	"searchbeat/internal/services/ingest/domain"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct {
		q   repokit.Queryer
		log logger.Logger
	}
)

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo {
	return &queries{q: q, log: *logger.Named("ingest.repo")}
}

// factTable maps a dimension to its table and optional key column
func factTable(dim domain.Dimension) (table, keyCol string, err error) {
	switch dim {
	case domain.DimTotals:
		return "facts_totals_daily", "", nil
	case domain.DimQuery:
		return "facts_queries_daily", "query_text", nil
	case domain.DimPage:
		return "facts_pages_daily", "page_url", nil
	}
	return "", "", perr.Invariantf("unknown dimension %q", dim)
}

// UpsertFacts inserts rows into the dimension's fact table, overwriting
// measures on key collision. A multi-row statement is tried first; on
// failure it degrades to per-row upserts so one poisonous row cannot sink
// the batch
func (r *queries) UpsertFacts(ctx context.Context, dim domain.Dimension, rows []domain.FactRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	table, keyCol, err := factTable(dim)
	if err != nil {
		return 0, err
	}

	if err := r.upsertBulk(ctx, table, keyCol, rows); err == nil {
		return len(rows), nil
	}

	// bulk path failed; per-row so we keep everything that can land
	inserted := 0
	var lastErr error
	for _, row := range rows {
		if err := r.upsertBulk(ctx, table, keyCol, []domain.FactRow{row}); err != nil {
			lastErr = err
			ev := r.log.Warn().Err(err).
				Str("table", table).
				Str("site", row.Site).
				Str("fact_date", row.Date.Format("2006-01-02"))
			if pe, ok := perr.ExtractPgError(err); ok {
				ev = ev.Str("sqlstate", pe.Code)
			}
			ev.Msg("fact row skipped")
			continue
		}
		inserted++
	}
	if inserted == 0 && lastErr != nil {
		return 0, perr.FromPostgres(lastErr, "upsert facts")
	}
	return inserted, nil
}

func (r *queries) upsertBulk(ctx context.Context, table, keyCol string, rows []domain.FactRow) error {
	cols := []string{"site_url", "fact_date", "search_type"}
	if keyCol != "" {
		cols = append(cols, keyCol)
	}
	cols = append(cols, "clicks", "impressions", "ctr", "position")

	var (
		ph   []string
		args []any
	)
	for _, row := range rows {
		vals := []any{row.Site, row.Date, string(row.Type)}
		if keyCol != "" {
			switch keyCol {
			case "query_text":
				vals = append(vals, row.Query)
			default:
				vals = append(vals, row.Page)
			}
		}
		vals = append(vals, row.Clicks, row.Impressions, row.CTR, row.Position)

		marks := make([]string, len(vals))
		for i := range vals {
			marks[i] = fmt.Sprintf("$%d", len(args)+i+1)
		}
		ph = append(ph, "("+strings.Join(marks, ",")+")")
		args = append(args, vals...)
	}

	conflict := "site_url, fact_date, search_type"
	if keyCol != "" {
		conflict += ", " + keyCol
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES %s
		ON CONFLICT (%s) DO UPDATE SET
			clicks = EXCLUDED.clicks,
			impressions = EXCLUDED.impressions,
			ctr = EXCLUDED.ctr,
			position = EXCLUDED.position
	`, table, strings.Join(cols, ", "), strings.Join(ph, ","), conflict)

	_, err := r.q.Exec(ctx, sql, args...)
	return err
}

// Coverage returns min/max ingested totals dates for (site, search-type)
func (r *queries) Coverage(ctx context.Context, site string, st domain.SearchType) (*time.Time, *time.Time, error) {
	var earliest, latest *time.Time
	err := r.q.QueryRow(ctx, `
		SELECT min(fact_date), max(fact_date)
		FROM facts_totals_daily
		WHERE site_url = $1 AND search_type = $2
	`, site, string(st)).Scan(&earliest, &latest)
	if err != nil {
		return nil, nil, perr.FromPostgres(err, "coverage")
	}
	return earliest, latest, nil
}

// CountFacts counts a site's rows in the dimension's fact table
func (r *queries) CountFacts(ctx context.Context, dim domain.Dimension, site string) (int64, error) {
	table, _, err := factTable(dim)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.q.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE site_url = $1`, table), site,
	).Scan(&n)
	if err != nil {
		return 0, perr.FromPostgres(err, "count facts")
	}
	return n, nil
}

// SyncStatusGet fetches one journal entry; nil when the tuple was never touched
func (r *queries) SyncStatusGet(
	ctx context.Context, site string, st domain.SearchType, dim domain.Dimension,
) (*domain.SyncStatus, error) {
	rows, err := r.q.Query(ctx, `
		SELECT status, COALESCE(message, ''), last_synced_date, last_run_at
		FROM sync_status
		WHERE site_url = $1 AND search_type = $2 AND dimension = $3
	`, site, string(st), string(dim))
	if err != nil {
		return nil, perr.FromPostgres(err, "sync status get")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	out := domain.SyncStatus{Site: site, Type: st, Dim: dim}
	if err := rows.Scan(&out.Status, &out.Message, &out.LastSyncedDate, &out.LastRunAt); err != nil {
		return nil, perr.FromPostgres(err, "sync status scan")
	}
	return &out, rows.Err()
}

// SyncStatusUpsert applies a journal patch. GREATEST keeps last_synced_date
// monotonic per dimension even when a chunk is replayed
func (r *queries) SyncStatusUpsert(ctx context.Context, p domain.StatusPatch) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO sync_status (site_url, search_type, dimension, status, message, last_synced_date, last_run_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		ON CONFLICT (site_url, search_type, dimension) DO UPDATE SET
			status = EXCLUDED.status,
			message = EXCLUDED.message,
			last_synced_date = GREATEST(sync_status.last_synced_date, EXCLUDED.last_synced_date),
			last_run_at = EXCLUDED.last_run_at
	`, p.Site, string(p.Type), string(p.Dim),
		p.Status, domain.TruncateMessage(p.Message), p.AdvanceTo, p.RunAt)
	return perr.FromPostgres(err, "sync status upsert")
}

// ListSyncStatus returns all journal entries for a site, newest run first
func (r *queries) ListSyncStatus(ctx context.Context, site string) ([]domain.SyncStatus, error) {
	rows, err := r.q.Query(ctx, `
		SELECT site_url, search_type, dimension, status, COALESCE(message, ''), last_synced_date, last_run_at
		FROM sync_status
		WHERE site_url = $1
		ORDER BY last_run_at DESC, search_type, dimension
	`, site)
	if err != nil {
		return nil, perr.FromPostgres(err, "sync status list")
	}
	defer rows.Close()

	var out []domain.SyncStatus
	for rows.Next() {
		var s domain.SyncStatus
		var st, dim string
		if err := rows.Scan(&s.Site, &st, &dim, &s.Status, &s.Message, &s.LastSyncedDate, &s.LastRunAt); err != nil {
			return nil, perr.FromPostgres(err, "sync status list scan")
		}
		s.Type, s.Dim = domain.SearchType(st), domain.Dimension(dim)
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindNextDue returns enabled registrations due at or before now.
// NULL next_sync_due_at means "immediately" and sorts first
func (r *queries) FindNextDue(ctx context.Context, now time.Time, limit int) ([]domain.Registration, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, site_url, enabled, sync_interval_hours, priority_order,
		       last_full_sync_at, next_sync_due_at
		FROM site_registrations
		WHERE enabled AND (next_sync_due_at IS NULL OR next_sync_due_at <= $1)
		ORDER BY next_sync_due_at ASC NULLS FIRST,
		         priority_order ASC,
		         last_full_sync_at ASC NULLS FIRST
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, perr.FromPostgres(err, "find next due")
	}
	defer rows.Close()

	var out []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(
			&reg.ID, &reg.UserID, &reg.SiteURL, &reg.Enabled, &reg.SyncIntervalHours,
			&reg.PriorityOrder, &reg.LastFullSyncAt, &reg.NextSyncDueAt,
		); err != nil {
			return nil, perr.FromPostgres(err, "find next due scan")
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

// Reschedule updates the two scheduling fields in one statement
func (r *queries) Reschedule(ctx context.Context, regID int64, lastFullSyncAt *time.Time, nextSyncDueAt time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE site_registrations
		SET last_full_sync_at = COALESCE($2, last_full_sync_at),
		    next_sync_due_at = $3
		WHERE id = $1
	`, regID, lastFullSyncAt, nextSyncDueAt)
	return perr.FromPostgres(err, "reschedule")
}
