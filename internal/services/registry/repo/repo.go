// Package repo provides postgres access for site registrations
package repo

import (
	"context"

	"searchbeat/internal/modkit/repokit"
	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/services/registry/domain"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

const regCols = `id, user_id, site_url, enabled, sync_interval_hours, priority_order,
       last_full_sync_at, next_sync_due_at, created_at`

// Upsert registers the pair idempotently. next_sync_due_at resets to now(),
// so re-registering an idle site makes it due immediately
func (r *queries) Upsert(ctx context.Context, in domain.RegisterInput) (domain.Registration, error) {
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	interval := in.SyncIntervalHours
	if interval <= 0 {
		interval = 24
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO site_registrations
			(user_id, site_url, enabled, sync_interval_hours, priority_order, next_sync_due_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id, site_url) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			sync_interval_hours = EXCLUDED.sync_interval_hours,
			priority_order = EXCLUDED.priority_order,
			next_sync_due_at = now()
		RETURNING `+regCols+`
	`, in.UserID, in.SiteURL, enabled, interval, in.PriorityOrder)

	out, err := scanRegistration(row)
	if err != nil {
		return domain.Registration{}, perr.FromPostgres(err, "register site")
	}
	return out, nil
}

// Delete removes the pair; deleting a missing row succeeds
func (r *queries) Delete(ctx context.Context, userID, siteURL string) error {
	_, err := r.q.Exec(ctx, `
		DELETE FROM site_registrations WHERE user_id = $1 AND site_url = $2
	`, userID, siteURL)
	return perr.FromPostgres(err, "unregister site")
}

// List returns registrations for one user, or every row when userID is ""
func (r *queries) List(ctx context.Context, userID string) ([]domain.Registration, error) {
	sql := `SELECT ` + regCols + ` FROM site_registrations`
	args := []any{}
	if userID != "" {
		sql += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	sql += ` ORDER BY user_id, site_url`

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, perr.FromPostgres(err, "list registrations")
	}
	defer rows.Close()

	var out []domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, perr.FromPostgres(err, "scan registration")
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

// Statuses returns the sync journal for one site, newest run first
func (r *queries) Statuses(ctx context.Context, siteURL string) ([]domain.SiteStatus, error) {
	rows, err := r.q.Query(ctx, `
		SELECT site_url, search_type, dimension, status, COALESCE(message, ''),
		       last_synced_date, last_run_at
		FROM sync_status
		WHERE site_url = $1
		ORDER BY last_run_at DESC, search_type, dimension
	`, siteURL)
	if err != nil {
		return nil, perr.FromPostgres(err, "site statuses")
	}
	defer rows.Close()

	var out []domain.SiteStatus
	for rows.Next() {
		var s domain.SiteStatus
		if err := rows.Scan(
			&s.SiteURL, &s.SearchType, &s.Dimension, &s.Status, &s.Message,
			&s.LastSyncedDate, &s.LastRunAt,
		); err != nil {
			return nil, perr.FromPostgres(err, "scan site status")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanRegistration(s scanner) (domain.Registration, error) {
	var reg domain.Registration
	err := s.Scan(
		&reg.ID, &reg.UserID, &reg.SiteURL, &reg.Enabled, &reg.SyncIntervalHours,
		&reg.PriorityOrder, &reg.LastFullSyncAt, &reg.NextSyncDueAt, &reg.CreatedAt,
	)
	return reg, err
}
