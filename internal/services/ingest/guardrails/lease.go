// Package guardrails holds cross cutting safety helpers for ingest
package guardrails

import (
	"context"
	"fmt"
	"os"
	"time"

	"searchbeat/internal/modkit/repokit"
	"searchbeat/internal/platform/clock"
	perr "searchbeat/internal/platform/errors"
)

// Lease is a single-holder TTL advisory lock backed by a leader_locks row.
// It guards the "who is ticking now" decision across processes; the ingest
// writes themselves stay correct without it because upserts are idempotent
type Lease struct {
	DB     repokit.TxRunner
	ID     string // well-known lock id, e.g. "bing-scheduler"
	Holder string
	TTL    time.Duration
	Clock  clock.Clock
}

// NewLease builds a Lease with the default holder identity and TTL fallback
func NewLease(db repokit.TxRunner, id, holder string, ttl time.Duration, clk clock.Clock) *Lease {
	if holder == "" {
		holder = DefaultHolder()
	}
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Lease{DB: db, ID: id, Holder: holder, TTL: ttl, Clock: clk}
}

// DefaultHolder returns hostname+pid as an opaque holder identity
func DefaultHolder() string {
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// Acquire claims the lock iff no row exists or the previous lease expired.
// The conditional upsert makes the claim race-safe: the unique key on
// lock_id arbitrates concurrent inserts, the WHERE clause arbitrates steals
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	now := l.Clock.Now()
	tag, err := l.DB.Exec(ctx, `
		INSERT INTO leader_locks (lock_id, locked_until, locked_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (lock_id) DO UPDATE
		SET locked_until = EXCLUDED.locked_until, locked_by = EXCLUDED.locked_by
		WHERE leader_locks.locked_until <= $4
	`, l.ID, now.Add(l.TTL), l.Holder, now)
	if err != nil {
		return false, perr.FromPostgres(err, "lease acquire")
	}
	return tag.RowsAffected() > 0, nil
}

// Extend refreshes locked_until; called at chunk boundaries of long runs
func (l *Lease) Extend(ctx context.Context) error {
	_, err := l.DB.Exec(ctx, `
		UPDATE leader_locks
		SET locked_until = $2, locked_by = $3
		WHERE lock_id = $1
	`, l.ID, l.Clock.Now().Add(l.TTL), l.Holder)
	return perr.FromPostgres(err, "lease extend")
}

// Release drops the lease. Only our own row is removed so a stolen lease
// is left alone
func (l *Lease) Release(ctx context.Context) error {
	_, err := l.DB.Exec(ctx, `
		DELETE FROM leader_locks WHERE lock_id = $1 AND locked_by = $2
	`, l.ID, l.Holder)
	return perr.FromPostgres(err, "lease release")
}
