package domain

import (
	"context"
	"time"
)

// Client is the typed wrapper over one provider's reporting endpoints.
// Implementations are stateless across calls; each call carries its own
// request timeout. Errors are classified through platform/errors codes so
// the pipeline can tell transient, permanent and not-available apart
type Client interface {
	// Provider names the upstream, e.g. "bing" or "gsc"
	Provider() string

	// SearchTypes lists the search modes this provider reports on
	SearchTypes() []SearchType

	FetchTotals(ctx context.Context, site string, st SearchType, w Window) ([]FactRow, error)
	FetchQueries(ctx context.Context, site string, st SearchType, w Window, rowLimit int) ([]FactRow, error)
	FetchPages(ctx context.Context, site string, st SearchType, w Window, rowLimit int) ([]FactRow, error)

	// ListSites enumerates sites the credential can read
	ListSites(ctx context.Context) ([]SiteDescriptor, error)
}

// StorageRepo is the store gateway for ingest state and fact tables.
// Bound to a Queryer via repokit.Binder so it composes with transactions
type StorageRepo interface {
	// UpsertFacts inserts rows into the dimension's fact table, overwriting
	// measures on key collision. Idempotent
	UpsertFacts(ctx context.Context, dim Dimension, rows []FactRow) (int, error)

	// Coverage returns min/max ingested totals dates for the pair; nils when empty
	Coverage(ctx context.Context, site string, st SearchType) (earliest, latest *time.Time, err error)

	// CountFacts counts a site's rows in the dimension's fact table
	CountFacts(ctx context.Context, dim Dimension, site string) (int64, error)

	SyncStatusGet(ctx context.Context, site string, st SearchType, dim Dimension) (*SyncStatus, error)
	SyncStatusUpsert(ctx context.Context, patch StatusPatch) error
	ListSyncStatus(ctx context.Context, site string) ([]SyncStatus, error)

	// FindNextDue returns enabled registrations due at or before now,
	// ordered by (next_sync_due_at, priority_order, last_full_sync_at)
	FindNextDue(ctx context.Context, now time.Time, limit int) ([]Registration, error)

	// Reschedule updates last_full_sync_at (when non-nil) and next_sync_due_at atomically
	Reschedule(ctx context.Context, regID int64, lastFullSyncAt *time.Time, nextSyncDueAt time.Time) error
}

// Lock is the single-holder TTL lease guarding scheduler ticks across processes
type Lock interface {
	// Acquire succeeds iff no holder exists or the previous lease expired
	Acquire(ctx context.Context) (bool, error)

	// Extend refreshes the lease during long pipeline runs
	Extend(ctx context.Context) error

	// Release drops the lease
	Release(ctx context.Context) error
}

// RunnerPort is the pipeline entrypoint other components call
type RunnerPort interface {
	Run(ctx context.Context, site string, st SearchType, w Window, dims []Dimension) (RunSummary, error)
}

// SchedulerPort is the scheduler surface exposed to the admin layer
type SchedulerPort interface {
	Start(ctx context.Context)
	Stop()

	// TickNow fires one tick synchronously, honoring the same lock as the
	// timer. ran is false when the lease was held elsewhere or another tick
	// was already in flight
	TickNow(ctx context.Context) (ran bool, err error)
}
