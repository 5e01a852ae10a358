//go:build integration_pg
// +build integration_pg

package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"searchbeat/internal/platform/store"
	"searchbeat/internal/platform/testkit"
	"searchbeat/internal/services/ingest/domain"
	"searchbeat/internal/services/ingest/guardrails"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

const testSchema = `
CREATE TABLE IF NOT EXISTS site_registrations (
    id bigserial PRIMARY KEY,
    user_id varchar(128) NOT NULL,
    site_url varchar(512) NOT NULL,
    enabled boolean NOT NULL DEFAULT true,
    sync_interval_hours integer NOT NULL DEFAULT 24,
    priority_order integer NOT NULL DEFAULT 0,
    last_full_sync_at timestamptz,
    next_sync_due_at timestamptz,
    created_at timestamptz NOT NULL DEFAULT now(),
    UNIQUE (user_id, site_url)
);
CREATE TABLE IF NOT EXISTS facts_totals_daily (
    site_url varchar(512) NOT NULL,
    fact_date date NOT NULL,
    search_type varchar(16) NOT NULL,
    clicks bigint NOT NULL DEFAULT 0,
    impressions bigint NOT NULL DEFAULT 0,
    ctr double precision NOT NULL DEFAULT 0,
    position double precision NOT NULL DEFAULT 0,
    PRIMARY KEY (site_url, fact_date, search_type)
);
CREATE TABLE IF NOT EXISTS facts_queries_daily (
    site_url varchar(512) NOT NULL,
    fact_date date NOT NULL,
    search_type varchar(16) NOT NULL,
    query_text varchar(2048) NOT NULL,
    clicks bigint NOT NULL DEFAULT 0,
    impressions bigint NOT NULL DEFAULT 0,
    ctr double precision NOT NULL DEFAULT 0,
    position double precision NOT NULL DEFAULT 0,
    PRIMARY KEY (site_url, fact_date, search_type, query_text)
);
CREATE TABLE IF NOT EXISTS sync_status (
    site_url varchar(512) NOT NULL,
    search_type varchar(16) NOT NULL,
    dimension varchar(16) NOT NULL,
    status varchar(16) NOT NULL,
    message varchar(1024),
    last_synced_date date,
    last_run_at timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (site_url, search_type, dimension)
);
CREATE TABLE IF NOT EXISTS leader_locks (
    lock_id varchar(64) PRIMARY KEY,
    locked_until timestamptz NOT NULL,
    locked_by varchar(256) NOT NULL
);
`

func openStore(t *testing.T, dsn string) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.Config{
		AppName: "searchbeat-test",
		PG:      store.PGConfig{Enabled: true, URL: dsn, MaxConns: 4},
	})
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	if _, err := st.PG.Exec(context.Background(), testSchema); err != nil {
		t.Fatalf("schema apply failed: %v", err)
	}
	return st
}

func TestRepo_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	st := openStore(t, dsn)
	ctx := context.Background()
	r := NewPG().Bind(st.PG)
	site := "https://it.test/"

	t.Run("upsert facts is idempotent", func(t *testing.T) {
		batch := []domain.FactRow{
			{Site: site, Date: testkit.Day(2024, 1, 5), Type: domain.SearchTypeWeb, Clicks: 3, Impressions: 30},
			{Site: site, Date: testkit.Day(2024, 1, 6), Type: domain.SearchTypeWeb, Clicks: 5, Impressions: 50},
		}
		for i := 0; i < 2; i++ {
			if _, err := r.UpsertFacts(ctx, domain.DimTotals, batch); err != nil {
				t.Fatalf("upsert %d failed: %v", i, err)
			}
		}
		n, err := r.CountFacts(ctx, domain.DimTotals, site)
		if err != nil || n != 2 {
			t.Fatalf("count = %d err = %v, want 2", n, err)
		}

		earliest, latest, err := r.Coverage(ctx, site, domain.SearchTypeWeb)
		if err != nil {
			t.Fatalf("coverage failed: %v", err)
		}
		if earliest == nil || latest == nil ||
			!earliest.Equal(testkit.Day(2024, 1, 5)) || !latest.Equal(testkit.Day(2024, 1, 6)) {
			t.Fatalf("coverage = [%v, %v]", earliest, latest)
		}
	})

	t.Run("journal last_synced_date is monotonic", func(t *testing.T) {
		forward := testkit.Day(2024, 1, 8)
		backward := testkit.Day(2024, 1, 3)
		patch := domain.StatusPatch{
			Site: site, Type: domain.SearchTypeWeb, Dim: domain.DimQuery,
			Status: domain.StatusOK, AdvanceTo: &forward, RunAt: time.Now(),
		}
		if err := r.SyncStatusUpsert(ctx, patch); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		patch.AdvanceTo = &backward
		patch.Status = domain.StatusError
		patch.Message = "[2024-01-03..2024-01-03] replay"
		if err := r.SyncStatusUpsert(ctx, patch); err != nil {
			t.Fatalf("replay upsert failed: %v", err)
		}

		s, err := r.SyncStatusGet(ctx, site, domain.SearchTypeWeb, domain.DimQuery)
		if err != nil || s == nil {
			t.Fatalf("get failed: s=%v err=%v", s, err)
		}
		if s.LastSyncedDate == nil || !s.LastSyncedDate.Equal(forward) {
			t.Fatalf("last_synced regressed to %v", s.LastSyncedDate)
		}
		if s.Status != domain.StatusError {
			t.Fatalf("status should still update, got %q", s.Status)
		}
	})

	t.Run("find_next_due orders and filters", func(t *testing.T) {
		if _, err := st.PG.Exec(ctx, `
			INSERT INTO site_registrations (user_id, site_url, enabled, priority_order, next_sync_due_at) VALUES
			('u', 'https://later.test/',    true,  0, now() + interval '1 hour'),
			('u', 'https://overdue.test/',  true,  5, now() - interval '1 hour'),
			('u', 'https://fresh.test/',    true,  0, NULL),
			('u', 'https://disabled.test/', false, 0, NULL)
		`); err != nil {
			t.Fatalf("seed failed: %v", err)
		}

		due, err := r.FindNextDue(ctx, time.Now(), 10)
		if err != nil {
			t.Fatalf("find_next_due failed: %v", err)
		}
		if len(due) != 2 {
			t.Fatalf("got %d due, want 2: %+v", len(due), due)
		}
		if due[0].SiteURL != "https://fresh.test/" {
			t.Fatalf("NULL due time must sort first, got %q", due[0].SiteURL)
		}
		if due[1].SiteURL != "https://overdue.test/" {
			t.Fatalf("overdue site should follow, got %q", due[1].SiteURL)
		}
	})

	t.Run("lease wins once per ttl", func(t *testing.T) {
		a := guardrails.NewLease(st.PG, "it-scheduler", "holder-a", 2*time.Second, nil)
		b := guardrails.NewLease(st.PG, "it-scheduler", "holder-b", 2*time.Second, nil)

		held, err := a.Acquire(ctx)
		if err != nil || !held {
			t.Fatalf("a acquire: held=%v err=%v", held, err)
		}
		held, err = b.Acquire(ctx)
		if err != nil || held {
			t.Fatalf("b should lose while a holds: held=%v err=%v", held, err)
		}

		if err := a.Release(ctx); err != nil {
			t.Fatalf("release failed: %v", err)
		}
		held, err = b.Acquire(ctx)
		if err != nil || !held {
			t.Fatalf("b should win after release: held=%v err=%v", held, err)
		}
		_ = b.Release(ctx)
	})
}
