package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"searchbeat/internal/platform/clock"
	"searchbeat/internal/services/ingest/domain"
)

// fakeClient scripts upstream responses per fetch call, in call order
type fakeClient struct {
	mu       sync.Mutex
	provider string
	types    []domain.SearchType
	script   []fakeCall
	calls    []domain.Window
}

type fakeCall struct {
	rows []domain.FactRow
	err  error
}

func (f *fakeClient) Provider() string {
	if f.provider == "" {
		return "fake"
	}
	return f.provider
}

func (f *fakeClient) SearchTypes() []domain.SearchType {
	if len(f.types) == 0 {
		return []domain.SearchType{domain.SearchTypeWeb}
	}
	return f.types
}

func (f *fakeClient) next(w domain.Window) ([]domain.FactRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, w)
	if len(f.script) == 0 {
		return nil, nil
	}
	call := f.script[0]
	f.script = f.script[1:]
	return call.rows, call.err
}

func (f *fakeClient) FetchTotals(_ context.Context, _ string, _ domain.SearchType, w domain.Window) ([]domain.FactRow, error) {
	return f.next(w)
}

func (f *fakeClient) FetchQueries(_ context.Context, _ string, _ domain.SearchType, w domain.Window, _ int) ([]domain.FactRow, error) {
	return f.next(w)
}

func (f *fakeClient) FetchPages(_ context.Context, _ string, _ domain.SearchType, w domain.Window, _ int) ([]domain.FactRow, error) {
	return f.next(w)
}

func (f *fakeClient) ListSites(context.Context) ([]domain.SiteDescriptor, error) {
	return nil, nil
}

// rowsFor builds n totals rows spread across the window's days
func rowsFor(site string, w domain.Window, perDay int) []domain.FactRow {
	var out []domain.FactRow
	for d := w.Start; !d.After(w.End); d = clock.AddDays(d, 1) {
		for i := 0; i < perDay; i++ {
			out = append(out, domain.FactRow{
				Site: site, Date: d, Type: domain.SearchTypeWeb,
				Query: fmt.Sprintf("q%d", i), Page: fmt.Sprintf("https://%s/p%d", site, i),
				Clicks: 1, Impressions: 10,
			})
		}
	}
	return out
}

// fakeRepo is an in-memory StorageRepo mirroring the journal's monotonic
// last_synced_date rule
type fakeRepo struct {
	mu       sync.Mutex
	facts    map[domain.Dimension][]domain.FactRow
	journal  map[string]domain.SyncStatus
	patches  []domain.StatusPatch
	regs     []domain.Registration
	resched  map[int64]time.Time
	fullSync map[int64]*time.Time
	coverage map[domain.SearchType][2]*time.Time
	counts   map[domain.Dimension]int64

	upsertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		facts:    map[domain.Dimension][]domain.FactRow{},
		journal:  map[string]domain.SyncStatus{},
		resched:  map[int64]time.Time{},
		fullSync: map[int64]*time.Time{},
		coverage: map[domain.SearchType][2]*time.Time{},
		counts:   map[domain.Dimension]int64{},
	}
}

func jkey(site string, st domain.SearchType, dim domain.Dimension) string {
	return site + "|" + string(st) + "|" + string(dim)
}

func (f *fakeRepo) UpsertFacts(_ context.Context, dim domain.Dimension, rows []domain.FactRow) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.facts[dim] = append(f.facts[dim], rows...)
	return len(rows), nil
}

func (f *fakeRepo) Coverage(_ context.Context, _ string, st domain.SearchType) (*time.Time, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.coverage[st]
	return c[0], c[1], nil
}

func (f *fakeRepo) CountFacts(_ context.Context, dim domain.Dimension, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[dim], nil
}

func (f *fakeRepo) SyncStatusGet(_ context.Context, site string, st domain.SearchType, dim domain.Dimension) (*domain.SyncStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.journal[jkey(site, st, dim)]
	if !ok {
		return nil, nil
	}
	out := s
	return &out, nil
}

func (f *fakeRepo) SyncStatusUpsert(_ context.Context, p domain.StatusPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, p)

	key := jkey(p.Site, p.Type, p.Dim)
	s := f.journal[key]
	s.Site, s.Type, s.Dim = p.Site, p.Type, p.Dim
	s.Status = p.Status
	s.Message = domain.TruncateMessage(p.Message)
	s.LastRunAt = p.RunAt
	if p.AdvanceTo != nil {
		if s.LastSyncedDate == nil || p.AdvanceTo.After(*s.LastSyncedDate) {
			d := *p.AdvanceTo
			s.LastSyncedDate = &d
		}
	}
	f.journal[key] = s
	return nil
}

func (f *fakeRepo) ListSyncStatus(_ context.Context, site string) ([]domain.SyncStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SyncStatus
	for _, s := range f.journal {
		if s.Site == site {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindNextDue(_ context.Context, now time.Time, limit int) ([]domain.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Registration
	for _, r := range f.regs {
		if !r.Enabled {
			continue
		}
		if r.NextSyncDueAt == nil || !r.NextSyncDueAt.After(now) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) Reschedule(_ context.Context, regID int64, lastFullSyncAt *time.Time, nextSyncDueAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resched[regID] = nextSyncDueAt
	if lastFullSyncAt != nil {
		f.fullSync[regID] = lastFullSyncAt
	}
	return nil
}

func (f *fakeRepo) lastSynced(site string, st domain.SearchType, dim domain.Dimension) *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.journal[jkey(site, st, dim)]
	if !ok {
		return nil
	}
	return s.LastSyncedDate
}

// fakeLock is an in-process Lock with a switchable owner
type fakeLock struct {
	mu       sync.Mutex
	held     bool
	acquires int
	releases int
	extends  int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Extend(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extends++
	return nil
}

func (f *fakeLock) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	f.held = false
	return nil
}

// fastSleep makes the pipeline's delays instantaneous while recording them
func fastSleep(rec *[]time.Duration) func(context.Context, time.Duration) error {
	var mu sync.Mutex
	return func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		*rec = append(*rec, d)
		mu.Unlock()
		return ctx.Err()
	}
}
