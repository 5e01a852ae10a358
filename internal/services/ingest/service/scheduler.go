package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"searchbeat/internal/platform/clock"
	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/platform/logger"
	"searchbeat/internal/services/ingest/domain"
)

// Reschedule offsets applied after a tick, depending on how far it got
const (
	redoSoon     = 2 * time.Minute
	redoShortly  = 5 * time.Minute
	redoColdback = 15 * time.Minute

	dueBatchLimit = 10
)

// errColdBackoff bubbles a dimension abort up to the tick so the site gets
// the long reschedule
var errColdBackoff = perr.Unavailablef("ingest aborted on repeated upstream errors")

// Scheduler drives one provider's ingest loop. A repeating timer fires
// ticks; each tick takes the cross-process lease, picks the single most
// overdue registration and walks it through the planner and pipeline
type Scheduler struct {
	log      logger.Logger
	repo     domain.StorageRepo
	lock     domain.Lock
	pipe     *Pipeline
	planner  Planner
	clk      clock.Clock
	client   domain.Client
	interval time.Duration

	ticking atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// SchedulerOptions configures a Scheduler
type SchedulerOptions struct {
	Repo     domain.StorageRepo
	Lock     domain.Lock
	Pipeline *Pipeline
	Planner  Planner
	Clock    clock.Clock
	Client   domain.Client
	Interval time.Duration
}

// NewScheduler creates a Scheduler
func NewScheduler(o SchedulerOptions) *Scheduler {
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	return &Scheduler{
		log:      logger.Named("scheduler").With().Str("provider", o.Client.Provider()).Logger(),
		repo:     o.Repo,
		lock:     o.Lock,
		pipe:     o.Pipeline,
		planner:  o.Planner,
		clk:      o.Clock,
		client:   o.Client,
		interval: o.Interval,
	}
}

// Start arms the repeating timer and fires one tick immediately.
// It returns once the loop goroutine is running
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.log.Info().Dur("interval", s.interval).Msg("scheduler started")

		if _, err := s.TickNow(ctx); err != nil {
			s.log.Error().Err(err).Msg("tick failed")
		}
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("scheduler stopped")
				return
			case <-t.C:
				if _, err := s.TickNow(ctx); err != nil {
					s.log.Error().Err(err).Msg("tick failed")
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for any in-flight tick to unwind
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// TickNow fires one tick synchronously. Concurrent calls in-process are
// collapsed by the re-entrancy guard; cross-process overlap is prevented
// by the lease. ran reports whether this call did the work
func (s *Scheduler) TickNow(ctx context.Context) (ran bool, err error) {
	if !s.ticking.CompareAndSwap(false, true) {
		return false, nil
	}
	defer s.ticking.Store(false)

	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !held {
		s.log.Debug().Msg("lease held elsewhere, skipping tick")
		return false, nil
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := s.lock.Release(rctx); rerr != nil {
			s.log.Warn().Err(rerr).Msg("lease release failed")
		}
	}()

	return true, s.tick(ctx)
}

func (s *Scheduler) tick(ctx context.Context) error {
	now := s.clk.Now()
	regs, err := s.repo.FindNextDue(ctx, now, dueBatchLimit)
	if err != nil {
		return err
	}
	if len(regs) == 0 {
		return nil
	}
	reg := regs[0]

	ctx = logger.WithIngest(ctx, s.client.Provider(), reg.SiteURL, uuid.NewString())
	log := logger.C(ctx)
	log.Info().Msg("site due, ticking")

	complete, capped, err := s.runSite(ctx, reg.SiteURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// cold backoff; the next tick will retry the same site
		log.Error().Err(err).Msg("site run failed")
		if rerr := s.repo.Reschedule(ctx, reg.ID, nil, s.clk.Now().Add(redoColdback)); rerr != nil {
			return rerr
		}
		return err
	}

	next, full := s.nextDue(reg, complete, capped)
	return s.repo.Reschedule(ctx, reg.ID, full, next)
}

// runSite plans and ingests every search type of the provider for one
// site. complete means nothing is left: totals current, auxiliary caught up
func (s *Scheduler) runSite(ctx context.Context, site string) (complete, capped bool, err error) {
	today := s.clk.TodayUTC()
	log := logger.C(ctx)

	plans := make(map[domain.SearchType]domain.Plan)
	allCurrent := true
	for _, st := range s.client.SearchTypes() {
		earliest, latest, cerr := s.repo.Coverage(ctx, site, st)
		if cerr != nil {
			return false, false, cerr
		}
		plan := s.planner.PlanTotals(today, earliest, latest)
		plans[st] = plan
		if !plan.UpToDate() {
			allCurrent = false
		}
	}

	if allCurrent {
		return s.runAuxCatchup(ctx, site, today)
	}

	// one merged window across search types keeps the chunk walk simple;
	// the upserts make any overlap harmless
	merged := make([]domain.Plan, 0, len(plans))
	for _, p := range plans {
		merged = append(merged, p)
	}
	window := MergeWindows(merged...)

	aborted := false
	for _, st := range s.client.SearchTypes() {
		if plans[st].UpToDate() {
			continue
		}
		sum, rerr := s.pipe.Run(ctx, site, st, window, []domain.Dimension{domain.DimTotals})
		if rerr != nil {
			return false, false, rerr
		}
		if sum.CappedAny() {
			capped = true
		}
		if sum.AbortedAny() {
			aborted = true
		}
	}
	if aborted {
		return false, capped, errColdBackoff
	}

	log.Info().Bool("capped", capped).Msg("totals backfill ran, auxiliary deferred to next tick")
	return false, capped, nil
}

// runAuxCatchup handles a site whose totals are already current: seed the
// never-collected auxiliary dimensions, then resume the rest
func (s *Scheduler) runAuxCatchup(ctx context.Context, site string, today time.Time) (complete, capped bool, err error) {
	seed := s.planner.PlanAuxSeed(today)

	complete = true
	for _, st := range s.client.SearchTypes() {
		for _, dim := range domain.AuxDimensions {
			n, cerr := s.repo.CountFacts(ctx, dim, site)
			if cerr != nil {
				return false, false, cerr
			}
			w := seed.Window
			if n > 0 {
				// already seeded; the journal resume inside the pipeline
				// trims this down to what is actually missing
				status, serr := s.repo.SyncStatusGet(ctx, site, st, dim)
				if serr != nil {
					return false, false, serr
				}
				var last *time.Time
				if status != nil {
					last = status.LastSyncedDate
				}
				w = ResumeWindow(w, last)
				if w.Empty() {
					continue
				}
			}

			sum, rerr := s.pipe.Run(ctx, site, st, w, []domain.Dimension{dim})
			if rerr != nil {
				return false, false, rerr
			}
			if sum.CappedAny() {
				capped, complete = true, false
			}
			if sum.AbortedAny() {
				return false, capped, errColdBackoff
			}
		}
	}
	return complete, capped, nil
}

// nextDue maps the tick outcome to the next wake-up. last_full_sync_at is
// stamped only when the site is fully caught up
func (s *Scheduler) nextDue(reg domain.Registration, complete, capped bool) (time.Time, *time.Time) {
	now := s.clk.Now()
	if complete {
		return now.Add(reg.Interval()), &now
	}
	if capped {
		return now.Add(redoSoon), nil
	}
	return now.Add(redoShortly), nil
}
