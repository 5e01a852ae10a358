package service

import (
	"time"

	"searchbeat/internal/platform/clock"
	"searchbeat/internal/services/ingest/domain"
)

// Ingest policy constants. Upstream data lands with roughly 48h latency, so
// the planner never asks for anything newer than today minus two days
const (
	ceilingLagDays      = 2
	initialBackfillDays = 7
	auxSeedDays         = 30
)

// Planner decides, from coverage alone, which date window a site still
// needs. It holds no state and touches no I/O; the scheduler feeds it
type Planner struct {
	BackfillDays int
}

// NewPlanner returns a Planner with the default backfill depth
func NewPlanner() Planner { return Planner{BackfillDays: initialBackfillDays} }

// Ceiling returns the newest date worth asking upstream for
func (p Planner) Ceiling(today time.Time) time.Time {
	return clock.AddDays(clock.DayUTC(today), -ceilingLagDays)
}

// PlanTotals derives the totals plan for one (site, search-type) from its
// fact coverage. Nil earliest means the pair has never been ingested
func (p Planner) PlanTotals(today time.Time, earliest, latest *time.Time) domain.Plan {
	ceiling := p.Ceiling(today)

	if earliest == nil {
		back := p.BackfillDays
		if back <= 0 {
			back = initialBackfillDays
		}
		return domain.Plan{
			Kind:   domain.PlanHistoric,
			Window: domain.Window{Start: clock.AddDays(ceiling, -back), End: ceiling},
		}
	}

	l := clock.DayUTC(*latest)
	if !l.Before(ceiling) {
		return domain.Plan{Kind: domain.PlanUpToDate}
	}
	return domain.Plan{
		Kind:   domain.PlanIncremental,
		Window: domain.Window{Start: clock.AddDays(l, 1), End: ceiling},
	}
}

// PlanAuxSeed is the catch-up plan for a site whose totals are current but
// whose query or page dimension has never been collected
func (p Planner) PlanAuxSeed(today time.Time) domain.Plan {
	ceiling := p.Ceiling(today)
	return domain.Plan{
		Kind:   domain.PlanAuxiliary,
		Window: domain.Window{Start: clock.AddDays(ceiling, -(auxSeedDays - 1)), End: ceiling},
	}
}

// ResumeWindow narrows a planned window to the part not yet journaled for a
// dimension: start moves to last_synced_date + 1 when that is later. An
// empty result means the dimension is already done for this plan
func ResumeWindow(plan domain.Window, lastSynced *time.Time) domain.Window {
	if plan.Empty() || lastSynced == nil {
		return plan
	}
	resume := clock.AddDays(clock.DayUTC(*lastSynced), 1)
	if resume.After(plan.Start) {
		plan.Start = resume
	}
	return plan
}

// MergeWindows folds plan windows into one [min_start, max_end] span.
// Up-to-date and empty plans are ignored
func MergeWindows(plans ...domain.Plan) domain.Window {
	var out domain.Window
	for _, p := range plans {
		if p.UpToDate() {
			continue
		}
		if out.Empty() {
			out = p.Window
			continue
		}
		if p.Window.Start.Before(out.Start) {
			out.Start = p.Window.Start
		}
		if p.Window.End.After(out.End) {
			out.End = p.Window.End
		}
	}
	return out
}

// SplitWindow cuts an inclusive window into chunks of at most chunkDays
// each, oldest first
func SplitWindow(w domain.Window, chunkDays int) []domain.Window {
	if w.Empty() || chunkDays <= 0 {
		return nil
	}
	var out []domain.Window
	for cs := w.Start; !cs.After(w.End); cs = clock.AddDays(cs, chunkDays) {
		ce := clock.AddDays(cs, chunkDays-1)
		if ce.After(w.End) {
			ce = w.End
		}
		out = append(out, domain.Window{Start: cs, End: ce})
	}
	return out
}
