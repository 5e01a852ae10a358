// Package domain holds the core types and ports for the ingest pipeline
package domain

import (
	"fmt"
	"time"
)

// SearchType is a provider-defined search mode
type SearchType string

// Search types the providers report on
const (
	SearchTypeWeb   SearchType = "web"
	SearchTypeImage SearchType = "image"
	SearchTypeVideo SearchType = "video"
)

// Dimension selects a fact table
type Dimension string

// Dimensions of the daily fact data
const (
	DimTotals Dimension = "totals"
	DimQuery  Dimension = "query"
	DimPage   Dimension = "page"
)

// AuxDimensions are the per-query and per-page dimensions that ride behind totals
var AuxDimensions = []Dimension{DimQuery, DimPage}

// FactRow is one normalized day of search performance for a site.
// Query is set only for DimQuery rows, Page only for DimPage rows
type FactRow struct {
	Site        string
	Date        time.Time // UTC calendar date at midnight
	Type        SearchType
	Query       string
	Page        string
	Clicks      int64
	Impressions int64
	CTR         float64
	Position    float64
}

// KeyText returns the dimension key column for the row ("" for totals)
func (r FactRow) KeyText(dim Dimension) string {
	switch dim {
	case DimQuery:
		return r.Query
	case DimPage:
		return r.Page
	}
	return ""
}

// SiteDescriptor is one site the upstream credential can read
type SiteDescriptor struct {
	URL  string
	Role string // provider-specific, e.g. "siteOwner"
}

// Window is an inclusive pair of UTC calendar dates
type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the window covers no days
func (w Window) Empty() bool { return w.Start.IsZero() || w.End.Before(w.Start) }

// Days returns the inclusive day count; 0 for an empty window
func (w Window) Days() int {
	if w.Empty() {
		return 0
	}
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// String renders the window as [start..end] for journal messages and logs
func (w Window) String() string {
	return fmt.Sprintf("[%s..%s]", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// PlanKind tells the pipeline why a window was planned
type PlanKind string

// Plan kinds emitted by the window planner
const (
	PlanUpToDate    PlanKind = "up_to_date"
	PlanHistoric    PlanKind = "historic"
	PlanIncremental PlanKind = "incremental"
	PlanAuxiliary   PlanKind = "auxiliary"
)

// Plan is the planner's verdict for one (site, search-type, dimension)
type Plan struct {
	Kind   PlanKind
	Window Window
}

// UpToDate reports whether the plan requires no work
func (p Plan) UpToDate() bool { return p.Kind == PlanUpToDate || p.Window.Empty() }

// Sync statuses persisted in sync_status.status
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusError   = "error"
)

// MaxStatusMessage bounds the sync_status.message column
const MaxStatusMessage = 1024

// TruncateMessage clips s to the journal's message bound
func TruncateMessage(s string) string {
	if len(s) <= MaxStatusMessage {
		return s
	}
	return s[:MaxStatusMessage]
}

// SyncStatus is one journal entry per (site, search-type, dimension)
type SyncStatus struct {
	Site           string
	Type           SearchType
	Dim            Dimension
	Status         string
	Message        string
	LastSyncedDate *time.Time
	LastRunAt      time.Time
}

// StatusPatch is a partial journal update. AdvanceTo, when set, moves
// last_synced_date forward monotonically; it never regresses it
type StatusPatch struct {
	Site      string
	Type      SearchType
	Dim       Dimension
	Status    string
	Message   string // stored truncated; empty clears
	AdvanceTo *time.Time
	RunAt     time.Time
}

// Registration is a (user, site) pair the scheduler keeps current
type Registration struct {
	ID                int64
	UserID            string
	SiteURL           string
	Enabled           bool
	SyncIntervalHours int
	PriorityOrder     int
	LastFullSyncAt    *time.Time
	NextSyncDueAt     *time.Time
}

// Interval returns the registration's sync interval as a duration (default 24h)
func (r Registration) Interval() time.Duration {
	h := r.SyncIntervalHours
	if h <= 0 {
		h = 24
	}
	return time.Duration(h) * time.Hour
}

// DimensionSummary reports one dimension's outcome for a pipeline run
type DimensionSummary struct {
	Dim             Dimension
	ProcessedChunks int
	TotalChunks     int
	Records         int
	Capped          bool // hit the max-chunks-per-run cap
	Aborted         bool // consecutive-error threshold or permanent failure
}

// RunSummary aggregates all dimensions of one pipeline invocation
type RunSummary struct {
	Site       string
	Type       SearchType
	Window     Window
	Dimensions []DimensionSummary
}

// CappedAny reports whether any dimension hit its chunk cap
func (s RunSummary) CappedAny() bool {
	for _, d := range s.Dimensions {
		if d.Capped {
			return true
		}
	}
	return false
}

// AbortedAny reports whether any dimension aborted
func (s RunSummary) AbortedAny() bool {
	for _, d := range s.Dimensions {
		if d.Aborted {
			return true
		}
	}
	return false
}
