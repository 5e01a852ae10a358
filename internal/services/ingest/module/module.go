// Package module wires the ingest service for one provider and exposes its ports
package module

import (
	"context"

	"searchbeat/internal/adapters/provider/bing"
	"searchbeat/internal/adapters/provider/gsc"
	"searchbeat/internal/modkit"
	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/services/ingest/domain"
	"searchbeat/internal/services/ingest/guardrails"
	"searchbeat/internal/services/ingest/repo"
	"searchbeat/internal/services/ingest/service"
)

// Module owns one provider's scheduler, pipeline and lease
type Module struct {
	deps  modkit.Deps
	opts  Options
	ports Ports
	lease *guardrails.Lease
}

// New constructs the ingest module for the provider named in overrides.
// Config fills anything overrides leaves zero
func New(deps modkit.Deps, overrides Options) (*Module, error) {
	opts := FromConfig(deps.Cfg, overrides.Provider)
	if overrides.Credential != "" {
		opts.Credential = overrides.Credential
		opts.Enabled = true
	}
	if overrides.BaseURL != "" {
		opts.BaseURL = overrides.BaseURL
	}
	if overrides.TickInterval != 0 {
		opts.TickInterval = overrides.TickInterval
	}
	if overrides.RowLimit != 0 {
		opts.RowLimit = overrides.RowLimit
	}

	var client domain.Client
	switch opts.Provider {
	case ProviderBing:
		client = bing.New(bing.Options{BaseURL: opts.BaseURL, APIKey: opts.Credential})
	case ProviderGSC:
		client = gsc.New(gsc.Options{BaseURL: opts.BaseURL, Token: opts.Credential})
	default:
		return nil, perr.InvalidArgf("unknown provider %q", opts.Provider)
	}

	storage := repo.NewPG().Bind(deps.PG)
	lease := guardrails.NewLease(deps.PG, opts.Provider+"-scheduler", opts.Holder, opts.LockTTL, nil)

	pipe := service.NewPipeline(service.PipelineOptions{
		Client:   client,
		Repo:     storage,
		CH:       deps.CH,
		RowLimit: opts.RowLimit,
		KeepAlive: func(ctx context.Context) {
			_ = lease.Extend(ctx)
		},
	})
	sched := service.NewScheduler(service.SchedulerOptions{
		Repo:     storage,
		Lock:     lease,
		Pipeline: pipe,
		Planner:  service.NewPlanner(),
		Client:   client,
		Interval: opts.TickInterval,
	})

	m := &Module{deps: deps, opts: opts, lease: lease}
	m.ports = Ports{
		Scheduler: sched,
		Runner:    pipe,
		Client:    client,
		Storage:   storage,
	}
	return m, nil
}

// Name returns the module name
func (m *Module) Name() string { return "ingest-" + m.opts.Provider }

// Enabled reports whether this provider has a credential to run with
func (m *Module) Enabled() bool { return m.opts.Enabled }

// Ports returns the module ports
func (m *Module) Ports() Ports { return m.ports }
