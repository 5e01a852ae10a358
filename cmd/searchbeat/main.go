// Command searchbeat runs the ingest schedulers and the admin HTTP surface
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"searchbeat/internal/modkit"
	"searchbeat/internal/platform/config"
	"searchbeat/internal/platform/logger"
	phttp "searchbeat/internal/platform/net/http"
	"searchbeat/internal/platform/store"
	"searchbeat/internal/services/admin"
	ingestdom "searchbeat/internal/services/ingest/domain"
	ingestmod "searchbeat/internal/services/ingest/module"
	registrydom "searchbeat/internal/services/registry/domain"
	registrymod "searchbeat/internal/services/registry/module"
)

func main() {
	_ = godotenv.Load()
	logger.Init(logger.FromEnv())
	l := logger.Get()

	root := config.New()
	pgCfg := root.Prefix("SEARCHBEAT_PGSQL_")
	chCfg := root.Prefix("SEARCHBEAT_CLICKHOUSE_")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		AppName: "searchbeat",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: chCfg.MayBool("ENABLED", false),
			URL:     chCfg.MayString("DBURL", ""),
			Role:    "scheduler",
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	deps := modkit.Deps{Log: *l, Cfg: root, PG: st.PG, CH: st.CH}

	// one ingest module per provider; unconfigured providers stay off
	schedulers := map[string]ingestdom.SchedulerPort{}
	listers := map[string]registrydom.SiteLister{}
	for _, provider := range []string{ingestmod.ProviderBing, ingestmod.ProviderGSC} {
		mod, err := ingestmod.New(deps, ingestmod.Options{Provider: provider})
		if err != nil {
			l.Panic().Err(err).Str("provider", provider).Msg("ingest module wiring failed")
		}
		if !mod.Enabled() {
			l.Info().Str("provider", provider).Msg("provider has no credential, skipping")
			continue
		}
		schedulers[provider] = mod.Ports().Scheduler
		listers[provider] = siteLister{mod.Ports().Client}
	}

	if root.MayBool("SEARCHBEAT_SCHEDULER_ENABLED", true) {
		for provider, sched := range schedulers {
			l.Info().Str("provider", provider).Msg("starting scheduler")
			sched.Start(ctx)
		}
	} else {
		l.Info().Msg("scheduler disabled, admin surface only")
	}

	reg := registrymod.New(deps, listers)
	api := admin.New(reg.Ports().Registry, schedulers, admin.FromConfig(root))

	srv := phttp.NewServer(root.Prefix("SEARCHBEAT_"))
	api.Mount(srv.Mux())

	go func() {
		if err := srv.Run(); err != nil {
			l.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	l.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		l.Error().Err(err).Msg("http shutdown failed")
	}
	for _, sched := range schedulers {
		sched.Stop()
	}
	_ = os.Stdout.Sync()
}

// siteLister narrows an ingest client to the registry's check surface
type siteLister struct{ c ingestdom.Client }

func (s siteLister) ListSites(ctx context.Context) ([]string, error) {
	descs, err := s.c.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.URL)
	}
	return out, nil
}
