// Command searchbeat-backfill runs a one-off ingest for a site and window,
// bypassing the scheduler. Useful for seeding history or repairing gaps
package main

import (
	"context"
	"flag"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"searchbeat/internal/modkit"
	"searchbeat/internal/platform/config"
	"searchbeat/internal/platform/logger"
	"searchbeat/internal/platform/store"
	"searchbeat/internal/services/ingest/domain"
	ingestmod "searchbeat/internal/services/ingest/module"
)

func main() {
	_ = godotenv.Load()
	logger.Init(logger.FromEnv())
	l := logger.Get()

	var (
		fProvider = flag.String("provider", "", "provider to ingest from: bing | gsc")
		fSite     = flag.String("site", "", "site url to ingest")
		fType     = flag.String("type", "web", "search type: web | image | video")
		fStart    = flag.String("start", "", "UTC start date YYYY-MM-DD")
		fEnd      = flag.String("end", "", "UTC end date YYYY-MM-DD inclusive")
		fDims     = flag.String("dims", "totals,query,page", "comma separated dimensions")
	)
	flag.Parse()

	if *fProvider == "" || *fSite == "" || *fStart == "" || *fEnd == "" {
		l.Panic().Msg("must provide -provider, -site, -start and -end")
	}
	start, err := time.Parse("2006-01-02", *fStart)
	if err != nil {
		l.Panic().Err(err).Msg("bad -start")
	}
	end, err := time.Parse("2006-01-02", *fEnd)
	if err != nil {
		l.Panic().Err(err).Msg("bad -end")
	}
	if end.Before(start) {
		l.Panic().Str("start", *fStart).Str("end", *fEnd).Msg("-end before -start")
	}

	var dims []domain.Dimension
	for _, d := range strings.Split(*fDims, ",") {
		switch domain.Dimension(strings.TrimSpace(d)) {
		case domain.DimTotals:
			dims = append(dims, domain.DimTotals)
		case domain.DimQuery:
			dims = append(dims, domain.DimQuery)
		case domain.DimPage:
			dims = append(dims, domain.DimPage)
		default:
			l.Panic().Str("dim", d).Msg("unknown dimension")
		}
	}

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
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 2)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: chCfg.MayBool("ENABLED", false),
			URL:     chCfg.MayString("DBURL", ""),
			Role:    "backfill",
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

	deps := modkit.Deps{Cfg: root, PG: st.PG, CH: st.CH, Log: *l}
	mod, err := ingestmod.New(deps, ingestmod.Options{Provider: *fProvider})
	if err != nil {
		l.Panic().Err(err).Msg("ingest module wiring failed")
	}
	if !mod.Enabled() {
		l.Panic().Str("provider", *fProvider).Msg("provider has no credential configured")
	}

	w := domain.Window{Start: start.UTC(), End: end.UTC()}
	sum, err := mod.Ports().Runner.Run(ctx, *fSite, domain.SearchType(*fType), w, dims)
	if err != nil {
		l.Panic().Err(err).Msg("backfill run failed")
	}

	for _, d := range sum.Dimensions {
		l.Info().
			Str("dimension", string(d.Dim)).
			Int("processed", d.ProcessedChunks).
			Int("planned", d.TotalChunks).
			Int("records", d.Records).
			Bool("capped", d.Capped).
			Bool("aborted", d.Aborted).
			Msg("dimension finished")
	}

	statuses, err := mod.Ports().Storage.ListSyncStatus(ctx, *fSite)
	if err != nil {
		l.Error().Err(err).Msg("failed to read sync journal")
	}
	for _, s := range statuses {
		ev := l.Info().
			Str("search_type", string(s.Type)).
			Str("dimension", string(s.Dim)).
			Str("status", s.Status)
		if s.LastSyncedDate != nil {
			ev = ev.Str("last_synced", s.LastSyncedDate.Format("2006-01-02"))
		}
		if s.Message != "" {
			ev = ev.Str("message", s.Message)
		}
		ev.Msg("journal state")
	}
	l.Info().Str("site", *fSite).Str("window", w.String()).Msg("backfill complete")
}
