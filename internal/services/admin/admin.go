// Package admin exposes the operator HTTP surface: site registration,
// sync status and on-demand scheduler ticks
package admin

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"searchbeat/internal/platform/config"
	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/platform/logger"
	phttp "searchbeat/internal/platform/net/http"
	"searchbeat/internal/platform/net/http/bind"
	"searchbeat/internal/platform/net/middleware"
	ingestdom "searchbeat/internal/services/ingest/domain"
	"searchbeat/internal/services/registry/domain"
)

// Options configures the admin surface
type Options struct {
	Token          string // bearer token; empty disables auth
	AllowedOrigins []string
}

// FromConfig reads admin options under SEARCHBEAT_ADMIN_
func FromConfig(cfg config.Conf) Options {
	ac := cfg.Prefix("SEARCHBEAT_ADMIN_")
	return Options{
		Token: ac.MayString("TOKEN", ""),
	}
}

// API mounts the admin routes. Schedulers are keyed by provider name so
// /tick/{provider} can fire the right loop
type API struct {
	log        logger.Logger
	registry   domain.RegistryPort
	schedulers map[string]ingestdom.SchedulerPort
	opts       Options
}

// New constructs the admin API
func New(registry domain.RegistryPort, schedulers map[string]ingestdom.SchedulerPort, opts Options) *API {
	return &API{
		log:        *logger.Named("admin"),
		registry:   registry,
		schedulers: schedulers,
		opts:       opts,
	}
}

// Mount attaches middleware and routes to the mux
func (a *API) Mount(m *chi.Mux) {
	m.Use(middleware.RealIP())
	m.Use(middleware.RequestID())
	m.Use(middleware.Recover())
	m.Use(middleware.AccessLog())
	m.Use(middleware.CORS(middleware.CORSOptions{AllowedOrigins: a.opts.AllowedOrigins}))
	m.Use(middleware.Heartbeat("/health"))
	m.Use(middleware.Timeout(60 * time.Second))

	m.Route("/admin", func(r chi.Router) {
		r.Use(middleware.BearerToken(a.opts.Token, phttp.JSON))

		r.Post("/sites", a.registerSite)
		r.Delete("/sites", a.unregisterSite)
		r.Get("/sites", a.listSites)
		r.Get("/sites/status", a.siteStatus)
		r.Post("/tick/{provider}", a.tickNow)
	})
}

func (a *API) registerSite(w http.ResponseWriter, r *http.Request) {
	in, err := bind.ParseJSON[domain.RegisterInput](r, 1<<20)
	if err != nil {
		phttp.Error(w, err)
		return
	}
	reg, err := a.registry.Register(r.Context(), in)
	if err != nil {
		phttp.Error(w, err)
		return
	}
	phttp.JSON(w, http.StatusCreated, reg)
}

type unregisterInput struct {
	UserID  string `json:"user_id" validate:"required,max=128"`
	SiteURL string `json:"site_url" validate:"required,max=512"`
}

func (a *API) unregisterSite(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := unregisterInput{UserID: q.Get("user_id"), SiteURL: q.Get("site_url")}
	if err := bind.Struct(in); err != nil {
		phttp.Error(w, err)
		return
	}
	if err := a.registry.Unregister(r.Context(), in.UserID, in.SiteURL); err != nil {
		phttp.Error(w, err)
		return
	}
	phttp.JSON(w, http.StatusNoContent, nil)
}

func (a *API) listSites(w http.ResponseWriter, r *http.Request) {
	regs, err := a.registry.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		phttp.Error(w, err)
		return
	}
	if regs == nil {
		regs = []domain.Registration{}
	}
	phttp.JSON(w, http.StatusOK, regs)
}

func (a *API) siteStatus(w http.ResponseWriter, r *http.Request) {
	site, err := url.QueryUnescape(r.URL.Query().Get("site_url"))
	if err != nil || site == "" {
		phttp.Error(w, perr.InvalidArgf("site_url is required"))
		return
	}
	statuses, err := a.registry.Statuses(r.Context(), site)
	if err != nil {
		phttp.Error(w, err)
		return
	}
	if statuses == nil {
		statuses = []domain.SiteStatus{}
	}
	phttp.JSON(w, http.StatusOK, statuses)
}

func (a *API) tickNow(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	sched, ok := a.schedulers[provider]
	if !ok {
		phttp.Error(w, perr.NotFoundf("unknown provider %q", provider))
		return
	}
	ran, err := sched.TickNow(r.Context())
	if err != nil {
		phttp.Error(w, err)
		return
	}
	if !ran {
		a.log.Info().Str("provider", provider).Msg("manual tick skipped, lease held elsewhere")
		phttp.JSON(w, http.StatusConflict, map[string]string{"provider": provider, "status": "skipped"})
		return
	}
	a.log.Info().Str("provider", provider).Msg("manual tick completed")
	phttp.JSON(w, http.StatusAccepted, map[string]string{"provider": provider, "status": "ticked"})
}
