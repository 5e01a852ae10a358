// Package service implements the site registration surface
package service

import (
	"context"
	"strings"

	"searchbeat/internal/modkit"
	"searchbeat/internal/modkit/repokit"
	"searchbeat/internal/platform/logger"
	"searchbeat/internal/platform/net/http/bind"
	"searchbeat/internal/services/registry/domain"
)

// Service implements domain.RegistryPort
type Service struct {
	log     logger.Logger
	db      repokit.TxRunner
	binder  repokit.Binder[domain.StorageRepo]
	listers map[string]domain.SiteLister
}

// New constructs the registry service. listers, keyed by provider name, are
// optional; when present, registering a site the credential cannot read is
// logged but still allowed
func New(deps modkit.Deps, binder repokit.Binder[domain.StorageRepo], listers map[string]domain.SiteLister) *Service {
	return &Service{
		log:     *logger.Named("registry"),
		db:      deps.PG,
		binder:  binder,
		listers: listers,
	}
}

// Register upserts the pair and makes the site due immediately
func (s *Service) Register(ctx context.Context, in domain.RegisterInput) (domain.Registration, error) {
	in.SiteURL = strings.TrimSpace(in.SiteURL)
	in.UserID = strings.TrimSpace(in.UserID)
	if err := bind.Struct(in); err != nil {
		return domain.Registration{}, err
	}

	s.warnUnlisted(ctx, in.SiteURL)

	reg, err := s.binder.Bind(s.db).Upsert(ctx, in)
	if err != nil {
		return domain.Registration{}, err
	}
	s.log.Info().Str("site", reg.SiteURL).Str("user", reg.UserID).Msg("site registered")
	return reg, nil
}

// warnUnlisted checks the providers' site lists; upstream failures here are
// never fatal for a register call
func (s *Service) warnUnlisted(ctx context.Context, siteURL string) {
	for provider, lister := range s.listers {
		sites, err := lister.ListSites(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("provider", provider).Msg("site list check skipped")
			continue
		}
		found := false
		for _, u := range sites {
			if strings.EqualFold(strings.TrimRight(u, "/"), strings.TrimRight(siteURL, "/")) {
				found = true
				break
			}
		}
		if !found {
			s.log.Warn().Str("provider", provider).Str("site", siteURL).
				Msg("site not visible to provider credential")
		}
	}
}

// Unregister deletes the pair
func (s *Service) Unregister(ctx context.Context, userID, siteURL string) error {
	if err := s.binder.Bind(s.db).Delete(ctx, userID, siteURL); err != nil {
		return err
	}
	s.log.Info().Str("site", siteURL).Str("user", userID).Msg("site unregistered")
	return nil
}

// List returns registrations for a user, or all when userID is ""
func (s *Service) List(ctx context.Context, userID string) ([]domain.Registration, error) {
	return s.binder.Bind(s.db).List(ctx, userID)
}

// Statuses returns the sync journal for one site
func (s *Service) Statuses(ctx context.Context, siteURL string) ([]domain.SiteStatus, error) {
	return s.binder.Bind(s.db).Statuses(ctx, siteURL)
}
