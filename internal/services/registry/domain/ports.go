package domain

import "context"

// RegistryPort is the administrative surface over site registrations
type RegistryPort interface {
	// Register upserts the (user, site) pair and stamps next_sync_due_at
	// to now so the next scheduler tick picks the site up
	Register(ctx context.Context, in RegisterInput) (Registration, error)

	// Unregister deletes the pair; missing rows are not an error
	Unregister(ctx context.Context, userID, siteURL string) error

	// List returns registrations for one user, or all when userID is ""
	List(ctx context.Context, userID string) ([]Registration, error)

	// Statuses returns the sync journal read model for one site
	Statuses(ctx context.Context, siteURL string) ([]SiteStatus, error)
}

// SiteLister is the slice of an upstream client the registry uses to warn
// about registering sites the credential cannot read
type SiteLister interface {
	ListSites(ctx context.Context) ([]string, error)
}

// StorageRepo is the store surface bound per Queryer
type StorageRepo interface {
	Upsert(ctx context.Context, in RegisterInput) (Registration, error)
	Delete(ctx context.Context, userID, siteURL string) error
	List(ctx context.Context, userID string) ([]Registration, error)
	Statuses(ctx context.Context, siteURL string) ([]SiteStatus, error)
}
