// Package domain holds the site registration types and ports
package domain

import "time"

// RegisterInput is the validated payload for registering a site
type RegisterInput struct {
	UserID            string `json:"user_id" validate:"required,max=128"`
	SiteURL           string `json:"site_url" validate:"required,url,max=512"`
	Enabled           *bool  `json:"enabled,omitempty"`
	SyncIntervalHours int    `json:"sync_interval_hours,omitempty" validate:"omitempty,min=1,max=720"`
	PriorityOrder     int    `json:"priority_order,omitempty" validate:"omitempty,min=0,max=1000"`
}

// Registration is one persisted (user, site) pair
type Registration struct {
	ID                int64      `json:"id"`
	UserID            string     `json:"user_id"`
	SiteURL           string     `json:"site_url"`
	Enabled           bool       `json:"enabled"`
	SyncIntervalHours int        `json:"sync_interval_hours"`
	PriorityOrder     int        `json:"priority_order"`
	LastFullSyncAt    *time.Time `json:"last_full_sync_at,omitempty"`
	NextSyncDueAt     *time.Time `json:"next_sync_due_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// SiteStatus is the read model over the sync journal for one site
type SiteStatus struct {
	SiteURL        string     `json:"site_url"`
	SearchType     string     `json:"search_type"`
	Dimension      string     `json:"dimension"`
	Status         string     `json:"status"`
	Message        string     `json:"message,omitempty"`
	LastSyncedDate *time.Time `json:"last_synced_date,omitempty"`
	LastRunAt      time.Time  `json:"last_run_at"`
}
