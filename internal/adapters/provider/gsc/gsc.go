// Package gsc wraps the Google Search Console search analytics API
package gsc

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"searchbeat/internal/adapters/provider"
	"searchbeat/internal/services/ingest/domain"
)

const baseURLDefault = "https://www.googleapis.com/webmasters/v3"

// Client implements domain.Client for Search Console. GSC reports three
// search modes; rows come back keyed by a "keys" array in dimension order
// with ISO dates
type Client struct {
	tr *provider.Transport
}

// Options configures the Client
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// New creates a Search Console client
func New(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	auth := func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+o.Token)
	}
	return &Client{tr: provider.NewTransport("gsc", provider.Options{
		BaseURL: o.BaseURL,
		Timeout: o.Timeout,
		Token:   o.Token,
	}, auth)}
}

// Provider interface
func (c *Client) Provider() string { return "gsc" }

// SearchTypes interface
func (c *Client) SearchTypes() []domain.SearchType {
	return []domain.SearchType{domain.SearchTypeWeb, domain.SearchTypeImage, domain.SearchTypeVideo}
}

type analyticsRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	SearchType string   `json:"searchType"`
	RowLimit   int      `json:"rowLimit,omitempty"`
}

type analyticsRow struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

type analyticsResponse struct {
	Rows []analyticsRow `json:"rows"`
}

// fetch runs one searchAnalytics query and flattens the keys array into the
// fallback-key maps the normalizer reads
func (c *Client) fetch(ctx context.Context, site string, st domain.SearchType, dim domain.Dimension, w domain.Window, rowLimit int) ([]domain.FactRow, error) {
	dims := []string{"date"}
	switch dim {
	case domain.DimQuery:
		dims = append(dims, "query")
	case domain.DimPage:
		dims = append(dims, "page")
	}

	req := analyticsRequest{
		StartDate:  w.Start.Format("2006-01-02"),
		EndDate:    w.End.Format("2006-01-02"),
		Dimensions: dims,
		SearchType: string(st),
		RowLimit:   rowLimit,
	}
	path := "/sites/" + url.PathEscape(site) + "/searchAnalytics/query"

	var resp analyticsResponse
	if err := c.tr.PostJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}

	raw := make([]map[string]any, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		m := map[string]any{
			"clicks":      r.Clicks,
			"impressions": r.Impressions,
			"ctr":         r.CTR,
			"position":    r.Position,
		}
		for i, d := range dims {
			if i < len(r.Keys) {
				m[d] = r.Keys[i]
			}
		}
		raw = append(raw, m)
	}
	rows, _ := provider.NormalizeRows(site, st, dim, raw)
	return rows, nil
}

// FetchTotals interface
func (c *Client) FetchTotals(ctx context.Context, site string, st domain.SearchType, w domain.Window) ([]domain.FactRow, error) {
	return c.fetch(ctx, site, st, domain.DimTotals, w, 0)
}

// FetchQueries interface
func (c *Client) FetchQueries(ctx context.Context, site string, st domain.SearchType, w domain.Window, rowLimit int) ([]domain.FactRow, error) {
	return c.fetch(ctx, site, st, domain.DimQuery, w, rowLimit)
}

// FetchPages interface
func (c *Client) FetchPages(ctx context.Context, site string, st domain.SearchType, w domain.Window, rowLimit int) ([]domain.FactRow, error) {
	return c.fetch(ctx, site, st, domain.DimPage, w, rowLimit)
}

type siteEntry struct {
	SiteURL         string `json:"siteUrl"`
	PermissionLevel string `json:"permissionLevel"`
}

type sitesResponse struct {
	SiteEntry []siteEntry `json:"siteEntry"`
}

// ListSites interface
func (c *Client) ListSites(ctx context.Context) ([]domain.SiteDescriptor, error) {
	var resp sitesResponse
	if err := c.tr.GetJSON(ctx, "/sites", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.SiteDescriptor, 0, len(resp.SiteEntry))
	for _, e := range resp.SiteEntry {
		if e.SiteURL == "" {
			continue
		}
		out = append(out, domain.SiteDescriptor{URL: e.SiteURL, Role: e.PermissionLevel})
	}
	return out, nil
}
