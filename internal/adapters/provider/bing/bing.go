// Package bing wraps the Bing Webmaster Tools JSON API
package bing

import (
	"context"
	"net/url"
	"time"

	"searchbeat/internal/adapters/provider"
	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/services/ingest/domain"
)

const baseURLDefault = "https://ssl.bing.com/webmaster/api.svc/json"

// Client implements domain.Client for Bing Webmaster Tools. Bing reports a
// single search mode and wraps every payload in a "d" envelope, with dates
// in the legacy "/Date(<unix-ms>)/" encoding
type Client struct {
	tr *provider.Transport
}

// Options configures the Client
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a Bing client
func New(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	return &Client{tr: provider.NewTransport("bing", provider.Options{
		BaseURL: o.BaseURL,
		Timeout: o.Timeout,
		Token:   o.APIKey,
	}, nil)}
}

// Provider interface
func (c *Client) Provider() string { return "bing" }

// SearchTypes interface
func (c *Client) SearchTypes() []domain.SearchType {
	return []domain.SearchType{domain.SearchTypeWeb}
}

// envelope is Bing's "d" wrapper around every response
type envelope struct {
	D []map[string]any `json:"d"`
}

func (c *Client) query(site string, w domain.Window) url.Values {
	q := url.Values{}
	q.Set("apikey", c.tr.Token())
	q.Set("siteUrl", site)
	q.Set("startDate", w.Start.Format("2006-01-02"))
	q.Set("endDate", w.End.Format("2006-01-02"))
	return q
}

func (c *Client) fetch(ctx context.Context, path string, site string, st domain.SearchType, dim domain.Dimension, w domain.Window) ([]domain.FactRow, error) {
	var env envelope
	if err := c.tr.GetJSON(ctx, path, c.query(site, w), &env); err != nil {
		return nil, err
	}
	rows, _ := provider.NormalizeRows(site, st, dim, env.D)
	return rows, nil
}

// FetchTotals interface
func (c *Client) FetchTotals(ctx context.Context, site string, st domain.SearchType, w domain.Window) ([]domain.FactRow, error) {
	if st != domain.SearchTypeWeb {
		return nil, perr.InvalidArgf("bing reports web only, got %q", st)
	}
	return c.fetch(ctx, "/GetRankAndTrafficStats", site, st, domain.DimTotals, w)
}

// FetchQueries interface
func (c *Client) FetchQueries(ctx context.Context, site string, st domain.SearchType, w domain.Window, rowLimit int) ([]domain.FactRow, error) {
	rows, err := c.fetch(ctx, "/GetQueryStats", site, st, domain.DimQuery, w)
	return clip(rows, rowLimit), err
}

// FetchPages interface
func (c *Client) FetchPages(ctx context.Context, site string, st domain.SearchType, w domain.Window, rowLimit int) ([]domain.FactRow, error) {
	rows, err := c.fetch(ctx, "/GetPageStats", site, st, domain.DimPage, w)
	return clip(rows, rowLimit), err
}

// ListSites interface
func (c *Client) ListSites(ctx context.Context) ([]domain.SiteDescriptor, error) {
	q := url.Values{}
	q.Set("apikey", c.tr.Token())
	var env envelope
	if err := c.tr.GetJSON(ctx, "/GetUserSites", q, &env); err != nil {
		return nil, err
	}
	out := make([]domain.SiteDescriptor, 0, len(env.D))
	for _, raw := range env.D {
		u, _ := raw["Url"].(string)
		if u == "" {
			continue
		}
		out = append(out, domain.SiteDescriptor{URL: u, Role: "verified"})
	}
	return out, nil
}

func clip(rows []domain.FactRow, limit int) []domain.FactRow {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
