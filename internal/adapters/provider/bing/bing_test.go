package bing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/platform/testkit"
	"searchbeat/internal/services/ingest/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, APIKey: "key-1"})
}

func TestFetchTotals_DecodesEnvelopeAndLegacyDates(t *testing.T) {
	var gotPath, gotKey, gotStart, gotEnd string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("apikey")
		gotStart = r.URL.Query().Get("startDate")
		gotEnd = r.URL.Query().Get("endDate")
		// 2024-01-05T00:00:00Z in unix ms
		_, _ = w.Write([]byte(`{"d":[
			{"Date":"/Date(1704412800000)/","Clicks":7,"Impressions":90,"Ctr":0.0778,"AvgClickPosition":4.2}
		]}`))
	})

	w := domain.Window{Start: testkit.Day(2024, 1, 5), End: testkit.Day(2024, 1, 6)}
	rows, err := c.FetchTotals(context.Background(), "https://a.test/", domain.SearchTypeWeb, w)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if gotPath != "/GetRankAndTrafficStats" || gotKey != "key-1" {
		t.Fatalf("request = %s apikey=%s", gotPath, gotKey)
	}
	if gotStart != "2024-01-05" || gotEnd != "2024-01-06" {
		t.Fatalf("window params = %s..%s", gotStart, gotEnd)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	r := rows[0]
	if !r.Date.Equal(testkit.Day(2024, 1, 5)) {
		t.Fatalf("legacy date decoded to %v", r.Date)
	}
	if r.Clicks != 7 || r.Impressions != 90 {
		t.Fatalf("measures = %+v", r)
	}
}

func TestFetchTotals_RejectsNonWeb(t *testing.T) {
	c := New(Options{APIKey: "key-1"})
	_, err := c.FetchTotals(context.Background(), "https://a.test/", domain.SearchTypeImage, domain.Window{})
	if perr.CodeOf(err) != perr.ErrorCodeInvalidArgument {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestFetchQueries_ClipsToRowLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"d":[
			{"Date":"2024-01-05","Query":"one","Clicks":1},
			{"Date":"2024-01-05","Query":"two","Clicks":2},
			{"Date":"2024-01-05","Query":"three","Clicks":3}
		]}`))
	})

	w := domain.Window{Start: testkit.Day(2024, 1, 5), End: testkit.Day(2024, 1, 5)}
	rows, err := c.FetchQueries(context.Background(), "https://a.test/", domain.SearchTypeWeb, w, 2)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("row limit ignored, got %d rows", len(rows))
	}
}

func TestFetchPages_404SurfacesAsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	w := domain.Window{Start: testkit.Day(2024, 1, 5), End: testkit.Day(2024, 1, 5)}
	_, err := c.FetchPages(context.Background(), "https://a.test/", domain.SearchTypeWeb, w, 0)
	if perr.CodeOf(err) != perr.ErrorCodeNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestListSites(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/GetUserSites" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"d":[{"Url":"https://a.test/"},{"Url":""},{"Url":"https://b.test/"}]}`))
	})

	sites, err := c.ListSites(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sites) != 2 || sites[0].URL != "https://a.test/" {
		t.Fatalf("sites = %+v", sites)
	}
}
