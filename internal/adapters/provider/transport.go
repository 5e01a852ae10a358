// Package provider holds the shared transport and row normalization the
// upstream search-performance clients are built on
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/platform/logger"
)

const (
	defaultTimeout = 120 * time.Second
	defaultUA      = "searchbeat"
)

// Options configures a Transport
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// Opaque credential; each client decides how to attach it
	Token string
}

// Transport is a single-shot JSON HTTP client. It classifies failures into
// error codes and leaves retry policy to the caller
type Transport struct {
	http *http.Client
	opts Options
	log  logger.Logger
	auth func(*http.Request)
	now  func() time.Time
}

// NewTransport creates a Transport with sane defaults. auth, when non-nil,
// attaches the credential to each outgoing request
func NewTransport(name string, o Options, auth func(*http.Request)) *Transport {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Transport{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named(name),
		auth: auth,
		now:  time.Now,
	}
}

// Token returns the configured credential
func (t *Transport) Token() string { return t.opts.Token }

// GetJSON issues a GET and decodes the response body into out
func (t *Transport) GetJSON(ctx context.Context, path string, q url.Values, out any) error {
	return t.do(ctx, http.MethodGet, path, q, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out
func (t *Transport) PostJSON(ctx context.Context, path string, body, out any) error {
	return t.do(ctx, http.MethodPost, path, nil, body, out)
}

func (t *Transport) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := t.opts.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "encode request body")
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "new request")
	}
	req.Header.Set("User-Agent", t.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.auth != nil {
		t.auth(req)
	}

	start := t.now()
	resp, err := t.http.Do(req)
	lat := t.now().Sub(start)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "upstream request failed")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
	}()

	t.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", lat).
		Msg("upstream http response")

	if err := classify(resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "read upstream body")
	}
	if err := json.Unmarshal(b, out); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "decode upstream body")
	}
	return nil
}

// classify maps an HTTP status to a typed error; nil for 2xx
func classify(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return perr.NotFoundf("upstream returned 404")
	case status == http.StatusTooManyRequests:
		return perr.RateLimitedf("upstream rate limited")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return perr.Unauthorizedf("upstream rejected credential (%d)", status)
	case status == http.StatusBadRequest:
		return perr.InvalidArgf("upstream rejected request (400)")
	case status >= 500:
		return perr.Unavailablef("upstream server error (%d)", status)
	}
	return perr.Newf(perr.ErrorCodeUnknown, "upstream unexpected status %d", status)
}
