// Package fetch performs single conditional HTTP GETs against monitored
// product pages.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/shopassist/watchd/internal/telemetry"
	"github.com/shopassist/watchd/internal/watcher"
)

// FailureKind classifies fetch failures for logging and backoff decisions.
type FailureKind string

// Failure kinds.
const (
	FailTimeout    FailureKind = "timeout"
	FailNetwork    FailureKind = "network"
	FailHTTPStatus FailureKind = "http_status"
	FailBadURL     FailureKind = "bad_url"
)

// Failure is a typed fetch error. It carries a status code or error class,
// never a raw stack trace.
type Failure struct {
	Kind       FailureKind
	StatusCode int
	Detail     string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("fetch failed (%s): status %d", f.Kind, f.StatusCode)
	}
	return fmt.Sprintf("fetch failed (%s): %s", f.Kind, f.Detail)
}

// Validator holds the cache validators returned by the origin.
type Validator struct {
	ETag         string
	LastModified string
}

func (v Validator) empty() bool {
	return v.ETag == "" && v.LastModified == ""
}

// Result is the outcome of one conditional GET. Unchanged means the origin
// answered 304 and Body is empty.
type Result struct {
	Unchanged  bool
	StatusCode int
	Body       []byte
	Validator  Validator
}

// Config controls client behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	MaxBody   int64
}

const (
	defaultTimeout = 30 * time.Second
	defaultMaxBody = 5 << 20
)

// Client issues conditional GETs with an in-memory per-URL validator cache.
// Losing the cache is safe; it only reduces the 304 hit rate.
type Client struct {
	cfg        Config
	httpClient *http.Client
	validators sync.Map // url -> Validator
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "watchd/1.0 (+https://github.com/shopassist/watchd)"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaultMaxBody
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newHTTPTransport(),
		},
	}
}

// Fetch performs one conditional GET. Any non-success status, network error,
// or timeout is returned as a *Failure.
func (c *Client) Fetch(ctx context.Context, url string) (Result, error) {
	domain, derr := watcher.NormalizeDomain(url)
	if derr != nil {
		return Result{}, &Failure{Kind: FailBadURL, Detail: derr.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, &Failure{Kind: FailBadURL, Detail: err.Error()}
	}
	c.setHeaders(req, url)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.ObserveFetch(domain, 0, time.Since(start))
		return Result{}, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	telemetry.ObserveFetch(domain, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return Result{Unchanged: true, StatusCode: resp.StatusCode}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Result{}, &Failure{Kind: FailHTTPStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBody))
	if err != nil {
		return Result{}, classifyTransportError(err)
	}

	v := Validator{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if !v.empty() {
		c.validators.Store(url, v)
	} else {
		c.validators.Delete(url)
	}

	return Result{StatusCode: resp.StatusCode, Body: body, Validator: v}, nil
}

func (c *Client) setHeaders(req *http.Request, url string) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	if cached, ok := c.validators.Load(url); ok {
		v := cached.(Validator)
		if v.ETag != "" {
			req.Header.Set("If-None-Match", v.ETag)
		} else if v.LastModified != "" {
			req.Header.Set("If-Modified-Since", v.LastModified)
		}
	}
}

// CachedValidator exposes the stored validator for a URL, mainly for tests.
func (c *Client) CachedValidator(url string) (Validator, bool) {
	v, ok := c.validators.Load(url)
	if !ok {
		return Validator{}, false
	}
	return v.(Validator), true
}

func classifyTransportError(err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailTimeout, Detail: "request deadline exceeded"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: FailTimeout, Detail: "network timeout"}
	}
	return &Failure{Kind: FailNetwork, Detail: err.Error()}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
