// Package httpclient provides the runtime's shared HTTP client. One
// client exists per loaded rule; its behavior comes from layered
// configuration (built-in defaults, rule-level block, flow-level
// override) merged option-wise.
package httpclient

import (
	"crypto/tls"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/temoto/robotstxt"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/semaphore"

	"kumo/internal/errs"
	"kumo/internal/rule"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; kumo/0.1; +https://github.com/kumo)"

// Defaults returns the built-in configuration layer: 30s timeout, 10
// redirects, TLS verification on, a reasonable UA.
func Defaults() *rule.HTTPConfig {
	ua := defaultUserAgent
	timeout := 30
	redirects := 10
	follow := true
	verify := true
	return &rule.HTTPConfig{
		UserAgent:       &ua,
		TimeoutSeconds:  &timeout,
		MaxRedirects:    &redirects,
		FollowRedirects: &follow,
		VerifySSL:       &verify,
	}
}

// Request describes one outbound call. Headers layer on top of the
// configured defaults; Override layers flow-level config on top of the
// client's own. Retryable marks a non-idempotent request as safe to
// retry anyway.
type Request struct {
	Method    string
	URL       string
	Headers   map[string]string
	Body      string
	Form      url.Values
	Override  *rule.HTTPConfig
	Retryable bool
}

// Response is the materialized result handed to extraction.
type Response struct {
	Status   int
	Headers  http.Header
	FinalURL string
	Body     string
}

// Header returns the first value of a response header,
// case-insensitively.
func (r *Response) Header(name string) string {
	return r.Headers.Get(name)
}

// Client is safe for concurrent use.
type Client struct {
	cfg *rule.HTTPConfig
	hc  *http.Client
	jar *cookiejar.Jar

	sem *semaphore.Weighted

	paceMu   sync.Mutex
	lastSent time.Time

	headerMu       sync.RWMutex
	defaultHeaders map[string]string

	respectRobots bool
	robotsMu      sync.Mutex
	robotsCache   map[string]*robotstxt.RobotsData

	logger *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger attaches a logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRobots enables robots.txt checking before each request.
func WithRobots(enabled bool) Option {
	return func(c *Client) { c.respectRobots = enabled }
}

// New builds a client from the rule-level config merged over the
// built-in defaults.
func New(cfg *rule.HTTPConfig, opts ...Option) (*Client, error) {
	eff := Defaults().Merge(cfg)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errs.Wrap(errs.KindHTTPConfig, err, "cookie jar")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		Proxy:               http.ProxyFromEnvironment,
	}
	if eff.Proxy != nil && *eff.Proxy != "" {
		proxyURL, err := url.Parse(*eff.Proxy)
		if err != nil {
			return nil, errs.Wrap(errs.KindHTTPConfig, err, "invalid proxy %q", *eff.Proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if eff.VerifySSL != nil && !*eff.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if eff.ConnectTimeoutSeconds != nil && *eff.ConnectTimeoutSeconds > 0 {
		transport.ResponseHeaderTimeout = time.Duration(*eff.ConnectTimeoutSeconds) * time.Second
	}

	c := &Client{
		cfg:            eff,
		jar:            jar,
		defaultHeaders: map[string]string{},
		robotsCache:    map[string]*robotstxt.RobotsData{},
		logger:         slog.Default(),
	}

	c.hc = &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   time.Duration(intOr(eff.TimeoutSeconds, 30)) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if eff.FollowRedirects != nil && !*eff.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= intOr(eff.MaxRedirects, 10) {
				return errs.New(errs.KindHTTPRequest, "stopped after %d redirects", len(via))
			}
			return nil
		},
	}

	if eff.MaxConcurrent != nil && *eff.MaxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(int64(*eff.MaxConcurrent))
	}

	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the client's effective configuration layer.
func (c *Client) Config() *rule.HTTPConfig { return c.cfg }

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: rawURL, Headers: headers})
}

// Post issues a POST request with a raw body.
func (c *Client) Post(ctx context.Context, rawURL, body string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, URL: rawURL, Body: body, Headers: headers})
}

// PostForm issues a POST with form-encoded values.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, URL: rawURL, Form: form, Headers: headers})
}

// SetCookies installs cookies for the given URL into the client's jar.
func (c *Client) SetCookies(rawURL string, cookies map[string]string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errs.Wrap(errs.KindHTTPConfig, err, "cookie target %q", rawURL)
	}
	hc := make([]*http.Cookie, 0, len(cookies))
	for name, v := range cookies {
		hc = append(hc, &http.Cookie{Name: name, Value: v, Path: "/"})
	}
	c.jar.SetCookies(u, hc)
	return nil
}

// SetDefaultHeader installs a header sent on every subsequent request
// (login flows and challenge credentials use this).
func (c *Client) SetDefaultHeader(name, value string) {
	c.headerMu.Lock()
	defer c.headerMu.Unlock()
	c.defaultHeaders[name] = value
}

// Do executes the request with the full pipeline: flow override merge,
// robots gate, concurrency gate, pacing, retry.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	eff := c.cfg.Merge(req.Override)

	if c.respectRobots {
		if err := c.checkRobots(ctx, req.URL, stringOr(eff.UserAgent, defaultUserAgent)); err != nil {
			return nil, err
		}
	}

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, errs.Wrap(errs.KindHTTPRequest, err, "acquire request slot")
		}
		defer c.sem.Release(1)
	}

	if delay := intOr(eff.RequestDelayMs, 0); delay > 0 {
		if err := c.pace(ctx, time.Duration(delay)*time.Millisecond); err != nil {
			return nil, err
		}
	}

	retryCount := intOr(eff.RetryCount, 0)
	retryDelay := time.Duration(intOr(eff.RetryDelayMs, 1000)) * time.Millisecond
	idempotent := req.Method == http.MethodGet || req.Method == http.MethodHead || req.Retryable
	if !idempotent {
		retryCount = 0
	}

	var resp *Response
	backoff := retry.WithMaxRetries(uint64(retryCount), retry.NewConstant(retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.attempt(ctx, req, eff)
		if err != nil {
			c.logger.Debug("request attempt failed", "url", req.URL, "error", err)
			return retry.RetryableError(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindHTTPRequest, err, "%s %s", req.Method, req.URL)
	}
	return resp, nil
}

// attempt builds and sends one HTTP request. Requests are rebuilt from
// the declarative Request on every attempt, so a retry never reuses a
// consumed body.
func (c *Client) attempt(ctx context.Context, req *Request, eff *rule.HTTPConfig) (*Response, error) {
	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != "":
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	for k, v := range eff.Headers {
		httpReq.Header.Set(k, v)
	}
	c.headerMu.RLock()
	for k, v := range c.defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	c.headerMu.RUnlock()
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", stringOr(eff.UserAgent, defaultUserAgent))
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	finalURL := req.URL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}
	return &Response{
		Status:   httpResp.StatusCode,
		Headers:  httpResp.Header,
		FinalURL: finalURL,
		Body:     string(data),
	}, nil
}

// pace enforces the configured minimum gap between consecutive
// requests issued by this client.
func (c *Client) pace(ctx context.Context, gap time.Duration) error {
	c.paceMu.Lock()
	wait := gap - time.Since(c.lastSent)
	if wait < 0 {
		wait = 0
	}
	c.lastSent = time.Now().Add(wait)
	c.paceMu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.KindHTTPRequest, ctx.Err(), "canceled while pacing")
	}
}

func (c *Client) checkRobots(ctx context.Context, rawURL, ua string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errs.Wrap(errs.KindHTTPRequest, err, "invalid URL %q", rawURL)
	}

	c.robotsMu.Lock()
	data, ok := c.robotsCache[u.Host]
	c.robotsMu.Unlock()

	if !ok {
		robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
		if err != nil {
			return nil
		}
		httpReq.Header.Set("User-Agent", ua)
		resp, err := c.hc.Do(httpReq)
		if err != nil {
			// Unreachable robots.txt does not block scraping.
			return nil
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, raw)
		if err != nil {
			return nil
		}
		c.robotsMu.Lock()
		c.robotsCache[u.Host] = data
		c.robotsMu.Unlock()
	}

	if data != nil && !data.TestAgent(u.Path, ua) {
		return errs.New(errs.KindHTTPRequest, "%s disallowed by robots.txt", rawURL)
	}
	return nil
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func stringOr(p *string, def string) string {
	if p != nil && *p != "" {
		return *p
	}
	return def
}
