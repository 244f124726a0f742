// Package webview defines the injected collaborator that can show a
// real browser window (or a headless one) to satisfy challenges and
// interactive logins. The runtime only depends on the Provider
// interface; the rod-backed implementation lives alongside it.
package webview

import (
	"context"
	"time"

	"kumo/internal/errs"
)

// Request asks a provider to open a page and watch it until the
// success check passes, the user closes the window, or the timeout
// elapses.
type Request struct {
	URL           string
	Title         string
	UserAgent     string
	Timeout       time.Duration
	SuccessCheck  string // JS returning truthy when the page is done
	CheckInterval time.Duration
	FinishScript  string // JS run after success; its result is returned
	CookieNames   []string
}

// CloseReason says why the WebView session ended.
type CloseReason string

const (
	CloseSuccess    CloseReason = "success"
	CloseTimeout    CloseReason = "timeout"
	CloseUserClosed CloseReason = "user_closed"
	CloseError      CloseReason = "error"
)

// Response reports the session outcome.
type Response struct {
	Success      bool
	CloseReason  CloseReason
	Cookies      map[string]string
	ScriptResult string
	Err          string
}

// Provider is implemented by the host application (or the bundled rod
// provider) and injected into the runtime.
type Provider interface {
	Open(ctx context.Context, req *Request) (*Response, error)
	SupportsHeadless() bool
	Name() string
}

// NoopProvider is used when no WebView is injected; every open fails
// with a WebViewUnavailable error.
type NoopProvider struct{}

func (NoopProvider) Open(context.Context, *Request) (*Response, error) {
	return nil, errs.New(errs.KindWebViewUnavailable, "no webview provider configured")
}

func (NoopProvider) SupportsHeadless() bool { return false }

func (NoopProvider) Name() string { return "noop" }
