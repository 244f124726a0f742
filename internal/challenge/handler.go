package challenge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sethvargo/go-retry"

	"kumo/internal/errs"
	"kumo/internal/httpclient"
	"kumo/internal/rule"
	"kumo/internal/webview"
)

// HandlerContext is everything a handler may need: the WebView
// collaborator, the triggering URL and detection, the raw response,
// and the shared HTTP client for re-polling and solver calls.
type HandlerContext struct {
	WebView   webview.Provider
	URL       string
	Detection Detection
	Response  *ResponseContext
	Client    *httpclient.Client
	Detectors []Detector
}

// Handler obtains credentials for a detected challenge.
type Handler interface {
	Handle(ctx context.Context, hc *HandlerContext) (*Credentials, error)
}

// NewHandler builds a handler from its rule configuration.
func NewHandler(cfg *rule.HandlerConfig) (Handler, error) {
	switch cfg.Type {
	case rule.HandlerWebView:
		return &WebViewHandler{cfg: cfg}, nil
	case rule.HandlerRetry:
		return &RetryHandler{cfg: cfg}, nil
	case rule.HandlerCookie:
		return &CookieHandler{cfg: cfg}, nil
	case rule.HandlerExternal:
		return NewExternalHandler(cfg)
	case rule.HandlerScript:
		return scriptHandler{}, nil
	default:
		return nil, errs.New(errs.KindInvalidConfigValue, "unknown challenge handler type %q", cfg.Type)
	}
}

// WebViewHandler delegates to the injected WebView provider: open the
// challenged URL, wait for the success check, harvest cookies.
type WebViewHandler struct {
	cfg *rule.HandlerConfig
}

func (h *WebViewHandler) Handle(ctx context.Context, hc *HandlerContext) (*Credentials, error) {
	if hc.WebView == nil {
		return nil, errs.New(errs.KindWebViewUnavailable, "challenge needs a webview but none is configured")
	}

	req := &webview.Request{
		URL:           hc.URL,
		Title:         h.cfg.Tip,
		UserAgent:     h.cfg.UserAgent,
		SuccessCheck:  h.cfg.SuccessCheck,
		FinishScript:  h.cfg.FinishScript,
		CookieNames:   h.cfg.ExtractCookies,
		Timeout:       time.Duration(h.cfg.TimeoutSeconds) * time.Second,
		CheckInterval: time.Duration(h.cfg.CheckIntervalMs) * time.Millisecond,
	}

	resp, err := hc.WebView.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		switch resp.CloseReason {
		case webview.CloseUserClosed:
			return nil, errs.New(errs.KindWebViewUserClosed, "user closed the challenge window")
		case webview.CloseTimeout:
			return nil, errs.New(errs.KindWebViewTimeout, "challenge window timed out")
		default:
			return nil, errs.New(errs.KindWebViewError, "challenge window failed: %s", resp.Err)
		}
	}

	creds := NewCredentials()
	for name, v := range resp.Cookies {
		creds.Cookies[name] = v
	}
	// A finish script may return a JSON object of extra credentials
	// (e.g. captcha tokens).
	if resp.ScriptResult != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(resp.ScriptResult), &extra); err == nil {
			for k, v := range extra {
				if s, ok := v.(string); ok {
					creds.Extra[k] = s
				}
			}
		}
	}
	return creds, nil
}

// RetryHandler polls the URL with exponential backoff until the
// response stops matching the configured challenge detectors. Some
// interstitials clear on their own once the client has cookies.
type RetryHandler struct {
	cfg *rule.HandlerConfig
}

func (h *RetryHandler) Handle(ctx context.Context, hc *HandlerContext) (*Credentials, error) {
	if hc.Client == nil {
		return nil, errs.New(errs.KindChallengeFailed, "retry handler needs an HTTP client")
	}

	attempts := h.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := time.Duration(h.cfg.InitialDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}
	factor := h.cfg.BackoffFactor
	if factor <= 1 {
		factor = 1.5
	}

	next := delay
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		d := next
		next = time.Duration(float64(next) * factor)
		return d, false
	})

	err := retry.Do(ctx, retry.WithMaxRetries(uint64(attempts-1), backoff), func(ctx context.Context) error {
		resp, err := hc.Client.Get(ctx, hc.URL, nil)
		if err != nil {
			return retry.RetryableError(err)
		}
		rc := &ResponseContext{
			Status:   resp.Status,
			Headers:  flattenHeaders(resp),
			Body:     resp.Body,
			FinalURL: resp.FinalURL,
		}
		for _, d := range hc.Detectors {
			if d.Detect(rc).Detected {
				return retry.RetryableError(errs.New(errs.KindChallengeFailed, "challenge still present"))
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindChallengeFailed, err, "challenge did not clear after %d polls", attempts)
	}
	// The interstitial cleared; whatever cookies the origin set along
	// the way already live in the client's jar.
	return NewCredentials(), nil
}

// CookieHandler installs a user-supplied (or rule-dictated) cookie
// string as credentials.
type CookieHandler struct {
	cfg *rule.HandlerConfig
}

func (h *CookieHandler) Handle(_ context.Context, _ *HandlerContext) (*Credentials, error) {
	cookies := ParseCookieString(h.cfg.Cookie)
	if len(cookies) == 0 {
		return nil, errs.New(errs.KindChallengeFailed, "cookie handler has no usable cookies")
	}
	creds := NewCredentials()
	for name, v := range cookies {
		creds.Cookies[name] = v
	}
	return creds, nil
}

// scriptHandler is reserved in the schema but not implemented.
type scriptHandler struct{}

func (scriptHandler) Handle(context.Context, *HandlerContext) (*Credentials, error) {
	return nil, errs.New(errs.KindChallengeFailed, "script challenge handler is not implemented")
}

func flattenHeaders(resp *httpclient.Response) map[string]string {
	out := make(map[string]string, len(resp.Headers))
	for name := range resp.Headers {
		out[name] = resp.Headers.Get(name)
	}
	return out
}
