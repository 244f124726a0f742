package webview

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"kumo/internal/errs"
)

// RodProvider drives a local Chromium instance through rod. It manages
// the browser in-process: one instance is launched per Open call and
// torn down with it.
type RodProvider struct {
	Headless bool
}

// NewRodProvider returns a provider running a local headless browser.
func NewRodProvider() *RodProvider {
	return &RodProvider{Headless: true}
}

func (p *RodProvider) Name() string { return "rod" }

func (p *RodProvider) SupportsHeadless() bool { return true }

func (p *RodProvider) Open(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	interval := req.CheckInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	browser, err := p.launch(ctx, timeout)
	if err != nil {
		return nil, errs.Wrap(errs.KindWebViewError, err, "launch browser")
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: req.URL})
	if err != nil {
		return nil, errs.Wrap(errs.KindWebViewError, err, "open page %s", req.URL)
	}
	defer func() { _ = page.Close() }()

	if req.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: req.UserAgent}); err != nil {
			return nil, errs.Wrap(errs.KindWebViewError, err, "set user agent")
		}
	}
	if err := page.WaitLoad(); err != nil {
		return nil, errs.Wrap(errs.KindWebViewError, err, "wait for load")
	}

	// Poll the success check until it reports done or the deadline
	// passes. With no check configured a loaded page counts as done.
	if req.SuccessCheck != "" {
		for {
			ok, evalErr := p.evalBool(page, req.SuccessCheck)
			if evalErr == nil && ok {
				break
			}
			select {
			case <-ctx.Done():
				return &Response{Success: false, CloseReason: CloseTimeout},
					errs.New(errs.KindWebViewTimeout, "success check did not pass within %s", timeout)
			case <-time.After(interval):
			}
		}
	}

	resp := &Response{Success: true, CloseReason: CloseSuccess, Cookies: map[string]string{}}

	cookies, err := page.Cookies(nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindWebViewError, err, "read cookies")
	}
	wanted := map[string]bool{}
	for _, name := range req.CookieNames {
		wanted[name] = true
	}
	for _, c := range cookies {
		if len(wanted) == 0 || wanted[c.Name] {
			resp.Cookies[c.Name] = c.Value
		}
	}

	if req.FinishScript != "" {
		obj, err := page.Eval(wrapJS(req.FinishScript))
		if err != nil {
			return nil, errs.Wrap(errs.KindWebViewError, err, "finish script")
		}
		resp.ScriptResult = obj.Value.JSON("", "")
	}

	return resp, nil
}

func (p *RodProvider) evalBool(page *rod.Page, js string) (bool, error) {
	obj, err := page.Eval(wrapJS(js))
	if err != nil {
		return false, err
	}
	return obj.Value.Bool(), nil
}

func (p *RodProvider) launch(ctx context.Context, timeout time.Duration) (*rod.Browser, error) {
	var l *launcher.Launcher
	if path, has := launcher.LookPath(); has {
		l = launcher.New().Bin(path)
	} else {
		l = launcher.New()
	}
	l = l.Headless(p.Headless).NoSandbox(true)

	u, err := l.Launch()
	if err != nil {
		return nil, err
	}
	browser := rod.New().ControlURL(u).Context(ctx).Timeout(timeout)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, err
	}
	return browser, nil
}

// wrapJS turns a statement-style snippet ("return document.title")
// into the function form rod's Eval expects.
func wrapJS(js string) string {
	return fmt.Sprintf("() => { %s }", js)
}
