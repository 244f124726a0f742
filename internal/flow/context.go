// Package flow orchestrates rule flows: render the URL, apply
// flow-level HTTP overrides, fetch, get past challenges, parse the
// body, run the extractors, and shape typed results. It owns the two
// context layers the rest of the runtime shares.
package flow

import (
	"log/slog"
	"net/url"
	"sync"
	"time"

	"kumo/internal/challenge"
	"kumo/internal/extract"
	"kumo/internal/httpclient"
	"kumo/internal/rule"
	"kumo/internal/script"
	"kumo/internal/template"
	"kumo/internal/webview"
)

// Options carries the injectable collaborators for a runtime context.
type Options struct {
	WebView         webview.Provider
	Logger          *slog.Logger
	CredentialCache challenge.Cache
	XPath           extract.XPathEvaluator
	// BaseDir resolves script file references; usually the rule file's
	// directory.
	BaseDir string
	// RespectRobots gates every request on the target's robots.txt.
	RespectRobots bool
}

// RuntimeContext holds the per-rule shared resources: the rule itself,
// the HTTP client, the WebView provider, runtime globals, the
// challenge manager, and the script-engine cache. It is created once
// per loaded rule and shared across flow invocations.
type RuntimeContext struct {
	Rule    *rule.Rule
	Client  *httpclient.Client
	WebView webview.Provider
	XPath   extract.XPathEvaluator
	BaseDir string
	Logger  *slog.Logger

	Challenges *challenge.Manager

	globalsMu sync.RWMutex
	globals   map[string]any

	engineMu sync.Mutex
	engines  map[string]script.Engine
}

// NewRuntimeContext builds the shared context for one rule.
func NewRuntimeContext(r *rule.Rule, opts *Options) (*RuntimeContext, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wv := opts.WebView
	if wv == nil {
		wv = webview.NoopProvider{}
	}

	client, err := httpclient.New(r.HTTP,
		httpclient.WithLogger(logger),
		httpclient.WithRobots(opts.RespectRobots),
	)
	if err != nil {
		return nil, err
	}

	domain := r.Meta.BaseURL
	if u, err := url.Parse(r.Meta.BaseURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}

	rc := &RuntimeContext{
		Rule:    r,
		Client:  client,
		WebView: wv,
		XPath:   opts.XPath,
		BaseDir: opts.BaseDir,
		Logger:  logger,
		globals: map[string]any{
			"base_url": r.Meta.BaseURL,
			"domain":   domain,
		},
		engines: map[string]script.Engine{},
	}

	if r.Challenge != nil {
		mgr, err := challenge.NewManager(r.Challenge, wv, client, opts.CredentialCache, logger)
		if err != nil {
			return nil, err
		}
		rc.Challenges = mgr
	}

	return rc, nil
}

// Globals returns a snapshot of the runtime globals.
func (rc *RuntimeContext) Globals() map[string]any {
	rc.globalsMu.RLock()
	defer rc.globalsMu.RUnlock()
	out := make(map[string]any, len(rc.globals))
	for k, v := range rc.globals {
		out[k] = v
	}
	return out
}

// Global reads one runtime global.
func (rc *RuntimeContext) Global(key string) (any, bool) {
	rc.globalsMu.RLock()
	defer rc.globalsMu.RUnlock()
	v, ok := rc.globals[key]
	return v, ok
}

// SetGlobal installs a runtime global; login flows use this to persist
// session state.
func (rc *RuntimeContext) SetGlobal(key string, v any) {
	rc.globalsMu.Lock()
	rc.globals[key] = v
	rc.globalsMu.Unlock()
}

// BaseURL returns the rule's base URL.
func (rc *RuntimeContext) BaseURL() string {
	return rc.Rule.Meta.BaseURL
}

// Engine returns the cached script engine for a language, creating it
// on first use. The rule's scripting block supplies the default
// language and timeout.
func (rc *RuntimeContext) Engine(language string) (script.Engine, error) {
	if language == "" && rc.Rule.Scripting != nil {
		language = rc.Rule.Scripting.DefaultLanguage
	}
	key := language
	if key == "" {
		key = "js"
	}

	rc.engineMu.Lock()
	defer rc.engineMu.Unlock()
	if eng, ok := rc.engines[key]; ok {
		return eng, nil
	}
	eng, err := script.NewEngine(language)
	if err != nil {
		return nil, err
	}
	if rc.Rule.Scripting != nil && rc.Rule.Scripting.TimeoutMs > 0 {
		eng.SetTimeout(time.Duration(rc.Rule.Scripting.TimeoutMs) * time.Millisecond)
	}
	rc.engines[key] = eng
	return eng, nil
}

// FlowContext is the short-lived, task-local variable scope of one
// flow invocation.
type FlowContext struct {
	rc   *RuntimeContext
	vars map[string]any
}

// NewFlowContext creates an empty flow scope bound to the runtime.
func NewFlowContext(rc *RuntimeContext) *FlowContext {
	return &FlowContext{rc: rc, vars: map[string]any{}}
}

// Set stores a flow variable.
func (fc *FlowContext) Set(key string, v any) { fc.vars[key] = v }

// Get reads a flow variable (flow scope only).
func (fc *FlowContext) Get(key string) (any, bool) {
	v, ok := fc.vars[key]
	return v, ok
}

// Runtime returns the bound runtime context.
func (fc *FlowContext) Runtime() *RuntimeContext { return fc.rc }

// Render evaluates a template against this flow scope layered over the
// runtime globals.
func (fc *FlowContext) Render(t rule.Template) (string, error) {
	return template.Render(string(t), fc.vars, fc.rc.Globals())
}

// ExtractContext exposes the scope to the extraction engine. The
// variable map is shared, so set_var steps mutate this flow context.
func (fc *FlowContext) ExtractContext() *extract.Context {
	return &extract.Context{
		Rule:    fc.rc.Rule,
		Globals: fc.rc.Globals(),
		Vars:    fc.vars,
		Engines: fc.rc.Engine,
		XPath:   fc.rc.XPath,
		BaseDir: fc.rc.BaseDir,
	}
}
