// Package runtime is the public facade over a loaded rule: one Runtime
// per rule, exposing search, detail, discovery, content, and login.
package runtime

import (
	"context"
	"log/slog"

	"kumo/internal/challenge"
	"kumo/internal/extract"
	"kumo/internal/flow"
	"kumo/internal/model"
	"kumo/internal/rule"
	"kumo/internal/webview"
)

// Options configures the injectable collaborators. The zero value is
// usable: no WebView (challenges needing one fail loudly), in-process
// credential cache, no XPath engine.
type Options struct {
	WebView         webview.Provider
	Logger          *slog.Logger
	CredentialCache challenge.Cache
	XPath           extract.XPathEvaluator
	BaseDir         string
	RespectRobots   bool
}

// Runtime binds a rule to its shared resources. Cloning is cheap; all
// state lives in the shared runtime context.
type Runtime struct {
	rc *flow.RuntimeContext
}

// New validates nothing beyond what rule loading already did; it wires
// the HTTP client, challenge manager, and script engines for the rule.
func New(r *rule.Rule, opts *Options) (*Runtime, error) {
	var fopts *flow.Options
	if opts != nil {
		fopts = &flow.Options{
			WebView:         opts.WebView,
			Logger:          opts.Logger,
			CredentialCache: opts.CredentialCache,
			XPath:           opts.XPath,
			BaseDir:         opts.BaseDir,
			RespectRobots:   opts.RespectRobots,
		}
	}
	rc, err := flow.NewRuntimeContext(r, fopts)
	if err != nil {
		return nil, err
	}
	return &Runtime{rc: rc}, nil
}

// Rule returns the bound rule.
func (rt *Runtime) Rule() *rule.Rule { return rt.rc.Rule }

// Search runs the search flow for a keyword and page.
func (rt *Runtime) Search(ctx context.Context, keyword string, page int) (*model.SearchResponse, error) {
	return flow.ExecuteSearch(ctx, &flow.SearchRequest{Keyword: keyword, Page: page}, rt.rc)
}

// Detail fetches and shapes one item's detail page.
func (rt *Runtime) Detail(ctx context.Context, url string) (*model.DetailResponse, error) {
	return flow.ExecuteDetail(ctx, &flow.DetailRequest{URL: url}, rt.rc)
}

// Discovery runs the browse flow with the given filter selections.
func (rt *Runtime) Discovery(ctx context.Context, filters map[string]string, page int) (*model.DiscoveryResponse, error) {
	return flow.ExecuteDiscovery(ctx, &flow.DiscoveryRequest{Filters: filters, Page: page}, rt.rc)
}

// Content resolves a consumable content page.
func (rt *Runtime) Content(ctx context.Context, url string) (*model.ContentResponse, error) {
	return flow.ExecuteContent(ctx, &flow.ContentRequest{URL: url}, rt.rc)
}

// Login runs the rule's login flow with user-supplied field values.
func (rt *Runtime) Login(ctx context.Context, fields map[string]string) (*model.LoginResponse, error) {
	return flow.ExecuteLogin(ctx, &flow.LoginRequest{Fields: fields}, rt.rc)
}

// Categories resolves the discovery categories, when the rule has any.
func (rt *Runtime) Categories(ctx context.Context) ([]model.Category, error) {
	return flow.ResolveCategories(ctx, rt.rc)
}

// Filters returns the rule's static discovery filter groups.
func (rt *Runtime) Filters() []rule.FilterGroup {
	if rt.rc.Rule.Discovery == nil {
		return nil
	}
	return rt.rc.Rule.Discovery.Filters
}

// SearchPager returns a chainable pager over search pages.
func (rt *Runtime) SearchPager(keyword string) *flow.SearchPager {
	return flow.NewSearchPager(rt.rc, keyword)
}

// DiscoveryPager returns a chainable pager over discovery pages.
func (rt *Runtime) DiscoveryPager(filters map[string]string) *flow.DiscoveryPager {
	return flow.NewDiscoveryPager(rt.rc, filters)
}
