package flow

import (
	"context"

	"kumo/internal/errs"
	"kumo/internal/model"
	"kumo/internal/rule"
)

// pagerState is the part shared by the search and discovery pagers:
// the current page, the cursor used to reach it, and the next cursor
// recorded from the last fetched response.
type pagerState struct {
	rc         *RuntimeContext
	pagination *rule.Pagination
	page       int
	cursor     string
	nextCursor string
	fetched    bool
}

func newPagerState(rc *RuntimeContext, p *rule.Pagination) pagerState {
	page := 1
	if p != nil && p.Type == rule.PaginationPageNumber && p.StartPage > 0 {
		page = p.StartPage
	}
	return pagerState{rc: rc, pagination: p, page: page}
}

// CurrentPage returns the page this pager points at.
func (s *pagerState) CurrentPage() int { return s.page }

func (s *pagerState) isCursor() bool {
	return s.pagination != nil && s.pagination.Type == rule.PaginationCursor
}

func (s *pagerState) nextState() (pagerState, error) {
	next := *s
	next.page = s.page + 1
	next.fetched = false
	next.nextCursor = ""
	if s.isCursor() {
		if !s.fetched || s.nextCursor == "" {
			return pagerState{}, errs.New(errs.KindPagination, "no cursor recorded; fetch the current page first")
		}
		next.cursor = s.nextCursor
		if max := s.pagination.MaxRequests; max > 0 && next.page > max {
			return pagerState{}, errs.New(errs.KindPagination, "cursor pagination exceeded max_requests %d", max)
		}
		return next, nil
	}
	next.cursor = ""
	return next, nil
}

func (s *pagerState) prevState() (pagerState, error) {
	if s.isCursor() {
		return pagerState{}, errs.New(errs.KindPagination, "prev is undefined for cursor pagination")
	}
	first := 1
	if s.pagination != nil && s.pagination.StartPage > 0 {
		first = s.pagination.StartPage
	}
	if s.page <= first {
		return pagerState{}, errs.New(errs.KindPagination, "already at the first page")
	}
	prev := *s
	prev.page = s.page - 1
	prev.fetched = false
	prev.cursor = ""
	prev.nextCursor = ""
	return prev, nil
}

func (s *pagerState) gotoState(page int) (pagerState, error) {
	if s.isCursor() {
		return pagerState{}, errs.New(errs.KindPagination, "goto is forbidden for cursor pagination")
	}
	if page < 1 {
		return pagerState{}, errs.New(errs.KindPagination, "page %d is out of range", page)
	}
	dst := *s
	dst.page = page
	dst.fetched = false
	dst.cursor = ""
	dst.nextCursor = ""
	return dst, nil
}

// SearchPager advances a search across pages. Pagers are chainable:
// Next/Prev/Goto return a new pager, leaving the receiver usable.
type SearchPager struct {
	pagerState
	keyword string
}

// NewSearchPager starts a pager at the rule's first page.
func NewSearchPager(rc *RuntimeContext, keyword string) *SearchPager {
	var p *rule.Pagination
	if rc.Rule.Search != nil {
		p = rc.Rule.Search.Pagination
	}
	return &SearchPager{pagerState: newPagerState(rc, p), keyword: keyword}
}

// Fetch executes the search for the pager's current state and records
// the cursor for Next.
func (p *SearchPager) Fetch(ctx context.Context) (*model.SearchResponse, error) {
	resp, err := ExecuteSearch(ctx, &SearchRequest{Keyword: p.keyword, Page: p.page, Cursor: p.cursor}, p.rc)
	if err != nil {
		return nil, err
	}
	p.fetched = true
	p.nextCursor = resp.NextCursor
	return resp, nil
}

// Next returns a pager for the following page.
func (p *SearchPager) Next() (*SearchPager, error) {
	state, err := p.nextState()
	if err != nil {
		return nil, err
	}
	return &SearchPager{pagerState: state, keyword: p.keyword}, nil
}

// Prev returns a pager for the preceding page.
func (p *SearchPager) Prev() (*SearchPager, error) {
	state, err := p.prevState()
	if err != nil {
		return nil, err
	}
	return &SearchPager{pagerState: state, keyword: p.keyword}, nil
}

// Goto returns a pager for an arbitrary page.
func (p *SearchPager) Goto(page int) (*SearchPager, error) {
	state, err := p.gotoState(page)
	if err != nil {
		return nil, err
	}
	return &SearchPager{pagerState: state, keyword: p.keyword}, nil
}

// DiscoveryPager advances a discovery listing across pages.
type DiscoveryPager struct {
	pagerState
	filters map[string]string
}

// NewDiscoveryPager starts a pager at the rule's first page.
func NewDiscoveryPager(rc *RuntimeContext, filters map[string]string) *DiscoveryPager {
	var p *rule.Pagination
	if rc.Rule.Discovery != nil {
		p = rc.Rule.Discovery.Pagination
	}
	return &DiscoveryPager{pagerState: newPagerState(rc, p), filters: filters}
}

// Fetch executes the discovery flow for the current state.
func (p *DiscoveryPager) Fetch(ctx context.Context) (*model.DiscoveryResponse, error) {
	resp, err := ExecuteDiscovery(ctx, &DiscoveryRequest{Filters: p.filters, Page: p.page, Cursor: p.cursor}, p.rc)
	if err != nil {
		return nil, err
	}
	p.fetched = true
	p.nextCursor = resp.NextCursor
	return resp, nil
}

// Next returns a pager for the following page.
func (p *DiscoveryPager) Next() (*DiscoveryPager, error) {
	state, err := p.nextState()
	if err != nil {
		return nil, err
	}
	return &DiscoveryPager{pagerState: state, filters: p.filters}, nil
}

// Prev returns a pager for the preceding page.
func (p *DiscoveryPager) Prev() (*DiscoveryPager, error) {
	state, err := p.prevState()
	if err != nil {
		return nil, err
	}
	return &DiscoveryPager{pagerState: state, filters: p.filters}, nil
}

// Goto returns a pager for an arbitrary page.
func (p *DiscoveryPager) Goto(page int) (*DiscoveryPager, error) {
	state, err := p.gotoState(page)
	if err != nil {
		return nil, err
	}
	return &DiscoveryPager{pagerState: state, filters: p.filters}, nil
}
