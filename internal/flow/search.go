package flow

import (
	"context"
	"time"

	"kumo/internal/errs"
	"kumo/internal/model"
	"kumo/internal/value"
)

// SearchRequest is one search flow invocation. Cursor is only used by
// cursor-paginated rules, carried forward by the pager.
type SearchRequest struct {
	Keyword string
	Page    int
	Cursor  string
}

// ExecuteSearch runs the rule's search flow.
func ExecuteSearch(ctx context.Context, req *SearchRequest, rc *RuntimeContext) (resp *model.SearchResponse, err error) {
	start := time.Now()
	defer func() { record(rc, "search", start, err) }()

	flow := rc.Rule.Search
	if flow == nil {
		return nil, errs.New(errs.KindMissingConfig, "rule %q has no search flow", rc.Rule.Meta.Name)
	}

	page := req.Page
	if page <= 0 {
		page = 1
		if flow.Pagination != nil && flow.Pagination.StartPage > 0 {
			page = flow.Pagination.StartPage
		}
	}

	fc := NewFlowContext(rc)
	fc.Set("keyword", req.Keyword)
	fc.Set("base_url", rc.BaseURL())
	seedListVars(fc, flow.Pagination, page, req.Cursor)

	httpResp, err := fc.fetch(ctx, flow.URL, flow.Request)
	if err != nil {
		return nil, err
	}

	root := value.ParseBody(httpResp.Body)
	ec := fc.ExtractContext()

	items, rawItems, err := fc.extractItems(&flow.List, &flow.Fields, root, ec)
	if err != nil {
		return nil, err
	}

	hasNext, nextCursor := listPagination(flow.Pagination, page, len(items), root, ec)
	return &model.SearchResponse{
		Items:      items,
		HasNext:    hasNext,
		NextCursor: nextCursor,
		RawItems:   rawItems,
	}, nil
}
