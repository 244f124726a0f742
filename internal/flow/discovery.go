package flow

import (
	"context"
	"time"

	"kumo/internal/errs"
	"kumo/internal/extract"
	"kumo/internal/model"
	"kumo/internal/rule"
	"kumo/internal/value"
)

// DiscoveryRequest is one discovery flow invocation: the selected
// filter values keyed by their group keys, plus the page.
type DiscoveryRequest struct {
	Filters map[string]string
	Page    int
	Cursor  string
}

// ExecuteDiscovery runs the rule's discovery flow.
func ExecuteDiscovery(ctx context.Context, req *DiscoveryRequest, rc *RuntimeContext) (resp *model.DiscoveryResponse, err error) {
	start := time.Now()
	defer func() { record(rc, "discovery", start, err) }()

	flow := rc.Rule.Discovery
	if flow == nil {
		return nil, errs.New(errs.KindMissingConfig, "rule %q has no discovery flow", rc.Rule.Meta.Name)
	}

	page := req.Page
	if page <= 0 {
		page = 1
		if flow.Pagination != nil && flow.Pagination.StartPage > 0 {
			page = flow.Pagination.StartPage
		}
	}

	fc := NewFlowContext(rc)
	fc.Set("base_url", rc.BaseURL())
	for key, v := range req.Filters {
		fc.Set(key, v)
	}
	// Unselected filter groups fall back to their first option so the
	// URL template always renders.
	for _, group := range flow.Filters {
		if _, ok := fc.Get(group.Key); !ok && len(group.Options) > 0 {
			fc.Set(group.Key, group.Options[0].Value)
		}
	}
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
	return &model.DiscoveryResponse{
		Items:      items,
		HasNext:    hasNext,
		NextCursor: nextCursor,
		RawItems:   rawItems,
	}, nil
}

// ResolveCategories returns the discovery categories: static ones
// directly from the rule, dynamic ones extracted from the configured
// page.
func ResolveCategories(ctx context.Context, rc *RuntimeContext) ([]model.Category, error) {
	flow := rc.Rule.Discovery
	if flow == nil || flow.Categories == nil {
		return nil, nil
	}
	src := flow.Categories

	if len(src.Static) > 0 {
		out := make([]model.Category, 0, len(src.Static))
		for _, item := range src.Static {
			out = append(out, model.Category{Key: item.Key, Label: item.Label, Value: item.Value})
		}
		return out, nil
	}

	fc := NewFlowContext(rc)
	fc.Set("base_url", rc.BaseURL())
	httpResp, err := fc.fetch(ctx, src.URL, nil)
	if err != nil {
		return nil, err
	}

	ec := fc.ExtractContext()
	listFE := &rule.FieldExtractor{Steps: []rule.Step{{
		Kind:     rule.StepCSS,
		Selector: &rule.SelectorSpec{Expr: src.Selector, All: true},
	}}, Nullable: true}
	listOut, err := extract.Field(listFE, value.HTML(httpResp.Body), ec)
	if err != nil {
		return nil, err
	}
	var entries []value.Value
	if arr, ok := listOut.AsArray(); ok {
		entries = arr
	} else if !listOut.IsEmpty() {
		entries = []value.Value{listOut}
	}

	keyAttr := src.KeyAttr
	if keyAttr == "" {
		keyAttr = "href"
	}
	labelAttr := src.LabelAttr
	if labelAttr == "" {
		labelAttr = "text"
	}

	out := make([]model.Category, 0, len(entries))
	for _, entry := range entries {
		key := extractString(&rule.FieldExtractor{Steps: []rule.Step{{Kind: rule.StepAttr, Attr: keyAttr}}}, entry, ec)
		label := extractString(&rule.FieldExtractor{Steps: []rule.Step{{Kind: rule.StepAttr, Attr: labelAttr}}}, entry, ec)
		if key == "" {
			continue
		}
		out = append(out, model.Category{Key: key, Label: label, Value: key})
	}
	return out, nil
}
