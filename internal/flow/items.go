package flow

import (
	"kumo/internal/errs"
	"kumo/internal/extract"
	"kumo/internal/model"
	"kumo/internal/rule"
	"kumo/internal/value"
)

// extractString runs an extractor and lowers the result to a string.
// Optional extractors (nil) and empty results yield "".
func extractString(fe *rule.FieldExtractor, in value.Value, ec *extract.Context) string {
	if fe == nil {
		return ""
	}
	out, err := extract.Field(fe, in, ec)
	if err != nil {
		return ""
	}
	if s, ok := out.AsString(); ok {
		return s
	}
	if out.IsEmpty() {
		return ""
	}
	return out.Text()
}

// requireString is extractString for required fields: empty results
// are errors naming the field.
func requireString(name string, fe *rule.FieldExtractor, in value.Value, ec *extract.Context) (string, error) {
	out, err := extract.Field(fe, in, ec)
	if err != nil {
		return "", errs.Wrap(errs.KindExtraction, err, "field %q", name)
	}
	s, ok := out.AsString()
	if !ok || s == "" {
		s = out.Text()
	}
	if s == "" {
		return "", errs.New(errs.KindExtraction, "field %q produced no value", name)
	}
	return s, nil
}

// extractItem shapes one list entry into a SearchItem. Title and URL
// are required; the URL is resolved against the base URL.
func extractItem(fields *rule.ItemFields, entry value.Value, ec *extract.Context, baseURL string) (*model.SearchItem, error) {
	title, err := requireString("title", &fields.Title, entry, ec)
	if err != nil {
		return nil, err
	}
	rawURL, err := requireString("url", &fields.URL, entry, ec)
	if err != nil {
		return nil, err
	}

	item := &model.SearchItem{
		Title:    title,
		URL:      absolutize(rawURL, baseURL),
		Cover:    extractString(fields.Cover, entry, ec),
		Summary:  extractString(fields.Summary, entry, ec),
		Author:   extractString(fields.Author, entry, ec),
		Latest:   extractString(fields.Latest, entry, ec),
		Score:    extractString(fields.Score, entry, ec),
		Status:   extractString(fields.Status, entry, ec),
		Category: extractString(fields.Category, entry, ec),
	}

	raw := map[string]any{"title": item.Title, "url": item.URL}
	for key, v := range map[string]string{
		"cover":    item.Cover,
		"summary":  item.Summary,
		"author":   item.Author,
		"latest":   item.Latest,
		"score":    item.Score,
		"status":   item.Status,
		"category": item.Category,
	} {
		if v != "" {
			raw[key] = v
		}
	}
	if fields.Extra != nil {
		if extra, err := extract.Field(fields.Extra, entry, ec); err == nil && !extra.IsEmpty() {
			raw["extra"] = extra.AsJSON()
		}
	}
	item.Raw = raw
	return item, nil
}

// extractItems runs the list extractor and shapes every entry.
// Entries that fail field extraction are logged and dropped; they
// never fail the whole list.
func (fc *FlowContext) extractItems(list *rule.FieldExtractor, fields *rule.ItemFields, root value.Value, ec *extract.Context) ([]model.SearchItem, []map[string]any, error) {
	// An empty page is a legal outcome for a list, whatever the
	// extractor declares.
	listFE := *list
	listFE.Nullable = true
	listOut, err := extract.Field(&listFE, root, ec)
	if err != nil {
		return nil, nil, err
	}

	var entries []value.Value
	switch listOut.Kind() {
	case value.KindArray:
		entries, _ = listOut.AsArray()
	case value.KindNull:
	default:
		// A single match is still one entry.
		entries = []value.Value{listOut}
	}

	items := make([]model.SearchItem, 0, len(entries))
	rawItems := make([]map[string]any, 0, len(entries))
	for i, entry := range entries {
		item, err := extractItem(fields, entry, ec, fc.rc.BaseURL())
		if err != nil {
			fc.rc.Logger.Warn("dropping list item", "index", i, "error", err)
			continue
		}
		items = append(items, *item)
		rawItems = append(rawItems, item.Raw)
	}
	return items, rawItems, nil
}

// listPagination computes has_next and the next cursor for a list
// response.
func listPagination(p *rule.Pagination, page int, itemCount int, root value.Value, ec *extract.Context) (hasNext bool, nextCursor string) {
	hasNext = itemCount > 0
	if p == nil {
		return hasNext, ""
	}

	if p.HasNext != nil {
		out, err := extract.Field(p.HasNext, root, ec)
		hasNext = err == nil && out.IsTruthy()
	}

	switch p.Type {
	case rule.PaginationPageNumber:
		if p.MaxPages > 0 && page >= p.MaxPages {
			hasNext = false
		}
	case rule.PaginationOffset:
		if p.MaxOffset > 0 && p.Start+page*p.Step > p.MaxOffset {
			hasNext = false
		}
	case rule.PaginationCursor:
		if p.NextCursor != nil {
			if out, err := extract.Field(p.NextCursor, root, ec); err == nil {
				if s, ok := out.AsString(); ok {
					nextCursor = s
				}
			}
		}
		if nextCursor == "" {
			hasNext = false
		}
	}
	return hasNext, nextCursor
}

// seedListVars installs the pagination variables a URL template can
// reference.
func seedListVars(fc *FlowContext, p *rule.Pagination, page int, cursor string) {
	fc.Set("page", page)
	if p == nil {
		return
	}
	switch p.Type {
	case rule.PaginationOffset:
		offset := p.Start + (page-1)*p.Step
		fc.Set(p.Param, offset)
		fc.Set("offset", offset)
		if p.LimitParam != "" {
			fc.Set(p.LimitParam, p.Step)
		}
	case rule.PaginationCursor:
		fc.Set(p.CursorParam, cursor)
		fc.Set("cursor", cursor)
	}
}
