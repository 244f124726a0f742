package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"kumo/internal/errs"
	"kumo/internal/rule"
	"kumo/internal/value"
)

// shape applies the shared single-vs-array output policy: no matches
// is Null, a single match without `all` unwraps, anything else is an
// array.
func shape(matches []value.Value, all bool) value.Value {
	switch {
	case len(matches) == 0:
		return value.Null()
	case len(matches) == 1 && !all:
		return matches[0]
	default:
		return value.Array(matches)
	}
}

func execCSS(spec *rule.SelectorSpec, in value.Value) (value.Value, error) {
	switch in.Kind() {
	case value.KindString, value.KindHTML:
		html, _ := in.AsString()
		matches, err := cssMatches(html, spec)
		if err != nil {
			return value.Null(), err
		}
		return shape(matches, spec.All), nil
	case value.KindArray:
		// Broadcast: apply to each HTML-shaped member, drop the rest,
		// flatten the results.
		items, _ := in.AsArray()
		var out []value.Value
		for _, item := range items {
			if k := item.Kind(); k != value.KindString && k != value.KindHTML {
				continue
			}
			html, _ := item.AsString()
			matches, err := cssMatches(html, spec)
			if err != nil {
				continue
			}
			out = append(out, matches...)
		}
		return value.Array(out), nil
	default:
		return value.Null(), errs.New(errs.KindExtraction, "css selector requires HTML input, got %s", in.Kind())
	}
}

func cssMatches(html string, spec *rule.SelectorSpec) ([]value.Value, error) {
	matcher, err := cascadia.Compile(spec.Expr)
	if err != nil {
		return nil, errs.Wrap(errs.KindExtraction, err, "invalid CSS selector %q", spec.Expr)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errs.Wrap(errs.KindExtraction, err, "parse HTML fragment")
	}

	sel := doc.FindMatcher(matcher)
	var matches []value.Value
	sel.EachWithBreak(func(i int, s *goquery.Selection) bool {
		outer, err := goquery.OuterHtml(s)
		if err != nil {
			return true
		}
		matches = append(matches, value.HTML(outer))
		return spec.All || len(matches) < 1
	})
	return matches, nil
}

func execJSONPath(spec *rule.SelectorSpec, in value.Value) (value.Value, error) {
	var node any
	switch in.Kind() {
	case value.KindJSON:
		node = in.AsJSON()
	case value.KindString:
		s, _ := in.AsString()
		if err := json.Unmarshal([]byte(s), &node); err != nil {
			return value.Null(), errs.Wrap(errs.KindExtraction, err, "parse JSON for path %q", spec.Expr)
		}
	case value.KindArray:
		items, _ := in.AsArray()
		var out []value.Value
		for _, item := range items {
			v, err := execJSONPath(spec, item)
			if err != nil {
				continue
			}
			out = append(out, v)
		}
		return value.Array(out), nil
	default:
		return value.Null(), errs.New(errs.KindExtraction, "jsonpath requires JSON input, got %s", in.Kind())
	}

	eval, err := jsonpath.New(spec.Expr)
	if err != nil {
		return value.Null(), errs.Wrap(errs.KindExtraction, err, "invalid JSONPath %q", spec.Expr)
	}
	res, err := eval(context.Background(), node)
	if err != nil {
		// No match at evaluation time is an empty result, not a
		// pipeline failure; fallbacks decide what happens next.
		return value.Null(), nil
	}

	out := value.FromJSON(res)
	if out.IsEmpty() {
		return value.Null(), nil
	}
	if spec.All && out.Kind() != value.KindArray {
		return value.Array([]value.Value{out}), nil
	}
	return out, nil
}

func execXPath(spec *rule.SelectorSpec, in value.Value, ec *Context) (value.Value, error) {
	if ec.XPath == nil {
		return value.Null(), errs.New(errs.KindExtraction, "xpath unsupported in this context (no evaluator injected) for %q", spec.Expr)
	}
	html, ok := in.AsString()
	if !ok {
		return value.Null(), errs.New(errs.KindExtraction, "xpath selector requires HTML input, got %s", in.Kind())
	}
	fragments, err := ec.XPath.Evaluate(spec.Expr, html, spec.All)
	if err != nil {
		return value.Null(), errs.Wrap(errs.KindExtraction, err, "xpath %q", spec.Expr)
	}
	matches := make([]value.Value, 0, len(fragments))
	for _, f := range fragments {
		matches = append(matches, value.HTML(f))
	}
	return shape(matches, spec.All), nil
}

func execRegex(spec *rule.RegexSpec, in value.Value) (value.Value, error) {
	text, ok := in.AsString()
	if !ok {
		return value.Null(), errs.New(errs.KindExtraction, "regex requires string input, got %s", in.Kind())
	}
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return value.Null(), errs.Wrap(errs.KindExtraction, err, "invalid regex %q", spec.Pattern)
	}

	group := spec.Group
	if group < 0 {
		group = 1
	}

	if spec.Global {
		var matches []value.Value
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if group < len(m) {
				matches = append(matches, value.String(m[group]))
			}
		}
		if len(matches) == 0 {
			return value.Null(), nil
		}
		return value.Array(matches), nil
	}

	m := re.FindStringSubmatch(text)
	if m == nil || group >= len(m) {
		return value.Null(), nil
	}
	return value.String(m[group]), nil
}

func execAttr(name string, in value.Value) (value.Value, error) {
	switch in.Kind() {
	case value.KindString, value.KindHTML:
		html, _ := in.AsString()
		return attrFromHTML(html, name)
	case value.KindArray:
		items, _ := in.AsArray()
		var out []value.Value
		for _, item := range items {
			if k := item.Kind(); k != value.KindString && k != value.KindHTML {
				continue
			}
			html, _ := item.AsString()
			v, err := attrFromHTML(html, name)
			if err != nil || v.IsEmpty() {
				continue
			}
			out = append(out, v)
		}
		// Empty results collapse to Null, a single survivor unwraps.
		return shape(out, len(out) > 1), nil
	default:
		return value.Null(), errs.New(errs.KindExtraction, "attr requires HTML input, got %s", in.Kind())
	}
}

func attrFromHTML(html, name string) (value.Value, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return value.Null(), errs.Wrap(errs.KindExtraction, err, "parse HTML fragment")
	}
	first := doc.Find("body").Children().First()

	switch name {
	case "text":
		text := strings.TrimSpace(doc.Text())
		if text == "" {
			return value.Null(), nil
		}
		return value.String(text), nil
	case "html", "inner_html":
		if first.Length() == 0 {
			return value.Null(), nil
		}
		inner, err := first.Html()
		if err != nil {
			return value.Null(), errs.Wrap(errs.KindExtraction, err, "inner html")
		}
		return value.String(inner), nil
	case "outer_html":
		if first.Length() == 0 {
			return value.Null(), nil
		}
		outer, err := goquery.OuterHtml(first)
		if err != nil {
			return value.Null(), errs.Wrap(errs.KindExtraction, err, "outer html")
		}
		return value.HTML(outer), nil
	default:
		if first.Length() == 0 {
			return value.Null(), nil
		}
		if attr, ok := first.Attr(name); ok {
			return value.String(attr), nil
		}
		return value.Null(), nil
	}
}

func execIndex(spec *rule.IndexSpec, in value.Value) (value.Value, error) {
	items, ok := in.AsArray()
	if !ok {
		return value.Null(), errs.New(errs.KindExtraction, "index requires array input, got %s", in.Kind())
	}

	if spec.Single != nil {
		idx := *spec.Single
		if idx < 0 {
			idx += len(items)
		}
		if idx < 0 || idx >= len(items) {
			return value.Null(), errs.New(errs.KindExtraction, "index %d out of bounds for %d items", *spec.Single, len(items))
		}
		return items[idx], nil
	}

	start, end, step, err := parseSlice(spec.Slice, len(items))
	if err != nil {
		return value.Null(), err
	}
	var out []value.Value
	for i := start; i < end; i += step {
		out = append(out, items[i])
	}
	return value.Array(out), nil
}

func parseSlice(slice string, length int) (start, end, step int, err error) {
	parts := strings.Split(slice, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, errs.New(errs.KindExtraction, "invalid slice %q", slice)
	}
	start, end, step = 0, length, 1
	if parts[0] != "" {
		if start, err = strconv.Atoi(parts[0]); err != nil {
			return 0, 0, 0, errs.New(errs.KindExtraction, "invalid slice start %q", parts[0])
		}
	}
	if parts[1] != "" {
		if end, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, 0, errs.New(errs.KindExtraction, "invalid slice end %q", parts[1])
		}
	}
	if len(parts) == 3 && parts[2] != "" {
		if step, err = strconv.Atoi(parts[2]); err != nil || step <= 0 {
			return 0, 0, 0, errs.New(errs.KindExtraction, "invalid slice step %q", parts[2])
		}
	}
	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	if start < 0 {
		start = 0
	}
	if end > length {
		end = length
	}
	if start > end {
		start = end
	}
	return start, end, step, nil
}
