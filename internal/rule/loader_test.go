package rule

import (
	"strings"
	"testing"

	"kumo/internal/errs"
)

const bookRuleTOML = `
[meta]
name = "example-books"
author = "tester"
version = "1.0.0"
base_url = "http://books.example"
media_type = "book"

[http]
user_agent = "kumo-test/1.0"
timeout = 10
retry_count = 2
retry_delay = 100

[http.headers]
Accept-Language = "zh-CN"

[components.clean_text]
description = "trim and strip markup"
extractor.steps = [{ attr = "text" }, { filter = "trim" }]

[search]
url = "/s?q={{ keyword }}&page={{ page }}"
list.steps = [{ css = { expr = ".item", all = true } }]

[search.pagination]
type = "page_number"
start_page = 1
page_param = "page"

[search.fields]
title.steps = [{ css = ".title" }, { attr = "text" }]
url.steps = [{ css = "a" }, { attr = "href" }]
author.steps = [{ css = ".author" }]
author.fallback = [[{ css = ".writer" }]]
author.default = "anonymous"

[detail]
url = "{{ detail_url }}"

[detail.fields]
title.steps = [{ json = "$.book.title" }]
author.steps = [{ json = "$.book.author" }]

[detail.fields.chapters]
list.steps = [{ json = { expr = "$.book.chapters[*]", all = true } }]
title.steps = [{ json = "$.t" }]
url.steps = [{ json = "$.u" }]

[content]
url = "{{ content_url }}"

[content.fields]
content.steps = [{ css = "#text" }, { attr = "text" }]
`

func TestParseTOMLRule(t *testing.T) {
	r, err := Parse([]byte(bookRuleTOML), "toml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Meta.Name != "example-books" || r.Meta.MediaType != MediaBook {
		t.Fatalf("unexpected meta: %+v", r.Meta)
	}
	if r.HTTP == nil || r.HTTP.UserAgent == nil || *r.HTTP.UserAgent != "kumo-test/1.0" {
		t.Fatalf("http config not decoded: %+v", r.HTTP)
	}
	if got := r.HTTP.Headers["Accept-Language"]; got != "zh-CN" {
		t.Errorf("headers: got %q", got)
	}

	if len(r.Search.Fields.Title.Steps) != 2 {
		t.Fatalf("search title steps: %d", len(r.Search.Fields.Title.Steps))
	}
	if r.Search.Fields.Title.Steps[0].Kind != StepCSS {
		t.Errorf("first step kind = %v", r.Search.Fields.Title.Steps[0].Kind)
	}
	if r.Search.Pagination == nil || r.Search.Pagination.Type != PaginationPageNumber {
		t.Fatalf("pagination: %+v", r.Search.Pagination)
	}

	author := r.Search.Fields.Author
	if author == nil || len(author.Fallback) != 1 || !author.HasDefault {
		t.Fatalf("author fallback/default not decoded: %+v", author)
	}
	if author.Default != "anonymous" {
		t.Errorf("author default = %v", author.Default)
	}

	book := r.Detail.Fields.Book
	if book == nil {
		t.Fatal("detail fields should bind to book for media_type=book")
	}
	if book.Chapters == nil {
		t.Fatal("chapters list rule missing")
	}
	sel := book.Chapters.List.Steps[0].Selector
	if sel == nil || !sel.All || sel.Expr != "$.book.chapters[*]" {
		t.Errorf("chapter list selector: %+v", sel)
	}

	if r.Content == nil || r.Content.Fields.Book == nil {
		t.Fatal("content flow missing")
	}

	if _, ok := r.Components["clean_text"]; !ok {
		t.Error("component clean_text missing")
	}
}

func TestParseJSONRule(t *testing.T) {
	src := `{
		"meta": {"name": "j", "base_url": "http://x.test", "media_type": "video"},
		"search": {
			"url": "/s?q={{ keyword }}",
			"list": {"steps": [{"css": {"expr": ".item", "all": true}}]},
			"fields": {
				"title": {"steps": [{"css": ".t"}]},
				"url": {"steps": [{"css": "a"}, {"attr": "href"}]}
			}
		},
		"detail": {
			"url": "{{ detail_url }}",
			"fields": {"title": {"steps": [{"css": "h1"}]}}
		}
	}`
	r, err := Parse([]byte(src), "json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Detail.Fields.Video == nil {
		t.Fatal("detail fields should bind to video")
	}
}

func TestParseNamesOffendingField(t *testing.T) {
	src := strings.Replace(bookRuleTOML, `title.steps = [{ css = ".title" }, { attr = "text" }]`, "", 1)
	_, err := Parse([]byte(src), "toml")
	if err == nil {
		t.Fatal("expected error for missing title")
	}
	if !strings.Contains(err.Error(), "search.fields.title") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestUnknownStepKey(t *testing.T) {
	src := strings.Replace(bookRuleTOML, `{ css = ".title" }`, `{ csss = ".title" }`, 1)
	_, err := Parse([]byte(src), "toml")
	if err == nil || !errs.IsKind(err, errs.KindConfig) {
		t.Fatalf("expected config error, got: %v", err)
	}
}

func TestInvalidMediaType(t *testing.T) {
	src := strings.Replace(bookRuleTOML, `media_type = "book"`, `media_type = "podcast"`, 1)
	_, err := Parse([]byte(src), "toml")
	if !errs.IsKind(err, errs.KindInvalidConfigValue) {
		t.Fatalf("expected invalid_config_value, got: %v", err)
	}
}

func TestComponentCycleDetection(t *testing.T) {
	src := bookRuleTOML + `
[components.a]
extractor.steps = [{ use_component = "b" }]

[components.b]
extractor.steps = [{ use_component = "a" }]
`
	_, err := Parse([]byte(src), "toml")
	if !errs.IsKind(err, errs.KindCircularReference) {
		t.Fatalf("expected circular_reference, got: %v", err)
	}
	if !strings.Contains(err.Error(), "->") {
		t.Errorf("cycle error should report the path: %v", err)
	}
}

func TestHTTPConfigMerge(t *testing.T) {
	ua1, ua2 := "base/1.0", "flow/2.0"
	t30, r5 := 30, 5
	base := &HTTPConfig{
		UserAgent:      &ua1,
		TimeoutSeconds: &t30,
		Headers:        map[string]string{"A": "1", "B": "1"},
	}
	over := &HTTPConfig{
		UserAgent:  &ua2,
		RetryCount: &r5,
		Headers:    map[string]string{"B": "2", "C": "2"},
	}
	merged := base.Merge(over)
	if *merged.UserAgent != ua2 {
		t.Errorf("user agent should be overridden, got %q", *merged.UserAgent)
	}
	if *merged.TimeoutSeconds != 30 {
		t.Errorf("timeout should be inherited, got %d", *merged.TimeoutSeconds)
	}
	if *merged.RetryCount != 5 {
		t.Errorf("retry count should come from override")
	}
	want := map[string]string{"A": "1", "B": "2", "C": "2"}
	for k, v := range want {
		if merged.Headers[k] != v {
			t.Errorf("header %s = %q, want %q", k, merged.Headers[k], v)
		}
	}
	// Merge must not mutate the receiver.
	if base.Headers["B"] != "1" || base.RetryCount != nil {
		t.Error("merge mutated the base config")
	}
}
