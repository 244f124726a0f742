package runtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kumo/internal/rule"
)

func testRule(t *testing.T, baseURL string) *rule.Rule {
	t.Helper()
	src := fmt.Sprintf(`
[meta]
name = "facade-books"
base_url = "%s"
media_type = "book"

[search]
url = "/s?q={{ keyword }}&page={{ page }}"
list.steps = [{ css = { expr = ".item", all = true } }]

[search.fields]
title.steps = [{ css = ".title" }, { attr = "text" }]
url.steps = [{ css = "a" }, { attr = "href" }]

[discovery]
url = "/cat/{{ genre }}?page={{ page }}"
list.steps = [{ css = { expr = ".item", all = true } }]
filters = [{ name = "Genre", key = "genre", options = [{ name = "Fantasy", value = "fantasy" }, { name = "SciFi", value = "scifi" }] }]

[discovery.fields]
title.steps = [{ css = ".title" }, { attr = "text" }]
url.steps = [{ css = "a" }, { attr = "href" }]

[detail]
url = "{{ detail_url }}"

[detail.fields]
title.steps = [{ css = "h1" }, { attr = "text" }]
author.steps = [{ css = ".author" }, { attr = "text" }]
`, baseURL)
	r, err := rule.Parse([]byte(src), "toml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return r
}

func TestFacadeSearchDetailDiscovery(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch {
		case r.URL.Path == "/s":
			fmt.Fprint(w, `<div class="item"><h3 class="title">Found</h3><a href="/d/1">x</a></div>`)
		case r.URL.Path == "/d/1":
			fmt.Fprint(w, `<h1>Found</h1><span class="author">Ann</span>`)
		default:
			fmt.Fprint(w, `<div class="item"><h3 class="title">Browsed</h3><a href="/d/2">x</a></div>`)
		}
	}))
	defer srv.Close()

	rt, err := New(testRule(t, srv.URL), nil)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	ctx := context.Background()

	search, err := rt.Search(ctx, "found", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(search.Items) != 1 || search.Items[0].Title != "Found" {
		t.Fatalf("search items: %+v", search.Items)
	}

	detail, err := rt.Detail(ctx, search.Items[0].URL)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Book == nil || detail.Book.Author != "Ann" {
		t.Fatalf("detail: %+v", detail)
	}

	disc, err := rt.Discovery(ctx, map[string]string{"genre": "scifi"}, 1)
	if err != nil {
		t.Fatalf("discovery: %v", err)
	}
	if len(disc.Items) != 1 || disc.Items[0].Title != "Browsed" {
		t.Fatalf("discovery items: %+v", disc.Items)
	}
	if got := paths[len(paths)-1]; got != "/cat/scifi" {
		t.Errorf("discovery path = %q", got)
	}

	if groups := rt.Filters(); len(groups) != 1 || groups[0].Key != "genre" {
		t.Errorf("filters: %+v", groups)
	}
}

func TestFacadeDiscoveryDefaultsFirstFilterOption(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, `<div class="item"><h3 class="title">X</h3><a href="/d">x</a></div>`)
	}))
	defer srv.Close()

	rt, err := New(testRule(t, srv.URL), nil)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	if _, err := rt.Discovery(context.Background(), nil, 1); err != nil {
		t.Fatalf("discovery: %v", err)
	}
	if path != "/cat/fantasy" {
		t.Errorf("unselected filter should default to the first option, path = %q", path)
	}
}

func TestFacadePager(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="item"><h3 class="title">T</h3><a href="/d">x</a></div>`)
	}))
	defer srv.Close()

	rt, err := New(testRule(t, srv.URL), nil)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	pager := rt.SearchPager("t")
	if _, err := pager.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	next, err := pager.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.CurrentPage() != 2 {
		t.Errorf("next page = %d", next.CurrentPage())
	}
}
