package http

import (
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kumo/internal/config"
	"kumo/internal/rule"
)

func testServer(t *testing.T, upstream string) *Server {
	t.Helper()
	src := fmt.Sprintf(`
[meta]
name = "books"
base_url = "%s"
media_type = "book"

[search]
url = "/s?q={{ keyword }}&page={{ page }}"
list.steps = [{ css = { expr = ".item", all = true } }]

[search.fields]
title.steps = [{ css = ".title" }, { attr = "text" }]
url.steps = [{ css = "a" }, { attr = "href" }]

[detail]
url = "{{ detail_url }}"

[detail.fields]
title.steps = [{ css = "h1" }, { attr = "text" }]
author.steps = [{ css = ".author" }, { attr = "text" }]
`, upstream)
	r, err := rule.Parse([]byte(src), "toml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := &config.Config{}
	cfg.Rules.Dir = "unused"
	return NewServer(cfg, map[string]*rule.Rule{"books": r}, nil, nil)
}

func upstreamServer() *httptest.Server {
	return httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		switch r.URL.Path {
		case "/s":
			fmt.Fprint(w, `<div class="item"><h3 class="title">T0</h3><a href="/d/0">x</a></div>`)
		default:
			fmt.Fprint(w, `<h1>T0</h1><span class="author">Ann</span>`)
		}
	}))
}

func postJSON(t *testing.T, s *Server, path, body string) (*stdhttp.Response, string) {
	t.Helper()
	req := httptest.NewRequest(stdhttp.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app test: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(data)
}

func TestSearchEndpoint(t *testing.T) {
	upstream := upstreamServer()
	defer upstream.Close()
	s := testServer(t, upstream.URL)

	resp, body := postJSON(t, s, "/v1/search", `{"rule":"books","keyword":"t","page":1}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var out SearchResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || len(out.Data.Items) != 1 || out.Data.Items[0].Title != "T0" {
		t.Fatalf("body: %s", body)
	}
}

func TestDetailEndpoint(t *testing.T) {
	upstream := upstreamServer()
	defer upstream.Close()
	s := testServer(t, upstream.URL)

	resp, body := postJSON(t, s, "/v1/detail", fmt.Sprintf(`{"rule":"books","url":"%s/d/0"}`, upstream.URL))
	if resp.StatusCode != 200 {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var out DetailResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Data.Book == nil || out.Data.Book.Author != "Ann" {
		t.Fatalf("body: %s", body)
	}
}

func TestUnknownRuleIs404(t *testing.T) {
	upstream := upstreamServer()
	defer upstream.Close()
	s := testServer(t, upstream.URL)

	resp, body := postJSON(t, s, "/v1/search", `{"rule":"ghost","keyword":"t"}`)
	if resp.StatusCode != 404 {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
}

func TestMissingKeywordIs400(t *testing.T) {
	upstream := upstreamServer()
	defer upstream.Close()
	s := testServer(t, upstream.URL)

	resp, _ := postJSON(t, s, "/v1/search", `{"rule":"books"}`)
	if resp.StatusCode != 400 {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestRulesEndpoint(t *testing.T) {
	upstream := upstreamServer()
	defer upstream.Close()
	s := testServer(t, upstream.URL)

	req := httptest.NewRequest(stdhttp.MethodGet, "/v1/rules", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app test: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	var out RulesResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Data) != 1 || out.Data[0].Name != "books" || !out.Data[0].HasSearch {
		t.Fatalf("body: %s", data)
	}
	if out.Data[0].HasDiscovery {
		t.Error("rule has no discovery flow")
	}
}

func TestMissingContentFlowIsClientError(t *testing.T) {
	upstream := upstreamServer()
	defer upstream.Close()
	s := testServer(t, upstream.URL)

	resp, body := postJSON(t, s, "/v1/content", fmt.Sprintf(`{"rule":"books","url":"%s/c/1"}`, upstream.URL))
	if resp.StatusCode != 400 {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
}
