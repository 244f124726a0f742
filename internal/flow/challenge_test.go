package flow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// A server that serves a Cloudflare-style interstitial until the
// client presents the clearance cookie; the rule clears it with the
// cookie handler.
func TestSearchThroughChallenge(t *testing.T) {
	var challengesServed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("cf_clearance"); err != nil || c.Value != "let-me-in" {
			challengesServed.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "<html>Just a moment...</html>")
			return
		}
		fmt.Fprint(w, searchPageBody(2))
	}))
	defer srv.Close()

	src := fmt.Sprintf(searchRuleTemplate, srv.URL) + `
[challenge]
enabled = true
max_attempts = 2
cache_duration = 600
detectors = [{ type = "cloudflare" }]
handler = { type = "cookie", cookie = "cf_clearance=let-me-in" }
`
	r := mustParseRule(t, src)
	rc := newRuntime(t, r)

	resp, err := ExecuteSearch(context.Background(), &SearchRequest{Keyword: "x", Page: 1}, rc)
	if err != nil {
		t.Fatalf("search through challenge: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("items = %d", len(resp.Items))
	}
	if got := challengesServed.Load(); got != 1 {
		t.Errorf("expected exactly one challenged request, got %d", got)
	}

	// Second invocation: credentials are cached and the cookie is in
	// the jar, so no further challenge is served.
	if _, err := ExecuteSearch(context.Background(), &SearchRequest{Keyword: "y", Page: 1}, rc); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if got := challengesServed.Load(); got != 1 {
		t.Errorf("challenge served again: %d", got)
	}
}

func TestChallengeDisabledPassesBodyThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Challenge-looking body, but the rule has challenges off; the
		// page is parsed as-is and yields no items.
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "<html>Just a moment...</html>")
	}))
	defer srv.Close()

	src := fmt.Sprintf(searchRuleTemplate, srv.URL) + `
[challenge]
enabled = false
detectors = [{ type = "cloudflare" }]
handler = { type = "cookie", cookie = "a=1" }
`
	r := mustParseRule(t, src)
	rc := newRuntime(t, r)

	resp, err := ExecuteSearch(context.Background(), &SearchRequest{Keyword: "x"}, rc)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Errorf("items = %d", len(resp.Items))
	}
}
