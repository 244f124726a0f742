package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kumo/internal/rule"
)

func TestGetAppliesLayeredHeaders(t *testing.T) {
	var gotUA, gotLang, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		gotExtra = r.Header.Get("X-Extra")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ua := "kumo-test/1.0"
	c, err := New(&rule.HTTPConfig{
		UserAgent: &ua,
		Headers:   map[string]string{"Accept-Language": "zh-CN"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	resp, err := c.Get(context.Background(), srv.URL, map[string]string{"X-Extra": "1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != 200 || resp.Body != "ok" {
		t.Fatalf("resp: %+v", resp)
	}
	if gotUA != ua {
		t.Errorf("user agent = %q", gotUA)
	}
	if gotLang != "zh-CN" {
		t.Errorf("rule header = %q", gotLang)
	}
	if gotExtra != "1" {
		t.Errorf("request header = %q", gotExtra)
	}
}

func TestRetryOnTransportError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Drop the connection to force a transport error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("hijacking unsupported")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	retries, delay := 3, 10
	c, err := New(&rule.HTTPConfig{RetryCount: &retries, RetryDelayMs: &delay})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("get after retries: %v", err)
	}
	if resp.Body != "finally" {
		t.Errorf("body = %q", resp.Body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	retries, delay := 3, 10
	c, err := New(&rule.HTTPConfig{RetryCount: &retries, RetryDelayMs: &delay})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := c.Post(context.Background(), srv.URL, "x=1", nil); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("POST should not retry, got %d attempts", got)
	}
}

func TestFlowOverrideHeaders(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.Header.Get("Accept-Language")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := New(&rule.HTTPConfig{Headers: map[string]string{"Accept-Language": "zh-CN"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = c.Do(context.Background(), &Request{
		Method:   http.MethodGet,
		URL:      srv.URL,
		Override: &rule.HTTPConfig{Headers: map[string]string{"Accept-Language": "en-US"}},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotLang != "en-US" {
		t.Errorf("flow override should win, got %q", gotLang)
	}
}

func TestRequestDelayPacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	delayMs := 60
	c, err := New(&rule.HTTPConfig{RequestDelayMs: &delayMs})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Get(context.Background(), srv.URL, nil); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}
	// Three requests with a 60ms gap need at least ~120ms total.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("pacing not applied, elapsed %v", elapsed)
	}
}

func TestNoRedirectFollowingWhenDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		w.Write([]byte("landed"))
	}))
	defer srv.Close()

	follow := false
	c, err := New(&rule.HTTPConfig{FollowRedirects: &follow})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	resp, err := c.Get(context.Background(), srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != http.StatusFound {
		t.Errorf("expected 302, got %d", resp.Status)
	}
}

func TestCookiesPersistAcrossRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("session"); err == nil {
			w.Write([]byte("got:" + cookie.Value))
			return
		}
		w.Write([]byte("none"))
	}))
	defer srv.Close()

	c, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.SetCookies(srv.URL, map[string]string{"session": "abc"}); err != nil {
		t.Fatalf("set cookies: %v", err)
	}
	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Body != "got:abc" {
		t.Errorf("cookie not sent, body = %q", resp.Body)
	}
}
