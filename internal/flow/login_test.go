package flow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kumo/internal/errs"
)

func loginRule(baseURL, loginBlock string) string {
	return fmt.Sprintf(`
[meta]
name = "login-site"
base_url = "%s"
media_type = "book"

[search]
url = "/s?q={{ keyword }}"
list.steps = [{ css = { expr = ".item", all = true } }]

[search.fields]
title.steps = [{ css = ".title" }, { attr = "text" }]
url.steps = [{ css = "a" }, { attr = "href" }]

[detail]
url = "{{ detail_url }}"

[detail.fields]
title.steps = [{ css = "h1" }]
author.steps = [{ css = ".author" }]
`, baseURL) + loginBlock
}

func TestScriptLoginPersistsCookies(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		fmt.Fprint(w, searchPageBody(1))
	}))
	defer srv.Close()

	src := loginRule(srv.URL, `
[login]
type = "script"
fields = [{ key = "username", required = true }, { key = "password", secret = true, required = true }]
login_script = "return { success: true, cookies: { session: md5(vars.username + ':' + vars.password) } };"
`)
	r := mustParseRule(t, src)
	rc := newRuntime(t, r)

	resp, err := ExecuteLogin(context.Background(), &LoginRequest{Fields: map[string]string{
		"username": "ann",
		"password": "pw",
	}}, rc)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !resp.Success || resp.Mode != "script" {
		t.Fatalf("response: %+v", resp)
	}

	// The session cookie now rides every request from this runtime.
	if _, err := ExecuteSearch(context.Background(), &SearchRequest{Keyword: "x"}, rc); err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotCookie == "" {
		t.Error("session cookie was not sent after login")
	}
}

func TestScriptLoginRequiresDeclaredFields(t *testing.T) {
	src := loginRule("http://x.test", `
[login]
type = "script"
fields = [{ key = "username", required = true }]
login_script = "return { success: true };"
`)
	r := mustParseRule(t, src)
	rc := newRuntime(t, r)

	_, err := ExecuteLogin(context.Background(), &LoginRequest{}, rc)
	if !errs.IsKind(err, errs.KindMissingConfig) {
		t.Fatalf("expected missing_config for absent username, got %v", err)
	}
}

func TestScriptLoginFailureReported(t *testing.T) {
	src := loginRule("http://x.test", `
[login]
type = "script"
login_script = "return { success: false, message: 'bad credentials' };"
`)
	r := mustParseRule(t, src)
	rc := newRuntime(t, r)

	resp, err := ExecuteLogin(context.Background(), &LoginRequest{}, rc)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Success || resp.Message != "bad credentials" {
		t.Fatalf("response: %+v", resp)
	}
}

func TestCredentialLoginHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, searchPageBody(1))
	}))
	defer srv.Close()

	src := loginRule(srv.URL, `
[login]
type = "credential"
fields = [{ key = "token", label = "API Token", required = true }]
storage = { type = "header", name = "Authorization" }
`)
	r := mustParseRule(t, src)
	rc := newRuntime(t, r)

	resp, err := ExecuteLogin(context.Background(), &LoginRequest{Fields: map[string]string{"token": "Bearer abc"}}, rc)
	if err != nil || !resp.Success {
		t.Fatalf("login: %v %+v", err, resp)
	}

	if _, err := ExecuteSearch(context.Background(), &SearchRequest{Keyword: "x"}, rc); err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Errorf("authorization header = %q", gotAuth)
	}
}

func TestCredentialLoginCookiePaste(t *testing.T) {
	var names []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		names = names[:0]
		for _, c := range r.Cookies() {
			names = append(names, c.Name)
		}
		fmt.Fprint(w, searchPageBody(1))
	}))
	defer srv.Close()

	src := loginRule(srv.URL, `
[login]
type = "credential"
fields = [{ key = "cookie", label = "Cookie", required = true }]
storage = { type = "cookie" }
`)
	r := mustParseRule(t, src)
	rc := newRuntime(t, r)

	if _, err := ExecuteLogin(context.Background(), &LoginRequest{Fields: map[string]string{
		"cookie": "uid=7; sid=abc",
	}}, rc); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := ExecuteSearch(context.Background(), &SearchRequest{Keyword: "x"}, rc); err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 cookies, got %v", names)
	}
}
