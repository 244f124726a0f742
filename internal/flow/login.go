package flow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"kumo/internal/challenge"
	"kumo/internal/errs"
	"kumo/internal/model"
	"kumo/internal/rule"
	"kumo/internal/script"
	"kumo/internal/webview"
)

// LoginRequest carries the user-supplied field values (username,
// password, pasted cookies, ...) keyed as the rule declares them.
type LoginRequest struct {
	Fields map[string]string
}

// ExecuteLogin runs the rule's login flow in whichever of the three
// modes it declares.
func ExecuteLogin(ctx context.Context, req *LoginRequest, rc *RuntimeContext) (resp *model.LoginResponse, err error) {
	start := time.Now()
	defer func() { record(rc, "login", start, err) }()

	flow := rc.Rule.Login
	if flow == nil {
		return nil, errs.New(errs.KindMissingConfig, "rule %q has no login flow", rc.Rule.Meta.Name)
	}
	if req == nil {
		req = &LoginRequest{}
	}

	if err := checkRequiredFields(flow, req); err != nil {
		return nil, err
	}

	switch flow.Type {
	case rule.LoginScript:
		return scriptLogin(ctx, flow, req, rc)
	case rule.LoginWebView:
		return webviewLogin(ctx, flow, rc)
	case rule.LoginCredential:
		return credentialLogin(flow, req, rc)
	default:
		return nil, errs.New(errs.KindInvalidConfigValue, "unknown login type %q", flow.Type)
	}
}

func checkRequiredFields(flow *rule.LoginFlow, req *LoginRequest) error {
	for _, f := range flow.Fields {
		if !f.Required {
			continue
		}
		if req.Fields[f.Key] == "" {
			return errs.New(errs.KindMissingConfig, "login field %q is required", f.Key)
		}
	}
	return nil
}

// scriptLogin runs the rule's init and login scripts. The login script
// returns a JSON object: {success, message?, cookies?, headers?};
// cookies and headers persist into the HTTP client and the runtime
// globals.
func scriptLogin(_ context.Context, flow *rule.LoginFlow, req *LoginRequest, rc *RuntimeContext) (*model.LoginResponse, error) {
	engine, err := rc.Engine("")
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(req.Fields)+1)
	for k, v := range req.Fields {
		vars[k] = v
	}
	vars["base_url"] = rc.BaseURL()

	if flow.InitScript != "" {
		if _, err := engine.Execute(flow.InitScript, &script.Context{Variables: vars}); err != nil {
			return nil, err
		}
	}

	out, err := engine.Execute(flow.LoginScript, &script.Context{Variables: vars})
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Cookies map[string]string `json:"cookies"`
		Headers map[string]string `json:"headers"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return nil, errs.Wrap(errs.KindScriptRuntime, err, "login script must return a JSON object, got %q", out)
	}
	if !result.Success {
		return &model.LoginResponse{Success: false, Mode: string(rule.LoginScript), Message: result.Message}, nil
	}

	if err := persistSession(rc, result.Cookies, result.Headers); err != nil {
		return nil, err
	}
	return &model.LoginResponse{Success: true, Mode: string(rule.LoginScript), Message: result.Message}, nil
}

// webviewLogin opens the provider at start_url and polls check_script
// until it reports the user is signed in, then harvests cookies.
func webviewLogin(ctx context.Context, flow *rule.LoginFlow, rc *RuntimeContext) (*model.LoginResponse, error) {
	fc := NewFlowContext(rc)
	startURL, err := fc.Render(flow.StartURL)
	if err != nil {
		return nil, err
	}

	resp, err := rc.WebView.Open(ctx, &webview.Request{
		URL:           absolutize(startURL, rc.BaseURL()),
		Title:         "Sign in",
		SuccessCheck:  flow.CheckScript,
		FinishScript:  flow.FinishScript,
		Timeout:       time.Duration(flow.TimeoutSeconds) * time.Second,
		CheckInterval: time.Duration(flow.CheckIntervalMs) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return &model.LoginResponse{Success: false, Mode: string(rule.LoginWebView), Message: resp.Err}, nil
	}

	if err := persistSession(rc, resp.Cookies, nil); err != nil {
		return nil, err
	}
	return &model.LoginResponse{Success: true, Mode: string(rule.LoginWebView)}, nil
}

// credentialLogin installs the collected fields per the rule's storage
// descriptor: into the cookie jar or the client's default headers.
func credentialLogin(flow *rule.LoginFlow, req *LoginRequest, rc *RuntimeContext) (*model.LoginResponse, error) {
	switch flow.Storage.Type {
	case "cookie":
		cookies := map[string]string{}
		for _, f := range flow.Fields {
			v := req.Fields[f.Key]
			if v == "" {
				continue
			}
			// A single field may carry a whole pasted cookie string.
			if parsed := parseCookieish(v); len(parsed) > 0 {
				for name, cv := range parsed {
					cookies[name] = cv
				}
				continue
			}
			name := flow.Storage.Name
			if name == "" {
				name = f.Key
			}
			cookies[name] = v
		}
		if len(cookies) == 0 {
			return nil, errs.New(errs.KindMissingConfig, "credential login collected no cookies")
		}
		if err := persistSession(rc, cookies, nil); err != nil {
			return nil, err
		}
	case "header":
		headers := map[string]string{}
		for _, f := range flow.Fields {
			if v := req.Fields[f.Key]; v != "" {
				name := flow.Storage.Name
				if name == "" {
					name = f.Key
				}
				headers[name] = v
			}
		}
		if len(headers) == 0 {
			return nil, errs.New(errs.KindMissingConfig, "credential login collected no headers")
		}
		if err := persistSession(rc, nil, headers); err != nil {
			return nil, err
		}
	}
	return &model.LoginResponse{Success: true, Mode: string(rule.LoginCredential)}, nil
}

// persistSession applies cookies and headers to the shared HTTP client
// and mirrors them into runtime globals so templates and scripts can
// reference them.
func persistSession(rc *RuntimeContext, cookies, headers map[string]string) error {
	if len(cookies) > 0 {
		if err := rc.Client.SetCookies(rc.BaseURL(), cookies); err != nil {
			return err
		}
		rc.SetGlobal("login_cookies", toAnyMap(cookies))
	}
	for name, v := range headers {
		rc.Client.SetDefaultHeader(name, v)
	}
	if len(headers) > 0 {
		rc.SetGlobal("login_headers", toAnyMap(headers))
	}
	return nil
}

// parseCookieish returns cookies when v looks like a pasted cookie
// header ("a=1; b=2"), otherwise nil.
func parseCookieish(v string) map[string]string {
	if !strings.Contains(v, ";") || !strings.Contains(v, "=") {
		return nil
	}
	return challenge.ParseCookieString(v)
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
