package flow

import (
	"context"
	"net/http"
	"strings"
	"time"

	"kumo/internal/challenge"
	"kumo/internal/httpclient"
	"kumo/internal/metrics"
	"kumo/internal/rule"
)

// fetch runs the shared request template every flow uses: render the
// URL (absolutizing protocol-less ones against base_url), render the
// flow-level headers and body, issue the request, and — when the rule
// has a challenge block — detect and satisfy challenges, refetching
// once with the obtained credentials.
func (fc *FlowContext) fetch(ctx context.Context, urlTmpl rule.Template, reqCfg *rule.RequestConfig) (*httpclient.Response, error) {
	rendered, err := fc.Render(urlTmpl)
	if err != nil {
		return nil, err
	}
	target := absolutize(rendered, fc.rc.BaseURL())

	req := &httpclient.Request{Method: http.MethodGet, URL: target}
	if reqCfg != nil {
		if reqCfg.Method != "" {
			req.Method = reqCfg.Method
		}
		if len(reqCfg.Headers) > 0 {
			req.Headers = make(map[string]string, len(reqCfg.Headers))
			for name, tmpl := range reqCfg.Headers {
				v, err := fc.Render(tmpl)
				if err != nil {
					return nil, err
				}
				req.Headers[name] = v
			}
		}
		if reqCfg.Body != "" {
			body, err := fc.Render(reqCfg.Body)
			if err != nil {
				return nil, err
			}
			req.Body = body
		}
		req.Override = reqCfg.HTTP
	}

	resp, err := fc.rc.Client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if fc.rc.Challenges == nil {
		return resp, nil
	}

	creds, err := fc.rc.Challenges.DetectAndHandle(ctx, target, responseContext(resp))
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return resp, nil
	}

	// Apply the credentials and refetch once.
	if len(creds.Cookies) > 0 {
		if err := fc.rc.Client.SetCookies(target, creds.Cookies); err != nil {
			return nil, err
		}
	}
	if len(creds.Headers) > 0 {
		if req.Headers == nil {
			req.Headers = map[string]string{}
		}
		for name, v := range creds.Headers {
			req.Headers[name] = v
		}
	}
	return fc.rc.Client.Do(ctx, req)
}

func responseContext(resp *httpclient.Response) *challenge.ResponseContext {
	headers := make(map[string]string, len(resp.Headers))
	for name := range resp.Headers {
		headers[name] = resp.Headers.Get(name)
	}
	return &challenge.ResponseContext{
		Status:   resp.Status,
		Headers:  headers,
		Body:     resp.Body,
		FinalURL: resp.FinalURL,
	}
}

// absolutize prepends the base URL to protocol-less targets.
func absolutize(target, baseURL string) string {
	if target == "" || strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	base := strings.TrimSuffix(baseURL, "/")
	if strings.HasPrefix(target, "/") {
		return base + target
	}
	return base + "/" + target
}

// record finishes a flow metric sample.
func record(rc *RuntimeContext, flowName string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordFlow(rc.Rule.Meta.Name, flowName, status, time.Since(start).Milliseconds())
}
