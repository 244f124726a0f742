package challenge

import (
	"context"
	"encoding/json"
	"time"

	"kumo/internal/errs"
	"kumo/internal/httpclient"
	"kumo/internal/rule"
)

// ExternalHandler posts the challenge to a CAPTCHA-solving service
// (2Captcha, Anti-Captcha, CapSolver — they share the createTask /
// getTaskResult wire shape) and polls for the solution. The returned
// token lands in credentials.extra["token"].
type ExternalHandler struct {
	cfg      *rule.HandlerConfig
	endpoint string
}

var providerEndpoints = map[string]string{
	"2captcha":    "https://api.2captcha.com",
	"anticaptcha": "https://api.anti-captcha.com",
	"capsolver":   "https://api.capsolver.com",
}

// NewExternalHandler validates the provider and resolves its API
// endpoint.
func NewExternalHandler(cfg *rule.HandlerConfig) (*ExternalHandler, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = providerEndpoints[cfg.Provider]
	}
	if endpoint == "" {
		return nil, errs.New(errs.KindInvalidConfigValue, "unknown captcha provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, errs.New(errs.KindMissingConfig, "external challenge handler needs api_key")
	}
	return &ExternalHandler{cfg: cfg, endpoint: endpoint}, nil
}

type createTaskRequest struct {
	ClientKey string         `json:"clientKey"`
	Task      map[string]any `json:"task"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           any    `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    any    `json:"taskId"`
}

type taskResultResponse struct {
	ErrorID          int            `json:"errorId"`
	ErrorDescription string         `json:"errorDescription"`
	Status           string         `json:"status"`
	Solution         map[string]any `json:"solution"`
}

func (h *ExternalHandler) Handle(ctx context.Context, hc *HandlerContext) (*Credentials, error) {
	if hc.Client == nil {
		return nil, errs.New(errs.KindChallengeFailed, "external handler needs an HTTP client")
	}

	task, err := h.buildTask(hc)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(h.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	interval := time.Duration(h.cfg.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var created createTaskResponse
	if err := h.call(ctx, hc.Client, "/createTask", createTaskRequest{ClientKey: h.cfg.APIKey, Task: task}, &created); err != nil {
		return nil, err
	}
	if created.ErrorID != 0 {
		return nil, errs.New(errs.KindChallengeFailed, "%s rejected the task: %s", h.cfg.Provider, created.ErrorDescription)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, errs.New(errs.KindChallengeFailed, "%s did not solve within %s", h.cfg.Provider, timeout)
		case <-time.After(interval):
		}

		var result taskResultResponse
		if err := h.call(ctx, hc.Client, "/getTaskResult", taskResultRequest{ClientKey: h.cfg.APIKey, TaskID: created.TaskID}, &result); err != nil {
			return nil, err
		}
		if result.ErrorID != 0 {
			return nil, errs.New(errs.KindChallengeFailed, "%s task failed: %s", h.cfg.Provider, result.ErrorDescription)
		}
		if result.Status != "ready" {
			continue
		}

		token := solutionToken(result.Solution)
		if token == "" {
			return nil, errs.New(errs.KindChallengeFailed, "%s returned an empty solution", h.cfg.Provider)
		}
		creds := NewCredentials()
		creds.Extra["token"] = token
		return creds, nil
	}
}

func (h *ExternalHandler) buildTask(hc *HandlerContext) (map[string]any, error) {
	siteKey := hc.Detection.Extra["site_key"]
	task := map[string]any{
		"websiteURL": hc.URL,
		"websiteKey": siteKey,
	}
	switch hc.Detection.Kind {
	case KindRecaptchaV2:
		task["type"] = "RecaptchaV2TaskProxyless"
	case KindRecaptchaV3:
		task["type"] = "RecaptchaV3TaskProxyless"
	case KindHcaptcha:
		task["type"] = "HCaptchaTaskProxyless"
	case KindCloudflareTurnstile:
		task["type"] = "AntiTurnstileTaskProxyless"
	default:
		return nil, errs.New(errs.KindChallengeFailed, "no solver task type for challenge kind %q", hc.Detection.Kind)
	}
	if siteKey == "" {
		return nil, errs.New(errs.KindChallengeFailed, "no site key detected for %q", hc.Detection.Kind)
	}
	return task, nil
}

func (h *ExternalHandler) call(ctx context.Context, client *httpclient.Client, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(errs.KindChallengeFailed, err, "encode solver request")
	}
	resp, err := client.Do(ctx, &httpclient.Request{
		Method:    "POST",
		URL:       h.endpoint + path,
		Body:      string(body),
		Headers:   map[string]string{"Content-Type": "application/json"},
		Retryable: true,
	})
	if err != nil {
		return errs.Wrap(errs.KindChallengeFailed, err, "call %s%s", h.endpoint, path)
	}
	if err := json.Unmarshal([]byte(resp.Body), out); err != nil {
		return errs.Wrap(errs.KindChallengeFailed, err, "decode solver response from %s", path)
	}
	return nil
}

func solutionToken(solution map[string]any) string {
	for _, key := range []string{"gRecaptchaResponse", "token", "text"} {
		if v, ok := solution[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
