package challenge

import (
	"context"
	"log/slog"
	"net/url"

	"kumo/internal/errs"
	"kumo/internal/httpclient"
	"kumo/internal/metrics"
	"kumo/internal/rule"
	"kumo/internal/webview"
)

// Manager wires detectors, one handler, and the credential cache into
// the detect -> cache-check -> handle -> cache flow.
type Manager struct {
	cfg       *rule.ChallengeConfig
	detectors []Detector
	handler   Handler
	cache     Cache
	webview   webview.Provider
	client    *httpclient.Client
	logger    *slog.Logger
}

// NewManager builds a manager from the rule's challenge block. A nil
// cache gets an in-process one; a nil handler config defaults to the
// retry handler, which needs no UI.
func NewManager(cfg *rule.ChallengeConfig, wv webview.Provider, client *httpclient.Client, cache Cache, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if wv == nil {
		wv = webview.NoopProvider{}
	}

	m := &Manager{cfg: cfg, cache: cache, webview: wv, client: client, logger: logger}

	for i := range cfg.Detectors {
		d, err := NewDetector(&cfg.Detectors[i])
		if err != nil {
			return nil, err
		}
		m.detectors = append(m.detectors, d)
	}

	handlerCfg := cfg.Handler
	if handlerCfg == nil {
		handlerCfg = &rule.HandlerConfig{Type: rule.HandlerRetry}
	}
	h, err := NewHandler(handlerCfg)
	if err != nil {
		return nil, err
	}
	m.handler = h
	return m, nil
}

// Detect runs the configured detectors in order; the first hit wins.
// A disabled config never detects.
func (m *Manager) Detect(resp *ResponseContext) Detection {
	if m.cfg == nil || !m.cfg.Enabled {
		return notDetected()
	}
	for _, d := range m.detectors {
		if det := d.Detect(resp); det.Detected {
			m.logger.Info("challenge detected", "kind", det.Kind, "url", resp.FinalURL)
			metrics.RecordChallengeDetection(string(det.Kind))
			return det
		}
	}
	return notDetected()
}

// DetectAndHandle returns nil credentials when no challenge is
// present. Otherwise it short-circuits through the per-domain cache,
// or runs the handler up to max_attempts times and caches the result.
func (m *Manager) DetectAndHandle(ctx context.Context, rawURL string, resp *ResponseContext) (*Credentials, error) {
	det := m.Detect(resp)
	if !det.Detected {
		return nil, nil
	}

	domain := extractDomain(rawURL)
	if cached, ok := m.cache.Get(ctx, domain); ok {
		m.logger.Debug("using cached challenge credentials", "domain", domain)
		return cached, nil
	}

	hc := &HandlerContext{
		WebView:   m.webview,
		URL:       rawURL,
		Detection: det,
		Response:  resp,
		Client:    m.client,
		Detectors: m.detectors,
	}

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		m.logger.Info("handling challenge", "kind", det.Kind, "attempt", attempt, "max_attempts", m.cfg.MaxAttempts)
		creds, err := m.handler.Handle(ctx, hc)
		if err != nil {
			m.logger.Warn("challenge handling failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		if m.cfg.CacheDurationSeconds > 0 {
			creds.TTLSeconds = m.cfg.CacheDurationSeconds
		}
		if err := m.cache.Set(ctx, domain, creds); err != nil {
			m.logger.Warn("failed to cache challenge credentials", "domain", domain, "error", err)
		}
		metrics.RecordChallengeHandled(string(det.Kind), "success")
		return creds, nil
	}

	metrics.RecordChallengeHandled(string(det.Kind), "exhausted")
	return nil, errs.Wrap(errs.KindChallengeMaxAttempts, lastErr, "challenge handling exhausted %d attempts", m.cfg.MaxAttempts)
}

// ClearCached drops cached credentials for the URL's domain.
func (m *Manager) ClearCached(ctx context.Context, rawURL string) {
	m.cache.Remove(ctx, extractDomain(rawURL))
}

func extractDomain(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Hostname()
	}
	return rawURL
}
