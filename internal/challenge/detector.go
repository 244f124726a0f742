// Package challenge detects anti-bot interstitials in HTTP responses
// and obtains the credentials (cookies, headers, tokens) needed to get
// past them. Detection and handling are configured per rule; obtained
// credentials are cached per domain.
package challenge

import (
	"regexp"
	"strings"

	"kumo/internal/errs"
	"kumo/internal/rule"
)

// Kind classifies a detected challenge.
type Kind string

const (
	KindCloudflareJs          Kind = "cloudflare_js"
	KindCloudflareTurnstile   Kind = "cloudflare_turnstile"
	KindCloudflareUnderAttack Kind = "cloudflare_under_attack"
	KindRecaptchaV2           Kind = "recaptcha_v2"
	KindRecaptchaV3           Kind = "recaptcha_v3"
	KindHcaptcha              Kind = "hcaptcha"
	KindCustom                Kind = "custom"
)

// ResponseContext is the slice of an HTTP response a detector looks
// at.
type ResponseContext struct {
	Status   int
	Headers  map[string]string
	Body     string
	FinalURL string
}

// HeaderValue fetches a header case-insensitively.
func (r *ResponseContext) HeaderValue(name string) (string, bool) {
	if v, ok := r.Headers[name]; ok {
		return v, true
	}
	lower := strings.ToLower(name)
	for k, v := range r.Headers {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return "", false
}

// Detection is a detector verdict.
type Detection struct {
	Detected bool
	Kind     Kind
	Extra    map[string]string
}

func notDetected() Detection { return Detection{} }

func detected(kind Kind) Detection {
	return Detection{Detected: true, Kind: kind, Extra: map[string]string{}}
}

// Detector inspects a response for one family of challenges.
type Detector interface {
	Detect(resp *ResponseContext) Detection
}

// NewDetector builds a detector from its rule configuration.
func NewDetector(cfg *rule.DetectorConfig) (Detector, error) {
	switch cfg.Type {
	case rule.DetectorCloudflare:
		return &CloudflareDetector{}, nil
	case rule.DetectorRecaptcha:
		return &RecaptchaDetector{Version: cfg.Version}, nil
	case rule.DetectorHcaptcha:
		return &HcaptchaDetector{}, nil
	case rule.DetectorCustom:
		return newCustomDetector(cfg)
	default:
		return nil, errs.New(errs.KindInvalidConfigValue, "unknown detector type %q", cfg.Type)
	}
}

// CloudflareDetector recognizes the JS challenge, Turnstile, and
// under-attack interstitials.
type CloudflareDetector struct{}

var (
	cfTurnstilePatterns = []string{
		"challenges.cloudflare.com/turnstile",
		"cf-turnstile",
	}
	cfUnderAttackPatterns = []string{
		"Checking your browser",
		"Attention Required! | Cloudflare",
		"cf-please-wait",
	}
	cfJsPatterns = []string{
		"Just a moment",
		"_cf_chl_opt",
		"cf-challenge-running",
		"__cf_bm",
		"cf_clearance",
	}
	cfHeaders      = []string{"cf-ray", "cf-cache-status", "cf-mitigated"}
	cfStatusCodes  = map[int]bool{403: true, 503: true, 429: true}
)

func (d *CloudflareDetector) Detect(resp *ResponseContext) Detection {
	kind := Kind("")
	switch {
	case bodyContainsAny(resp.Body, cfTurnstilePatterns):
		kind = KindCloudflareTurnstile
	case bodyContainsAny(resp.Body, cfUnderAttackPatterns):
		kind = KindCloudflareUnderAttack
	case bodyContainsAny(resp.Body, cfJsPatterns):
		kind = KindCloudflareJs
	}

	hasCfHeader := false
	for _, h := range cfHeaders {
		if _, ok := resp.HeaderValue(h); ok {
			hasCfHeader = true
			break
		}
	}

	if kind == "" {
		// No body indicator: a Cloudflare header together with a block
		// status still counts.
		if !hasCfHeader || !cfStatusCodes[resp.Status] {
			return notDetected()
		}
		kind = KindCloudflareJs
	}

	det := detected(kind)
	if ray, ok := resp.HeaderValue("cf-ray"); ok {
		det.Extra["cf_ray"] = ray
	}
	return det
}

// RecaptchaDetector recognizes reCAPTCHA markup. The version is
// declared in configuration, never inferred from the page.
type RecaptchaDetector struct {
	Version string
}

var (
	recaptchaPatterns = []string{
		"www.google.com/recaptcha",
		"www.recaptcha.net",
		"g-recaptcha",
		"grecaptcha",
		"recaptcha/api.js",
		"recaptcha/enterprise.js",
	}
	siteKeyAttrRe   = regexp.MustCompile(`data-sitekey="([^"]+)"`)
	siteKeyRenderRe = regexp.MustCompile(`grecaptcha\.render\([^)]*sitekey['"]?\s*:\s*['"]([^'"]+)`)
)

func (d *RecaptchaDetector) Detect(resp *ResponseContext) Detection {
	if !bodyContainsAny(resp.Body, recaptchaPatterns) {
		return notDetected()
	}
	kind := KindRecaptchaV2
	if d.Version == "v3" {
		kind = KindRecaptchaV3
	}
	det := detected(kind)
	if key := firstGroup(siteKeyAttrRe, resp.Body); key != "" {
		det.Extra["site_key"] = key
	} else if key := firstGroup(siteKeyRenderRe, resp.Body); key != "" {
		det.Extra["site_key"] = key
	}
	return det
}

// HcaptchaDetector recognizes hCaptcha markup.
type HcaptchaDetector struct{}

var hcaptchaPatterns = []string{
	"hcaptcha.com",
	"h-captcha",
	"hcaptcha",
	"data-hcaptcha-widget-id",
}

func (d *HcaptchaDetector) Detect(resp *ResponseContext) Detection {
	if !bodyContainsAny(resp.Body, hcaptchaPatterns) {
		return notDetected()
	}
	det := detected(KindHcaptcha)
	if key := firstGroup(siteKeyAttrRe, resp.Body); key != "" {
		det.Extra["site_key"] = key
	}
	return det
}

// customDetector requires every configured condition to hold.
type customDetector struct {
	statusCodes    map[int]bool
	headerPatterns map[string]*regexp.Regexp
	urlPattern     *regexp.Regexp
	bodyContains   []string
	bodyPatterns   []*regexp.Regexp
}

func newCustomDetector(cfg *rule.DetectorConfig) (*customDetector, error) {
	d := &customDetector{bodyContains: cfg.BodyContains}
	if len(cfg.StatusCodes) > 0 {
		d.statusCodes = make(map[int]bool, len(cfg.StatusCodes))
		for _, c := range cfg.StatusCodes {
			d.statusCodes[c] = true
		}
	}
	if len(cfg.HeaderPatterns) > 0 {
		d.headerPatterns = make(map[string]*regexp.Regexp, len(cfg.HeaderPatterns))
		for name, pattern := range cfg.HeaderPatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, errs.Wrap(errs.KindInvalidConfigValue, err, "header pattern for %q", name)
			}
			d.headerPatterns[name] = re
		}
	}
	if cfg.URLPattern != "" {
		re, err := regexp.Compile(cfg.URLPattern)
		if err != nil {
			return nil, errs.Wrap(errs.KindInvalidConfigValue, err, "url pattern")
		}
		d.urlPattern = re
	}
	for _, pattern := range cfg.BodyPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errs.Wrap(errs.KindInvalidConfigValue, err, "body pattern %q", pattern)
		}
		d.bodyPatterns = append(d.bodyPatterns, re)
	}
	return d, nil
}

func (d *customDetector) Detect(resp *ResponseContext) Detection {
	if d.statusCodes != nil && !d.statusCodes[resp.Status] {
		return notDetected()
	}
	for name, re := range d.headerPatterns {
		v, ok := resp.HeaderValue(name)
		if !ok || !re.MatchString(v) {
			return notDetected()
		}
	}
	if d.urlPattern != nil && !d.urlPattern.MatchString(resp.FinalURL) {
		return notDetected()
	}
	for _, s := range d.bodyContains {
		if !strings.Contains(resp.Body, s) {
			return notDetected()
		}
	}
	for _, re := range d.bodyPatterns {
		if !re.MatchString(resp.Body) {
			return notDetected()
		}
	}
	return detected(KindCustom)
}

func bodyContainsAny(body string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(body, p) {
			return true
		}
	}
	return false
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}
