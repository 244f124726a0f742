package challenge

import (
	"sort"
	"strings"
	"time"
)

// Credentials are what handling a challenge yields: cookies and
// headers to attach to subsequent requests, plus extras like solver
// tokens.
type Credentials struct {
	Cookies    map[string]string `json:"cookies,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
	ObtainedAt time.Time         `json:"obtained_at"`
	TTLSeconds int               `json:"ttl_seconds,omitempty"`
}

// NewCredentials returns an empty credentials record stamped with the
// current time.
func NewCredentials() *Credentials {
	return &Credentials{
		Cookies:    map[string]string{},
		Headers:    map[string]string{},
		Extra:      map[string]string{},
		ObtainedAt: time.Now(),
	}
}

// IsExpired reports whether the TTL has elapsed. Credentials without a
// TTL never expire.
func (c *Credentials) IsExpired() bool {
	if c.TTLSeconds <= 0 || c.ObtainedAt.IsZero() {
		return false
	}
	return time.Since(c.ObtainedAt) > time.Duration(c.TTLSeconds)*time.Second
}

// IsEmpty reports whether the record carries nothing.
func (c *Credentials) IsEmpty() bool {
	return len(c.Cookies) == 0 && len(c.Headers) == 0 && len(c.Extra) == 0
}

// CookieString renders the cookies as a Cookie header value with a
// stable order.
func (c *Credentials) CookieString() string {
	names := make([]string, 0, len(c.Cookies))
	for name := range c.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+c.Cookies[name])
	}
	return strings.Join(parts, "; ")
}

// ParseCookieString parses "name=value; name2=value2" into a cookie
// map, skipping malformed fragments.
func ParseCookieString(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.Index(part, "=")
		if eq <= 0 {
			continue
		}
		out[strings.TrimSpace(part[:eq])] = strings.TrimSpace(part[eq+1:])
	}
	return out
}
