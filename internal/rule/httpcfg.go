package rule

// HTTPConfig configures the shared HTTP client. All fields are
// pointers so that layered configs merge option-wise: a later Some
// overrides, a nil inherits.
type HTTPConfig struct {
	UserAgent       *string
	TimeoutSeconds  *int
	ConnectTimeoutSeconds *int
	Proxy           *string
	Headers         map[string]string
	FollowRedirects *bool
	MaxRedirects    *int
	VerifySSL       *bool
	RequestDelayMs  *int
	MaxConcurrent   *int
	RetryCount      *int
	RetryDelayMs    *int
}

// Merge layers other on top of c: set fields in other win, header maps
// union-merge with other's entries taking precedence. Neither receiver
// nor argument is modified.
func (c *HTTPConfig) Merge(other *HTTPConfig) *HTTPConfig {
	if c == nil && other == nil {
		return &HTTPConfig{}
	}
	if c == nil {
		return other.clone()
	}
	out := c.clone()
	if other == nil {
		return out
	}
	if other.UserAgent != nil {
		out.UserAgent = other.UserAgent
	}
	if other.TimeoutSeconds != nil {
		out.TimeoutSeconds = other.TimeoutSeconds
	}
	if other.ConnectTimeoutSeconds != nil {
		out.ConnectTimeoutSeconds = other.ConnectTimeoutSeconds
	}
	if other.Proxy != nil {
		out.Proxy = other.Proxy
	}
	if len(other.Headers) > 0 {
		if out.Headers == nil {
			out.Headers = make(map[string]string, len(other.Headers))
		}
		for k, v := range other.Headers {
			out.Headers[k] = v
		}
	}
	if other.FollowRedirects != nil {
		out.FollowRedirects = other.FollowRedirects
	}
	if other.MaxRedirects != nil {
		out.MaxRedirects = other.MaxRedirects
	}
	if other.VerifySSL != nil {
		out.VerifySSL = other.VerifySSL
	}
	if other.RequestDelayMs != nil {
		out.RequestDelayMs = other.RequestDelayMs
	}
	if other.MaxConcurrent != nil {
		out.MaxConcurrent = other.MaxConcurrent
	}
	if other.RetryCount != nil {
		out.RetryCount = other.RetryCount
	}
	if other.RetryDelayMs != nil {
		out.RetryDelayMs = other.RetryDelayMs
	}
	return out
}

func (c *HTTPConfig) clone() *HTTPConfig {
	if c == nil {
		return &HTTPConfig{}
	}
	out := *c
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return &out
}
