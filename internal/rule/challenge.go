package rule

// DetectorType tags a challenge detector configuration.
type DetectorType string

const (
	DetectorCloudflare DetectorType = "cloudflare"
	DetectorRecaptcha  DetectorType = "recaptcha"
	DetectorHcaptcha   DetectorType = "hcaptcha"
	DetectorCustom     DetectorType = "custom"
)

// DetectorConfig configures one challenge detector. Only the fields
// relevant to its Type are consulted.
type DetectorConfig struct {
	Type DetectorType

	// recaptcha
	Version string // "v2" or "v3"; declared, never inferred

	// custom: every configured condition must hold
	StatusCodes    []int
	HeaderPatterns map[string]string // header name -> regex
	URLPattern     string
	BodyContains   []string
	BodyPatterns   []string
}

// HandlerType tags a challenge handler configuration.
type HandlerType string

const (
	HandlerWebView  HandlerType = "webview"
	HandlerRetry    HandlerType = "retry"
	HandlerCookie   HandlerType = "cookie"
	HandlerExternal HandlerType = "external"
	HandlerScript   HandlerType = "script"
)

// HandlerConfig configures the single handler a rule uses when a
// challenge is detected.
type HandlerConfig struct {
	Type HandlerType

	// webview
	Tip             string
	TimeoutSeconds  int
	UserAgent       string
	SuccessCheck    string
	CheckIntervalMs int
	FinishScript    string
	ExtractCookies  []string

	// retry
	MaxAttempts    int
	InitialDelayMs int
	BackoffFactor  float64

	// cookie
	Cookie string

	// external captcha-solving service
	Provider string // "2captcha", "anticaptcha", "capsolver"
	APIKey   string
	Endpoint string
	PollIntervalMs int
}

// ChallengeConfig wires detection and handling for a rule.
type ChallengeConfig struct {
	Enabled              bool
	Detectors            []DetectorConfig
	Handler              *HandlerConfig
	CacheDurationSeconds int
	MaxAttempts          int
}
