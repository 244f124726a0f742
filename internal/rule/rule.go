// Package rule defines the declarative scraping rule schema and its
// TOML/JSON loader. A rule describes one target site: its HTTP surface,
// field-by-field extraction pipelines, flow-level orchestration, and
// optional anti-bot challenge handling.
package rule

// MediaType enumerates the catalog domains a rule can describe.
type MediaType string

const (
	MediaBook  MediaType = "book"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaManga MediaType = "manga"
)

// Meta identifies a rule and carries display information.
type Meta struct {
	Name        string
	Author      string
	Version     string
	BaseURL     string
	MediaType   MediaType
	Description string
}

// Template is a string rendered with {{ var }} / {% ... %} syntax
// before use. Every URL, header, and body in a rule is a Template.
type Template string

func (t Template) String() string { return string(t) }

// Rule is the top-level declarative document for one site.
type Rule struct {
	Meta       Meta
	HTTP       *HTTPConfig
	Scripting  *ScriptingConfig
	Challenge  *ChallengeConfig
	Components map[string]ComponentDefinition

	Search    *SearchFlow
	Detail    *DetailFlow
	Discovery *DiscoveryFlow
	Content   *ContentFlow
	Login     *LoginFlow
}

// ScriptingConfig holds rule-wide script engine settings.
type ScriptingConfig struct {
	// DefaultLanguage applies when a script step omits its language.
	// Currently only "js" ships with the runtime.
	DefaultLanguage string
	// TimeoutMs bounds a single script execution.
	TimeoutMs int
}

// ComponentDefinition is a named, reusable field extractor with
// optional default inputs.
type ComponentDefinition struct {
	Description string
	Inputs      map[string]any
	Extractor   FieldExtractor
}
