// Package script bridges extraction pipelines to embedded script
// engines. Engines satisfy a small interface; the runtime ships a
// JavaScript implementation on goja and keeps one engine per language
// in the runtime context.
package script

import (
	"time"

	"kumo/internal/errs"
)

// Context carries everything a script can see: the pipeline's current
// value serialized to a string, plus the step params and a snapshot of
// the flow variables.
type Context struct {
	Input     string
	Variables map[string]any
}

// Engine executes scripts of one language.
type Engine interface {
	// Execute runs the script and returns its result as a string.
	Execute(script string, sc *Context) (string, error)
	// ExecuteJSON runs the script and decodes its result as JSON where
	// possible; non-JSON results come back as plain strings.
	ExecuteJSON(script string, sc *Context) (any, error)
	// SetTimeout bounds one execution; zero disables the bound.
	SetTimeout(d time.Duration)
	// Name identifies the engine for logs.
	Name() string
}

// NewEngine constructs the engine for a language tag. Only JavaScript
// ships with the runtime; other tags fail loudly.
func NewEngine(language string) (Engine, error) {
	switch language {
	case "", "js", "javascript":
		return NewJSEngine(), nil
	default:
		return nil, errs.New(errs.KindInvalidConfigValue, "unsupported script language %q", language)
	}
}
