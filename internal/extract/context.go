// Package extract executes field-extraction pipelines: ordered step
// lists that transform a value (HTML document, JSON tree, string,
// array) into the field a flow wants. Step executors are stateless
// free functions dispatched over the step kind.
package extract

import (
	"kumo/internal/rule"
	"kumo/internal/script"
)

// maxComponentDepth bounds nested component calls at run time; load
// time already rejects static cycles.
const maxComponentDepth = 32

// EngineProvider resolves a script engine for a language tag.
type EngineProvider func(language string) (script.Engine, error)

// XPathEvaluator is the optional injected XPath capability. Evaluate
// returns the outer HTML of matched nodes. Without an evaluator the
// xpath step fails with a clear unsupported error.
type XPathEvaluator interface {
	Evaluate(expr, html string, all bool) ([]string, error)
}

// Context is what one pipeline execution can see: the rule (for
// components), runtime globals, the mutable flow variables, and the
// injected capabilities. It is not safe for concurrent use; each flow
// invocation builds its own.
type Context struct {
	Rule    *rule.Rule
	Globals map[string]any
	Vars    map[string]any
	Engines EngineProvider
	XPath   XPathEvaluator
	// BaseDir resolves script file references relative to the rule.
	BaseDir string

	depth int
}

// Resolve looks a variable up flow-first, then in runtime globals.
func (c *Context) Resolve(name string) (any, bool) {
	if c.Vars != nil {
		if v, ok := c.Vars[name]; ok {
			return v, true
		}
	}
	if c.Globals != nil {
		if v, ok := c.Globals[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// SetVar stores a flow variable. Pipelines mutate the flow context
// only through this method (the set_var step).
func (c *Context) SetVar(name string, v any) {
	if c.Vars == nil {
		c.Vars = map[string]any{}
	}
	c.Vars[name] = v
}

// snapshotVars copies the current variables for handing to scripts.
func (c *Context) snapshotVars() map[string]any {
	out := make(map[string]any, len(c.Vars))
	for k, v := range c.Vars {
		out[k] = v
	}
	return out
}
