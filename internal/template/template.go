// Package template renders the {{ var }} / {% ... %} templates used
// for every URL, header, body, and inline string in a rule. It wraps
// pongo2 and adds the runtime's two scoping rules: flow variables
// shadow runtime globals, and the `$` namespace always resolves
// against runtime globals ({{ $.base_url }}).
package template

import (
	"regexp"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"

	"kumo/internal/errs"
)

func init() {
	// Rendered strings are URLs, headers, and request bodies, not HTML
	// documents; entity escaping would corrupt them.
	pongo2.SetAutoescape(false)
}

// The $ namespace is rewritten to a reserved identifier before the
// template compiles, because $ is not a legal pongo2 identifier.
const globalsKey = "__globals"

var (
	cacheMu sync.RWMutex
	cache   = map[string]*pongo2.Template{}

	identRe   = regexp.MustCompile(`\{\{-?\s*([A-Za-z_][A-Za-z0-9_]*)`)
	forVarRe  = regexp.MustCompile(`\{%-?\s*for\s+([A-Za-z_][A-Za-z0-9_]*)`)
	hasExprRe = regexp.MustCompile(`\{\{|\{%`)
)

// IsStatic reports whether src contains no template expressions.
func IsStatic(src string) bool {
	return !hasExprRe.MatchString(src)
}

// Render evaluates src with flow variables layered over runtime
// globals. A string with no template syntax is returned unchanged.
// Unknown variables and syntax errors surface as Template errors.
func Render(src string, flowVars, globals map[string]any) (string, error) {
	if IsStatic(src) {
		return src, nil
	}

	rewritten := strings.ReplaceAll(src, "$.", globalsKey+".")

	tpl, err := compiled(rewritten)
	if err != nil {
		return "", errs.Wrap(errs.KindTemplate, err, "template %q", src)
	}

	ctx := pongo2.Context{}
	for k, v := range globals {
		ctx[k] = v
	}
	for k, v := range flowVars {
		ctx[k] = v
	}
	ctx[globalsKey] = globals

	if missing := missingVariable(rewritten, ctx); missing != "" {
		return "", errs.New(errs.KindTemplate, "template %q: undefined variable %q", src, missing)
	}

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", errs.Wrap(errs.KindTemplate, err, "template %q", src)
	}
	return out, nil
}

func compiled(src string) (*pongo2.Template, error) {
	cacheMu.RLock()
	tpl, ok := cache[src]
	cacheMu.RUnlock()
	if ok {
		return tpl, nil
	}
	tpl, err := pongo2.FromString(src)
	if err != nil {
		return nil, err
	}
	cacheMu.Lock()
	cache[src] = tpl
	cacheMu.Unlock()
	return tpl, nil
}

// missingVariable returns the first root identifier referenced by a
// {{ ... }} expression that is absent from the context. pongo2 renders
// unknown names as empty strings; the rule contract wants a loud
// Template error instead. Loop variables declared by {% for %} count
// as defined.
func missingVariable(src string, ctx pongo2.Context) string {
	declared := map[string]bool{}
	for _, m := range forVarRe.FindAllStringSubmatch(src, -1) {
		declared[m[1]] = true
	}
	for _, m := range identRe.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if declared[name] {
			continue
		}
		if _, ok := ctx[name]; !ok {
			return name
		}
	}
	return ""
}
