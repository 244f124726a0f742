package rule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"kumo/internal/errs"
)

// Load reads a rule file, picking the format from the extension
// (.toml, .json).
func Load(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "read rule file %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return Parse(data, "toml")
	case ".json":
		return Parse(data, "json")
	default:
		return nil, errs.New(errs.KindConfig, "unsupported rule file extension on %s", path)
	}
}

// Parse decodes rule data in the given format ("toml" or "json"),
// binds it into the typed schema, and validates it.
func Parse(data []byte, format string) (*Rule, error) {
	var raw map[string]any
	switch format {
	case "toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, errs.Wrap(errs.KindConfig, err, "parse TOML rule")
		}
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errs.Wrap(errs.KindConfig, err, "parse JSON rule")
		}
	default:
		return nil, errs.New(errs.KindConfig, "unknown rule format %q", format)
	}

	r, err := decodeRule(raw)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate performs the static checks that do not require running the
// rule: presence of required flows and absence of component reference
// cycles.
func (r *Rule) Validate() error {
	if r.Search == nil {
		return errs.New(errs.KindMissingConfig, "search flow is required")
	}
	if r.Detail == nil {
		return errs.New(errs.KindMissingConfig, "detail flow is required")
	}
	return r.checkComponentCycles()
}

// Component cycle detection: DFS with three colors over the component
// reference graph. Reports the full cycle path.
func (r *Rule) checkComponentCycles() error {
	if len(r.Components) == 0 {
		return nil
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(r.Components))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case gray:
			cycle := append(path, name)
			return errs.New(errs.KindCircularReference, "component cycle: %s", strings.Join(cycle, " -> "))
		case black:
			return nil
		}
		def, ok := r.Components[name]
		if !ok {
			return errs.New(errs.KindUndefinedComponent, "component %q referenced by %s is not defined", name, strings.Join(path, " -> "))
		}
		color[name] = gray
		for _, ref := range componentRefs(def.Extractor) {
			if err := visit(ref, append(path, name)); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	names := make([]string, 0, len(r.Components))
	for name := range r.Components {
		names = append(names, name)
	}
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// componentRefs collects every component name referenced anywhere in
// an extractor, including inside fallbacks, map bodies, and condition
// branches.
func componentRefs(fe FieldExtractor) []string {
	var refs []string
	var walk func(steps []Step)
	walk = func(steps []Step) {
		for _, s := range steps {
			switch s.Kind {
			case StepUseComponent:
				refs = append(refs, s.Component.Name)
			case StepMap:
				walk(s.Steps)
			case StepCondition:
				walk(s.Condition.When)
				walk(s.Condition.Then)
				walk(s.Condition.Else)
			}
		}
	}
	walk(fe.Steps)
	for _, fb := range fe.Fallback {
		walk(fb)
	}
	return refs
}

// LoadDir loads every .toml/.json rule in a directory, keyed by
// meta.name. Files that fail to parse are reported together.
func LoadDir(dir string) (map[string]*Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "read rules dir %s", dir)
	}
	rules := make(map[string]*Rule)
	var failures []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".toml" && ext != ".json" {
			continue
		}
		r, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", e.Name(), err))
			continue
		}
		rules[r.Meta.Name] = r
	}
	if len(failures) > 0 {
		return rules, errs.New(errs.KindConfig, "some rules failed to load: %s", strings.Join(failures, "; "))
	}
	return rules, nil
}
