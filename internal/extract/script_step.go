package extract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"kumo/internal/errs"
	"kumo/internal/rule"
	"kumo/internal/script"
	"kumo/internal/value"
)

func execScript(spec *rule.ScriptSpec, in value.Value, ec *Context) (value.Value, error) {
	code, err := loadScriptCode(spec, ec)
	if err != nil {
		return value.Null(), err
	}

	lang := spec.Language
	if lang == "" && ec.Rule != nil && ec.Rule.Scripting != nil {
		lang = ec.Rule.Scripting.DefaultLanguage
	}
	if ec.Engines == nil {
		return value.Null(), errs.New(errs.KindScriptRuntime, "no script engines available")
	}
	engine, err := ec.Engines(lang)
	if err != nil {
		return value.Null(), err
	}
	if spec.TimeoutMs > 0 {
		engine.SetTimeout(time.Duration(spec.TimeoutMs) * time.Millisecond)
	}

	// Step params go in first so flow variables shadow them on name
	// collisions.
	vars := make(map[string]any, len(spec.Params)+len(ec.Vars))
	for k, v := range spec.Params {
		vars[k] = v
	}
	for k, v := range ec.snapshotVars() {
		vars[k] = v
	}

	out, err := engine.Execute(code, &script.Context{Input: in.Text(), Variables: vars})
	if err != nil {
		return value.Null(), err
	}
	return parseScriptOutput(out, in), nil
}

func loadScriptCode(spec *rule.ScriptSpec, ec *Context) (string, error) {
	switch spec.Source {
	case rule.ScriptSourceInline:
		return spec.Code, nil
	case rule.ScriptSourceFile:
		path := spec.Code
		if !filepath.IsAbs(path) && ec.BaseDir != "" {
			path = filepath.Join(ec.BaseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errs.Wrap(errs.KindScriptRuntime, err, "load script file %s", spec.Code)
		}
		return string(data), nil
	case rule.ScriptSourceURL:
		return "", errs.New(errs.KindScriptRuntime, "loading scripts from URLs is not supported (script %q)", spec.Code)
	default:
		return "", errs.New(errs.KindScriptRuntime, "unknown script source %q", spec.Source)
	}
}

// parseScriptOutput interprets a script result: valid JSON lifts into
// the value model; raw text stays a string, or HTML when the input was
// HTML.
func parseScriptOutput(out string, in value.Value) value.Value {
	var node any
	if err := json.Unmarshal([]byte(out), &node); err == nil {
		return value.FromJSON(node)
	}
	if in.Kind() == value.KindHTML {
		return value.HTML(out)
	}
	return value.String(out)
}
