package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"

	"kumo/internal/errs"
	"kumo/internal/rule"
	"kumo/internal/value"
)

// FilterFunc is a pure transformation of (value, args) -> value. The
// context gives URL filters access to runtime globals like base_url.
type FilterFunc func(ec *Context, v value.Value, args []any) (value.Value, error)

var (
	filtersMu sync.RWMutex
	filters   = map[string]FilterFunc{}
)

// RegisterFilter installs a filter under a name. Built-ins register at
// init; hosts may add their own before loading rules.
func RegisterFilter(name string, fn FilterFunc) {
	filtersMu.Lock()
	defer filtersMu.Unlock()
	filters[name] = fn
}

func lookupFilter(name string) (FilterFunc, bool) {
	filtersMu.RLock()
	defer filtersMu.RUnlock()
	fn, ok := filters[name]
	return fn, ok
}

func execFilter(spec *rule.FilterSpec, in value.Value, ec *Context) (value.Value, error) {
	calls := spec.Calls
	if spec.Pipeline != "" {
		calls = parsePipeline(spec.Pipeline)
	}
	current := in
	for _, call := range calls {
		fn, ok := lookupFilter(call.Name)
		if !ok {
			return value.Null(), errs.New(errs.KindExtraction, "unknown filter %q", call.Name)
		}
		var err error
		current, err = fn(ec, current, call.Args)
		if err != nil {
			return value.Null(), err
		}
	}
	return current, nil
}

// parsePipeline splits "trim | replace(a, b) | lower" into calls.
// Arguments are literal strings; filters that want numbers coerce. An
// argument list made only of commas, as in split(,), is one argument.
func parsePipeline(pipeline string) []rule.FilterCall {
	var calls []rule.FilterCall
	for _, part := range strings.Split(pipeline, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		open := strings.Index(part, "(")
		if open < 0 || !strings.HasSuffix(part, ")") {
			calls = append(calls, rule.FilterCall{Name: part})
			continue
		}
		call := rule.FilterCall{Name: strings.TrimSpace(part[:open])}
		argsStr := part[open+1 : len(part)-1]
		if trimmed := strings.TrimSpace(argsStr); trimmed != "" {
			parts := strings.Split(argsStr, ",")
			if strings.TrimSpace(strings.Join(parts, "")) == "" {
				call.Args = append(call.Args, trimmed)
			} else {
				for _, a := range parts {
					call.Args = append(call.Args, strings.TrimSpace(a))
				}
			}
		}
		calls = append(calls, call)
	}
	return calls
}

func needString(name string, v value.Value) (string, error) {
	s, ok := v.AsString()
	if !ok {
		return "", errs.New(errs.KindExtraction, "%s filter requires string input, got %s", name, v.Kind())
	}
	return s, nil
}

func argString(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

func argInt(args []any, i int) (int, bool) {
	if i >= len(args) {
		return 0, false
	}
	switch n := args[i].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}

var stripHTMLRe = regexp.MustCompile(`<[^>]+>`)

func init() {
	RegisterFilter("trim", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		s, err := needString("trim", v)
		if err != nil {
			return value.Null(), err
		}
		return value.String(strings.TrimSpace(s)), nil
	})
	RegisterFilter("lower", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		s, err := needString("lower", v)
		if err != nil {
			return value.Null(), err
		}
		return value.String(strings.ToLower(s)), nil
	})
	RegisterFilter("upper", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		s, err := needString("upper", v)
		if err != nil {
			return value.Null(), err
		}
		return value.String(strings.ToUpper(s)), nil
	})
	RegisterFilter("reverse", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		s, err := needString("reverse", v)
		if err != nil {
			return value.Null(), err
		}
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return value.String(string(runes)), nil
	})

	RegisterFilter("replace", func(_ *Context, v value.Value, args []any) (value.Value, error) {
		s, err := needString("replace", v)
		if err != nil {
			return value.Null(), err
		}
		from, ok1 := argString(args, 0)
		to, ok2 := argString(args, 1)
		if !ok1 || !ok2 {
			return value.Null(), errs.New(errs.KindExtraction, "replace filter requires from and to arguments")
		}
		return value.String(strings.ReplaceAll(s, from, to)), nil
	})
	RegisterFilter("regex_replace", func(_ *Context, v value.Value, args []any) (value.Value, error) {
		s, err := needString("regex_replace", v)
		if err != nil {
			return value.Null(), err
		}
		pattern, ok1 := argString(args, 0)
		repl, ok2 := argString(args, 1)
		if !ok1 || !ok2 {
			return value.Null(), errs.New(errs.KindExtraction, "regex_replace filter requires pattern and replacement arguments")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return value.Null(), errs.Wrap(errs.KindExtraction, err, "regex_replace pattern %q", pattern)
		}
		return value.String(re.ReplaceAllString(s, repl)), nil
	})

	RegisterFilter("split", func(_ *Context, v value.Value, args []any) (value.Value, error) {
		s, err := needString("split", v)
		if err != nil {
			return value.Null(), err
		}
		sep, ok := argString(args, 0)
		if !ok {
			sep = " "
		}
		parts := strings.Split(s, sep)
		items := make([]value.Value, 0, len(parts))
		for _, p := range parts {
			items = append(items, value.String(p))
		}
		return value.Array(items), nil
	})
	RegisterFilter("join", func(_ *Context, v value.Value, args []any) (value.Value, error) {
		items, ok := v.AsArray()
		if !ok {
			return value.Null(), errs.New(errs.KindExtraction, "join filter requires array input, got %s", v.Kind())
		}
		sep, ok := argString(args, 0)
		if !ok {
			sep = ""
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, item.Text())
		}
		return value.String(strings.Join(parts, sep)), nil
	})

	RegisterFilter("strip_html", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		s, err := needString("strip_html", v)
		if err != nil {
			return value.Null(), err
		}
		return value.String(stripHTMLRe.ReplaceAllString(s, "")), nil
	})

	RegisterFilter("substring", func(_ *Context, v value.Value, args []any) (value.Value, error) {
		s, err := needString("substring", v)
		if err != nil {
			return value.Null(), err
		}
		start, ok := argInt(args, 0)
		if !ok {
			return value.Null(), errs.New(errs.KindExtraction, "substring filter requires a start argument")
		}
		runes := []rune(s)
		if start < 0 || start > len(runes) {
			start = min(max(start, 0), len(runes))
		}
		end := len(runes)
		if length, ok := argInt(args, 1); ok {
			end = min(start+length, len(runes))
		}
		return value.String(string(runes[start:end])), nil
	})

	RegisterFilter("to_int", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		if n, ok := v.AsJSON().(float64); ok {
			return value.JSON(int64(n)), nil
		}
		s, err := needString("to_int", v)
		if err != nil {
			return value.Null(), err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return value.Null(), errs.Wrap(errs.KindExtraction, err, "to_int on %q", s)
		}
		return value.JSON(n), nil
	})
	RegisterFilter("to_float", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		if n, ok := v.AsJSON().(float64); ok {
			return value.JSON(n), nil
		}
		s, err := needString("to_float", v)
		if err != nil {
			return value.Null(), err
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return value.Null(), errs.Wrap(errs.KindExtraction, err, "to_float on %q", s)
		}
		return value.JSON(n), nil
	})
	RegisterFilter("to_string", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		if v.Kind() == value.KindArray {
			return value.Null(), errs.New(errs.KindExtraction, "to_string cannot convert an array")
		}
		return value.String(v.Text()), nil
	})
	RegisterFilter("to_bool", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		if b, ok := v.AsJSON().(bool); ok {
			return value.JSON(b), nil
		}
		s, err := needString("to_bool", v)
		if err != nil {
			return value.Null(), err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes":
			return value.JSON(true), nil
		case "false", "0", "no", "":
			return value.JSON(false), nil
		}
		return value.Null(), errs.New(errs.KindExtraction, "to_bool on %q", s)
	})

	RegisterFilter("absolute_url", absoluteURLFilter)
	RegisterFilter("url_encode", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		s, err := needString("url_encode", v)
		if err != nil {
			return value.Null(), err
		}
		return value.String(url.QueryEscape(s)), nil
	})
	RegisterFilter("url_decode", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		s, err := needString("url_decode", v)
		if err != nil {
			return value.Null(), err
		}
		out, err := url.QueryUnescape(s)
		if err != nil {
			return value.Null(), errs.Wrap(errs.KindExtraction, err, "url_decode on %q", s)
		}
		return value.String(out), nil
	})

	emptyReplacement := func(_ *Context, v value.Value, args []any) (value.Value, error) {
		if !v.IsEmpty() {
			return v, nil
		}
		if len(args) == 0 {
			return value.Null(), errs.New(errs.KindExtraction, "default filter requires a replacement argument")
		}
		return value.FromJSON(args[0]), nil
	}
	RegisterFilter("default", emptyReplacement)
	RegisterFilter("if_empty", emptyReplacement)

	RegisterFilter("markdown", func(_ *Context, v value.Value, _ []any) (value.Value, error) {
		s, err := needString("markdown", v)
		if err != nil {
			return value.Null(), err
		}
		converter := htmlmd.NewConverter("", true, nil)
		md, err := converter.ConvertString(s)
		if err != nil {
			return value.Null(), errs.Wrap(errs.KindExtraction, err, "markdown conversion")
		}
		return value.String(md), nil
	})
}

func absoluteURLFilter(ec *Context, v value.Value, args []any) (value.Value, error) {
	raw, err := needString("absolute_url", v)
	if err != nil {
		return value.Null(), err
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return value.String(raw), nil
	}

	base, _ := argString(args, 0)
	if base == "" && ec != nil {
		if g, ok := ec.Resolve("base_url"); ok {
			base, _ = g.(string)
		}
	}
	if base == "" {
		return value.Null(), errs.New(errs.KindExtraction, "absolute_url needs a base URL (argument or base_url global)")
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return value.Null(), errs.Wrap(errs.KindExtraction, err, "absolute_url base %q", base)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return value.Null(), errs.Wrap(errs.KindExtraction, err, "absolute_url target %q", raw)
	}
	return value.String(baseURL.ResolveReference(ref).String()), nil
}
