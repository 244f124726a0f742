package rule

import (
	"fmt"
	"sort"
	"strings"

	"kumo/internal/errs"
)

// The loader first unmarshals the rule file into a generic map (TOML
// and JSON both support that cleanly), then binds the map into the
// typed schema here. Binding by hand keeps the flexible one-of forms
// (`css = ".title"` vs `css = { expr = ".t", all = true }`) working
// identically for both formats and lets every failure name the exact
// offending field.

func cfgErr(path, format string, args ...any) error {
	return errs.New(errs.KindConfig, "field %q: %s", path, fmt.Sprintf(format, args...))
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func optString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func optBool(m map[string]any, key string) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return false
}

func optInt(m map[string]any, key string) int {
	if n, ok := toInt(m[key]); ok {
		return n
	}
	return 0
}

func decodeRule(m map[string]any) (*Rule, error) {
	r := &Rule{}

	metaRaw, ok := asMap(m["meta"])
	if !ok {
		return nil, cfgErr("meta", "missing or not a table")
	}
	meta, err := decodeMeta(metaRaw)
	if err != nil {
		return nil, err
	}
	r.Meta = *meta

	if v, ok := m["http"]; ok {
		hm, ok := asMap(v)
		if !ok {
			return nil, cfgErr("http", "not a table")
		}
		r.HTTP = decodeHTTPConfig(hm)
	}

	if v, ok := m["scripting"]; ok {
		sm, ok := asMap(v)
		if !ok {
			return nil, cfgErr("scripting", "not a table")
		}
		r.Scripting = &ScriptingConfig{
			DefaultLanguage: optString(sm, "default_language"),
			TimeoutMs:       optInt(sm, "timeout_ms"),
		}
	}

	if v, ok := m["challenge"]; ok {
		cm, ok := asMap(v)
		if !ok {
			return nil, cfgErr("challenge", "not a table")
		}
		cc, err := decodeChallenge(cm, "challenge")
		if err != nil {
			return nil, err
		}
		r.Challenge = cc
	}

	if v, ok := m["components"]; ok {
		cm, ok := asMap(v)
		if !ok {
			return nil, cfgErr("components", "not a table")
		}
		comps := make(map[string]ComponentDefinition, len(cm))
		for name, raw := range cm {
			dm, ok := asMap(raw)
			if !ok {
				return nil, cfgErr("components."+name, "not a table")
			}
			def, err := decodeComponent(dm, "components."+name)
			if err != nil {
				return nil, err
			}
			comps[name] = *def
		}
		r.Components = comps
	}

	searchRaw, ok := asMap(m["search"])
	if !ok {
		return nil, cfgErr("search", "missing or not a table")
	}
	if r.Search, err = decodeSearchFlow(searchRaw, "search"); err != nil {
		return nil, err
	}

	detailRaw, ok := asMap(m["detail"])
	if !ok {
		return nil, cfgErr("detail", "missing or not a table")
	}
	if r.Detail, err = decodeDetailFlow(detailRaw, "detail", r.Meta.MediaType); err != nil {
		return nil, err
	}

	if v, ok := m["discovery"]; ok {
		dm, ok := asMap(v)
		if !ok {
			return nil, cfgErr("discovery", "not a table")
		}
		if r.Discovery, err = decodeDiscoveryFlow(dm, "discovery"); err != nil {
			return nil, err
		}
	}

	if v, ok := m["content"]; ok {
		cm, ok := asMap(v)
		if !ok {
			return nil, cfgErr("content", "not a table")
		}
		if r.Content, err = decodeContentFlow(cm, "content", r.Meta.MediaType); err != nil {
			return nil, err
		}
	}

	if v, ok := m["login"]; ok {
		lm, ok := asMap(v)
		if !ok {
			return nil, cfgErr("login", "not a table")
		}
		if r.Login, err = decodeLoginFlow(lm, "login"); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func decodeMeta(m map[string]any) (*Meta, error) {
	meta := &Meta{
		Name:        optString(m, "name"),
		Author:      optString(m, "author"),
		Version:     optString(m, "version"),
		Description: optString(m, "description"),
	}
	if meta.Name == "" {
		return nil, errs.New(errs.KindMissingConfig, "meta.name is required")
	}

	meta.BaseURL = optString(m, "base_url")
	if meta.BaseURL == "" {
		// domain is the historical alias for base_url
		meta.BaseURL = optString(m, "domain")
	}
	if meta.BaseURL == "" {
		return nil, errs.New(errs.KindMissingConfig, "meta.base_url is required")
	}

	mt := MediaType(optString(m, "media_type"))
	switch mt {
	case MediaBook, MediaVideo, MediaAudio, MediaManga:
		meta.MediaType = mt
	case "":
		return nil, errs.New(errs.KindMissingConfig, "meta.media_type is required")
	default:
		return nil, errs.New(errs.KindInvalidConfigValue, "meta.media_type %q is not one of book, video, audio, manga", mt)
	}
	return meta, nil
}

func decodeHTTPConfig(m map[string]any) *HTTPConfig {
	cfg := &HTTPConfig{}
	if s, ok := toString(m["user_agent"]); ok {
		cfg.UserAgent = &s
	}
	if n, ok := toInt(m["timeout"]); ok {
		cfg.TimeoutSeconds = &n
	}
	if n, ok := toInt(m["connect_timeout"]); ok {
		cfg.ConnectTimeoutSeconds = &n
	}
	if s, ok := toString(m["proxy"]); ok {
		cfg.Proxy = &s
	}
	if hm, ok := asMap(m["headers"]); ok {
		cfg.Headers = make(map[string]string, len(hm))
		for k, v := range hm {
			if s, ok := toString(v); ok {
				cfg.Headers[k] = s
			}
		}
	}
	if b, ok := m["follow_redirects"].(bool); ok {
		cfg.FollowRedirects = &b
	}
	if n, ok := toInt(m["max_redirects"]); ok {
		cfg.MaxRedirects = &n
	}
	if b, ok := m["verify_ssl"].(bool); ok {
		cfg.VerifySSL = &b
	}
	if n, ok := toInt(m["request_delay"]); ok {
		cfg.RequestDelayMs = &n
	}
	if n, ok := toInt(m["max_concurrent"]); ok {
		cfg.MaxConcurrent = &n
	}
	if n, ok := toInt(m["retry_count"]); ok {
		cfg.RetryCount = &n
	}
	if n, ok := toInt(m["retry_delay"]); ok {
		cfg.RetryDelayMs = &n
	}
	return cfg
}

func decodeComponent(m map[string]any, path string) (*ComponentDefinition, error) {
	def := &ComponentDefinition{Description: optString(m, "description")}
	if im, ok := asMap(m["inputs"]); ok {
		def.Inputs = im
	}
	extRaw, ok := m["extractor"]
	if !ok {
		return nil, cfgErr(path+".extractor", "missing")
	}
	fe, err := decodeFieldExtractor(extRaw, path+".extractor")
	if err != nil {
		return nil, err
	}
	def.Extractor = *fe
	return def, nil
}

func decodeFieldExtractor(v any, path string) (*FieldExtractor, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path, "not a table")
	}
	fe := &FieldExtractor{Nullable: optBool(m, "nullable")}

	stepsRaw, ok := m["steps"]
	if !ok {
		return nil, cfgErr(path+".steps", "missing")
	}
	steps, err := decodeSteps(stepsRaw, path+".steps")
	if err != nil {
		return nil, err
	}
	fe.Steps = steps

	if fbRaw, ok := m["fallback"]; ok {
		fbs, ok := asSlice(fbRaw)
		if !ok {
			return nil, cfgErr(path+".fallback", "not a list of pipelines")
		}
		for i, alt := range fbs {
			p := fmt.Sprintf("%s.fallback[%d]", path, i)
			steps, err := decodeSteps(alt, p)
			if err != nil {
				return nil, err
			}
			fe.Fallback = append(fe.Fallback, steps)
		}
	}

	if def, ok := m["default"]; ok {
		fe.Default = def
		fe.HasDefault = true
	}
	return fe, nil
}

func decodeSteps(v any, path string) ([]Step, error) {
	list, ok := asSlice(v)
	if !ok {
		return nil, cfgErr(path, "not a list of steps")
	}
	steps := make([]Step, 0, len(list))
	for i, raw := range list {
		sm, ok := asMap(raw)
		if !ok {
			return nil, cfgErr(fmt.Sprintf("%s[%d]", path, i), "not a table")
		}
		step, err := decodeStep(sm, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, nil
}

func decodeStep(m map[string]any, path string) (*Step, error) {
	// The step kind is the single recognized key of the table; options
	// like regex group/global ride along inside the same table in some
	// hand-written rules, so only the kind keys participate here.
	var kinds []string
	for k := range m {
		switch StepKind(k) {
		case StepCSS, StepJSON, StepXPath, StepRegex, StepFilter, StepAttr,
			StepIndex, StepConst, StepVar, StepSetVar, StepScript,
			StepUseComponent, StepMap, StepCondition:
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, cfgErr(path, "no recognized step key in {%s}", strings.Join(keys, ", "))
	}
	if len(kinds) > 1 {
		sort.Strings(kinds)
		return nil, cfgErr(path, "ambiguous step: %s", strings.Join(kinds, ", "))
	}

	kind := StepKind(kinds[0])
	raw := m[kinds[0]]
	step := &Step{Kind: kind}
	var err error

	switch kind {
	case StepCSS, StepJSON, StepXPath:
		step.Selector, err = decodeSelectorSpec(raw, path+"."+string(kind))
	case StepRegex:
		step.Regex, err = decodeRegexSpec(raw, path+".regex")
	case StepFilter:
		step.Filter, err = decodeFilterSpec(raw, path+".filter")
	case StepAttr:
		name, ok := toString(raw)
		if !ok || name == "" {
			err = cfgErr(path+".attr", "attribute name must be a non-empty string")
		}
		step.Attr = name
	case StepIndex:
		step.Index, err = decodeIndexSpec(raw, path+".index")
	case StepConst:
		step.Const = raw
	case StepVar:
		name, ok := toString(raw)
		if !ok || name == "" {
			err = cfgErr(path+".var", "variable name must be a non-empty string")
		}
		step.Var = name
	case StepSetVar:
		step.SetVar, err = decodeSetVar(raw, path+".set_var")
	case StepScript:
		step.Script, err = decodeScriptSpec(raw, path+".script")
	case StepUseComponent:
		step.Component, err = decodeComponentRef(raw, path+".use_component")
	case StepMap:
		step.Steps, err = decodeSteps(raw, path+".map")
	case StepCondition:
		step.Condition, err = decodeConditionSpec(raw, path+".condition")
	}
	if err != nil {
		return nil, err
	}
	return step, nil
}

func decodeSelectorSpec(v any, path string) (*SelectorSpec, error) {
	if expr, ok := toString(v); ok {
		if expr == "" {
			return nil, cfgErr(path, "selector expression is empty")
		}
		return &SelectorSpec{Expr: expr}, nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path, "selector must be a string or {expr, all}")
	}
	expr := optString(m, "expr")
	if expr == "" {
		return nil, cfgErr(path+".expr", "selector expression is empty")
	}
	return &SelectorSpec{Expr: expr, All: optBool(m, "all")}, nil
}

func decodeRegexSpec(v any, path string) (*RegexSpec, error) {
	if pat, ok := toString(v); ok {
		if pat == "" {
			return nil, cfgErr(path, "pattern is empty")
		}
		return &RegexSpec{Pattern: pat, Group: 1}, nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path, "regex must be a string or {pattern, group, global}")
	}
	spec := &RegexSpec{Pattern: optString(m, "pattern"), Group: 1, Global: optBool(m, "global")}
	if spec.Pattern == "" {
		return nil, cfgErr(path+".pattern", "pattern is empty")
	}
	if g, ok := toInt(m["group"]); ok {
		spec.Group = g
	}
	return spec, nil
}

func decodeFilterSpec(v any, path string) (*FilterSpec, error) {
	if pipeline, ok := toString(v); ok {
		if strings.TrimSpace(pipeline) == "" {
			return nil, cfgErr(path, "filter pipeline is empty")
		}
		return &FilterSpec{Pipeline: pipeline}, nil
	}
	list, ok := asSlice(v)
	if !ok {
		return nil, cfgErr(path, "filter must be a pipe string or a list of {name, args}")
	}
	spec := &FilterSpec{}
	for i, raw := range list {
		fm, ok := asMap(raw)
		if !ok {
			return nil, cfgErr(fmt.Sprintf("%s[%d]", path, i), "not a table")
		}
		name := optString(fm, "name")
		if name == "" {
			return nil, cfgErr(fmt.Sprintf("%s[%d].name", path, i), "filter name is empty")
		}
		call := FilterCall{Name: name}
		if args, ok := asSlice(fm["args"]); ok {
			call.Args = args
		}
		spec.Calls = append(spec.Calls, call)
	}
	return spec, nil
}

func decodeIndexSpec(v any, path string) (*IndexSpec, error) {
	if n, ok := toInt(v); ok {
		return &IndexSpec{Single: &n}, nil
	}
	if s, ok := toString(v); ok {
		if !strings.Contains(s, ":") {
			return nil, cfgErr(path, "slice literal %q must look like start:end[:step]", s)
		}
		return &IndexSpec{Slice: s}, nil
	}
	return nil, cfgErr(path, "index must be an integer or a slice literal")
}

func decodeSetVar(v any, path string) (string, error) {
	if name, ok := toString(v); ok && name != "" {
		return name, nil
	}
	if m, ok := asMap(v); ok {
		if name := optString(m, "name"); name != "" {
			return name, nil
		}
	}
	return "", cfgErr(path, "set_var needs a variable name")
}

func decodeScriptSpec(v any, path string) (*ScriptSpec, error) {
	if code, ok := toString(v); ok {
		if strings.TrimSpace(code) == "" {
			return nil, cfgErr(path, "script code is empty")
		}
		return &ScriptSpec{Source: ScriptSourceInline, Code: code, Language: "js"}, nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path, "script must be a code string or a table")
	}
	spec := &ScriptSpec{Language: optString(m, "language"), TimeoutMs: optInt(m, "timeout_ms")}
	if spec.Language == "" {
		spec.Language = "js"
	}
	switch {
	case optString(m, "code") != "":
		spec.Source, spec.Code = ScriptSourceInline, optString(m, "code")
	case optString(m, "file") != "":
		spec.Source, spec.Code = ScriptSourceFile, optString(m, "file")
	case optString(m, "url") != "":
		spec.Source, spec.Code = ScriptSourceURL, optString(m, "url")
	default:
		return nil, cfgErr(path, "script needs one of code, file, url")
	}
	if pm, ok := asMap(m["params"]); ok {
		spec.Params = pm
	}
	return spec, nil
}

func decodeComponentRef(v any, path string) (*ComponentRef, error) {
	if name, ok := toString(v); ok {
		if name == "" {
			return nil, cfgErr(path, "component name is empty")
		}
		return &ComponentRef{Name: name}, nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path, "use_component must be a name or {name, args}")
	}
	ref := &ComponentRef{Name: optString(m, "name")}
	if ref.Name == "" {
		return nil, cfgErr(path+".name", "component name is empty")
	}
	if am, ok := asMap(m["args"]); ok {
		ref.Args = am
	}
	return ref, nil
}

func decodeConditionSpec(v any, path string) (*ConditionSpec, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path, "condition must be a table with when/then")
	}
	spec := &ConditionSpec{}
	var err error
	whenRaw, ok := m["when"]
	if !ok {
		return nil, cfgErr(path+".when", "missing")
	}
	if spec.When, err = decodeSteps(whenRaw, path+".when"); err != nil {
		return nil, err
	}
	thenRaw, ok := m["then"]
	if !ok {
		return nil, cfgErr(path+".then", "missing")
	}
	if spec.Then, err = decodeSteps(thenRaw, path+".then"); err != nil {
		return nil, err
	}
	elseRaw, ok := m["else"]
	if !ok {
		elseRaw, ok = m["otherwise"]
	}
	if ok {
		if spec.Else, err = decodeSteps(elseRaw, path+".else"); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

func decodeOptField(m map[string]any, key, path string) (*FieldExtractor, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return decodeFieldExtractor(v, path+"."+key)
}

func decodeReqField(m map[string]any, key, path string) (FieldExtractor, error) {
	v, ok := m[key]
	if !ok {
		return FieldExtractor{}, cfgErr(path+"."+key, "missing required field")
	}
	fe, err := decodeFieldExtractor(v, path+"."+key)
	if err != nil {
		return FieldExtractor{}, err
	}
	return *fe, nil
}

func decodeItemFields(m map[string]any, path string) (*ItemFields, error) {
	fields := &ItemFields{}
	var err error
	if fields.Title, err = decodeReqField(m, "title", path); err != nil {
		return nil, err
	}
	if fields.URL, err = decodeReqField(m, "url", path); err != nil {
		return nil, err
	}
	opts := []struct {
		key string
		dst **FieldExtractor
	}{
		{"cover", &fields.Cover},
		{"summary", &fields.Summary},
		{"author", &fields.Author},
		{"latest", &fields.Latest},
		{"score", &fields.Score},
		{"status", &fields.Status},
		{"category", &fields.Category},
		{"extra", &fields.Extra},
	}
	for _, o := range opts {
		if *o.dst, err = decodeOptField(m, o.key, path); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func decodeListRule(v any, path string) (*ListRule, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path, "not a table")
	}
	lr := &ListRule{}
	var err error
	if lr.List, err = decodeReqField(m, "list", path); err != nil {
		return nil, err
	}
	if lr.Title, err = decodeReqField(m, "title", path); err != nil {
		return nil, err
	}
	if lr.URL, err = decodeReqField(m, "url", path); err != nil {
		return nil, err
	}
	return lr, nil
}

func decodeRequestConfig(m map[string]any, path string) (*RequestConfig, error) {
	v, ok := m["request"]
	if !ok {
		return nil, nil
	}
	rm, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path+".request", "not a table")
	}
	req := &RequestConfig{Method: strings.ToUpper(optString(rm, "method"))}
	if hm, ok := asMap(rm["headers"]); ok {
		req.Headers = make(map[string]Template, len(hm))
		for k, hv := range hm {
			if s, ok := toString(hv); ok {
				req.Headers[k] = Template(s)
			}
		}
	}
	req.Body = Template(optString(rm, "body"))
	if hm, ok := asMap(rm["http"]); ok {
		req.HTTP = decodeHTTPConfig(hm)
	}
	return req, nil
}

func decodePagination(m map[string]any, path string) (*Pagination, error) {
	v, ok := m["pagination"]
	if !ok {
		return nil, nil
	}
	pm, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path+".pagination", "not a table")
	}
	p := &Pagination{Type: PaginationType(optString(pm, "type"))}
	path += ".pagination"
	var err error
	switch p.Type {
	case PaginationPageNumber:
		p.StartPage = optInt(pm, "start_page")
		if p.StartPage == 0 {
			p.StartPage = 1
		}
		p.PageParam = optString(pm, "page_param")
		if p.PageParam == "" {
			p.PageParam = "page"
		}
		p.MaxPages = optInt(pm, "max_pages")
	case PaginationOffset:
		p.Start = optInt(pm, "start")
		p.Step = optInt(pm, "step")
		if p.Step <= 0 {
			return nil, cfgErr(path+".step", "offset pagination needs a positive step")
		}
		p.Param = optString(pm, "param")
		if p.Param == "" {
			return nil, cfgErr(path+".param", "offset pagination needs a param name")
		}
		p.LimitParam = optString(pm, "limit_param")
		p.MaxOffset = optInt(pm, "max_offset")
		if p.TotalCount, err = decodeOptField(pm, "total_count", path); err != nil {
			return nil, err
		}
	case PaginationCursor:
		p.CursorParam = optString(pm, "param")
		if p.CursorParam == "" {
			p.CursorParam = "cursor"
		}
		ncRaw, ok := pm["next_cursor"]
		if !ok {
			return nil, cfgErr(path+".next_cursor", "cursor pagination needs a next_cursor extractor")
		}
		nc, err := decodeFieldExtractor(ncRaw, path+".next_cursor")
		if err != nil {
			return nil, err
		}
		p.NextCursor = nc
		p.MaxRequests = optInt(pm, "max_requests")
	case "":
		return nil, cfgErr(path+".type", "missing pagination type")
	default:
		return nil, cfgErr(path+".type", "unknown pagination type %q", p.Type)
	}
	if p.HasNext, err = decodeOptField(pm, "has_next", path); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeSearchFlow(m map[string]any, path string) (*SearchFlow, error) {
	flow := &SearchFlow{
		Description: optString(m, "description"),
		URL:         Template(optString(m, "url")),
	}
	if flow.URL == "" {
		return nil, cfgErr(path+".url", "missing URL template")
	}
	var err error
	if flow.Request, err = decodeRequestConfig(m, path); err != nil {
		return nil, err
	}
	if flow.Pagination, err = decodePagination(m, path); err != nil {
		return nil, err
	}
	if flow.List, err = decodeReqField(m, "list", path); err != nil {
		return nil, err
	}
	fieldsRaw, ok := asMap(m["fields"])
	if !ok {
		return nil, cfgErr(path+".fields", "missing or not a table")
	}
	fields, err := decodeItemFields(fieldsRaw, path+".fields")
	if err != nil {
		return nil, err
	}
	flow.Fields = *fields
	return flow, nil
}

func decodeDiscoveryFlow(m map[string]any, path string) (*DiscoveryFlow, error) {
	flow := &DiscoveryFlow{
		Description: optString(m, "description"),
		URL:         Template(optString(m, "url")),
	}
	if flow.URL == "" {
		return nil, cfgErr(path+".url", "missing URL template")
	}
	var err error
	if flow.Request, err = decodeRequestConfig(m, path); err != nil {
		return nil, err
	}
	if flow.Pagination, err = decodePagination(m, path); err != nil {
		return nil, err
	}
	if v, ok := m["categories"]; ok {
		if flow.Categories, err = decodeCategorySource(v, path+".categories"); err != nil {
			return nil, err
		}
	}
	if v, ok := m["filters"]; ok {
		if flow.Filters, err = decodeFilterGroups(v, path+".filters"); err != nil {
			return nil, err
		}
	}
	if flow.List, err = decodeReqField(m, "list", path); err != nil {
		return nil, err
	}
	fieldsRaw, ok := asMap(m["fields"])
	if !ok {
		return nil, cfgErr(path+".fields", "missing or not a table")
	}
	fields, err := decodeItemFields(fieldsRaw, path+".fields")
	if err != nil {
		return nil, err
	}
	flow.Fields = *fields
	return flow, nil
}

func decodeCategorySource(v any, path string) (*CategorySource, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, cfgErr(path, "not a table")
	}
	src := &CategorySource{}
	switch optString(m, "type") {
	case "static":
		items, ok := asSlice(m["items"])
		if !ok {
			return nil, cfgErr(path+".items", "static categories need an items list")
		}
		for i, raw := range items {
			im, ok := asMap(raw)
			if !ok {
				return nil, cfgErr(fmt.Sprintf("%s.items[%d]", path, i), "not a table")
			}
			item := CategoryItem{
				Key:   optString(im, "key"),
				Label: optString(im, "label"),
				Value: optString(im, "value"),
			}
			if item.Key == "" {
				return nil, cfgErr(fmt.Sprintf("%s.items[%d].key", path, i), "missing")
			}
			if item.Value == "" {
				item.Value = item.Key
			}
			src.Static = append(src.Static, item)
		}
	case "dynamic":
		src.URL = Template(optString(m, "url"))
		src.Selector = optString(m, "selector")
		src.KeyAttr = optString(m, "key_attr")
		src.LabelAttr = optString(m, "label_attr")
		if src.URL == "" || src.Selector == "" {
			return nil, cfgErr(path, "dynamic categories need url and selector")
		}
	default:
		return nil, cfgErr(path+".type", "categories type must be static or dynamic")
	}
	return src, nil
}

func decodeFilterGroups(v any, path string) ([]FilterGroup, error) {
	list, ok := asSlice(v)
	if !ok {
		return nil, cfgErr(path, "not a list of filter groups")
	}
	groups := make([]FilterGroup, 0, len(list))
	for i, raw := range list {
		gm, ok := asMap(raw)
		if !ok {
			return nil, cfgErr(fmt.Sprintf("%s[%d]", path, i), "not a table")
		}
		g := FilterGroup{Name: optString(gm, "name"), Key: optString(gm, "key")}
		if g.Key == "" {
			return nil, cfgErr(fmt.Sprintf("%s[%d].key", path, i), "missing")
		}
		opts, ok := asSlice(gm["options"])
		if !ok {
			return nil, cfgErr(fmt.Sprintf("%s[%d].options", path, i), "missing")
		}
		for j, optRaw := range opts {
			om, ok := asMap(optRaw)
			if !ok {
				return nil, cfgErr(fmt.Sprintf("%s[%d].options[%d]", path, i, j), "not a table")
			}
			g.Options = append(g.Options, FilterOption{
				Name:  optString(om, "name"),
				Value: optString(om, "value"),
			})
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func decodeDetailFlow(m map[string]any, path string, mt MediaType) (*DetailFlow, error) {
	flow := &DetailFlow{
		Description: optString(m, "description"),
		URL:         Template(optString(m, "url")),
	}
	if flow.URL == "" {
		flow.URL = "{{ detail_url }}"
	}
	var err error
	if flow.Request, err = decodeRequestConfig(m, path); err != nil {
		return nil, err
	}
	fm, ok := asMap(m["fields"])
	if !ok {
		return nil, cfgErr(path+".fields", "missing or not a table")
	}
	path += ".fields"
	switch mt {
	case MediaBook:
		f := &BookDetailFields{}
		if f.Title, err = decodeReqField(fm, "title", path); err != nil {
			return nil, err
		}
		if f.Author, err = decodeReqField(fm, "author", path); err != nil {
			return nil, err
		}
		for _, o := range []struct {
			key string
			dst **FieldExtractor
		}{
			{"cover", &f.Cover}, {"intro", &f.Intro}, {"category", &f.Category},
			{"tags", &f.Tags}, {"status", &f.Status}, {"last_chapter", &f.LastChapter},
			{"update_time", &f.UpdateTime}, {"word_count", &f.WordCount}, {"toc_url", &f.TocURL},
		} {
			if *o.dst, err = decodeOptField(fm, o.key, path); err != nil {
				return nil, err
			}
		}
		if v, ok := fm["chapters"]; ok {
			if f.Chapters, err = decodeListRule(v, path+".chapters"); err != nil {
				return nil, err
			}
		}
		flow.Fields.Book = f
	case MediaVideo:
		f := &VideoDetailFields{}
		if f.Title, err = decodeReqField(fm, "title", path); err != nil {
			return nil, err
		}
		for _, o := range []struct {
			key string
			dst **FieldExtractor
		}{
			{"cover", &f.Cover}, {"intro", &f.Intro}, {"director", &f.Director},
			{"actors", &f.Actors}, {"category", &f.Category}, {"region", &f.Region},
			{"year", &f.Year}, {"score", &f.Score},
		} {
			if *o.dst, err = decodeOptField(fm, o.key, path); err != nil {
				return nil, err
			}
		}
		if v, ok := fm["play_lines"]; ok {
			plm, ok := asMap(v)
			if !ok {
				return nil, cfgErr(path+".play_lines", "not a table")
			}
			pl := &PlayLineRule{}
			if pl.List, err = decodeReqField(plm, "list", path+".play_lines"); err != nil {
				return nil, err
			}
			if pl.Name, err = decodeReqField(plm, "name", path+".play_lines"); err != nil {
				return nil, err
			}
			epRaw, ok := plm["episodes"]
			if !ok {
				return nil, cfgErr(path+".play_lines.episodes", "missing")
			}
			ep, err := decodeListRule(epRaw, path+".play_lines.episodes")
			if err != nil {
				return nil, err
			}
			pl.Episodes = *ep
			f.PlayLines = pl
		}
		flow.Fields.Video = f
	case MediaAudio:
		f := &AudioDetailFields{}
		if f.Title, err = decodeReqField(fm, "title", path); err != nil {
			return nil, err
		}
		for _, o := range []struct {
			key string
			dst **FieldExtractor
		}{
			{"cover", &f.Cover}, {"intro", &f.Intro}, {"author", &f.Author}, {"category", &f.Category},
		} {
			if *o.dst, err = decodeOptField(fm, o.key, path); err != nil {
				return nil, err
			}
		}
		if v, ok := fm["episodes"]; ok {
			if f.Episodes, err = decodeListRule(v, path+".episodes"); err != nil {
				return nil, err
			}
		}
		flow.Fields.Audio = f
	case MediaManga:
		f := &MangaDetailFields{}
		if f.Title, err = decodeReqField(fm, "title", path); err != nil {
			return nil, err
		}
		for _, o := range []struct {
			key string
			dst **FieldExtractor
		}{
			{"cover", &f.Cover}, {"intro", &f.Intro}, {"author", &f.Author},
			{"status", &f.Status}, {"category", &f.Category},
		} {
			if *o.dst, err = decodeOptField(fm, o.key, path); err != nil {
				return nil, err
			}
		}
		if v, ok := fm["chapters"]; ok {
			if f.Chapters, err = decodeListRule(v, path+".chapters"); err != nil {
				return nil, err
			}
		}
		flow.Fields.Manga = f
	}
	return flow, nil
}

func decodeContentFlow(m map[string]any, path string, mt MediaType) (*ContentFlow, error) {
	flow := &ContentFlow{
		Description: optString(m, "description"),
		URL:         Template(optString(m, "url")),
	}
	if flow.URL == "" {
		flow.URL = "{{ content_url }}"
	}
	var err error
	if flow.Request, err = decodeRequestConfig(m, path); err != nil {
		return nil, err
	}
	fm, ok := asMap(m["fields"])
	if !ok {
		return nil, cfgErr(path+".fields", "missing or not a table")
	}
	path += ".fields"
	switch mt {
	case MediaBook:
		f := &BookContentFields{}
		if f.Content, err = decodeReqField(fm, "content", path); err != nil {
			return nil, err
		}
		for _, o := range []struct {
			key string
			dst **FieldExtractor
		}{
			{"title", &f.Title}, {"prev_url", &f.PrevURL}, {"next_url", &f.NextURL},
		} {
			if *o.dst, err = decodeOptField(fm, o.key, path); err != nil {
				return nil, err
			}
		}
		flow.Fields.Book = f
	case MediaVideo:
		f := &VideoContentFields{}
		if f.PlayURL, err = decodeReqField(fm, "play_url", path); err != nil {
			return nil, err
		}
		if f.Headers, err = decodeOptField(fm, "headers", path); err != nil {
			return nil, err
		}
		flow.Fields.Video = f
	case MediaAudio:
		f := &AudioContentFields{}
		if f.AudioURL, err = decodeReqField(fm, "audio_url", path); err != nil {
			return nil, err
		}
		flow.Fields.Audio = f
	case MediaManga:
		f := &MangaContentFields{}
		if f.Images, err = decodeReqField(fm, "images", path); err != nil {
			return nil, err
		}
		flow.Fields.Manga = f
	}
	return flow, nil
}

func decodeLoginFlow(m map[string]any, path string) (*LoginFlow, error) {
	flow := &LoginFlow{Type: LoginType(optString(m, "type"))}
	switch flow.Type {
	case LoginScript:
		flow.InitScript = optString(m, "init_script")
		flow.LoginScript = optString(m, "login_script")
		if flow.LoginScript == "" {
			return nil, cfgErr(path+".login_script", "script login needs a login_script")
		}
		if fields, ok := asSlice(m["fields"]); ok {
			for i, raw := range fields {
				fm, ok := asMap(raw)
				if !ok {
					return nil, cfgErr(fmt.Sprintf("%s.fields[%d]", path, i), "not a table")
				}
				flow.Fields = append(flow.Fields, LoginField{
					Key:      optString(fm, "key"),
					Label:    optString(fm, "label"),
					Secret:   optBool(fm, "secret"),
					Required: optBool(fm, "required"),
				})
			}
		}
	case LoginWebView:
		flow.StartURL = Template(optString(m, "start_url"))
		if flow.StartURL == "" {
			return nil, cfgErr(path+".start_url", "webview login needs a start_url")
		}
		flow.CheckScript = optString(m, "check_script")
		flow.CheckIntervalMs = optInt(m, "check_interval_ms")
		flow.FinishScript = optString(m, "finish_script")
		flow.TimeoutSeconds = optInt(m, "timeout_seconds")
	case LoginCredential:
		fields, ok := asSlice(m["fields"])
		if !ok {
			return nil, cfgErr(path+".fields", "credential login needs a fields list")
		}
		for i, raw := range fields {
			fm, ok := asMap(raw)
			if !ok {
				return nil, cfgErr(fmt.Sprintf("%s.fields[%d]", path, i), "not a table")
			}
			flow.Fields = append(flow.Fields, LoginField{
				Key:      optString(fm, "key"),
				Label:    optString(fm, "label"),
				Secret:   optBool(fm, "secret"),
				Required: optBool(fm, "required"),
			})
		}
		sm, ok := asMap(m["storage"])
		if !ok {
			return nil, cfgErr(path+".storage", "credential login needs a storage table")
		}
		flow.Storage = &CredentialStorage{Type: optString(sm, "type"), Name: optString(sm, "name")}
		if flow.Storage.Type != "cookie" && flow.Storage.Type != "header" {
			return nil, cfgErr(path+".storage.type", "must be cookie or header")
		}
	case "":
		return nil, cfgErr(path+".type", "missing login type")
	default:
		return nil, cfgErr(path+".type", "unknown login type %q", flow.Type)
	}
	return flow, nil
}

func decodeChallenge(m map[string]any, path string) (*ChallengeConfig, error) {
	cc := &ChallengeConfig{
		Enabled:              true,
		CacheDurationSeconds: optInt(m, "cache_duration"),
		MaxAttempts:          optInt(m, "max_attempts"),
	}
	if b, ok := m["enabled"].(bool); ok {
		cc.Enabled = b
	}
	if cc.MaxAttempts <= 0 {
		cc.MaxAttempts = 3
	}
	if list, ok := asSlice(m["detectors"]); ok {
		for i, raw := range list {
			dm, ok := asMap(raw)
			if !ok {
				return nil, cfgErr(fmt.Sprintf("%s.detectors[%d]", path, i), "not a table")
			}
			dc, err := decodeDetector(dm, fmt.Sprintf("%s.detectors[%d]", path, i))
			if err != nil {
				return nil, err
			}
			cc.Detectors = append(cc.Detectors, *dc)
		}
	}
	if hm, ok := asMap(m["handler"]); ok {
		hc, err := decodeHandler(hm, path+".handler")
		if err != nil {
			return nil, err
		}
		cc.Handler = hc
	}
	return cc, nil
}

func decodeDetector(m map[string]any, path string) (*DetectorConfig, error) {
	dc := &DetectorConfig{Type: DetectorType(optString(m, "type"))}
	switch dc.Type {
	case DetectorCloudflare, DetectorHcaptcha:
	case DetectorRecaptcha:
		dc.Version = optString(m, "version")
		if dc.Version == "" {
			dc.Version = "v2"
		}
	case DetectorCustom:
		if codes, ok := asSlice(m["status_codes"]); ok {
			for _, c := range codes {
				if n, ok := toInt(c); ok {
					dc.StatusCodes = append(dc.StatusCodes, n)
				}
			}
		}
		if hm, ok := asMap(m["header_patterns"]); ok {
			dc.HeaderPatterns = make(map[string]string, len(hm))
			for k, v := range hm {
				if s, ok := toString(v); ok {
					dc.HeaderPatterns[k] = s
				}
			}
		}
		dc.URLPattern = optString(m, "url_pattern")
		if list, ok := asSlice(m["body_contains"]); ok {
			for _, v := range list {
				if s, ok := toString(v); ok {
					dc.BodyContains = append(dc.BodyContains, s)
				}
			}
		}
		if list, ok := asSlice(m["body_patterns"]); ok {
			for _, v := range list {
				if s, ok := toString(v); ok {
					dc.BodyPatterns = append(dc.BodyPatterns, s)
				}
			}
		}
	case "":
		return nil, cfgErr(path+".type", "missing detector type")
	default:
		return nil, cfgErr(path+".type", "unknown detector type %q", dc.Type)
	}
	return dc, nil
}

func decodeHandler(m map[string]any, path string) (*HandlerConfig, error) {
	hc := &HandlerConfig{Type: HandlerType(optString(m, "type"))}
	switch hc.Type {
	case HandlerWebView:
		hc.Tip = optString(m, "tip")
		hc.TimeoutSeconds = optInt(m, "timeout_seconds")
		hc.UserAgent = optString(m, "user_agent")
		hc.SuccessCheck = optString(m, "success_check")
		hc.CheckIntervalMs = optInt(m, "check_interval_ms")
		hc.FinishScript = optString(m, "finish_script")
		if list, ok := asSlice(m["extract_cookies"]); ok {
			for _, v := range list {
				if s, ok := toString(v); ok {
					hc.ExtractCookies = append(hc.ExtractCookies, s)
				}
			}
		}
	case HandlerRetry:
		hc.MaxAttempts = optInt(m, "max_attempts")
		hc.InitialDelayMs = optInt(m, "initial_delay_ms")
		if f, ok := toFloat(m["backoff_factor"]); ok {
			hc.BackoffFactor = f
		}
	case HandlerCookie:
		hc.Cookie = optString(m, "cookie")
	case HandlerExternal:
		hc.Provider = optString(m, "provider")
		hc.APIKey = optString(m, "api_key")
		hc.Endpoint = optString(m, "endpoint")
		hc.TimeoutSeconds = optInt(m, "timeout_seconds")
		hc.PollIntervalMs = optInt(m, "poll_interval_ms")
		if hc.Provider == "" {
			return nil, cfgErr(path+".provider", "external handler needs a provider")
		}
	case HandlerScript:
		// Reserved; rejected at run time with a clear unsupported error.
	case "":
		return nil, cfgErr(path+".type", "missing handler type")
	default:
		return nil, cfgErr(path+".type", "unknown handler type %q", hc.Type)
	}
	return hc, nil
}
