package rule

// StepKind names the operation a pipeline step performs.
type StepKind string

const (
	StepCSS          StepKind = "css"
	StepJSON         StepKind = "json"
	StepXPath        StepKind = "xpath"
	StepRegex        StepKind = "regex"
	StepFilter       StepKind = "filter"
	StepAttr         StepKind = "attr"
	StepIndex        StepKind = "index"
	StepConst        StepKind = "const"
	StepVar          StepKind = "var"
	StepSetVar       StepKind = "set_var"
	StepScript       StepKind = "script"
	StepUseComponent StepKind = "use_component"
	StepMap          StepKind = "map"
	StepCondition    StepKind = "condition"
)

// Step is one atomic operation in an extraction pipeline. Exactly one
// of the spec fields is set; Kind records which.
type Step struct {
	Kind StepKind

	Selector  *SelectorSpec  // css, json, xpath
	Regex     *RegexSpec     // regex
	Filter    *FilterSpec    // filter
	Attr      string         // attr
	Index     *IndexSpec     // index
	Const     any            // const (literal JSON)
	Var       string         // var
	SetVar    string         // set_var (variable name)
	Script    *ScriptSpec    // script
	Component *ComponentRef  // use_component
	Steps     []Step         // map
	Condition *ConditionSpec // condition
}

// SelectorSpec configures a CSS/JSONPath/XPath selection. A bare string
// in the rule file selects the first match; the object form adds `all`.
type SelectorSpec struct {
	Expr string
	All  bool
}

// RegexSpec configures a regex step. Group defaults to 1 (the first
// capture); Global collects every match instead of the first.
type RegexSpec struct {
	Pattern string
	Group   int
	Global  bool
}

// FilterSpec is either a pipe-syntax string ("trim | lower") or a
// structured call list.
type FilterSpec struct {
	Pipeline string
	Calls    []FilterCall
}

// FilterCall names one registered filter with its arguments.
type FilterCall struct {
	Name string
	Args []any
}

// IndexSpec selects from an array: a signed integer (negative counts
// from the end) or a "start:end[:step]" slice literal.
type IndexSpec struct {
	Single *int
	Slice  string
}

// ScriptSource identifies where a script step's code comes from.
type ScriptSource string

const (
	ScriptSourceInline ScriptSource = "inline"
	ScriptSourceFile   ScriptSource = "file"
	ScriptSourceURL    ScriptSource = "url"
)

// ScriptSpec configures an embedded script step.
type ScriptSpec struct {
	Source    ScriptSource
	Code      string // inline code, file path, or URL depending on Source
	Language  string
	Params    map[string]any
	TimeoutMs int
}

// ComponentRef references a component by name, optionally binding
// arguments that override the component's default inputs.
type ComponentRef struct {
	Name string
	Args map[string]any
}

// ConditionSpec runs When against the input; a truthy result executes
// Then, otherwise Else (input passes through unchanged when Else is
// absent).
type ConditionSpec struct {
	When []Step
	Then []Step
	Else []Step
}

// FieldExtractor wraps a pipeline with fallbacks and a default value.
type FieldExtractor struct {
	Steps    []Step
	Fallback [][]Step
	Default  any
	HasDefault bool
	Nullable bool
}
