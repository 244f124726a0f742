// Package value defines the intermediate value that flows through
// extraction pipelines. A Value is one of five cases: null, plain
// string, HTML-tagged string, arbitrary JSON node, or an ordered array
// of values. Values are immutable once constructed; sharing a Value is
// always safe.
package value

import (
	"encoding/json"
	"strings"
)

// Kind identifies the case a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindHTML
	KindJSON
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindHTML:
		return "html"
	case KindJSON:
		return "json"
	case KindArray:
		return "array"
	default:
		return "null"
	}
}

// Value is the carrier between pipeline steps.
type Value struct {
	kind Kind
	str  string
	node any
	arr  []Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// String wraps a plain string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// HTML wraps a string known to parse as an HTML fragment. The tag lets
// downstream steps pick the right parser without sniffing.
func HTML(s string) Value { return Value{kind: KindHTML, str: s} }

// JSON wraps an arbitrary decoded JSON node (map[string]any, []any,
// float64, bool, string, nil).
func JSON(node any) Value { return Value{kind: KindJSON, node: node} }

// Array wraps an ordered list of values. The slice is not copied;
// callers must not mutate it afterwards.
func Array(items []Value) Value { return Value{kind: KindArray, arr: items} }

// FromJSON lifts a decoded JSON node into a Value: strings become
// String, arrays become Array (recursively lifted), everything else
// stays a JSON node.
func FromJSON(node any) Value {
	switch v := node.(type) {
	case nil:
		return Null()
	case string:
		return String(v)
	case []any:
		items := make([]Value, 0, len(v))
		for _, it := range v {
			items = append(items, FromJSON(it))
		}
		return Array(items)
	default:
		return JSON(node)
	}
}

// Kind returns the case the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the value is null, an empty string/HTML, an
// empty array, or a JSON null/empty string/empty array.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString, KindHTML:
		return v.str == ""
	case KindArray:
		return len(v.arr) == 0
	case KindJSON:
		switch n := v.node.(type) {
		case nil:
			return true
		case string:
			return n == ""
		case []any:
			return len(n) == 0
		}
	}
	return false
}

// IsTruthy is the negation of IsEmpty, except that JSON false is falsy
// and JSON numbers (including zero) are truthy.
func (v Value) IsTruthy() bool {
	if v.kind == KindJSON {
		if b, ok := v.node.(bool); ok {
			return b
		}
	}
	return !v.IsEmpty()
}

// AsString returns the textual content for String, HTML, and
// JSON-string values.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindString, KindHTML:
		return v.str, true
	case KindJSON:
		if s, ok := v.node.(string); ok {
			return s, true
		}
	}
	return "", false
}

// AsArray returns the items of an Array value.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind == KindArray {
		return v.arr, true
	}
	return nil, false
}

// AsJSON lowers the value back into a plain JSON node.
func (v Value) AsJSON() any {
	switch v.kind {
	case KindString, KindHTML:
		return v.str
	case KindJSON:
		return v.node
	case KindArray:
		out := make([]any, 0, len(v.arr))
		for _, it := range v.arr {
			out = append(out, it.AsJSON())
		}
		return out
	default:
		return nil
	}
}

// Text renders the value as a string for display and script input:
// strings and HTML verbatim, JSON nodes and arrays as compact JSON,
// null as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindHTML:
		return v.str
	case KindNull:
		return ""
	default:
		b, err := json.Marshal(v.AsJSON())
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ParseBody sniffs a response body: bodies whose first significant byte
// opens a JSON object or array (and that decode cleanly) become JSON
// values; everything else is treated as HTML.
func ParseBody(body string) Value {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var node any
		if err := json.Unmarshal([]byte(trimmed), &node); err == nil {
			return JSON(node)
		}
	}
	return HTML(body)
}
