package value

import "testing"

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		name  string
		v     Value
		empty bool
	}{
		{"null", Null(), true},
		{"empty string", String(""), true},
		{"string", String("x"), false},
		{"empty html", HTML(""), true},
		{"html", HTML("<b>x</b>"), false},
		{"empty array", Array(nil), true},
		{"array", Array([]Value{String("a")}), false},
		{"json null", JSON(nil), true},
		{"json empty string", JSON(""), true},
		{"json empty array", JSON([]any{}), true},
		{"json zero", JSON(float64(0)), false},
		{"json false", JSON(false), false},
		{"json object", JSON(map[string]any{}), false},
	}

	for _, tc := range cases {
		if got := tc.v.IsEmpty(); got != tc.empty {
			t.Errorf("%s: IsEmpty = %v, want %v", tc.name, got, tc.empty)
		}
	}
}

func TestIsTruthy(t *testing.T) {
	// Empty always implies not truthy.
	for _, v := range []Value{Null(), String(""), Array(nil), JSON(nil)} {
		if v.IsEmpty() && v.IsTruthy() {
			t.Errorf("%v: empty value reported truthy", v.Kind())
		}
	}

	// JSON false is falsy even though it is not empty.
	if JSON(false).IsTruthy() {
		t.Error("JSON false should be falsy")
	}
	// JSON zero is truthy.
	if !JSON(float64(0)).IsTruthy() {
		t.Error("JSON 0 should be truthy")
	}
	if !String("x").IsTruthy() {
		t.Error("non-empty string should be truthy")
	}
}

func TestAsString(t *testing.T) {
	if s, ok := String("a").AsString(); !ok || s != "a" {
		t.Errorf("String: got %q, %v", s, ok)
	}
	if s, ok := HTML("<i>a</i>").AsString(); !ok || s != "<i>a</i>" {
		t.Errorf("HTML: got %q, %v", s, ok)
	}
	if s, ok := JSON("inner").AsString(); !ok || s != "inner" {
		t.Errorf("JSON string: got %q, %v", s, ok)
	}
	if _, ok := JSON(float64(3)).AsString(); ok {
		t.Error("JSON number should not convert to string")
	}
	if _, ok := Array([]Value{String("a")}).AsString(); ok {
		t.Error("array should not convert to string")
	}
	if _, ok := Null().AsString(); ok {
		t.Error("null should not convert to string")
	}
}

func TestFromJSON(t *testing.T) {
	v := FromJSON([]any{"a", float64(1), []any{"b"}})
	items, ok := v.AsArray()
	if !ok || len(items) != 3 {
		t.Fatalf("expected 3-item array, got %v", v.Kind())
	}
	if items[0].Kind() != KindString {
		t.Errorf("first item should unwrap to string, got %v", items[0].Kind())
	}
	if items[1].Kind() != KindJSON {
		t.Errorf("number should stay a JSON node, got %v", items[1].Kind())
	}
	if items[2].Kind() != KindArray {
		t.Errorf("nested array should lift to array, got %v", items[2].Kind())
	}

	if FromJSON("s").Kind() != KindString {
		t.Error("top-level string should unwrap")
	}
	if FromJSON(nil).Kind() != KindNull {
		t.Error("nil should lift to null")
	}
}

func TestAsJSONRoundTrip(t *testing.T) {
	v := Array([]Value{String("a"), JSON(float64(2))})
	node, ok := v.AsJSON().([]any)
	if !ok || len(node) != 2 {
		t.Fatalf("expected []any of 2, got %T", v.AsJSON())
	}
	if node[0] != "a" || node[1] != float64(2) {
		t.Errorf("unexpected round trip: %v", node)
	}
}

func TestParseBody(t *testing.T) {
	if ParseBody(`{"a":1}`).Kind() != KindJSON {
		t.Error("object body should parse as JSON")
	}
	if ParseBody(`  [1,2]`).Kind() != KindJSON {
		t.Error("array body should parse as JSON")
	}
	if ParseBody("<html><body>x</body></html>").Kind() != KindHTML {
		t.Error("markup body should stay HTML")
	}
	if ParseBody("{not json").Kind() != KindHTML {
		t.Error("malformed JSON should fall back to HTML")
	}
}
