package script

import (
	"testing"
	"time"

	"kumo/internal/errs"
)

func TestExecuteReturnsString(t *testing.T) {
	e := NewJSEngine()
	out, err := e.Execute(`return input.toUpperCase();`, &Context{Input: "hello"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "HELLO" {
		t.Errorf("got %q", out)
	}
}

func TestVariablesVisible(t *testing.T) {
	e := NewJSEngine()
	out, err := e.Execute(`return vars.prefix + input;`, &Context{
		Input:     "x",
		Variables: map[string]any{"prefix": ">>"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != ">>x" {
		t.Errorf("got %q", out)
	}
}

func TestObjectResultSerializedAsJSON(t *testing.T) {
	e := NewJSEngine()
	node, err := e.ExecuteJSON(`return {url: input, ok: true};`, &Context{Input: "/a"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	m, ok := node.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", node)
	}
	if m["url"] != "/a" || m["ok"] != true {
		t.Errorf("got %v", m)
	}
}

func TestBuiltins(t *testing.T) {
	e := NewJSEngine()
	cases := []struct {
		script string
		want   string
	}{
		{`return trim("  a  ");`, "a"},
		{`return base64_decode(base64_encode("kumo"));`, "kumo"},
		{`return md5("abc");`, "900150983cd24fb0d6963f7d28e17f72"},
		{`return sha256("abc");`, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{`return regex_match("id=42;", "id=(\\d+)");`, "42"},
		{`return regex_replace("a1b2", "\\d", "");`, "ab"},
		{`return json_parse('{"k":"v"}').k;`, "v"},
		{`return url_encode("a b");`, "a+b"},
		{`return format_timestamp(0, "2006-01-02");`, "1970-01-01"},
	}
	for _, tc := range cases {
		out, err := e.Execute(tc.script, &Context{})
		if err != nil {
			t.Errorf("%s: %v", tc.script, err)
			continue
		}
		if out != tc.want {
			t.Errorf("%s: got %q, want %q", tc.script, out, tc.want)
		}
	}
}

func TestZhConversionBuiltins(t *testing.T) {
	e := NewJSEngine()

	out, err := e.Execute(`return to_traditional(input);`, &Context{Input: "图书馆的简体转换"})
	if err != nil {
		t.Fatalf("to_traditional: %v", err)
	}
	if out != "圖書館的簡體轉換" {
		t.Errorf("to_traditional: got %q", out)
	}

	out, err = e.Execute(`return to_simplified(input);`, &Context{Input: "圖書館的簡體轉換"})
	if err != nil {
		t.Fatalf("to_simplified: %v", err)
	}
	if out != "图书馆的简体转换" {
		t.Errorf("to_simplified: got %q", out)
	}

	// Characters outside the table pass through unchanged.
	out, err = e.Execute(`return to_traditional(input);`, &Context{Input: "abc 玲珑"})
	if err != nil {
		t.Fatalf("to_traditional passthrough: %v", err)
	}
	if out != "abc 玲瓏" {
		t.Errorf("passthrough: got %q", out)
	}
}

func TestZhConversionRoundTrip(t *testing.T) {
	in := "龙马精神，欢乐时光"
	if got := ToSimplified(ToTraditional(in)); got != in {
		t.Errorf("round trip changed the string: %q", got)
	}
}

func TestLogBuiltin(t *testing.T) {
	e := NewJSEngine()
	// log returns nothing and must not fail the pipeline.
	out, err := e.Execute(`log("step", vars.tag); return "done";`, &Context{
		Variables: map[string]any{"tag": "t1"},
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if out != "done" {
		t.Errorf("got %q", out)
	}
}

func TestSyntaxError(t *testing.T) {
	e := NewJSEngine()
	_, err := e.Execute(`return ][;`, &Context{})
	if !errs.IsKind(err, errs.KindScriptSyntax) {
		t.Fatalf("expected script_syntax, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	e := NewJSEngine()
	e.SetTimeout(50 * time.Millisecond)
	_, err := e.Execute(`while (true) {}`, &Context{})
	if !errs.IsKind(err, errs.KindScriptTimeout) {
		t.Fatalf("expected script_timeout, got %v", err)
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	if _, err := NewEngine("lua"); !errs.IsKind(err, errs.KindInvalidConfigValue) {
		t.Fatalf("expected invalid_config_value, got %v", err)
	}
	if _, err := NewEngine("js"); err != nil {
		t.Fatalf("js should be supported: %v", err)
	}
}
