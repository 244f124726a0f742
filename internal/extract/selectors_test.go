package extract

import (
	"strings"
	"testing"

	"kumo/internal/errs"
	"kumo/internal/rule"
	"kumo/internal/value"
)

const listHTML = `<div>
  <div class="item"><h3 class="title">T0</h3><a href="/d/0">go</a></div>
  <div class="item"><h3 class="title">T1</h3><a href="/d/1">go</a></div>
  <div class="item"><h3 class="title">T2</h3><a href="/d/2">go</a></div>
</div>`

func TestCSSAll(t *testing.T) {
	out, err := execCSS(&rule.SelectorSpec{Expr: ".item", All: true}, value.HTML(listHTML))
	if err != nil {
		t.Fatalf("css: %v", err)
	}
	items, ok := out.AsArray()
	if !ok || len(items) != 3 {
		t.Fatalf("expected 3 items, got %v (%d)", out.Kind(), len(items))
	}
	if items[0].Kind() != value.KindHTML {
		t.Errorf("matches should be HTML-tagged, got %v", items[0].Kind())
	}
}

func TestCSSFirstUnwraps(t *testing.T) {
	out, err := execCSS(&rule.SelectorSpec{Expr: ".title"}, value.HTML(listHTML))
	if err != nil {
		t.Fatalf("css: %v", err)
	}
	if out.Kind() != value.KindHTML {
		t.Fatalf("single match should unwrap, got %v", out.Kind())
	}
	s, _ := out.AsString()
	if s != `<h3 class="title">T0</h3>` {
		t.Errorf("got %q", s)
	}
}

func TestCSSNoMatchIsNull(t *testing.T) {
	out, err := execCSS(&rule.SelectorSpec{Expr: ".missing"}, value.HTML(listHTML))
	if err != nil {
		t.Fatalf("css: %v", err)
	}
	if out.Kind() != value.KindNull {
		t.Errorf("expected null, got %v", out.Kind())
	}
}

func TestCSSBroadcastOverArray(t *testing.T) {
	items, _ := execCSS(&rule.SelectorSpec{Expr: ".item", All: true}, value.HTML(listHTML))
	out, err := execCSS(&rule.SelectorSpec{Expr: "a"}, items)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	links, ok := out.AsArray()
	if !ok || len(links) != 3 {
		t.Fatalf("expected 3 links, got %v", out.Kind())
	}
}

func TestCSSRejectsJSONInput(t *testing.T) {
	_, err := execCSS(&rule.SelectorSpec{Expr: ".x"}, value.JSON(map[string]any{}))
	if !errs.IsKind(err, errs.KindExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestCSSInvalidSelector(t *testing.T) {
	_, err := execCSS(&rule.SelectorSpec{Expr: "<<bad"}, value.HTML(listHTML))
	if !errs.IsKind(err, errs.KindExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestAttrText(t *testing.T) {
	out, err := execAttr("text", value.HTML(`<h3 class="title">  T0  </h3>`))
	if err != nil {
		t.Fatalf("attr: %v", err)
	}
	s, _ := out.AsString()
	if s != "T0" {
		t.Errorf("got %q", s)
	}
}

func TestAttrNamed(t *testing.T) {
	out, err := execAttr("href", value.HTML(`<a href="/d/1">go</a>`))
	if err != nil {
		t.Fatalf("attr: %v", err)
	}
	s, _ := out.AsString()
	if s != "/d/1" {
		t.Errorf("got %q", s)
	}

	out, err = execAttr("data-id", value.HTML(`<a href="/d/1">go</a>`))
	if err != nil {
		t.Fatalf("attr: %v", err)
	}
	if out.Kind() != value.KindNull {
		t.Errorf("absent attribute should be null, got %v", out.Kind())
	}
}

func TestAttrOuterAndInnerHTML(t *testing.T) {
	in := value.HTML(`<div class="b"><i>x</i></div>`)
	outer, err := execAttr("outer_html", in)
	if err != nil {
		t.Fatalf("outer: %v", err)
	}
	if outer.Kind() != value.KindHTML {
		t.Errorf("outer_html should stay HTML, got %v", outer.Kind())
	}
	inner, err := execAttr("inner_html", in)
	if err != nil {
		t.Fatalf("inner: %v", err)
	}
	s, _ := inner.AsString()
	if s != "<i>x</i>" {
		t.Errorf("inner = %q", s)
	}
}

func TestAttrBroadcast(t *testing.T) {
	items, _ := execCSS(&rule.SelectorSpec{Expr: "a", All: true}, value.HTML(listHTML))
	out, err := execAttr("href", items)
	if err != nil {
		t.Fatalf("attr: %v", err)
	}
	hrefs, ok := out.AsArray()
	if !ok || len(hrefs) != 3 {
		t.Fatalf("expected 3 hrefs, got %v", out.Kind())
	}
	s, _ := hrefs[2].AsString()
	if s != "/d/2" {
		t.Errorf("got %q", s)
	}
}

const bookJSON = `{"book":{"title":"玲珑","author":"佚名","chapters":[{"t":"一","u":"/c/1"},{"t":"二","u":"/c/2"}]}}`

func TestJSONPathSingle(t *testing.T) {
	out, err := execJSONPath(&rule.SelectorSpec{Expr: "$.book.title"}, value.String(bookJSON))
	if err != nil {
		t.Fatalf("jsonpath: %v", err)
	}
	s, _ := out.AsString()
	if s != "玲珑" {
		t.Errorf("got %q", s)
	}
}

func TestJSONPathWildcard(t *testing.T) {
	out, err := execJSONPath(&rule.SelectorSpec{Expr: "$.book.chapters[*]", All: true}, value.String(bookJSON))
	if err != nil {
		t.Fatalf("jsonpath: %v", err)
	}
	chapters, ok := out.AsArray()
	if !ok || len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %v", out.Kind())
	}
	title, err := execJSONPath(&rule.SelectorSpec{Expr: "$.t"}, chapters[0])
	if err != nil {
		t.Fatalf("inner path: %v", err)
	}
	s, _ := title.AsString()
	if s != "一" {
		t.Errorf("got %q", s)
	}
}

func TestJSONPathMissingIsNull(t *testing.T) {
	out, err := execJSONPath(&rule.SelectorSpec{Expr: "$.book.missing"}, value.String(bookJSON))
	if err != nil {
		t.Fatalf("jsonpath: %v", err)
	}
	if out.Kind() != value.KindNull {
		t.Errorf("expected null, got %v", out.Kind())
	}
}

func TestJSONPathBadDocument(t *testing.T) {
	_, err := execJSONPath(&rule.SelectorSpec{Expr: "$.x"}, value.String("not json"))
	if !errs.IsKind(err, errs.KindExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestXPathUnsupportedWithoutEvaluator(t *testing.T) {
	ec := &Context{}
	_, err := execXPath(&rule.SelectorSpec{Expr: "//a"}, value.HTML("<a/>"), ec)
	if !errs.IsKind(err, errs.KindExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "xpath unsupported") {
		t.Errorf("error should say xpath unsupported: %v", got)
	}
}

type fakeXPath struct{}

func (fakeXPath) Evaluate(expr, html string, all bool) ([]string, error) {
	return []string{"<b>via-xpath</b>"}, nil
}

func TestXPathInjectedEvaluator(t *testing.T) {
	ec := &Context{XPath: fakeXPath{}}
	out, err := execXPath(&rule.SelectorSpec{Expr: "//b"}, value.HTML("<div/>"), ec)
	if err != nil {
		t.Fatalf("xpath: %v", err)
	}
	s, _ := out.AsString()
	if s != "<b>via-xpath</b>" {
		t.Errorf("got %q", s)
	}
}

func TestRegexFirstGroup(t *testing.T) {
	out, err := execRegex(&rule.RegexSpec{Pattern: `id=(\d+)`, Group: 1}, value.String("id=42&x=1"))
	if err != nil {
		t.Fatalf("regex: %v", err)
	}
	s, _ := out.AsString()
	if s != "42" {
		t.Errorf("got %q", s)
	}
}

func TestRegexGlobal(t *testing.T) {
	out, err := execRegex(&rule.RegexSpec{Pattern: `(\d+)`, Group: 1, Global: true}, value.String("a1 b22 c333"))
	if err != nil {
		t.Fatalf("regex: %v", err)
	}
	items, ok := out.AsArray()
	if !ok || len(items) != 3 {
		t.Fatalf("expected 3 matches, got %v", out.Kind())
	}
}

func TestRegexNoMatchIsNull(t *testing.T) {
	out, err := execRegex(&rule.RegexSpec{Pattern: `z(\d+)`, Group: 1}, value.String("abc"))
	if err != nil {
		t.Fatalf("regex: %v", err)
	}
	if out.Kind() != value.KindNull {
		t.Errorf("expected null, got %v", out.Kind())
	}
}

func arrayOfStrings(ss ...string) value.Value {
	items := make([]value.Value, 0, len(ss))
	for _, s := range ss {
		items = append(items, value.String(s))
	}
	return value.Array(items)
}

func TestIndexSingleAndNegative(t *testing.T) {
	in := arrayOfStrings("a", "b", "c")

	idx := 1
	out, err := execIndex(&rule.IndexSpec{Single: &idx}, in)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if s, _ := out.AsString(); s != "b" {
		t.Errorf("got %q", s)
	}

	neg := -1
	out, err = execIndex(&rule.IndexSpec{Single: &neg}, in)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if s, _ := out.AsString(); s != "c" {
		t.Errorf("got %q", s)
	}

	oob := 9
	if _, err := execIndex(&rule.IndexSpec{Single: &oob}, in); !errs.IsKind(err, errs.KindExtraction) {
		t.Fatalf("expected out-of-bounds error, got %v", err)
	}
}

func TestIndexSlice(t *testing.T) {
	in := arrayOfStrings("a", "b", "c", "d", "e")

	out, err := execIndex(&rule.IndexSpec{Slice: "1:4"}, in)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	items, _ := out.AsArray()
	if len(items) != 3 {
		t.Fatalf("1:4 should give 3 items, got %d", len(items))
	}

	out, err = execIndex(&rule.IndexSpec{Slice: "0:5:2"}, in)
	if err != nil {
		t.Fatalf("stepped slice: %v", err)
	}
	items, _ = out.AsArray()
	if len(items) != 3 {
		t.Fatalf("0:5:2 should give 3 items, got %d", len(items))
	}
	if s, _ := items[2].AsString(); s != "e" {
		t.Errorf("got %q", s)
	}

	out, err = execIndex(&rule.IndexSpec{Slice: ":2"}, in)
	if err != nil {
		t.Fatalf("open slice: %v", err)
	}
	items, _ = out.AsArray()
	if len(items) != 2 {
		t.Fatalf(":2 should give 2 items, got %d", len(items))
	}
}
