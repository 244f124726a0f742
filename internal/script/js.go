package script

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"kumo/internal/errs"
)

// JSEngine runs JavaScript on goja. goja runtimes are not safe for
// concurrent use, so the engine itself only caches compiled programs
// and builds a fresh runtime per execution; the engine value is safe
// to share.
type JSEngine struct {
	mu       sync.RWMutex
	timeout  time.Duration
	programs sync.Map // source -> *goja.Program
}

// NewJSEngine returns a shareable JavaScript engine.
func NewJSEngine() *JSEngine {
	return &JSEngine{}
}

func (e *JSEngine) Name() string { return "javascript" }

// SetTimeout bounds each execution; the runtime is interrupted when
// the budget elapses.
func (e *JSEngine) SetTimeout(d time.Duration) {
	e.mu.Lock()
	e.timeout = d
	e.mu.Unlock()
}

func (e *JSEngine) Execute(src string, sc *Context) (string, error) {
	v, err := e.run(src, sc)
	if err != nil {
		return "", err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	exported := v.Export()
	if s, ok := exported.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(exported)
	if err != nil {
		return "", errs.Wrap(errs.KindScriptRuntime, err, "serialize script result")
	}
	return string(data), nil
}

func (e *JSEngine) ExecuteJSON(src string, sc *Context) (any, error) {
	out, err := e.Execute(src, sc)
	if err != nil {
		return nil, err
	}
	var node any
	if json.Unmarshal([]byte(out), &node) == nil {
		return node, nil
	}
	return out, nil
}

func (e *JSEngine) run(src string, sc *Context) (goja.Value, error) {
	prog, err := e.compile(src)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	installBuiltins(vm)

	if sc != nil {
		vm.Set("input", sc.Input)
		vars := sc.Variables
		if vars == nil {
			vars = map[string]any{}
		}
		vm.Set("vars", vars)
	}

	e.mu.RLock()
	timeout := e.timeout
	e.mu.RUnlock()
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() { vm.Interrupt("script timeout") })
		defer timer.Stop()
	}

	v, err := vm.RunProgram(prog)
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return nil, errs.New(errs.KindScriptTimeout, "script exceeded %s", timeout)
		}
		return nil, errs.Wrap(errs.KindScriptRuntime, err, "script execution")
	}
	return v, nil
}

// compile first compiles the source as a bare script, so a bare
// expression yields its value; a source that does not compile that way
// (a top-level `return`) is wrapped in a function body.
func (e *JSEngine) compile(src string) (*goja.Program, error) {
	if cached, ok := e.programs.Load(src); ok {
		return cached.(*goja.Program), nil
	}
	prog, rawErr := goja.Compile("script", src, false)
	if rawErr != nil {
		wrapped := "(function() {\n" + src + "\n})()"
		var err error
		prog, err = goja.Compile("script", wrapped, false)
		if err != nil {
			return nil, errs.Wrap(errs.KindScriptSyntax, err, "compile script")
		}
	}
	e.programs.Store(src, prog)
	return prog, nil
}

// installBuiltins exposes the core helper library every engine must
// provide to rule scripts.
func installBuiltins(vm *goja.Runtime) {
	vm.Set("trim", strings.TrimSpace)
	vm.Set("lower", strings.ToLower)
	vm.Set("upper", strings.ToUpper)

	vm.Set("regex_match", func(s, pattern string) string {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		m := re.FindStringSubmatch(s)
		switch {
		case m == nil:
			return ""
		case len(m) > 1:
			return m[1]
		default:
			return m[0]
		}
	})
	vm.Set("regex_replace", func(s, pattern, repl string) string {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return re.ReplaceAllString(s, repl)
	})

	vm.Set("base64_encode", func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	})
	vm.Set("base64_decode", func(s string) string {
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return ""
		}
		return string(data)
	})

	vm.Set("md5", func(s string) string {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	})
	vm.Set("sha1", func(s string) string {
		sum := sha1.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	})
	vm.Set("sha256", func(s string) string {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	})

	vm.Set("json_parse", func(s string) any {
		var node any
		if err := json.Unmarshal([]byte(s), &node); err != nil {
			return nil
		}
		return node
	})
	vm.Set("json_stringify", func(v goja.Value) string {
		data, err := json.Marshal(v.Export())
		if err != nil {
			return ""
		}
		return string(data)
	})

	vm.Set("url_encode", url.QueryEscape)
	vm.Set("url_decode", func(s string) string {
		out, err := url.QueryUnescape(s)
		if err != nil {
			return s
		}
		return out
	})

	vm.Set("format_timestamp", func(secs int64, layout string) string {
		if layout == "" {
			layout = "2006-01-02 15:04:05"
		}
		return time.Unix(secs, 0).UTC().Format(layout)
	})

	vm.Set("to_traditional", ToTraditional)
	vm.Set("to_simplified", ToSimplified)

	vm.Set("log", func(args ...goja.Value) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, a.String())
		}
		slog.Default().Debug("script log", "message", strings.Join(parts, " "))
	})
}
