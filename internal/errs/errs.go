// Package errs defines the runtime's flat error taxonomy. Every failure
// surfaced by the engine carries a Kind from this package plus a
// human-readable message naming the offending field, URL, or name.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a runtime error.
type Kind string

const (
	KindTemplate                Kind = "template"
	KindExtraction              Kind = "extraction"
	KindUndefinedComponent      Kind = "undefined_component"
	KindUndefinedScriptModule   Kind = "undefined_script_module"
	KindUndefinedScriptFunction Kind = "undefined_script_function"
	KindCircularReference       Kind = "circular_reference"
	KindMissingConfig           Kind = "missing_config"
	KindInvalidConfigValue      Kind = "invalid_config_value"
	KindExecutionTimeout        Kind = "execution_timeout"
	KindHTTPConfig              Kind = "http_config"
	KindHTTPRequest             Kind = "http_request"
	KindWebViewUnavailable      Kind = "webview_unavailable"
	KindWebViewTimeout          Kind = "webview_timeout"
	KindWebViewUserClosed       Kind = "webview_user_closed"
	KindWebViewError            Kind = "webview_error"
	KindChallengeFailed         Kind = "challenge_failed"
	KindChallengeMaxAttempts    Kind = "challenge_max_attempts"
	KindScriptSyntax            Kind = "script_syntax"
	KindScriptRuntime           Kind = "script_runtime"
	KindScriptTimeout           Kind = "script_timeout"
	KindPagination              Kind = "pagination"
	KindVariableNotFound        Kind = "variable_not_found"
	KindConfig                  Kind = "config"
)

// Error is the single error type used across the runtime.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. A nil err yields a plain
// error of the given kind.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err (or any error in its chain) is a runtime
// error of the given kind.
func IsKind(err error, kind Kind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or the empty string when err is not a
// runtime error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
