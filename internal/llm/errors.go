package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an LLM failure into the taxonomy consumed by callers.
type Kind int

const (
	KindOther Kind = iota
	KindParse
	KindRateLimit
	KindTimeout
	KindAuth
)

// String returns the class name surfaced in analysis_error fields.
func (k Kind) String() string {
	switch k {
	case KindParse:
		return "LLMParseError"
	case KindRateLimit:
		return "LLMRateLimitError"
	case KindTimeout:
		return "LLMTimeoutError"
	case KindAuth:
		return "LLMAuthError"
	default:
		return "LLMError"
	}
}

// Error is the unified error type returned by the client. Raw holds the
// unparseable model output for parse failures.
type Error struct {
	Kind Kind
	Msg  string
	Raw  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or KindOther for foreign errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindOther
}

// IsParse reports whether err is a structured-output parse failure.
func IsParse(err error) bool { return KindOf(err) == KindParse }

// IsRateLimit reports whether err is a provider rate-limit rejection.
func IsRateLimit(err error) bool { return KindOf(err) == KindRateLimit }

// classify converts an arbitrary transport or provider error into a typed
// Error by inspecting the message, mirroring provider SDK behavior across
// backends that do not expose typed errors themselves.
func classify(err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}

	msg := strings.ToLower(err.Error())
	kind := KindOther
	switch {
	case strings.Contains(msg, "rate") && strings.Contains(msg, "limit"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "resource exhausted"),
		strings.Contains(msg, "429"):
		kind = KindRateLimit
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline"):
		kind = KindTimeout
	case strings.Contains(msg, "api key"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "unauthenticated"),
		strings.Contains(msg, "permission"):
		kind = KindAuth
	}

	return &Error{Kind: kind, Msg: err.Error(), Err: err}
}
