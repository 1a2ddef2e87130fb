package segue

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the only error taxonomy the core surfaces. Handlers normalize
// every failure to a kind before it crosses the router boundary.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrTimeout
	ErrProtocol
	ErrSchemaValidation
	ErrAuth
	ErrRateLimit
	ErrConnection
	ErrToolUnavailable
	ErrConflict
	ErrInternal
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrProtocol:
		return "protocol_error"
	case ErrSchemaValidation:
		return "schema_validation"
	case ErrAuth:
		return "auth_error"
	case ErrRateLimit:
		return "rate_limit"
	case ErrConnection:
		return "connection_error"
	case ErrToolUnavailable:
		return "tool_unavailable"
	case ErrConflict:
		return "conflict"
	case ErrInternal:
		return "internal"
	default:
		return "none"
	}
}

// ToolError is a categorized failure from a tool invocation or binding step.
type ToolError struct {
	Kind    ErrorKind
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewToolError builds a ToolError with a formatted message.
func NewToolError(kind ErrorKind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, walking wrapped errors.
// Unrecognized errors map to ErrInternal; nil maps to ErrNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrNone
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	var be *BindError
	if errors.As(err, &be) {
		return ErrSchemaValidation
	}
	var he *ErrHTTPStatus
	if errors.As(err, &he) {
		return he.Kind()
	}
	return ErrInternal
}

// ErrLLM is a failure from an LLM provider call.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTPStatus is a non-2xx response from a direct API.
type ErrHTTPStatus struct {
	Status int
	Body   string
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Kind maps the HTTP status to the core taxonomy.
func (e *ErrHTTPStatus) Kind() ErrorKind {
	switch {
	case e.Status == 401 || e.Status == 403:
		return ErrAuth
	case e.Status == 429:
		return ErrRateLimit
	case e.Status == 409 || isConflictMessage(e.Body):
		return ErrConflict
	default:
		return ErrProtocol
	}
}

// isConflictMessage reports whether a backend error text claims the resource
// already exists. Such claims are reported, never overwritten: the remote
// side may have succeeded in a way the direct client cannot verify.
func isConflictMessage(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "already exists") ||
		strings.Contains(l, "duplicate") ||
		strings.Contains(l, "same title")
}

// --- User-visible failure templates ---

// Apology texts keyed by error kind. Templates never leak raw exception
// strings, tokens, URLs, or stack traces.
var failureTemplates = map[ErrorKind]string{
	ErrTimeout:          "That took longer than expected and I had to stop waiting. Please try again.",
	ErrProtocol:         "I couldn't make sense of the tool's response. The system tried two methods and both failed.",
	ErrSchemaValidation: "I couldn't assemble valid inputs for that operation, so I didn't attempt it.",
	ErrAuth:             "I'm not authorized to perform that operation. Please check the configured credentials.",
	ErrRateLimit:        "The service is rate limiting requests right now. Please retry in a little while.",
	ErrConnection:       "I couldn't reach the service due to a network problem.",
	ErrToolUnavailable:  "That capability isn't configured, so I handled this as a regular conversation.",
	ErrConflict:         "Something with the same title already exists. The remote tool may have succeeded; I didn't overwrite anything.",
	ErrInternal:         "Something went wrong on my side while handling that. Please try again.",
}

// FailureMessage returns the fixed, user-addressable template for a kind.
func FailureMessage(kind ErrorKind) string {
	if msg, ok := failureTemplates[kind]; ok {
		return msg
	}
	return failureTemplates[ErrInternal]
}
