// Package mcp defines the response envelope and error taxonomy shared by
// every agent-facing tool endpoint.
package mcp

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class in the envelope's error field.
type Code string

const (
	CodeMissingAPIKey        Code = "MISSING_API_KEY"
	CodeInvalidAPIKey        Code = "INVALID_API_KEY"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
	CodeRateLimitCheckFailed Code = "RATE_LIMIT_CHECK_FAILED"
	CodePermissionDenied     Code = "PERMISSION_DENIED"
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeSessionAccessDenied  Code = "SESSION_ACCESS_DENIED"
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeResourceNotFound     Code = "RESOURCE_NOT_FOUND"
	CodeInsufficientStock    Code = "INSUFFICIENT_STOCK"
	CodeDatabase             Code = "DATABASE_ERROR"
	CodeInternal             Code = "INTERNAL_ERROR"
	CodeUnknown              Code = "UNKNOWN_ERROR"
)

type codeInfo struct {
	retryable   bool
	suggestion  string
	nextActions []string
}

var codes = map[Code]codeInfo{
	CodeMissingAPIKey: {
		suggestion:  "Send the API key in the X-Agent-API-Key header",
		nextActions: []string{"Check API key", "Set X-Agent-API-Key header"},
	},
	CodeInvalidAPIKey: {
		suggestion:  "Verify the API key is correct and the agent is active",
		nextActions: []string{"Check API key", "Contact an administrator to reactivate the agent"},
	},
	CodeRateLimitExceeded: {
		suggestion:  "Wait for the current window to roll over before retrying",
		nextActions: []string{"Reduce request frequency", "Retry after the indicated delay"},
	},
	CodeRateLimitCheckFailed: {
		suggestion:  "The rate limiter could not be consulted; wait and retry",
		nextActions: []string{"Wait and retry", "Reduce request frequency"},
	},
	CodePermissionDenied: {
		suggestion:  "Ask an administrator to grant the required permission",
		nextActions: []string{"Check agent permissions", "Use a tool this agent is allowed to call"},
	},
	CodeSessionNotFound: {
		suggestion:  "The session does not exist or has expired; create a new one",
		nextActions: []string{"Create a new session", "List active sessions"},
	},
	CodeSessionAccessDenied: {
		suggestion:  "Sessions can only be used by the agent that created them",
		nextActions: []string{"Use a session owned by this agent", "Create a new session"},
	},
	CodeValidation: {
		suggestion:  "Correct the request parameters and try again",
		nextActions: []string{"Fix the invalid field", "Review the tool's parameters"},
	},
	CodeResourceNotFound: {
		suggestion:  "Check the identifier and try again",
		nextActions: []string{"Verify the identifier", "Search for the resource"},
	},
	CodeInsufficientStock: {
		suggestion:  "Reduce the quantity or choose an alternative product",
		nextActions: []string{"Reduce quantity", "Request recommendations for alternatives"},
	},
	CodeDatabase: {
		retryable:   true,
		suggestion:  "A temporary storage error occurred; retry the operation",
		nextActions: []string{"Retry the operation"},
	},
	CodeInternal: {
		retryable:   true,
		suggestion:  "An unexpected error occurred; retry the operation",
		nextActions: []string{"Retry the operation", "Contact support if the problem persists"},
	},
	CodeUnknown: {
		retryable:   true,
		suggestion:  "An unexpected error occurred; retry the operation",
		nextActions: []string{"Retry the operation"},
	},
}

// Error is a classified failure. It is returned as a value from stores and
// tool logic and rendered into the envelope's error field.
type Error struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Retryable  bool   `json:"retryable"`
	Suggestion string `json:"suggestion"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds

	cause error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NextActions returns the caller hints for this error's code.
func (e *Error) NextActions() []string {
	return NextActions(e.Code)
}

// HTTPStatus returns the transport-level status for this error. Identity and
// authorization failures use real status codes, session ownership included;
// every business outcome is delivered as 200 with success=false.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeMissingAPIKey, CodeInvalidAPIKey:
		return http.StatusUnauthorized
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeRateLimitCheckFailed:
		return http.StatusServiceUnavailable
	case CodePermissionDenied, CodeSessionAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}

// NewError builds an error with the code's default retryability and suggestion.
func NewError(code Code, message string) *Error {
	info, ok := codes[code]
	if !ok {
		info = codes[CodeUnknown]
	}
	return &Error{
		Code:       code,
		Message:    message,
		Retryable:  info.retryable,
		Suggestion: info.suggestion,
	}
}

// Errorf is NewError with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithCause attaches an underlying error for logging and errors.Is.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Validation reports a field that violates a constraint.
func Validation(field, constraint string) *Error {
	e := NewError(CodeValidation, fmt.Sprintf("%s %s", field, constraint))
	e.Field = field
	e.Constraint = constraint
	return e
}

// NotFound reports a missing resource of the given kind.
func NotFound(kind, id string) *Error {
	return Errorf(CodeResourceNotFound, "%s %q not found", kind, id)
}

// Database wraps a datastore failure as a retryable error.
func Database(op string, err error) *Error {
	return Errorf(CodeDatabase, "%s failed", op).WithCause(err)
}

// RateLimited reports an exhausted window with the seconds until it resets.
func RateLimited(window string, limit, retryAfter int) *Error {
	e := Errorf(CodeRateLimitExceeded, "rate limit of %d requests per %s exceeded", limit, window)
	e.RetryAfter = retryAfter
	return e
}

// AsError classifies any error. *Error values pass through; anything else
// becomes INTERNAL_ERROR with the original attached as cause.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return NewError(CodeInternal, "internal error").WithCause(err)
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code Code) bool {
	var me *Error
	return errors.As(err, &me) && me.Code == code
}

// NextActions returns the hint list for a code. It is never empty.
func NextActions(code Code) []string {
	info, ok := codes[code]
	if !ok || len(info.nextActions) == 0 {
		return []string{"Retry the operation"}
	}
	return append([]string(nil), info.nextActions...)
}
