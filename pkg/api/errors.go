package api

import (
	"errors"
	"fmt"
)

// FailureKind classifies a user-facing failure.
type FailureKind string

const (
	// KindUnavailable means a required capability is absent on this platform.
	KindUnavailable FailureKind = "unavailable"
	// KindNotFound means a configured path, project file or tool does not exist.
	KindNotFound FailureKind = "not_found"
	// KindClassification means the instruction text could not be mapped to an action.
	KindClassification FailureKind = "classification"
	// KindMissingArgument means a structured request omitted a required parameter.
	KindMissingArgument FailureKind = "missing_argument"
	// KindInteraction means EBPro did not respond as expected within a bounded wait.
	KindInteraction FailureKind = "interaction"
	// KindUnauthorized means the caller token did not match.
	KindUnauthorized FailureKind = "unauthorized"
	// KindUnsupported means the action exists in a request but has no implementation.
	KindUnsupported FailureKind = "unsupported"
)

// DefaultHint is attached to failures created without an explicit hint.
const DefaultHint = "Перевірте налаштування у config.json (зразок: config.example.json)."

// Failure is the error type carried from any layer up to a channel.
// Message and Hint are shown to the user as-is.
type Failure struct {
	Kind    FailureKind
	Message string
	Hint    string
	Err     error // Underlying cause, kept for logs only
}

// NewFailure creates a Failure. An empty hint is replaced by DefaultHint.
func NewFailure(kind FailureKind, message, hint string) *Failure {
	if hint == "" {
		hint = DefaultHint
	}
	return &Failure{Kind: kind, Message: message, Hint: hint}
}

// Wrap attaches the underlying cause and returns f.
func (f *Failure) Wrap(err error) *Failure {
	f.Err = err
	return f
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Recoverable reports whether an alternate mechanism may be attempted.
func (f *Failure) Recoverable() bool {
	return f.Kind == KindInteraction
}

// AsFailure extracts a *Failure from err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// ErrorCode is the machine-readable code returned to callers.
type ErrorCode string

const (
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeInvalidInstruction ErrorCode = "invalid_instruction"
	CodeMissingArgument    ErrorCode = "missing_argument"
	CodeActionFailed       ErrorCode = "action_failed"
	CodeInternalError      ErrorCode = "internal_error"
)

// Internal-failure text shown when an error carries no Failure.
const (
	internalMessage = "Сталася непередбачена помилка."
	internalHint    = "Перевірте логи ebpro_mcp.log для детальної інформації."
)

// ErrorInfo is the structured error body sent to callers.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Hint    string    `json:"hint"`
}

// Describe maps any error to the code, message and hint presented to callers.
func Describe(err error) ErrorInfo {
	f, ok := AsFailure(err)
	if !ok {
		return ErrorInfo{Code: CodeInternalError, Message: internalMessage, Hint: internalHint}
	}
	info := ErrorInfo{Message: f.Message, Hint: f.Hint}
	switch f.Kind {
	case KindUnauthorized:
		info.Code = CodeUnauthorized
	case KindClassification:
		info.Code = CodeInvalidInstruction
	case KindMissingArgument:
		info.Code = CodeMissingArgument
	case KindUnavailable, KindNotFound, KindInteraction, KindUnsupported:
		info.Code = CodeActionFailed
	default:
		return ErrorInfo{Code: CodeInternalError, Message: internalMessage, Hint: internalHint}
	}
	return info
}
