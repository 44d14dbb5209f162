package upload

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies why an upload did not complete.
type Kind string

const (
	KindInvalidFile            Kind = "InvalidFile"
	KindSessionRequestFailed   Kind = "SessionRequestFailed"
	KindTransferError          Kind = "TransferError"
	KindMissingConfirmationTag Kind = "MissingConfirmationTag"
	KindCompletionFailed       Kind = "CompletionFailed"
	KindUploadInProgress       Kind = "UploadInProgress"
	KindCancelled              Kind = "Cancelled"
)

// Error is the error reported to callers of the orchestrator.
// None of the kinds are retried automatically.
type Error struct {
	Kind Kind
	// Part is the 1-based part number for per-part failures, zero otherwise.
	Part int64
	// StatusCode and Body describe the HTTP response that caused the failure, if any.
	StatusCode int
	Body       string
	Message    string
	cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Part > 0 {
		fmt.Fprintf(&b, " (part %d)", e.Part)
	}
	if detail := e.Detail(); detail != "" {
		b.WriteString(": ")
		b.WriteString(detail)
	}
	return b.String()
}

// Detail returns a human readable description of the failure.
func (e *Error) Detail() string {
	var parts []string
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.StatusCode))
	}
	if e.Body != "" {
		parts = append(parts, strings.TrimSpace(e.Body))
	}
	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf returns the kind of an orchestrator error, or an empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ResponseError is returned by the backend client for non-2xx responses.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// Wrap a backend failure into an orchestrator error of the given kind.
func backendError(kind Kind, err error) *Error {
	e := &Error{Kind: kind, cause: err}
	var re *ResponseError
	if errors.As(err, &re) {
		e.StatusCode = re.StatusCode
	}
	return e
}

// Attach the part number to a transfer failure.
func partError(err error, partNumber int64) *Error {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindTransferError, cause: err}
	}
	e.Part = partNumber
	return e
}
