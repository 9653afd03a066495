package common

import "fmt"

// ErrorKind is one of the stable error identifiers a caller may
// switch on; see spec §7.
type ErrorKind string

const (
	KindUnknown                    ErrorKind = "UNKNOWN_ERROR"
	KindNoFilesFound               ErrorKind = "NO_FILES_FOUND"
	KindConflict                   ErrorKind = "CONFLICT"
	KindAttributeValidationFailure ErrorKind = "ATTRIBUTE_VALIDATION_FAILURE"
	KindNotImplemented             ErrorKind = "NOT_IMPLEMENTED"
	KindInvalidMethodArgument      ErrorKind = "INVALID_METHOD_ARGUMENT"
	KindInvalidConfig              ErrorKind = "INVALID_CONFIG"
	KindDBConnectionError          ErrorKind = "DB_CONNECTION_ERROR"
	KindImportNotFound             ErrorKind = "IMPORT_NOT_FOUND"
	KindViewReduceFailure          ErrorKind = "VIEW_REDUCE_FAILURE"
	KindProbeFailure               ErrorKind = "PROBE_FAILURE"
)

// Error wraps an ErrorKind with a human-readable message and an
// optional underlying cause, the one error shape every package
// boundary named in the spec returns.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func New(kind ErrorKind, format string, a ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

func Wrap(kind ErrorKind, cause error, format string, a ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the ErrorKind from err, or KindUnknown if a non-nil
// err does not carry one; a nil err yields the empty kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if err == nil {
		return ""
	}
	if as, ok := err.(*Error); ok {
		e = as
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err (or a wrapped cause) carries the given kind.
func Is(err error, kind ErrorKind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		break
	}
	return false
}
