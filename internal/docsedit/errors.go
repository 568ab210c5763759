package docsedit

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed operation or batch. It is always raised
// before any request reaches the document service.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError reports a target that could not be resolved against the
// fetched document (missing text instance, offset outside any paragraph,
// unknown tab).
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// RemoteServiceError wraps a failure returned by the document service.
// Chunk is the 1-based chunk that failed, or 0 when the failure happened
// while fetching the document.
type RemoteServiceError struct {
	DocumentID string
	Chunk      int
	Err        error
}

func (e *RemoteServiceError) Error() string {
	if e.Chunk == 0 {
		return fmt.Sprintf("fetch document %s: %v", e.DocumentID, e.Err)
	}
	return fmt.Sprintf("batch %d rejected for document %s: %v", e.Chunk, e.DocumentID, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// OperationError ties a failure to the operation that caused it.
// Index is 0-based; messages use the 1-based position.
type OperationError struct {
	Index int
	Kind  Kind
	Err   error
}

func (e *OperationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("operation %d: %v", e.Index+1, e.Err)
	}
	return fmt.Sprintf("operation %d (%s): %v", e.Index+1, e.Kind, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsRemote(err error) bool {
	var re *RemoteServiceError
	return errors.As(err, &re)
}

// FailedOperation returns the 0-based index of the operation that caused err.
func FailedOperation(err error) (int, bool) {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Index, true
	}
	return 0, false
}
