package resource

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes resource errors.
type ErrorCode string

const (
	// ErrCodeStorage indicates the backing store failed.
	ErrCodeStorage ErrorCode = "STORAGE"

	// ErrCodeInvalidWrite indicates a malformed write request.
	ErrCodeInvalidWrite ErrorCode = "INVALID_WRITE"

	// ErrCodeClosed indicates the manager was closed.
	ErrCodeClosed ErrorCode = "CLOSED"
)

// Error is returned through futures and store methods.
type Error struct {
	Code     ErrorCode
	Op       string
	Resource string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Code, e.Op, e.Resource, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStorageError reports whether err came from the backing store.
func IsStorageError(err error) bool { return hasCode(err, ErrCodeStorage) }

// IsInvalidWrite reports whether err rejected a malformed write.
func IsInvalidWrite(err error) bool { return hasCode(err, ErrCodeInvalidWrite) }

// IsClosed reports whether err was caused by a closed manager.
func IsClosed(err error) bool { return hasCode(err, ErrCodeClosed) }
