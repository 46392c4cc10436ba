package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested document or entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidDocument indicates that a stored definition document could not be decoded
	ErrInvalidDocument = errors.New("invalid document")

	// ErrHandlerNotFound indicates that no process handler is registered for a process type
	ErrHandlerNotFound = errors.New("process handler not found")

	// ErrInvalidOptions indicates that a process was submitted with missing or invalid options
	ErrInvalidOptions = errors.New("invalid process options")

	// ErrAccessDenied indicates that the caller lacks the role or ACLs required by a process
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidRequest indicates that a transport request payload is malformed
	ErrInvalidRequest = errors.New("invalid request")
)

// Error represents a structured error carrying a machine-readable code
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Code extracts the code of the first structured error in the chain.
// Sentinel errors map to stable codes so transports can report them.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var structured *Error
	if errors.As(err, &structured) && structured.Code != "" {
		return structured.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidDocument):
		return "INVALID_DOCUMENT"
	case errors.Is(err, ErrHandlerNotFound):
		return "HANDLER_NOT_FOUND"
	case errors.Is(err, ErrInvalidOptions):
		return "INVALID_OPTIONS"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrInvalidRequest):
		return "INVALID_REQUEST"
	}
	return "INTERNAL"
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied checks if an error is an access denied error
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
