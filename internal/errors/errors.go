package errors

import "fmt"

// ErrorCode represents a fieldmeter error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 404
	ErrConflict        ErrorCode = "CONFLICT"         // 409
	ErrMalformedRecord ErrorCode = "MALFORMED_RECORD" // 422
	ErrInternal        ErrorCode = "INTERNAL"         // 500
)

// MeterError represents a structured error with code, status, and details.
type MeterError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *MeterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *MeterError {
	return &MeterError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a session record cannot be found.
func NewNotFound(id string) *MeterError {
	return &MeterError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("session not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *MeterError {
	return &MeterError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewMalformedRecord creates a 422 error for a session record that exists on
// disk but cannot be decoded. A finished recording must never be silently
// replaced with defaults, so callers have to surface this.
func NewMalformedRecord(id string, err error) *MeterError {
	details := map[string]any{"id": id}
	if err != nil {
		details["cause"] = err.Error()
	}
	return &MeterError{
		Code:    ErrMalformedRecord,
		Status:  422,
		Message: fmt.Sprintf("session record is malformed: %s", id),
		Details: details,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *MeterError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &MeterError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a MeterError with the given code.
func Is(err error, code ErrorCode) bool {
	if mErr, ok := err.(*MeterError); ok {
		return mErr.Code == code
	}
	return false
}
