package errors

import "fmt"

// ErrorCode represents a simtrack error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrBadBlock       ErrorCode = "BAD_BLOCK"       // 422 (fenced block body is not valid JSON)
	ErrBadShape       ErrorCode = "BAD_SHAPE"       // 422 (valid JSON, wrong top-level shape)
	ErrTemplate       ErrorCode = "TEMPLATE"        // 422 (card template failed to compile)
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// SimError represents a structured error with code, status, and details.
type SimError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *SimError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SimError {
	return &SimError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing chat, message, or template.
func NewNotFound(kind, identifier string) *SimError {
	return &SimError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewBadBlock creates a 422 error for a fenced block whose body is not valid JSON.
// The message id travels in Details so batch callers can report per-message.
func NewBadBlock(messageID string, cause error) *SimError {
	msg := "block is not valid JSON"
	if cause != nil {
		msg = fmt.Sprintf("block is not valid JSON: %v", cause)
	}
	return &SimError{
		Code:    ErrBadBlock,
		Status:  422,
		Message: msg,
		Details: map[string]any{"message_id": messageID},
	}
}

// NewBadShape creates a 422 error for JSON that decoded to a non-object top level.
func NewBadShape(messageID, got string) *SimError {
	return &SimError{
		Code:    ErrBadShape,
		Status:  422,
		Message: fmt.Sprintf("sim data must be a JSON object, got %s", got),
		Details: map[string]any{"message_id": messageID, "got": got},
	}
}

// NewTemplate creates a 422 error for a template that failed to compile or
// yielded no usable card region.
func NewTemplate(selection string, cause error) *SimError {
	msg := fmt.Sprintf("template %q unusable", selection)
	if cause != nil {
		msg = fmt.Sprintf("template %q unusable: %v", selection, cause)
	}
	return &SimError{
		Code:    ErrTemplate,
		Status:  422,
		Message: msg,
		Details: map[string]any{"selection": selection},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *SimError {
	return &SimError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SimError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SimError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a SimError with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := err.(*SimError); ok {
		return sErr.Code == code
	}
	return false
}
