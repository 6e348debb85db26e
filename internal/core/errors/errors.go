package errors

import "errors"

// Domain errors - these represent the client-side failure taxonomy
var (
	// Credential & session
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("action forbidden")
	ErrInvalidCredential = errors.New("missing or expired credential")

	// Connection lifecycle
	ErrClosed       = errors.New("connection closed by caller")
	ErrNotConnected = errors.New("not connected")

	// Mutation & reconciliation
	ErrMutationRejected = errors.New("mutation rejected by server")
	ErrUnknownMutation  = errors.New("unknown mutation token")
	ErrEntityNotFound   = errors.New("entity not found")

	// Generic
	ErrNotFound = errors.New("resource not found")
	ErrInternal = errors.New("internal server error")
)

// AppError wraps errors with additional context from the REST boundary
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message, suitable for a toast
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code, zero when not HTTP-originated
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		StatusCode: 403,
	}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    message,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}

// NewMutationError covers every rejection of an optimistic mutation: the
// coordinator treats them all the same way, regardless of status code.
func NewMutationError(message string, statusCode int) *AppError {
	return &AppError{
		Err:        ErrMutationRejected,
		Message:    message,
		Code:       "MUTATION_REJECTED",
		StatusCode: statusCode,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}
