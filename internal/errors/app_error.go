package errors

import "fmt"

// AppError is a coded error carried across engine boundaries so callers can
// distinguish not-found outcomes from backing-store and backend failures.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError marks an expected absence (framework, rule, tenant
// config). Not-found is a normal outcome, never a pipeline failure.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message}
}

// NewRegistryError marks a backing-store failure. The engine operation that
// depends on the registry must abort when it sees one.
func NewRegistryError(message string) *AppError {
	return &AppError{Code: "REGISTRY_UNAVAILABLE", Message: message}
}

// NewBackendError marks a rule-evaluation backend failure, contained to the
// single rule that triggered it.
func NewBackendError(message string) *AppError {
	return &AppError{Code: "BACKEND_ERROR", Message: message}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: message}
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}
