package resource

import (
	"errors"
	"fmt"
)

// ErrUnexpectedType is returned when a manager receives a resource of another kind
var ErrUnexpectedType = errors.New("unexpected resource type")

// ErrorType represents the category of reconciliation error
type ErrorType string

const (
	ErrorTypeDependency    ErrorType = "dependency"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeHost          ErrorType = "host"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeComparison    ErrorType = "comparison"
)

// ReconciliationError represents an error that occurred during reconciliation
type ReconciliationError struct {
	Type        ErrorType         `json:"type"`
	Resource    ResourceReference `json:"resource"`
	Message     string            `json:"message"`
	Cause       error             `json:"-"`
	Recoverable bool              `json:"recoverable"`
}

// Error implements the error interface
func (r *ReconciliationError) Error() string {
	if r.Resource.Type == "" && r.Resource.Name == "" {
		return fmt.Sprintf("[%s] %s", r.Type, r.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", r.Type, r.Resource, r.Message)
}

// Unwrap returns the underlying cause error
func (r *ReconciliationError) Unwrap() error {
	return r.Cause
}

// NewReconciliationError creates a new ReconciliationError
func NewReconciliationError(errorType ErrorType, resource ResourceReference, message string, cause error, recoverable bool) *ReconciliationError {
	return &ReconciliationError{
		Type:        errorType,
		Resource:    resource,
		Message:     message,
		Cause:       cause,
		Recoverable: recoverable,
	}
}

// NewDependencyError creates a dependency-related error
func NewDependencyError(resource ResourceReference, message string, cause error) *ReconciliationError {
	return NewReconciliationError(ErrorTypeDependency, resource, message, cause, false)
}

// NewValidationError creates a validation-related error
func NewValidationError(resource ResourceReference, message string, cause error) *ReconciliationError {
	return NewReconciliationError(ErrorTypeValidation, resource, message, cause, false)
}

// NewHostError creates an error for a failed host operation
func NewHostError(resource ResourceReference, message string, cause error, recoverable bool) *ReconciliationError {
	return NewReconciliationError(ErrorTypeHost, resource, message, cause, recoverable)
}

// NewConfigurationError creates a configuration-related error
func NewConfigurationError(resource ResourceReference, message string, cause error) *ReconciliationError {
	return NewReconciliationError(ErrorTypeConfiguration, resource, message, cause, false)
}

// IsReconciliationError checks if an error is a ReconciliationError
func IsReconciliationError(err error) bool {
	var recErr *ReconciliationError
	return errors.As(err, &recErr)
}

// AsReconciliationError attempts to cast an error to ReconciliationError
func AsReconciliationError(err error) (*ReconciliationError, bool) {
	var recErr *ReconciliationError
	if errors.As(err, &recErr) {
		return recErr, true
	}
	return nil, false
}
