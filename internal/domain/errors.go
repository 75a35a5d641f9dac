package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error codes returned to tool clients and printed by the CLI.
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrNotFoundCode   = "NOT_FOUND"
	ErrDatabaseError  = "DATABASE_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrAuthentication = "AUTHENTICATION_ERROR"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
	ErrValidation     = "VALIDATION_ERROR"
)

// MCPError is the error shape every tool result and admin command reports.
type MCPError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`

	cause error
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the error the MCPError was built from, if any.
func (e *MCPError) Unwrap() error {
	return e.cause
}

// NewMCPError creates an MCPError stamped with the current UTC time.
func NewMCPError(code, message, details, requestID string) *MCPError {
	return &MCPError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError rejects a single input field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// StoreError marks a failure inside a persistence backend. Its message is
// the wrapped error's message.
type StoreError struct {
	Backend   string
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ToMCPError maps any error onto an MCPError. Not-found and validation
// errors keep their meaning even when a StoreError wraps them.
func ToMCPError(err error, requestID string) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var out *MCPError
	var valErr *ValidationError
	var storeErr *StoreError
	switch {
	case errors.As(err, &valErr):
		out = NewMCPError(ErrValidation, valErr.Error(), valErr.Field, requestID)
	case errors.Is(err, ErrNotFound):
		out = NewMCPError(ErrNotFoundCode, err.Error(), "", requestID)
	case errors.Is(err, context.DeadlineExceeded):
		out = NewMCPError(ErrInternalServer, "request timed out", err.Error(), requestID)
	case errors.As(err, &storeErr):
		out = NewMCPError(ErrDatabaseError, "reference store unavailable",
			fmt.Sprintf("%s %s: %v", storeErr.Backend, storeErr.Operation, storeErr.Err), requestID)
	default:
		out = NewMCPError(ErrInternalServer, "internal error", err.Error(), requestID)
	}
	out.cause = err
	return out
}
