package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeModel represents language-model service errors
	ErrorTypeModel ErrorType = "model"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeExtraction represents extraction-quality errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeValidation represents record validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Model Errors

// FailureKind classifies why a model call did not produce a usable result.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureTransient FailureKind = "transient"
	FailureMalformed FailureKind = "malformed"
	FailurePermanent FailureKind = "permanent"
	FailureDisabled  FailureKind = "disabled"
	FailureCancelled FailureKind = "cancelled"
)

// Retryable reports whether a failure of this kind is worth another attempt.
func (k FailureKind) Retryable() bool {
	return k == FailureTimeout || k == FailureTransient || k == FailureMalformed
}

// ErrModelCall is the error of a single model attempt, tagged with its kind.
type ErrModelCall struct {
	*BaseError
	Kind FailureKind
}

func NewModelCall(kind FailureKind, message string, err error) *ErrModelCall {
	return &ErrModelCall{
		BaseError: NewBaseError(ErrorTypeModel, message, err),
		Kind:      kind,
	}
}

// ErrModelFailed is returned by the model gateway once every attempt is spent.
// Callers are expected to fall back, never to abort.
type ErrModelFailed struct {
	*BaseError
	PromptKind string
	Kind       FailureKind
	Attempts   int
}

func NewModelFailed(promptKind string, kind FailureKind, attempts int, err error) *ErrModelFailed {
	return &ErrModelFailed{
		BaseError:  NewBaseError(ErrorTypeModel, fmt.Sprintf("%s failed after %d attempts (%s)", promptKind, attempts, kind), err),
		PromptKind: promptKind,
		Kind:       kind,
		Attempts:   attempts,
	}
}

// ErrEmbeddingsDisabled is returned when no embedding model is configured
var ErrEmbeddingsDisabled = NewBaseError(ErrorTypeModel, "embedding model not configured", nil)

// Graph Errors

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrIngestFailed is returned when a paper's transaction was rolled back
type ErrIngestFailed struct {
	*BaseError
	PaperID string
	Retried bool
}

func NewIngestFailed(paperID string, retried bool, err error) *ErrIngestFailed {
	return &ErrIngestFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("ingest rolled back for paper %s", paperID), err),
		PaperID:   paperID,
		Retried:   retried,
	}
}

// Extraction Errors

// ErrStageFailed is returned when an extraction stage produced nothing usable
type ErrStageFailed struct {
	*BaseError
	Stage string
}

func NewStageFailed(stage, reason string, err error) *ErrStageFailed {
	return &ErrStageFailed{
		BaseError: NewBaseError(ErrorTypeExtraction, fmt.Sprintf("stage %s: %s", stage, reason), err),
		Stage:     stage,
	}
}

// Validation Errors

// ErrValidationFailed is returned when an extracted record fails a schema check
type ErrValidationFailed struct {
	*BaseError
	EntityType string
	Field      string
	Reason     string
}

func NewValidationFailed(entityType, field, reason string) *ErrValidationFailed {
	return &ErrValidationFailed{
		BaseError:  NewBaseError(ErrorTypeValidation, fmt.Sprintf("%s.%s: %s", entityType, field, reason), nil),
		EntityType: entityType,
		Field:      field,
		Reason:     reason,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var baseErr *BaseError
	if stderrors.As(err, &baseErr) {
		return baseErr.Type == errType
	}
	return false
}

// KindOf returns the failure kind carried by a model error, or "" if none.
func KindOf(err error) FailureKind {
	var failed *ErrModelFailed
	if stderrors.As(err, &failed) {
		return failed.Kind
	}
	var call *ErrModelCall
	if stderrors.As(err, &call) {
		return call.Kind
	}
	return ""
}

// IsTimeout checks if an error is a timeout-classified model failure
func IsTimeout(err error) bool {
	return KindOf(err) == FailureTimeout
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	if kind := KindOf(err); kind != "" {
		return kind.Retryable()
	}
	// Graph connection errors are retryable
	var connErr *ErrGraphConnectionFailed
	return stderrors.As(err, &connErr)
}
