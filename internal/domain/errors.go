package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies search failures so callers can tell invalid input,
// a missing corpus, provider outages and corrupted stores apart.
type ErrorKind string

const (
	KindNotReady           ErrorKind = "not_ready"
	KindValidation         ErrorKind = "validation"
	KindEmbeddingProvider  ErrorKind = "embedding_provider"
	KindGenerationProvider ErrorKind = "generation_provider"
	KindDimensionMismatch  ErrorKind = "dimension_mismatch"
	KindInternal           ErrorKind = "internal"
)

// ErrNotReady is returned when the vector store is unavailable or empty.
var ErrNotReady = errors.New("quote store is not ready")

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DimensionMismatchError means a stored vector and the query vector disagree in length.
type DimensionMismatchError struct {
	RecordID string
	Expected int // query dimension
	Got      int // stored dimension
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: record %q has %d dimensions, query has %d", e.RecordID, e.Got, e.Expected)
}

// ProviderOp names the external call that failed.
type ProviderOp string

const (
	OpEmbedding  ProviderOp = "embedding"
	OpGeneration ProviderOp = "generation"
)

// ProviderError is a failure of an external embedding or generation endpoint.
// Message is safe to show to users; raw response bodies never go in it.
type ProviderError struct {
	Provider  string
	Op        ProviderOp
	Status    int // HTTP status, 0 when none applies
	Message   string
	Timeout   bool
	Transport bool // no response was received
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s provider: %s: %v", e.Provider, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s provider: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether repeating the call may succeed.
func (e *ProviderError) Retryable() bool {
	if e.Timeout || e.Transport {
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// NewProviderError builds a ProviderError for an HTTP status response.
func NewProviderError(provider string, op ProviderOp, status int) *ProviderError {
	msg := fmt.Sprintf("%s request returned status %d", op, status)
	if text := http.StatusText(status); text != "" {
		msg = fmt.Sprintf("%s request returned status %d (%s)", op, status, text)
	}
	return &ProviderError{Provider: provider, Op: op, Status: status, Message: msg}
}

// NewTransportError wraps a failure that happened before a response arrived.
func NewTransportError(provider string, op ProviderOp, err error) *ProviderError {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		timeout = true
	}
	msg := fmt.Sprintf("%s request failed", op)
	if timeout {
		msg = fmt.Sprintf("%s request timed out", op)
	}
	return &ProviderError{Provider: provider, Op: op, Message: msg, Timeout: timeout, Transport: true, Cause: err}
}

// KindOf classifies err into an ErrorKind.
func KindOf(err error) ErrorKind {
	var (
		verr *ValidationError
		derr *DimensionMismatchError
		perr *ProviderError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &derr):
		return KindDimensionMismatch
	case errors.As(err, &perr):
		if perr.Op == OpGeneration {
			return KindGenerationProvider
		}
		return KindEmbeddingProvider
	default:
		return KindInternal
	}
}
