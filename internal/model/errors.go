package model

import (
	"fmt"
	"time"
)

// Error codes, grouped by taxonomy. Validation errors are rejected
// synchronously and never reach the chain. Governance outcomes are
// recorded decisions, not errors. Availability errors fail closed.
// Integrity breaches are fatal for the affected range only.
const (
	CodeInvalidSignal            = "INVALID_SIGNAL"
	CodeInvalidAction            = "INVALID_ACTION"
	CodeConstraintViolation      = "CONSTRAINT_VIOLATION"
	CodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	CodeEscalationTimeout        = "ESCALATION_TIMEOUT"
	CodeStaleTrustScore          = "STALE_TRUST_SCORE"
	CodeConstraintSetUnavailable = "CONSTRAINT_SET_UNAVAILABLE"
	CodeChainIntegrityBreach     = "CHAIN_INTEGRITY_BREACH"
	CodeNotFound                 = "NOT_FOUND"
	CodeInternal                 = "INTERNAL"
)

// ValidationError is a caller error: malformed signal or action.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AvailabilityError covers staleness and store-unreachable conditions.
// These degrade to deny, never to an unrecorded failure.
type AvailabilityError struct {
	Code    string
	Message string
	Err     error
}

func (e *AvailabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AvailabilityError) Unwrap() error { return e.Err }

// APIError is the uniform wire error envelope shared by every endpoint.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// NewAPIError builds a wire error with the current UTC timestamp.
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
