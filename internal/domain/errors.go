package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the BFA.

// ErrNoRateSources is returned when an aggregation run is started without any source.
var ErrNoRateSources = errors.New("aggregate: no rate sources supplied")

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrServiceUnavailable indicates an optional collaborator is not configured.
type ErrServiceUnavailable struct {
	Service string
}

func (e *ErrServiceUnavailable) Error() string {
	return fmt.Sprintf("%s unavailable: not configured", e.Service)
}

// ErrClassificationAnomaly describes a charge pointing at a leg that is not in the leg set.
type ErrClassificationAnomaly struct {
	ChargeID string
	LegID    string
}

func (e *ErrClassificationAnomaly) Error() string {
	return fmt.Sprintf("charge %s references unknown leg %s", e.ChargeID, e.LegID)
}

// ErrSourceUnavailable records that one rate source failed or came back empty.
// A nil Err means the source answered with no options.
type ErrSourceUnavailable struct {
	Source      SourceKind
	Combination string
	Err         error
}

func (e *ErrSourceUnavailable) Error() string {
	target := string(e.Source)
	if e.Combination != "" {
		target += " " + e.Combination
	}
	if e.Err == nil {
		return fmt.Sprintf("rate source %s returned no options", target)
	}
	return fmt.Sprintf("rate source %s failed: %v", target, e.Err)
}

func (e *ErrSourceUnavailable) Unwrap() error {
	return e.Err
}

// ErrTotalExhaustion is reported when every source failed and only the final
// simulation produced options.
type ErrTotalExhaustion struct {
	Diagnostic string
}

func (e *ErrTotalExhaustion) Error() string {
	if e.Diagnostic == "" {
		return "all rate sources unavailable"
	}
	return "all rate sources unavailable: " + e.Diagnostic
}

// ErrNormalizationReject is returned when a raw option carries no id, no
// carrier and no price.
type ErrNormalizationReject struct {
	Source SourceKind
}

func (e *ErrNormalizationReject) Error() string {
	return fmt.Sprintf("%s option rejected: no id, carrier or price", e.Source)
}
