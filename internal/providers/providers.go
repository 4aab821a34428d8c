// Package providers defines the contract every external generation API is
// adapted to. Adapters translate one item's payload into a provider call,
// await completion, and map provider-specific failures onto the shared error
// kinds. They never touch job records or the credit ledger.
package providers

import (
	"context"
	"fmt"
)

// Request carries the normalized payload for one item.
type Request struct {
	ItemID      string
	JobID       string
	Prompt      string
	SceneID     string
	CharacterID string
	Model       string
	AspectRatio string
	Voice       string
	Style       string
	Locale      string
}

// Result is a successful generation. RealCost is the operational cost
// actually incurred for this unit, in micro-USD; it may differ from the
// credit price charged to the user.
type Result struct {
	ArtifactRef string
	Format      string
	RealCost    int64
}

// Adapter is implemented once per provider and action kind.
type Adapter interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// ErrorKind classifies provider failures uniformly across providers.
type ErrorKind string

const (
	ErrRateLimited         ErrorKind = "rate_limited"
	ErrInvalidInput        ErrorKind = "invalid_input"
	ErrProviderUnavailable ErrorKind = "provider_unavailable"
	ErrQuotaExceeded       ErrorKind = "quota_exceeded"
	ErrUnknown             ErrorKind = "unknown"
)

// Error is the failure side of the adapter contract.
type Error struct {
	Kind      ErrorKind
	Retryable bool
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

// NewError builds a classified provider error. Rate limits and outages are
// retryable; bad input and exhausted quotas are not.
func NewError(kind ErrorKind, message string) *Error {
	retryable := kind == ErrRateLimited || kind == ErrProviderUnavailable
	return &Error{Kind: kind, Retryable: retryable, Message: message}
}

// StorageError marks a failure persisting a generated artifact, as opposed
// to a failure producing it. The provider call itself succeeded, so callers
// give these a tighter retry budget than provider failures.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return "store artifact: " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// ClassifyHTTPStatus maps an HTTP status code from a provider API onto an
// error kind.
func ClassifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return ErrRateLimited
	case status == 402 || status == 403:
		return ErrQuotaExceeded
	case status >= 400 && status < 500:
		return ErrInvalidInput
	case status >= 500:
		return ErrProviderUnavailable
	default:
		return ErrUnknown
	}
}
