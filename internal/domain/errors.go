package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidConfig       = errors.New("invalid provider config")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrPricingNotFound     = errors.New("pricing not found")
	ErrJobFinalized        = errors.New("job already finalized")
	ErrNotCancellable      = errors.New("job not cancellable")
	ErrJobNotStale         = errors.New("job not stale")
	ErrAlreadyRefunded     = errors.New("transaction already refunded")
)
