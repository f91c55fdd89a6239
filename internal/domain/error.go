package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidExecContext  = errors.New("invalid executor context")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrLockNotAcquired     = errors.New("lock not acquired")

	// Pipeline errors that escalate out of a whole job attempt. These are
	// routed through the retry controller, never counted as a single
	// failed image.
	ErrRateLimited      = errors.New("image service rate limited")
	ErrUpstreamUnstable = errors.New("the image service is temporarily overloaded, please try again in a moment")
	ErrNoBillableImages = errors.New("no images could be generated and billed")

	// Per-image conditions, swallowed by the generation loop.
	ErrEmptyImageResponse = errors.New("image service returned no image payload")
)
