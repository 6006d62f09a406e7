package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthFailed = fmt.Errorf("authentication failed")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrMalformedResponse  = fmt.Errorf("malformed API response")
	ErrRateLimited        = fmt.Errorf("rate limited by catalog API")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Batch and review errors
	ErrCancelled          = fmt.Errorf("operation cancelled")
	ErrBatchRunning       = fmt.Errorf("a batch is already running")
	ErrInvalidTransition  = fmt.Errorf("invalid status transition")
	ErrNoCandidates       = fmt.Errorf("no candidates available")
	ErrNotFound           = fmt.Errorf("not found")
	ErrUnsupportedVersion = fmt.Errorf("unsupported persisted data version")
	ErrStateLocked        = fmt.Errorf("state database is locked by another process")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
