package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	ErrNoBoards             = errors.New("no boards configured")
	ErrInvalidBaseURL       = errors.New("base_url must start with http:// or https://")
	ErrInvalidConcurrency   = errors.New("max_concurrent_tasks must be at least 1")
	ErrInvalidRetries       = errors.New("max_retries must be non-negative")
	ErrInvalidRetryDelay    = errors.New("retry_delay must be non-negative")
	ErrInvalidTimeout       = errors.New("timeout must be positive")
	ErrDuplicateBoard       = errors.New("duplicate board name")
	ErrUnknownStateBackend  = errors.New("unknown state backend")
	ErrInvalidRequestsLimit = errors.New("max_requests_per_second must be non-negative")
)
