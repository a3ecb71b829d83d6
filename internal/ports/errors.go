package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Queue Specific Errors
	ErrQueueWrite       = errors.New("durable queue write failed")
	ErrQueueEmpty       = errors.New("no claimable order in queue")
	ErrLeaseLost        = errors.New("lease lost: order reclaimed by another consumer")
	ErrLeaseExhausted   = errors.New("lease reclaim budget exhausted")
	ErrIndeterminate    = errors.New("order outcome indeterminate: poll timed out")
	ErrDuplicateOrder   = errors.New("order id already submitted")
	ErrIllegalOrderJump = errors.New("illegal order state transition")

	// Terminal Specific Errors
	ErrTerminalUnavailable = errors.New("execution terminal is unavailable")
	ErrTerminalRejected    = errors.New("execution terminal rejected the order")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
