package ports

import "context"

// Logger is the structured logging interface shared by the decision
// process and the execution agent. Both processes log to their own
// stream; the implementation tags each line with the process name so
// interleaved output from a shared terminal stays attributable.
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	// Info logs a message at Info level.
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn logs a message at Warning level.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs an error message at Error level, including the error itself.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
