package webhooks

// Logger is the logging interface used throughout the webhook engine.
// Implementations must be safe for concurrent use.
type Logger interface {
	// Debugf logs a debug message with formatting
	Debugf(format string, args ...any)

	// Infof logs an info message with formatting
	Infof(format string, args ...any)

	// Warnf logs a warning message with formatting
	Warnf(format string, args ...any)

	// Errorf logs an error message with formatting
	Errorf(format string, args ...any)

	// Info logs an info message without formatting
	Info(args ...any)
}

// NoopLogger is a logger that discards all messages.
// Used as the default when no logger is configured.
type NoopLogger struct{}

// Debugf does nothing.
func (l *NoopLogger) Debugf(format string, args ...any) {}

// Infof does nothing.
func (l *NoopLogger) Infof(format string, args ...any) {}

// Warnf does nothing.
func (l *NoopLogger) Warnf(format string, args ...any) {}

// Errorf does nothing.
func (l *NoopLogger) Errorf(format string, args ...any) {}

// Info does nothing.
func (l *NoopLogger) Info(args ...any) {}
