package logger

import "codeberg.org/mutker/perfctl/internal/errors"

// Logger defines the interface for logging operations.
// Components receive a Logger scoped with their own "component" field.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
	With(component string) Logger
}
