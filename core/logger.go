package core

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger used throughout the package.
// A nil *Logger is valid and discards everything.
type Logger = logiface.Logger[logiface.Event]

// Log levels accepted by NewDefaultLogger.
const (
	LevelDebug         = logiface.LevelDebug
	LevelInformational = logiface.LevelInformational
	LevelWarning       = logiface.LevelWarning
	LevelError         = logiface.LevelError
)

// NewDefaultLogger returns a JSON lines logger writing to w, or to stderr
// when w is nil.
func NewDefaultLogger(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// NewNoOpLogger returns a nil logger.
// Useful for tests or when logging is not desired.
func NewNoOpLogger() *Logger {
	return nil
}
