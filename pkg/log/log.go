// Package log wraps logrus with a small structured-fields convention
// (Fielder) so call sites can attach context without building
// logrus.Fields maps by hand at every call site.
package log

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// base is the package's single logrus instance. Level filtering is
// left to logrus itself (SetDebug just moves the threshold), so the
// emit path below never has to special-case the debug level.
var base = logrus.New()

// SetDebug raises the minimum log level to debug, or back to info.
func SetDebug(enabled bool) {
	if enabled {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}
}

// SetFormatter sets the formatter used for log output.
func SetFormatter(formatter logrus.Formatter) {
	base.Formatter = formatter
}

// SetOutput sets the writer log output is sent to.
func SetOutput(w io.Writer) {
	base.Out = w
}

// Fields is a flat set of structured logging key/value pairs.
type Fields map[string]interface{}

// LogFields lets Fields satisfy Fielder directly.
func (f Fields) LogFields() Fields {
	return f
}

// Fielder is implemented by anything that can describe itself as
// Fields for a log call.
type Fielder interface {
	LogFields() Fields
}

// wrappedErr adapts an error into a Fielder carrying its message and
// dynamic type.
type wrappedErr struct {
	cause error
}

func (w wrappedErr) LogFields() Fields {
	return Fields{
		"error": w.cause.Error(),
		"type":  fmt.Sprintf("%T", w.cause),
	}
}

// Err adapts cause into a Fielder for a log call. A nil cause
// contributes no fields, so callers can write log.Err(err) even when
// err may be nil.
func Err(cause error) Fielder {
	if cause == nil {
		return Fields{}
	}
	return wrappedErr{cause}
}

// flatten combines the Fields of every Fielder into one set. The first
// Fielder's keys pass through unchanged; each later Fielder's keys are
// prefixed "N." (1-based) so two Fielders sharing a key name don't
// silently clobber one another.
func flatten(fielders []Fielder) logrus.Fields {
	out := logrus.Fields{}
	if len(fielders) == 0 {
		return out
	}
	if fielders[0] != nil {
		for k, v := range fielders[0].LogFields() {
			out[k] = v
		}
	}
	for i, extra := range fielders[1:] {
		if extra == nil {
			continue
		}
		prefix := fmt.Sprintf("%d.", i+1)
		for k, v := range extra.LogFields() {
			out[prefix+k] = v
		}
	}
	return out
}

// withFielders returns the logrus entry a log call should write
// through, carrying the merged fields of fielders if any were given.
func withFielders(fielders []Fielder) *logrus.Entry {
	if len(fielders) == 0 {
		return logrus.NewEntry(base)
	}
	return base.WithFields(flatten(fielders))
}

// Debug logs at the debug level (a no-op unless SetDebug(true) was called).
func Debug(v interface{}, fielders ...Fielder) { withFielders(fielders).Debug(v) }

// Info logs at the info level.
func Info(v interface{}, fielders ...Fielder) { withFielders(fielders).Info(v) }

// Warn logs at the warning level.
func Warn(v interface{}, fielders ...Fielder) { withFielders(fielders).Warn(v) }

// Error logs at the error level.
func Error(v interface{}, fielders ...Fielder) { withFielders(fielders).Error(v) }

// Fatal logs at the fatal level and exits the process with a non-zero
// status code.
func Fatal(v interface{}, fielders ...Fielder) { withFielders(fielders).Fatal(v) }
