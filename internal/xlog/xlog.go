// Package xlog is a thin logging facade over x/fmtx, used by every
// service so the same call sites build on host and on an rp2040/rp2350
// target without pulling in the standard "log" package's allocations.
package xlog

import "github.com/jangala-dev/ecfw-core/x/fmtx"

type Level uint8

const (
	Debug Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "?"
	}
}

// MinLevel suppresses log lines below it; services running on a
// flash-constrained target set this to Warn or Error.
var MinLevel = Debug

func log(level Level, tag, format string, args ...any) {
	if level < MinLevel {
		return
	}
	msg := fmtx.Sprintf(format, args...)
	fmtx.Printf("[%s] %s: %s\n", level.String(), tag, msg)
}

func Debugf(tag, format string, args ...any) { log(Debug, tag, format, args...) }
func Warnf(tag, format string, args ...any)  { log(Warn, tag, format, args...) }
func Errorf(tag, format string, args ...any) { log(Error, tag, format, args...) }
