package gologger

import (
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// NewJSONLogger returns a go-logger JSON logger writing to w at the named
// level (trace, debug, info, warn, error). The logger is also the provider of
// named component loggers. Fatal only logs; exiting stays with the caller.
func NewJSONLogger(w io.Writer, level string) *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithLoggerTypeJSON(),
		glog.WithWriter(w),
		glog.WithLevel(normalizeLevel(level)),
		glog.WithFatalBehavior(glog.FatalBehaviorLogOnly),
	)
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "warning":
		return glog.Warn
	case "":
		return glog.DefaultLogLevel
	default:
		return level
	}
}
