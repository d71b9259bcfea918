package billing

import (
	"sort"

	"github.com/gofiber/fiber/v2/log"
)

// Fields is the structured context attached to a log line.
type Fields map[string]any

// Logger is the structured logger used by the engine.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

// FiberLogger writes through fiber's log package with a bracketed prefix,
// like the rest of the service.
type FiberLogger struct {
	prefix string
}

func NewFiberLogger(prefix string) *FiberLogger {
	return &FiberLogger{prefix: prefix}
}

func (l *FiberLogger) Debug(msg string, fields Fields) { log.Debugw(l.msg(msg), keyvals(fields)...) }
func (l *FiberLogger) Info(msg string, fields Fields)  { log.Infow(l.msg(msg), keyvals(fields)...) }
func (l *FiberLogger) Warn(msg string, fields Fields)  { log.Warnw(l.msg(msg), keyvals(fields)...) }
func (l *FiberLogger) Error(msg string, fields Fields) { log.Errorw(l.msg(msg), keyvals(fields)...) }

func (l *FiberLogger) msg(msg string) string {
	if l.prefix == "" {
		return msg
	}
	return "[" + l.prefix + "] " + msg
}

func keyvals(fields Fields) []interface{} {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, fields[k])
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, Fields) {}
func (nopLogger) Info(string, Fields)  {}
func (nopLogger) Warn(string, Fields)  {}
func (nopLogger) Error(string, Fields) {}
