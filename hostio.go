package pl

import "context"

// ByteSource is the random-access byte provider the evaluator reads
// from (§6.1). It is implemented by the host — a file, a process, a
// piece of live memory — and consumed read-only by this package.
type ByteSource interface {
	BaseAddress() uint64
	ActualSize() uint64
	Read(offset uint64, buf []byte) (int, error)
	IsReadable(offset, size uint64) bool
}

// LogLevel enumerates the severities a Logger accepts.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the host callback used by std::print, assertions, and
// internal diagnostics (§6.2). The core never imports a logging library
// itself; cmd/patlang adapts zap.Logger to this interface.
type Logger interface {
	Log(level LogLevel, message string)
}

// NopLogger discards every message; the zero value NopLogger{} is
// ready to use and is the default when Evaluate is given a nil Logger.
type NopLogger struct{}

func (NopLogger) Log(LogLevel, string) {}

// RecordingLogger captures every message so tests can assert on what
// the evaluator logged without depending on a concrete logging backend.
type RecordingLogger struct {
	Entries []LogEntry
}

type LogEntry struct {
	Level   LogLevel
	Message string
}

func NewRecordingLogger() *RecordingLogger { return &RecordingLogger{} }

func (l *RecordingLogger) Log(level LogLevel, message string) {
	l.Entries = append(l.Entries, LogEntry{Level: level, Message: message})
}

// IncludeResolver resolves the path argument of a `#include "path"`
// directive to source text. Resolve returns ok=false when the path can't
// be found, which the preprocessor turns into a KindPreprocess error.
type IncludeResolver interface {
	Resolve(path string) (text string, ok bool)
}

// PermissionGate answers whether a dangerous (write-capable) built-in
// function may run (§4.4.5, §6.2). Ask must resolve synchronously before
// the evaluator proceeds — there is no asynchronous continuation here,
// matching the spec's "must resolve synchronously to Allow or Deny"
// requirement.
type PermissionGate interface {
	Allow(functionName string) bool
}

// staticGate implements PermissionGate for the Allow/Deny cases of
// Config.DangerousFunctions, so the evaluator has a single code path
// regardless of whether the host supplied an interactive gate.
type staticGate bool

func (g staticGate) Allow(string) bool { return bool(g) }

// isAborted reports whether ctx is done. The abort signal is threaded
// through evaluation as a context.Context so host cancellation is the idiomatic Go mechanism (ctx.Err() != nil)
// rather than a bespoke boolean flag with its own setter/getter pair.
// The evaluator checks it at the same point the spec mandates an
// abort-flag check: between pattern creations.
func isAborted(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
