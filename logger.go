package dsim

// Logger receives structured key-value log events from the kernel: the
// startup/load and end-of-run summary lines, the end event, interrupts,
// and snapshot or status-server failures. Process lifecycle transitions
// and dropped/stale events are not logged. A nil Logger is valid; the
// kernel checks before every call so the core stays usable as a library
// with no logging dependency forced on the host.
//
// The method set matches *slog.Logger, which satisfies Logger directly;
// other logging libraries need a small adapter.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

func logInfo(l Logger, msg string, args ...any) {
	if l != nil {
		l.Info(msg, args...)
	}
}

func logWarn(l Logger, msg string, args ...any) {
	if l != nil {
		l.Warn(msg, args...)
	}
}

func logError(l Logger, msg string, args ...any) {
	if l != nil {
		l.Error(msg, args...)
	}
}

func logDebug(l Logger, msg string, args ...any) {
	if l != nil {
		l.Debug(msg, args...)
	}
}
