package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/termsync/schema"
)

type contextKey int

const (
	terminalKey contextKey = iota
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// Or returns log when set, otherwise the logger bound to a background context.
func Or(log pslog.Logger) pslog.Logger {
	if log != nil {
		return log
	}
	return pslog.Ctx(context.Background())
}

// WithTerminal annotates the logger with the terminal id if present.
func WithTerminal(log pslog.Logger, id schema.TerminalID) pslog.Logger {
	if id != "" {
		log = log.With("terminal", id)
	}
	return log
}

// WithTerminalCtx annotates the context logger with the terminal id unless the
// context already carries the same id.
func WithTerminalCtx(ctx context.Context, id schema.TerminalID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if id == "" {
		return log
	}
	if current, ok := ctx.Value(terminalKey).(schema.TerminalID); ok && current == id {
		return log
	}
	return log.With("terminal", id)
}

// WithStream annotates the logger with a stream kind and path.
func WithStream(log pslog.Logger, kind, path string) pslog.Logger {
	if kind != "" {
		log = log.With("stream", kind)
	}
	if path != "" {
		log = log.With("path", path)
	}
	return log
}

// ContextWithTerminal stores the terminal marker on the context for log de-duplication.
func ContextWithTerminal(ctx context.Context, id schema.TerminalID) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, terminalKey, id)
}

// ContextWithTerminalLogger attaches the logger and terminal marker to the context.
func ContextWithTerminalLogger(ctx context.Context, log pslog.Logger, id schema.TerminalID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTerminal(ctx, id)
}
