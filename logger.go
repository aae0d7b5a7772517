package treetopk

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/treetopk/topology"
)

// Logger wraps slog.Logger with treetopk-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRank adds a rank field to the logger.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// WithRole adds a role field to the logger.
func (l *Logger) WithRole(role topology.Role) *Logger {
	return &Logger{
		Logger: l.Logger.With("role", role.String()),
	}
}

// LogPlan logs the assignment a process received.
func (l *Logger) LogPlan(ctx context.Context, a topology.Assignment) {
	switch a.Role {
	case topology.RoleSelector:
		l.InfoContext(ctx, "assigned role",
			"role", a.Role.String(),
			"shard", a.Shard.String(),
			"parent", a.Parent,
		)
	case topology.RoleIdle:
		l.InfoContext(ctx, "no role assigned, exiting",
			"role", a.Role.String(),
		)
	default:
		l.InfoContext(ctx, "assigned role",
			"role", a.Role.String(),
			"expected", a.Expected,
			"parent", a.Parent,
		)
	}
}

// LogRun logs the outcome of a run.
func (l *Logger) LogRun(ctx context.Context, res *Result, err error) {
	if err != nil {
		l.ErrorContext(ctx, "run failed",
			"error", err,
		)
		return
	}
	if res.Role == topology.RoleRoot {
		l.InfoContext(ctx, "top-k computed",
			"k", len(res.Values),
		)
		return
	}
	l.DebugContext(ctx, "run completed",
		"role", res.Role.String(),
	)
}
