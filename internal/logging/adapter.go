package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// PrintfAdapter adapts an slog.Logger to the printf-style logger interface
// used by client libraries such as go-redis (redis.SetLogger).
type PrintfAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewPrintfAdapter creates a PrintfAdapter that logs at level.
// If logger is nil, slog.Default() is used.
func NewPrintfAdapter(logger *slog.Logger, level slog.Level) *PrintfAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrintfAdapter{logger: logger, level: level}
}

// Printf formats the message and logs it as a single record.
func (a *PrintfAdapter) Printf(ctx context.Context, format string, v ...interface{}) {
	if ctx == nil {
		ctx = context.Background()
	}
	msg := strings.TrimRight(fmt.Sprintf(format, v...), "\n")
	a.logger.Log(ctx, a.level, msg)
}

// Logger returns the underlying slog.Logger for direct access when needed.
func (a *PrintfAdapter) Logger() *slog.Logger {
	return a.logger
}
