package common

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
)

// InstrumentedToolHandler wraps a tool handler with tracing, metrics and
// logging. metrics and logger may be nil.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", metrics, logger, handler))
func InstrumentedToolHandler(
	toolName string,
	metrics *instrumentation.Metrics,
	logger *slog.Logger,
	handler mcpserver.ToolHandlerFunc,
) mcpserver.ToolHandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithTool(logger, toolName)

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
			logger.ErrorContext(ctx, "tool failed", logging.Err(err), slog.Duration(logging.KeyDuration, duration))
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			logger.WarnContext(ctx, "tool returned an error result", slog.Duration(logging.KeyDuration, duration))
		default:
			instrumentation.SetSpanSuccess(span)
			logger.DebugContext(ctx, "tool finished", slog.Duration(logging.KeyDuration, duration))
		}

		metrics.RecordToolInvocation(ctx, toolName, status, duration)
		return result, err
	}
}

// StringArg returns the trimmed string argument key, or def when it is absent
// or not a string.
func StringArg(request mcp.CallToolRequest, key, def string) string {
	if v, ok := request.GetArguments()[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// IntArg returns the numeric argument key, or def when it is absent.
// JSON numbers arrive as float64.
func IntArg(request mcp.CallToolRequest, key string, def int) int {
	switch v := request.GetArguments()[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
