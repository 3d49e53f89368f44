// Package common holds helpers shared by the MCP tool packages.
//
// InstrumentedToolHandler wraps a tool handler with a span, the
// mcp_tool_invocations_total and mcp_tool_duration_seconds metrics and a
// log line per invocation.
package common
