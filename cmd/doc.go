// Package cmd implements the command-line interface for inboxreply.
//
// This package provides the following commands:
//   - serve: Run the responder (ingest scheduler, worker pool, push and health endpoints)
//   - ingest: Queue unread support messages once
//   - respond: Run one question through the workflow, optionally as a dry run
//   - index: Chunk, embed and store knowledge files
//   - watch: Register or stop Gmail push notifications
//   - auth: Authorize access to the service mailbox
//   - mcp: Serve the support tools over MCP stdio
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
