// Package logging provides structured logging utilities for the inboxreply application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Logger construction from configuration (text or JSON, level)
//   - Consistent attribute naming for workflow stages, threads and decisions
//   - PII sanitization (email anonymization)
//   - A printf adapter for client libraries that expect one
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithStage(slog.Default(), "review")
//	logger.Info("review decision",
//	    logging.ThreadID(threadID),
//	    logging.Decision("send"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("reply sent",
//	    logging.UserHash(reply.To))
//
// # Security Considerations
//
//   - Sender addresses are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
