package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// Always use these helpers when recording metrics with sender identifiers.

// ExtractUserDomain extracts the domain part from an email address or a
// From header value. This reduces cardinality by using the domain instead
// of the full address.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")          // "example.com"
//	ExtractUserDomain(`"Jane" <jane@Example.com>`) // "example.com"
//	ExtractUserDomain("invalid")                   // "unknown"
//	ExtractUserDomain("")                          // "unknown"
func ExtractUserDomain(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.LastIndex(email, "<"); i >= 0 {
		email = strings.TrimSuffix(email[i+1:], ">")
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}

	return "unknown"
}

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"
)

// ServiceGmail is the service label of Gmail API metrics and spans.
const ServiceGmail = "gmail"

// Common operation types for Google API and model metrics.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationSend     = "send"
	OperationModify   = "modify"
	OperationWatch    = "watch"
	OperationHistory  = "history"
	OperationComplete = "complete"
	OperationEmbed    = "embed"
)

// Queue outcomes recorded by RecordQueueJob.
const (
	QueueEnqueued  = "enqueued"
	QueueProcessed = "processed"
	QueueRetried   = "retried"
	QueueRequeued  = "requeued"
	QueueDead      = "dead"
	QueueDuplicate = "duplicate"
)
