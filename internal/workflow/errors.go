package workflow

import "errors"

// Sentinel errors returned by the orchestrator and its stages.
var (
	// ErrInvalidRequest is returned before the guard runs when a required
	// request field is missing.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRunFailed wraps collaborator failures that aborted a run before it
	// reached a terminal node.
	ErrRunFailed = errors.New("workflow run failed")

	// ErrSendFailed is returned when an approved reply could not be sent.
	// The run still ends in an escalation so a human picks the thread up.
	ErrSendFailed = errors.New("send failed")

	// ErrFieldAlreadySet reports a stage trying to overwrite another stage's output.
	ErrFieldAlreadySet = errors.New("state field already set")

	// ErrTemplateMissing is returned by a PromptSource that has no template
	// for the requested name.
	ErrTemplateMissing = errors.New("prompt template not found")
)
