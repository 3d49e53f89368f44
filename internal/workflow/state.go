package workflow

import (
	"context"
	"fmt"
	"strings"
)

// Decision is the reviewer's routing verdict.
type Decision string

const (
	// DecisionSend approves the draft for sending.
	DecisionSend Decision = "send"
	// DecisionEscalate hands the thread to a human.
	DecisionEscalate Decision = "escalate"
	// DecisionClarify asks for more information from the customer.
	// It is routed like DecisionEscalate; there is no follow-up edge.
	DecisionClarify Decision = "clarify"
)

// Action is the terminal outcome of a run.
type Action string

const (
	ActionSent      Action = "sent"
	ActionEscalated Action = "escalated"
)

// OriginalMessage describes the email that started the run.
// The workflow only reads it to address the reply.
type OriginalMessage struct {
	MessageID string `json:"message_id,omitempty"`
	ThreadID  string `json:"thread_id"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
}

// Request is the input of one run.
type Request struct {
	Question        string          `json:"question"`
	OriginalMessage OriginalMessage `json:"original_message"`
	ChatHistory     string          `json:"chat_history,omitempty"`
}

// Validate rejects requests that cannot enter the guard.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Question) == "" {
		missing = append(missing, "question")
	}
	if strings.TrimSpace(r.OriginalMessage.Sender) == "" {
		missing = append(missing, "original_message.sender")
	}
	if strings.TrimSpace(r.OriginalMessage.ThreadID) == "" {
		missing = append(missing, "original_message.thread_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// SafetyVerdict is the guard's classification of the question.
type SafetyVerdict struct {
	IsSafe bool   `json:"is_safe"`
	Reason string `json:"reason"`
}

// ReviewVerdict is the reviewer's decision about the draft.
type ReviewVerdict struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
}

// Approved reports whether the verdict authorizes sending.
func (v ReviewVerdict) Approved() bool {
	return v.Decision == DecisionSend
}

// Draft is the composer's output.
type Draft struct {
	Context string
	Answer  string
}

// Result is what a run reports to its caller.
type Result struct {
	RunID     string `json:"run_id"`
	Action    Action `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Answer    string `json:"answer,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// State is threaded through every node of one run. Each field is owned by
// exactly one node; the setters refuse to overwrite.
type State struct {
	RunID           string
	Question        string
	OriginalMessage OriginalMessage
	ChatHistory     string

	Context       string
	DraftedAnswer string
	draftSet      bool

	SafetyDecision *SafetyVerdict
	FinalDecision  *ReviewVerdict

	result *Result
}

func newState(runID string, req Request) *State {
	return &State{
		RunID:           runID,
		Question:        req.Question,
		OriginalMessage: req.OriginalMessage,
		ChatHistory:     req.ChatHistory,
	}
}

func (s *State) setSafety(v SafetyVerdict) error {
	if s.SafetyDecision != nil {
		return fmt.Errorf("%w: safety_decision", ErrFieldAlreadySet)
	}
	s.SafetyDecision = &v
	return nil
}

func (s *State) setDraft(d Draft) error {
	if s.draftSet {
		return fmt.Errorf("%w: drafted_answer", ErrFieldAlreadySet)
	}
	s.Context = d.Context
	s.DraftedAnswer = d.Answer
	s.draftSet = true
	return nil
}

func (s *State) setFinal(v ReviewVerdict) error {
	if s.FinalDecision != nil {
		return fmt.Errorf("%w: final_decision", ErrFieldAlreadySet)
	}
	s.FinalDecision = &v
	return nil
}

func (s *State) setResult(r Result) error {
	if s.result != nil {
		return fmt.Errorf("%w: result", ErrFieldAlreadySet)
	}
	r.RunID = s.RunID
	s.result = &r
	return nil
}

// escalationReason picks the reason of whichever check fired.
func (s *State) escalationReason() string {
	if s.SafetyDecision != nil && !s.SafetyDecision.IsSafe {
		return s.SafetyDecision.Reason
	}
	if s.FinalDecision != nil {
		if s.FinalDecision.Reason != "" {
			return s.FinalDecision.Reason
		}
		return "Manager escalated."
	}
	return "No reason provided."
}

// Completer is the language model caller. Implementations return the raw
// completion text; structured replies are parsed by the caller.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Passage is one ranked retrieval hit.
type Passage struct {
	Text   string
	Source string
	Score  float64
}

// Retriever returns the top k passages relevant to query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}

// Reply is an outbound answer to the original sender.
type Reply struct {
	To        string
	Subject   string
	Body      string
	ThreadID  string
	InReplyTo string
}

// Sender delivers approved replies and returns the sent message ID.
type Sender interface {
	SendReply(ctx context.Context, reply Reply) (string, error)
}

// Escalation is handed to humans when a run does not end in a send.
type Escalation struct {
	RunID    string `json:"run_id"`
	ThreadID string `json:"thread_id"`
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Question string `json:"question"`
	Draft    string `json:"draft,omitempty"`
	Reason   string `json:"reason"`
	Source   string `json:"source"`
}

// Escalation sources.
const (
	EscalationSourceGuard  = "guard"
	EscalationSourceReview = "review"
	EscalationSourceSend   = "send"
)

// EscalationSink records escalations for human follow-up.
type EscalationSink interface {
	Escalate(ctx context.Context, e Escalation) error
}
