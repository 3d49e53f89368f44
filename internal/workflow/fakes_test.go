package workflow

import (
	"context"
	"strings"
	"sync"
	"time"
)

// testPrompts tags every template with a prefix so fakeCompleter can tell
// the stages apart.
var testPrompts = MapPromptSource{
	TemplateGuard:  "GUARD q={question}",
	TemplateDraft:  "DRAFT ctx={context_str} q={question} name={first_name} history={chat_history}",
	TemplateReview: "REVIEW q={question} ctx={context_str} a={drafted_answer}",
}

type fakeCompleter struct {
	mu sync.Mutex

	guard, draft, review          string
	guardErr, draftErr, reviewErr error
	// block makes every call wait for ctx cancellation.
	block bool

	calls   map[string]int
	prompts map[string]string
}

func newFakeCompleter(guard, draft, review string) *fakeCompleter {
	return &fakeCompleter{
		guard:   guard,
		draft:   draft,
		review:  review,
		calls:   make(map[string]int),
		prompts: make(map[string]string),
	}
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	stage, _, _ := strings.Cut(prompt, " ")

	f.mu.Lock()
	f.calls[stage]++
	f.prompts[stage] = prompt
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	switch stage {
	case "GUARD":
		return f.guard, f.guardErr
	case "DRAFT":
		return f.draft, f.draftErr
	case "REVIEW":
		return f.review, f.reviewErr
	}
	return "", nil
}

func (f *fakeCompleter) count(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[stage]
}

func (f *fakeCompleter) prompt(stage string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[stage]
}

type fakeRetriever struct {
	mu       sync.Mutex
	passages []Passage
	err      error
	calls    int
	lastK    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, k int) ([]Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.passages) > k {
		return f.passages[:k], nil
	}
	return f.passages, nil
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []Reply
}

func (f *fakeSender) SendReply(_ context.Context, reply Reply) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, reply)
	return "sent-1", nil
}

type fakeSink struct {
	mu          sync.Mutex
	err         error
	escalations []Escalation
}

func (f *fakeSink) Escalate(_ context.Context, e Escalation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.escalations = append(f.escalations, e)
	return nil
}

type fakeLedger struct {
	claimed  map[string]bool
	released []string
	err      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{claimed: make(map[string]bool)}
}

func (f *fakeLedger) Claim(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeLedger) Release(_ context.Context, key string) error {
	delete(f.claimed, key)
	f.released = append(f.released, key)
	return nil
}

type fakeRecorder struct {
	mu          sync.Mutex
	stages      []string
	runs        []string
	escalations []string
}

func (f *fakeRecorder) RecordWorkflowStage(_ context.Context, stage, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage+":"+status)
}

func (f *fakeRecorder) RecordWorkflowRun(_ context.Context, action, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, action+":"+status)
}

func (f *fakeRecorder) RecordEscalation(_ context.Context, source, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations = append(f.escalations, source)
}

const (
	safeJSON   = `{"is_safe": true, "reason": "ordinary support question"}`
	unsafeJSON = `{"is_safe": false, "reason": "prompt injection attempt"}`
	sendJSON   = `{"decision": "send", "reason": "grounded and complete"}`
	escJSON    = `{"decision": "escalate", "reason": "refund request"}`
)

func testRequest() Request {
	return Request{
		Question: "What is the visa processing time?",
		OriginalMessage: OriginalMessage{
			MessageID: "msg-1",
			ThreadID:  "thread-1",
			Sender:    `"John Doe" <john@example.com>`,
			Subject:   "Visa question",
		},
	}
}
