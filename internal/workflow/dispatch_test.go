package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedState() *State {
	s := newState("run-1", testRequest())
	_ = s.setSafety(SafetyVerdict{IsSafe: true, Reason: "ok"})
	_ = s.setDraft(Draft{Context: "ctx", Answer: "Hi John, 15 days."})
	_ = s.setFinal(ReviewVerdict{Decision: DecisionSend, Reason: "good"})
	return s
}

func TestReplySubject(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Visa question", "Re: Visa question"},
		{"", "Re: "},
		{"Re: Visa question", "Re: Visa question"},
		{"RE: Visa", "Re: RE: Visa"},
		{"re:Visa", "Re: re:Visa"},
		{"Re:Visa", "Re: Re:Visa"},
		{"Regarding visas", "Re: Regarding visas"},
	}

	for _, tt := range tests {
		got := ReplySubject(tt.in)
		assert.Equal(t, tt.want, got, "ReplySubject(%q)", tt.in)
		assert.True(t, strings.HasPrefix(got, "Re: "), "ReplySubject(%q) = %q", tt.in, got)
	}
}

func TestDispatcher_SendSubjectPrefix(t *testing.T) {
	for _, subject := range []string{"RE: Visa", "re:Visa", "Re:Visa", "Re: Visa"} {
		sender := &fakeSender{}
		d := NewDispatcher(sender, &fakeSink{}, nil, nil)
		s := approvedState()
		s.OriginalMessage.Subject = subject

		res, err := d.Dispatch(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, ActionSent, res.Action)
		require.Len(t, sender.sent, 1)
		assert.True(t, strings.HasPrefix(sender.sent[0].Subject, "Re: "), "subject %q sent as %q", subject, sender.sent[0].Subject)
	}
}

func TestDispatcher_SendSuccess(t *testing.T) {
	sender := &fakeSender{}
	sink := &fakeSink{}
	d := NewDispatcher(sender, sink, nil, nil)

	res, err := d.Dispatch(context.Background(), approvedState())
	require.NoError(t, err)

	assert.Equal(t, ActionSent, res.Action)
	assert.Equal(t, "sent-1", res.MessageID)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, Reply{
		To:        `"John Doe" <john@example.com>`,
		Subject:   "Re: Visa question",
		Body:      "Hi John, 15 days.",
		ThreadID:  "thread-1",
		InReplyTo: "msg-1",
	}, sender.sent[0])
	assert.Empty(t, sink.escalations)
}

func TestDispatcher_NeverSendsWithoutApproval(t *testing.T) {
	for _, decision := range []Decision{DecisionEscalate, DecisionClarify, "maybe", ""} {
		t.Run(string(decision), func(t *testing.T) {
			sender := &fakeSender{}
			sink := &fakeSink{}
			d := NewDispatcher(sender, sink, nil, nil)

			s := newState("run-1", testRequest())
			_ = s.setSafety(SafetyVerdict{IsSafe: true})
			_ = s.setDraft(Draft{Answer: "draft"})
			_ = s.setFinal(ReviewVerdict{Decision: decision, Reason: "needs human"})

			res, err := d.Dispatch(context.Background(), s)
			require.NoError(t, err)

			assert.Empty(t, sender.sent)
			assert.Equal(t, ActionEscalated, res.Action)
			require.Len(t, sink.escalations, 1)
			assert.Equal(t, "needs human", sink.escalations[0].Reason)
			assert.Equal(t, EscalationSourceReview, sink.escalations[0].Source)
		})
	}
}

func TestDispatcher_SendFailureEscalates(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp 550")}
	sink := &fakeSink{}
	ledger := newFakeLedger()
	d := NewDispatcher(sender, sink, ledger, nil)

	res, err := d.Send(context.Background(), approvedState())

	require.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, ActionEscalated, res.Action)
	assert.Equal(t, "send failed: smtp 550", res.Reason)
	require.Len(t, sink.escalations, 1)
	assert.Equal(t, EscalationSourceSend, sink.escalations[0].Source)
	assert.Equal(t, "Hi John, 15 days.", sink.escalations[0].Draft)
	assert.Equal(t, []string{"msg-1"}, ledger.released, "a failed send must release its ledger claim")
}

func TestDispatcher_SendAndEscalationFailure(t *testing.T) {
	sinkErr := errors.New("redis down")
	d := NewDispatcher(&fakeSender{err: errors.New("smtp 550")}, &fakeSink{err: sinkErr}, nil, nil)

	res, err := d.Send(context.Background(), approvedState())

	require.ErrorIs(t, err, ErrSendFailed)
	require.ErrorIs(t, err, sinkErr)
	assert.Empty(t, res.Action, "no outcome may be reported when nothing was recorded")
}

func TestDispatcher_LedgerDeduplicates(t *testing.T) {
	sender := &fakeSender{}
	ledger := newFakeLedger()
	d := NewDispatcher(sender, &fakeSink{}, ledger, nil)

	first, err := d.Send(context.Background(), approvedState())
	require.NoError(t, err)
	second, err := d.Send(context.Background(), approvedState())
	require.NoError(t, err)

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, ActionSent, first.Action)
	assert.Equal(t, ActionSent, second.Action)
	assert.Equal(t, "reply already sent", second.Reason)
}

func TestDispatcher_LedgerError(t *testing.T) {
	sender := &fakeSender{}
	ledger := newFakeLedger()
	ledger.err = errors.New("redis down")
	d := NewDispatcher(sender, &fakeSink{}, ledger, nil)

	_, err := d.Send(context.Background(), approvedState())

	require.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestDispatcher_EscalationReason(t *testing.T) {
	tests := []struct {
		name   string
		safety *SafetyVerdict
		final  *ReviewVerdict
		want   string
	}{
		{"guard fired", &SafetyVerdict{IsSafe: false, Reason: "abuse"}, nil, "abuse"},
		{"review reason", &SafetyVerdict{IsSafe: true}, &ReviewVerdict{Decision: DecisionEscalate, Reason: "refund"}, "refund"},
		{"review without reason", &SafetyVerdict{IsSafe: true}, &ReviewVerdict{Decision: DecisionEscalate}, "Manager escalated."},
		{"nothing recorded", nil, nil, "No reason provided."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			d := NewDispatcher(&fakeSender{}, sink, nil, nil)

			s := newState("run-1", testRequest())
			s.SafetyDecision = tt.safety
			s.FinalDecision = tt.final

			res, err := d.Escalate(context.Background(), s, EscalationSourceReview)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Reason)
			require.Len(t, sink.escalations, 1)
			assert.Equal(t, "thread-1", sink.escalations[0].ThreadID)
			assert.Equal(t, "What is the visa processing time?", sink.escalations[0].Question)
		})
	}
}

func TestStateWriteOnce(t *testing.T) {
	s := newState("run-1", testRequest())

	require.NoError(t, s.setSafety(SafetyVerdict{IsSafe: true}))
	require.ErrorIs(t, s.setSafety(SafetyVerdict{}), ErrFieldAlreadySet)

	require.NoError(t, s.setDraft(Draft{Answer: "a"}))
	require.ErrorIs(t, s.setDraft(Draft{Answer: "b"}), ErrFieldAlreadySet)
	assert.Equal(t, "a", s.DraftedAnswer)

	require.NoError(t, s.setFinal(ReviewVerdict{Decision: DecisionSend}))
	require.ErrorIs(t, s.setFinal(ReviewVerdict{}), ErrFieldAlreadySet)

	require.NoError(t, s.setResult(Result{Action: ActionSent}))
	require.ErrorIs(t, s.setResult(Result{Action: ActionEscalated}), ErrFieldAlreadySet)
	assert.Equal(t, "run-1", s.result.RunID)
}

func TestRequestValidate(t *testing.T) {
	valid := testRequest()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"question", func(r *Request) { r.Question = "  " }, "question"},
		{"sender", func(r *Request) { r.OriginalMessage.Sender = "" }, "original_message.sender"},
		{"thread", func(r *Request) { r.OriginalMessage.ThreadID = "" }, "original_message.thread_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			tt.mutate(&req)
			err := req.Validate()
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
