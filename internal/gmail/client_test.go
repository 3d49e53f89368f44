package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxreply/internal/workflow"
)

// fakeGmail serves the subset of the Gmail REST API the client uses.
type fakeGmail struct {
	mu sync.Mutex

	pages    [][]string
	messages map[string]*gmail.Message
	modified []string
	sent     []*gmail.Message
	watch    *gmail.WatchRequest
	stopped  bool
	failSend bool
}

func (f *fakeGmail) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, &gmail.Profile{EmailAddress: "support@example.com"})
	})

	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		page := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			page = int(tok[0] - '0')
		}
		resp := &gmail.ListMessagesResponse{}
		for _, id := range f.pages[page] {
			resp.Messages = append(resp.Messages, &gmail.Message{Id: id})
		}
		if page+1 < len(f.pages) {
			resp.NextPageToken = string(rune('0' + page + 1))
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		msg, ok := f.messages[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		writeJSON(w, msg)
	})

	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/modify", func(w http.ResponseWriter, r *http.Request) {
		var req gmail.ModifyMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.modified = append(f.modified, r.PathValue("id")+":-"+strings.Join(req.RemoveLabelIds, ","))
		f.mu.Unlock()
		writeJSON(w, &gmail.Message{Id: r.PathValue("id")})
	})

	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		if f.failSend {
			http.Error(w, `{"error":{"code":500,"message":"backend error"}}`, http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var msg gmail.Message
		_ = json.Unmarshal(body, &msg)
		f.mu.Lock()
		f.sent = append(f.sent, &msg)
		f.mu.Unlock()
		writeJSON(w, &gmail.Message{Id: "sent-1", ThreadId: msg.ThreadId})
	})

	mux.HandleFunc("POST /gmail/v1/users/me/watch", func(w http.ResponseWriter, r *http.Request) {
		var req gmail.WatchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.watch = &req
		writeJSON(w, &gmail.WatchResponse{HistoryId: 4242, Expiration: 1767225600000})
	})

	mux.HandleFunc("POST /gmail/v1/users/me/stop", func(w http.ResponseWriter, r *http.Request) {
		f.stopped = true
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeGmail) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.Client(), nil, nil, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return c
}

func customerMessage() *gmail.Message {
	return &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: headers(
				"From", "Jürgen Müller <juergen@example.com>",
				"Subject", "Visa Frage",
				"Message-ID", "<m1@mail.example.com>",
				"References", "<m0@mail.example.com>",
			),
			Body: &gmail.MessagePartBody{Data: b64("Wie lange dauert es?")},
		},
	}
}

func TestClient_Address(t *testing.T) {
	c := newTestClient(t, &fakeGmail{})
	addr, err := c.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "support@example.com", addr)
}

func TestClient_UnreadMessages(t *testing.T) {
	f := &fakeGmail{pages: [][]string{{"a", "b"}, {"c", "d"}, {"e"}}}
	c := newTestClient(t, f)

	ids, err := c.UnreadMessages(context.Background(), "is:unread in:inbox", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)

	ids, err = c.UnreadMessages(context.Background(), "is:unread in:inbox", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestClient_FetchInbound(t *testing.T) {
	f := &fakeGmail{messages: map[string]*gmail.Message{"m1": customerMessage()}}
	c := newTestClient(t, f)

	in, err := c.FetchInbound(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "t1", in.ThreadID)
	assert.Equal(t, "Wie lange dauert es?", in.Body)

	_, err = c.FetchInbound(context.Background(), "missing")
	require.Error(t, err)
}

func TestClient_MarkRead(t *testing.T) {
	f := &fakeGmail{}
	c := newTestClient(t, f)

	require.NoError(t, c.MarkRead(context.Background(), "m1"))
	assert.Equal(t, []string{"m1:-UNREAD"}, f.modified)
}

func TestClient_SendReply(t *testing.T) {
	f := &fakeGmail{messages: map[string]*gmail.Message{"m1": customerMessage()}}
	c := newTestClient(t, f)

	var _ workflow.Sender = c

	id, err := c.SendReply(context.Background(), workflow.Reply{
		To:        "Jürgen Müller <juergen@example.com>",
		Subject:   "Re: Visa Frage",
		Body:      "Hallo Jürgen,\nes dauert 15 Tage.",
		ThreadID:  "t1",
		InReplyTo: "m1",
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)

	require.Len(t, f.sent, 1)
	assert.Equal(t, "t1", f.sent[0].ThreadId)

	raw, err := base64.URLEncoding.DecodeString(f.sent[0].Raw)
	require.NoError(t, err)
	msg := string(raw)
	assert.Contains(t, msg, "In-Reply-To: <m1@mail.example.com>\r\n")
	assert.Contains(t, msg, "References: <m0@mail.example.com> <m1@mail.example.com>\r\n")
	assert.Contains(t, msg, "To: =?utf-8?")
	assert.Contains(t, msg, "\r\n\r\nHallo Jürgen,\r\nes dauert 15 Tage.")
}

func TestClient_SendReply_UnknownOriginalStillSends(t *testing.T) {
	f := &fakeGmail{messages: map[string]*gmail.Message{}}
	c := newTestClient(t, f)

	_, err := c.SendReply(context.Background(), workflow.Reply{
		To: "a@example.com", Subject: "Re: x", Body: "hi", ThreadID: "t9", InReplyTo: "gone",
	})
	require.NoError(t, err)
	require.Len(t, f.sent, 1)

	raw, err := base64.URLEncoding.DecodeString(f.sent[0].Raw)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "In-Reply-To")
}

func TestClient_SendReply_Errors(t *testing.T) {
	f := &fakeGmail{failSend: true}
	c := newTestClient(t, f)
	ctx := context.Background()

	_, err := c.SendReply(ctx, workflow.Reply{Body: "x"})
	require.Error(t, err)
	_, err = c.SendReply(ctx, workflow.Reply{To: "a@example.com"})
	require.Error(t, err)

	_, err = c.SendReply(ctx, workflow.Reply{To: "a@example.com", Subject: "s", Body: "b", ThreadID: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send reply")
}

func TestClient_Watch(t *testing.T) {
	f := &fakeGmail{}
	c := newTestClient(t, f)

	res, err := c.Watch(context.Background(), "projects/acme/topics/inbox", []string{"INBOX"})
	require.NoError(t, err)
	assert.EqualValues(t, 4242, res.HistoryID)
	assert.Equal(t, int64(1767225600000), res.Expiration.UnixMilli())
	require.NotNil(t, f.watch)
	assert.Equal(t, "projects/acme/topics/inbox", f.watch.TopicName)
	assert.Equal(t, []string{"INBOX"}, f.watch.LabelIds)

	require.NoError(t, c.StopWatch(context.Background()))
	assert.True(t, f.stopped)
}

func TestBuildReply(t *testing.T) {
	raw := BuildReply(workflow.Reply{
		To:      "plain@example.com",
		Subject: "Re: Hello\r\nBcc: evil@example.com",
		Body:    "line1\nline2",
	}, "", "")

	assert.True(t, strings.HasPrefix(raw, "To: <plain@example.com>\r\n"))
	assert.Contains(t, raw, "Subject: Re: Hello  Bcc: evil@example.com\r\n")
	assert.NotContains(t, raw, "\r\nBcc:")
	assert.NotContains(t, raw, "In-Reply-To")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline1\r\nline2"))
}

func TestEncodeRFC2047(t *testing.T) {
	assert.Equal(t, "Hello", encodeRFC2047("Hello"))
	assert.Equal(t, "=?UTF-8?b?R3LDvMOfZQ==?=", encodeRFC2047("Grüße"))
}

func TestBareAddress(t *testing.T) {
	assert.Equal(t, "jane@example.com", BareAddress(`"Jane Roe" <jane@example.com>`))
	assert.Equal(t, "jane@example.com", BareAddress("jane@example.com"))
	assert.Equal(t, "not an address", BareAddress(" not an address "))
	assert.Equal(t, "", BareAddress(""))
}
