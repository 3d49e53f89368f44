package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func headers(kv ...string) []*gmail.MessagePartHeader {
	var hs []*gmail.MessagePartHeader
	for i := 0; i+1 < len(kv); i += 2 {
		hs = append(hs, &gmail.MessagePartHeader{Name: kv[i], Value: kv[i+1]})
	}
	return hs
}

func TestHeaderValue(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{Headers: headers(
		"From", "Jane <jane@example.com>",
		"Message-Id", "<abc@mail.example.com>",
	)}}

	assert.Equal(t, "Jane <jane@example.com>", HeaderValue(msg, "From"))
	assert.Equal(t, "<abc@mail.example.com>", HeaderValue(msg, "Message-ID"))
	assert.Empty(t, HeaderValue(msg, "Subject"))
	assert.Empty(t, HeaderValue(&gmail.Message{}, "From"))
	assert.Empty(t, HeaderValue(nil, "From"))
}

func TestPlainTextBody(t *testing.T) {
	tests := []struct {
		name    string
		payload *gmail.MessagePart
		want    string
		wantErr bool
	}{
		{
			name:    "single part",
			payload: &gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("Hello\r\nthere")}},
			want:    "Hello\nthere",
		},
		{
			name: "multipart prefers plain",
			payload: &gmail.MessagePart{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>html</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain")}},
			}},
			want: "plain",
		},
		{
			name: "nested html fallback",
			payload: &gmail.MessagePart{MimeType: "multipart/mixed", Parts: []*gmail.MessagePart{
				{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64(
						"<style>p{}</style><p>Hi&nbsp;team,</p><p>When is my <b>visa</b> ready?<br>Thanks</p>")}},
				}},
			}},
			want: "Hi team,\nWhen is my visa ready?\nThanks",
		},
		{
			name: "text attachment ignored",
			payload: &gmail.MessagePart{MimeType: "multipart/mixed", Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Filename: "notes.txt", Body: &gmail.MessagePartBody{Data: b64("attachment")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("body")}},
			}},
			want: "body",
		},
		{
			name:    "unpadded base64url",
			payload: &gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte("ab"))}},
			want:    "ab",
		},
		{
			name:    "no body",
			payload: &gmail.MessagePart{MimeType: "image/png"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlainTextBody(&gmail.Message{Payload: tt.payload})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoBody)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "mismatched end tag inside script",
			html: "<script>var s = '</style>'; alert(1);</script><p>Hello</p>",
			want: "Hello",
		},
		{
			name: "style after script",
			html: "<script>x()</script>Visible<style>p { color: red }</style> text",
			want: "Visible text",
		},
		{
			name: "comment",
			html: "<!-- <p>internal note</p> -->What are the fees?",
			want: "What are the fees?",
		},
		{
			name: "cdata",
			html: "<![CDATA[ hidden ]]>When is my appointment?",
			want: "When is my appointment?",
		},
		{
			name: "document with head",
			html: "<!DOCTYPE html><html><head><title>Mail</title></head><body><div>first</div><div>second</div></body></html>",
			want: "first\nsecond",
		},
		{
			name: "entities",
			html: "<p>Fees &amp; timing &lt;2 weeks&gt; &quot;urgent&quot;</p>",
			want: `Fees & timing <2 weeks> "urgent"`,
		},
		{
			name: "source whitespace collapses",
			html: "<p>my passport\n    expired</p>\n\n<p>  what now?  </p>",
			want: "my passport expired\nwhat now?",
		},
		{
			name: "repeated breaks keep one blank line",
			html: "Hello<br><br><br><br>Regards",
			want: "Hello\n\nRegards",
		},
		{
			name: "list and table",
			html: "<ul><li>passport</li><li>photo</li></ul><table><tr><td>fee</td><td>60</td></tr></table>",
			want: "passport\nphoto\nfee 60",
		},
		{
			name: "unterminated script hides the rest",
			html: "Question<script>never closed <p>x</p>",
			want: "Question",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, htmlToText(tt.html))
		})
	}
}

func TestStripQuoted(t *testing.T) {
	body := "Thanks, one more question:\nwhat about fees?\n\nOn Mon, 2 Mar 2026 at 10:00, Support <support@example.com> wrote:\n> Processing takes 15 days.\n> Regards"
	assert.Equal(t, "Thanks, one more question:\nwhat about fees?", StripQuoted(body))

	assert.Equal(t, "top\nbottom", StripQuoted("top\n> quoted\nbottom"))
	assert.Equal(t, "", StripQuoted("> only quoted"))
}

func TestParseMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: headers(
				"From", `"John Doe" <john@example.com>`,
				"Subject", "Visa question",
				"Message-ID", "<m1@mail.example.com>",
				"References", "<m0@mail.example.com>",
			),
			Body: &gmail.MessagePartBody{Data: b64("How long does it take?\n> old")},
		},
	}

	in, err := ParseMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, Inbound{
		ID:              "m1",
		ThreadID:        "t1",
		From:            `"John Doe" <john@example.com>`,
		Subject:         "Visa question",
		MessageIDHeader: "<m1@mail.example.com>",
		References:      "<m0@mail.example.com>",
		Body:            "How long does it take?",
		LabelIDs:        []string{"INBOX", "UNREAD"},
	}, in)

	_, err = ParseMessage(&gmail.Message{Id: "m2", Payload: &gmail.MessagePart{}})
	require.ErrorIs(t, err, ErrNoBody)
}
