package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	gmail "google.golang.org/api/gmail/v1"
)

// Inbound is a parsed customer message.
type Inbound struct {
	ID       string
	ThreadID string
	From     string
	Subject  string
	// MessageIDHeader is the RFC 5322 Message-ID used for reply threading.
	MessageIDHeader string
	References      string
	Body            string
	LabelIDs        []string
}

// ErrNoBody is returned when a message has neither a text nor an HTML part.
var ErrNoBody = errors.New("message has no readable body")

// ParseMessage extracts the fields the responder needs from a full message.
func ParseMessage(msg *gmail.Message) (Inbound, error) {
	in := Inbound{
		ID:              msg.Id,
		ThreadID:        msg.ThreadId,
		From:            HeaderValue(msg, "From"),
		Subject:         HeaderValue(msg, "Subject"),
		MessageIDHeader: HeaderValue(msg, "Message-ID"),
		References:      HeaderValue(msg, "References"),
		LabelIDs:        msg.LabelIds,
	}

	body, err := PlainTextBody(msg)
	if err != nil {
		return in, fmt.Errorf("message %s: %w", msg.Id, err)
	}
	in.Body = StripQuoted(body)
	return in, nil
}

// HeaderValue returns the first header named header, compared case-insensitively.
func HeaderValue(m *gmail.Message, header string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, header) {
			return h.Value
		}
	}
	return ""
}

// PlainTextBody returns the text/plain body of msg, falling back to the
// text/html body with markup removed.
func PlainTextBody(msg *gmail.Message) (string, error) {
	if msg == nil || msg.Payload == nil {
		return "", ErrNoBody
	}

	if data := findPart(msg.Payload, "text/plain"); data != "" {
		return decodeBody(data)
	}
	if data := findPart(msg.Payload, "text/html"); data != "" {
		raw, err := decodeBody(data)
		if err != nil {
			return "", err
		}
		return htmlToText(raw), nil
	}
	return "", ErrNoBody
}

func findPart(root *gmail.MessagePart, mimeType string) string {
	var data string
	walkParts(root, func(part *gmail.MessagePart) {
		if data == "" && part.MimeType == mimeType && part.Filename == "" && part.Body != nil && part.Body.Data != "" {
			data = part.Body.Data
		}
	})
	return data
}

// walkParts visits part and all of its descendants depth-first.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, sub := range part.Parts {
		walkParts(sub, fn)
	}
}

// decodeBody decodes Gmail's base64url body data, padded or not.
func decodeBody(data string) (string, error) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return strings.ReplaceAll(string(decoded), "\r\n", "\n"), nil
		}
	}
	return "", errors.New("failed to decode message body")
}

// Elements whose content is never part of the readable body.
var hiddenElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Title:    true,
	atom.Template: true,
	atom.Noscript: true,
}

// Elements that start and end a line of text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.Tr: true, atom.Table: true, atom.Blockquote: true, atom.Pre: true,
	atom.Hr: true, atom.Section: true, atom.Article: true, atom.Header: true,
	atom.Footer: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
}

// htmlToText renders an HTML body as plain text: hidden elements, comments
// and doctypes are dropped, block elements become line breaks and runs of
// whitespace collapse to one space.
func htmlToText(s string) string {
	var w textWriter
	hidden := 0

	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return w.String()
		case html.TextToken:
			if hidden == 0 {
				w.text(string(z.Text()))
			}
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)
			switch {
			case hiddenElements[tag]:
				if tt == html.StartTagToken {
					hidden++
				} else if tt == html.EndTagToken && hidden > 0 {
					hidden--
				}
			case hidden > 0:
			case tag == atom.Br:
				w.lineBreak()
			case tag == atom.Td || tag == atom.Th:
				w.text(" ")
			case blockElements[tag]:
				w.softBreak()
			}
		}
	}
}

// textWriter accumulates rendered text one line at a time.
type textWriter struct {
	b           strings.Builder
	midLine      bool
	pendingBlank bool
}

func (w *textWriter) text(s string) {
	for _, r := range s {
		if unicode.IsSpace(r) {
			w.pendingBlank = w.midLine
			continue
		}
		if w.pendingBlank {
			w.b.WriteByte(' ')
			w.pendingBlank = false
		}
		w.b.WriteRune(r)
		w.midLine = true
	}
}

// softBreak ends the current line, if there is one.
func (w *textWriter) softBreak() {
	if w.midLine {
		w.lineBreak()
	}
}

func (w *textWriter) lineBreak() {
	w.b.WriteByte('\n')
	w.midLine = false
	w.pendingBlank = false
}

// String returns the text with at most one blank line between paragraphs.
func (w *textWriter) String() string {
	lines := strings.Split(w.b.String(), "\n")
	kept := make([]string, 0, len(lines))
	for i, l := range lines {
		if l == "" && i > 0 && lines[i-1] == "" {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

var attribution = regexp.MustCompile(`^On .+ wrote:\s*$`)

// StripQuoted drops the quoted history a mail client appends to a reply:
// everything from an "On ... wrote:" attribution line, and any ">" lines.
func StripQuoted(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if attribution.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
