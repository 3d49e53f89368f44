package knowledge

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// Chunk splits markdown text into passages on paragraph boundaries. Each
// chunk holds at most size bytes of new text; from the second chunk on it
// is prefixed with up to overlap bytes carried over from the end of the
// previous chunk, cut at a word boundary. Paragraphs longer than size are
// split between words.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var pieces []string
	for _, para := range paragraphs(text) {
		pieces = append(pieces, splitLong(para, size)...)
	}

	var (
		chunks []string
		cur    []string
		curLen int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		body := strings.Join(cur, "\n\n")
		if n := len(chunks); n > 0 && overlap > 0 {
			if t := tail(chunks[n-1], overlap); t != "" {
				body = t + "\n\n" + body
			}
		}
		chunks = append(chunks, body)
		cur, curLen = nil, 0
	}

	for _, p := range pieces {
		add := len(p)
		if len(cur) > 0 {
			add += 2
		}
		if curLen+add > size {
			flush()
			add = len(p)
		}
		cur = append(cur, p)
		curLen += add
	}
	flush()
	return chunks
}

// paragraphs splits on blank lines and drops empty paragraphs.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	var b strings.Builder
	emit := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			emit()
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.TrimRight(line, " \t"))
	}
	emit()
	return out
}

func splitLong(para string, size int) []string {
	if len(para) <= size {
		return []string{para}
	}

	var out []string
	var b strings.Builder
	for _, word := range strings.Fields(para) {
		for len(word) > size {
			if b.Len() > 0 {
				out = append(out, b.String())
				b.Reset()
			}
			cut := size
			for cut > 0 && !utf8.RuneStart(word[cut]) {
				cut--
			}
			if cut == 0 {
				// A single rune wider than size: keep it whole.
				_, cut = utf8.DecodeRuneInString(word)
			}
			out = append(out, word[:cut])
			word = word[cut:]
		}
		if word == "" {
			continue
		}
		if b.Len() > 0 && b.Len()+1+len(word) > size {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// tail returns roughly the last n bytes of s, starting at a word boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	t := s[len(s)-n:]
	if i := strings.IndexAny(t, " \n"); i >= 0 {
		return strings.TrimSpace(t[i+1:])
	}
	for len(t) > 0 && !utf8.RuneStart(t[0]) {
		t = t[1:]
	}
	return t
}
