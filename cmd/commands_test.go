package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxreply/internal/workflow"
)

func TestRespondOptions_Request(t *testing.T) {
	ro := &respondOptions{
		question:  "  How long does a visa take?  ",
		sender:    "Jane <jane@example.com>",
		subject:   "Visa",
		threadID:  "t-1",
		messageID: "m-1",
	}

	req := ro.request()
	require.NoError(t, req.Validate())
	assert.Equal(t, workflow.Request{
		Question: "How long does a visa take?",
		OriginalMessage: workflow.OriginalMessage{
			MessageID: "m-1",
			ThreadID:  "t-1",
			Sender:    "Jane <jane@example.com>",
			Subject:   "Visa",
		},
	}, req)
}

func TestRespondOptions_NewThread(t *testing.T) {
	ro := &respondOptions{question: "q", sender: "a@b.c"}

	first, second := ro.request(), ro.request()
	assert.True(t, strings.HasPrefix(first.OriginalMessage.ThreadID, "cli-"))
	assert.NotEqual(t, first.OriginalMessage.ThreadID, second.OriginalMessage.ThreadID)
}

func TestRespondCmd_RejectsEmptyQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"respond", "--sender", "a@b.c"})
	root.SilenceErrors = true

	err := root.Execute()
	require.ErrorIs(t, err, workflow.ErrInvalidRequest)
}

func TestReadAuthCode(t *testing.T) {
	code, err := readAuthCode(strings.NewReader("\n  \n  4/abc-123  \nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "4/abc-123", code)

	_, err = readAuthCode(strings.NewReader("\n\n"))
	require.Error(t, err)
}

func TestCollectKnowledgeFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) string {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
		return path
	}

	faq := write("faq.md")
	policy := write("policies/refunds.TXT")
	write("policies/logo.png")
	write(".git/notes.md")
	explicit := write("extra.html")

	files, err := collectKnowledgeFiles([]string{dir, explicit})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{faq, policy, explicit}, files)

	_, err = collectKnowledgeFiles([]string{filepath.Join(dir, "missing.md")})
	require.Error(t, err)
}
