package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPromptSource_Embedded(t *testing.T) {
	src := NewPromptSource("")

	placeholders := map[string][]string{
		TemplateGuard:  {"{question}"},
		TemplateDraft:  {"{question}", "{context_str}", "{first_name}", "{chat_history}"},
		TemplateReview: {"{question}", "{context_str}", "{drafted_answer}"},
	}
	for name, want := range placeholders {
		tmpl, err := src.Template(name)
		require.NoError(t, err, name)
		for _, p := range want {
			assert.Contains(t, tmpl, p, "%s template", name)
		}
	}

	_, err := src.Template("unknown")
	require.ErrorIs(t, err, ErrTemplateMissing)
}

func TestNewPromptSource_Dir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guard.md"), []byte("custom {question}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.md"), []byte("  \n"), 0o644))

	src := NewPromptSource(dir)

	tmpl, err := src.Template(TemplateGuard)
	require.NoError(t, err)
	assert.Equal(t, "custom {question}", tmpl)

	// A configured directory is not backfilled from the built-in templates.
	_, err = src.Template(TemplateDraft)
	require.ErrorIs(t, err, ErrTemplateMissing)

	_, err = src.Template(TemplateReview)
	require.ErrorIs(t, err, ErrTemplateMissing)
}

func TestPromptSourceFS(t *testing.T) {
	src := NewPromptSourceFS(fstest.MapFS{"draft.md": {Data: []byte("d")}})

	tmpl, err := src.Template(TemplateDraft)
	require.NoError(t, err)
	assert.Equal(t, "d", tmpl)
}

func TestMapPromptSource(t *testing.T) {
	src := MapPromptSource{TemplateGuard: "g", TemplateReview: " "}

	tmpl, err := src.Template(TemplateGuard)
	require.NoError(t, err)
	assert.Equal(t, "g", tmpl)

	_, err = src.Template(TemplateReview)
	require.ErrorIs(t, err, ErrTemplateMissing)
	_, err = src.Template(TemplateDraft)
	require.ErrorIs(t, err, ErrTemplateMissing)
}

func TestRenderPrompt(t *testing.T) {
	got := renderPrompt(`Q: {question} {"is_safe": true} {unknown} {question}`, map[string]string{
		"question":    "why {context_str}?",
		"context_str": "ctx",
	})
	// Substituted values are not rescanned and unknown placeholders stay.
	assert.Equal(t, `Q: why {context_str}? {"is_safe": true} {unknown} why {context_str}?`, got)
}
