package workflow

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Template names.
const (
	TemplateGuard  = "guard"
	TemplateDraft  = "draft"
	TemplateReview = "review"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

// PromptSource supplies instruction templates by name. A missing template
// is reported with ErrTemplateMissing.
type PromptSource interface {
	Template(name string) (string, error)
}

// FSPromptSource reads "<name>.md" templates from a file system.
type FSPromptSource struct {
	fsys fs.FS
}

// NewPromptSource returns the templates in dir, or the built-in templates
// when dir is empty. A configured dir is authoritative: templates missing
// from it are not filled in from the built-in set.
func NewPromptSource(dir string) *FSPromptSource {
	if dir == "" {
		sub, _ := fs.Sub(defaultPrompts, "prompts")
		return &FSPromptSource{fsys: sub}
	}
	return &FSPromptSource{fsys: os.DirFS(filepath.Clean(dir))}
}

// NewPromptSourceFS wraps an arbitrary file system.
func NewPromptSourceFS(fsys fs.FS) *FSPromptSource {
	return &FSPromptSource{fsys: fsys}
}

// Template returns the template text for name.
func (p *FSPromptSource) Template(name string) (string, error) {
	data, err := fs.ReadFile(p.fsys, name+".md")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateMissing, name)
		}
		return "", fmt.Errorf("failed to read template %s: %w", name, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrTemplateMissing, name)
	}
	return string(data), nil
}

// MapPromptSource serves templates from memory.
type MapPromptSource map[string]string

// Template returns the template text for name.
func (m MapPromptSource) Template(name string) (string, error) {
	t, ok := m[name]
	if !ok || strings.TrimSpace(t) == "" {
		return "", fmt.Errorf("%w: %s", ErrTemplateMissing, name)
	}
	return t, nil
}

// renderPrompt substitutes {key} placeholders. Other braces, such as JSON
// examples in the template, are left alone.
func renderPrompt(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
