package prompts

import (
	"context"
	"embed"
	"fmt"
)

//go:embed defaults/*.md
var defaultFS embed.FS

// EmbeddedSource serves the prompts compiled into the binary. Labels are
// ignored: there is one default per template.
type EmbeddedSource struct{}

// NewEmbeddedSource returns the built-in prompt source.
func NewEmbeddedSource() *EmbeddedSource {
	return &EmbeddedSource{}
}

func (s *EmbeddedSource) GetTemplate(_ context.Context, name, label string) (*Template, error) {
	content, err := defaultFS.ReadFile("defaults/" + name + ".md")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &Template{
		Name:    name,
		Label:   normalizeLabel(label),
		Content: string(content),
		Source:  "embedded",
	}, nil
}
