package prompts

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSource reads templates from a YAML document of the form
//
//	triage_supervisor:
//	  production: |
//	    You are ...
//	  staging: |
//	    ...
type FileSource struct {
	path      string
	templates map[string]map[string]string
}

// NewFileSource loads path once. Edits require a restart.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	templates := map[string]map[string]string{}
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	return &FileSource{path: path, templates: templates}, nil
}

func (s *FileSource) GetTemplate(_ context.Context, name, label string) (*Template, error) {
	label = normalizeLabel(label)
	labels, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.path)
	}
	content, ok := labels[label]
	if !ok || strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: %s@%s in %s", ErrNotFound, name, label, s.path)
	}
	return &Template{Name: name, Label: label, Content: content, Source: "file"}, nil
}
