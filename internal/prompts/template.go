package prompts

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
)

// ErrNotFound is returned when a source has no template for a name/label pair.
var ErrNotFound = errors.New("prompt template not found")

// DefaultLabel is the label agents request unless configured otherwise.
const DefaultLabel = "production"

// Template names used by the triage agents.
const (
	Translator    = "triage_translator"
	Supervisor    = "triage_supervisor"
	Billing       = "triage_billing"
	Technical     = "triage_technical"
	General       = "triage_general"
	TicketMatcher = "triage_ticket_matcher"
)

// Names lists every template the workflow needs.
func Names() []string {
	return []string{Translator, Supervisor, Billing, Technical, General, TicketMatcher}
}

// Template is a prompt body with {{variable}} placeholders.
type Template struct {
	Name    string
	Label   string
	Version int
	Content string
	Source  string
}

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Compile substitutes variables. Unknown placeholders are left untouched.
func (t *Template) Compile(vars map[string]string) string {
	if t == nil {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(t.Content, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Variables returns the placeholder names in the template, sorted.
func (t *Template) Variables() []string {
	if t == nil {
		return nil
	}
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(t.Content, -1) {
		seen[m[1]] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source resolves templates by name and label.
type Source interface {
	GetTemplate(ctx context.Context, name, label string) (*Template, error)
}

func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return DefaultLabel
	}
	return label
}
