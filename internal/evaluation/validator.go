package evaluation

import (
	"slices"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
)

// CheckResult compares what ran with what a scenario requires.
type CheckResult struct {
	Pass       bool     `json:"pass"`
	Expected   []string `json:"expected"`
	Missing    []string `json:"missing,omitempty"`
	Unexpected []string `json:"unexpected,omitempty"`
}

// WorkflowValidation is the node and tool check for one run.
type WorkflowValidation struct {
	Pass       bool        `json:"pass"`
	Agents     CheckResult `json:"agents"`
	Tools      CheckResult `json:"tools"`
	AgentsUsed []string    `json:"agents_used"`
	ToolsUsed  []string    `json:"tools_used"`
}

// ValidateWorkflow checks the nodes entered and tools requested against
// the expectation. Names compare case-insensitively.
func ValidateWorkflow(expect WorkflowExpectation, agentsUsed, toolsUsed []string) WorkflowValidation {
	agents := check(expect.AgentsInclude, expect.AgentsExclude, agentsUsed)
	tools := check(expect.ToolsInclude, expect.ToolsExclude, toolsUsed)
	return WorkflowValidation{
		Pass:       agents.Pass && tools.Pass,
		Agents:     agents,
		Tools:      tools,
		AgentsUsed: nonNil(agentsUsed),
		ToolsUsed:  nonNil(toolsUsed),
	}
}

func check(include, exclude, used []string) CheckResult {
	seen := make(map[string]bool, len(used))
	for _, name := range used {
		seen[strings.ToLower(name)] = true
	}
	result := CheckResult{Expected: nonNil(include)}
	for _, name := range include {
		if !seen[strings.ToLower(name)] {
			result.Missing = append(result.Missing, name)
		}
	}
	for _, name := range exclude {
		if seen[strings.ToLower(name)] {
			result.Unexpected = append(result.Unexpected, name)
		}
	}
	result.Pass = len(result.Missing) == 0 && len(result.Unexpected) == 0
	return result
}

// FieldMatch is one scored classification field.
type FieldMatch struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Match    bool   `json:"match"`
}

// Classification scores urgency, action, routing and language.
type Classification struct {
	Urgency  FieldMatch `json:"urgency"`
	Action   FieldMatch `json:"action"`
	Routing  FieldMatch `json:"routing"`
	Language FieldMatch `json:"language"`
}

// Fields lists the scored fields by name.
func (c Classification) Fields() map[string]FieldMatch {
	return map[string]FieldMatch{
		"urgency":  c.Urgency,
		"action":   c.Action,
		"routing":  c.Routing,
		"language": c.Language,
	}
}

// Accuracy is the share of matching fields.
func (c Classification) Accuracy() float64 {
	fields := c.Fields()
	matched := 0
	for _, f := range fields {
		if f.Match {
			matched++
		}
	}
	return float64(matched) / float64(len(fields))
}

// Classify compares a triage result with the expectation. Routing is read
// from the product area the specialist reported. A nil result matches
// nothing.
func Classify(expect TriageExpectation, result *domain.TriageResult) Classification {
	var urgency, action, area, language string
	if result != nil {
		urgency = string(result.Urgency)
		action = string(result.RecommendedAction)
		area = result.ExtractedInfo.ProductArea
		language = result.ExtractedInfo.Language
		if language == "" {
			language = "en"
		}
	}
	return Classification{
		Urgency:  match(string(expect.Urgency), urgency),
		Action:   match(string(expect.Action), action),
		Routing:  match(string(expect.TicketType), area),
		Language: match(expect.ExpectedLanguage(), language),
	}
}

func match(expected, actual string) FieldMatch {
	actual = strings.ToLower(strings.TrimSpace(actual))
	return FieldMatch{
		Expected: expected,
		Actual:   actual,
		Match:    actual != "" && actual == strings.ToLower(expected),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
