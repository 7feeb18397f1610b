package evaluation

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"
)

// Report is the result of one evaluation run.
type Report struct {
	RunID     string           `json:"run_id"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Results   []ScenarioResult `json:"results"`
	Summary   Summary          `json:"summary"`
}

// Summary aggregates scenario results. Accuracies are over scenarios that
// produced a result.
type Summary struct {
	Total            int                          `json:"total"`
	Passed           int                          `json:"passed"`
	Failed           int                          `json:"failed"`
	Errored          int                          `json:"errored"`
	UrgencyAccuracy  float64                      `json:"urgency_accuracy"`
	ActionAccuracy   float64                      `json:"action_accuracy"`
	RoutingAccuracy  float64                      `json:"routing_accuracy"`
	LanguageAccuracy float64                      `json:"language_accuracy"`
	WorkflowPassRate float64                      `json:"workflow_pass_rate"`
	ByCategory       map[Category]CategorySummary `json:"by_category"`
}

// CategorySummary counts results of one category.
type CategorySummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// PassRate is Passed over Total, zero for an empty report.
func (s Summary) PassRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total)
}

// Summarize aggregates results.
func Summarize(results []ScenarioResult) Summary {
	summary := Summary{Total: len(results), ByCategory: map[Category]CategorySummary{}}
	var urgency, action, routing, language, workflow, scored int
	for _, res := range results {
		cat := summary.ByCategory[res.Category]
		cat.Total++
		switch {
		case res.Error != "":
			summary.Errored++
		case res.Pass:
			summary.Passed++
			cat.Passed++
		default:
			summary.Failed++
		}
		summary.ByCategory[res.Category] = cat

		if res.Error != "" {
			continue
		}
		scored++
		urgency += boolInt(res.Classification.Urgency.Match)
		action += boolInt(res.Classification.Action.Match)
		routing += boolInt(res.Classification.Routing.Match)
		language += boolInt(res.Classification.Language.Match)
		workflow += boolInt(res.Workflow.Pass)
	}
	if scored > 0 {
		summary.UrgencyAccuracy = ratio(urgency, scored)
		summary.ActionAccuracy = ratio(action, scored)
		summary.RoutingAccuracy = ratio(routing, scored)
		summary.LanguageAccuracy = ratio(language, scored)
		summary.WorkflowPassRate = ratio(workflow, scored)
	}
	return summary
}

// WriteJSON encodes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := jsonx.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteMarkdown renders a human-readable report.
func (r *Report) WriteMarkdown(w io.Writer) error {
	_, err := io.WriteString(w, r.markdown())
	return err
}

// SaveReport writes the report to path, as JSON when the extension is
// .json and as markdown otherwise.
func SaveReport(r *Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = r.WriteJSON(f)
	} else {
		err = r.WriteMarkdown(f)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (r *Report) markdown() string {
	var b strings.Builder
	s := r.Summary
	fmt.Fprintf(&b, "# Triage Evaluation Report\n\n")
	fmt.Fprintf(&b, "**Run:** %s  \n**Started:** %s  \n**Duration:** %s\n\n",
		r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Duration.Round(time.Millisecond))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Scenarios: %d (passed %d, failed %d, errored %d)\n", s.Total, s.Passed, s.Failed, s.Errored)
	fmt.Fprintf(&b, "- Urgency accuracy: %.0f%%\n", s.UrgencyAccuracy*100)
	fmt.Fprintf(&b, "- Action accuracy: %.0f%%\n", s.ActionAccuracy*100)
	fmt.Fprintf(&b, "- Routing accuracy: %.0f%%\n", s.RoutingAccuracy*100)
	fmt.Fprintf(&b, "- Language accuracy: %.0f%%\n", s.LanguageAccuracy*100)
	fmt.Fprintf(&b, "- Workflow pass rate: %.0f%%\n\n", s.WorkflowPassRate*100)

	if len(s.ByCategory) > 0 {
		b.WriteString("## By Category\n\n| Category | Passed | Total |\n|---|---|---|\n")
		cats := make([]string, 0, len(s.ByCategory))
		for c := range s.ByCategory {
			cats = append(cats, string(c))
		}
		sort.Strings(cats)
		for _, c := range cats {
			cs := s.ByCategory[Category(c)]
			fmt.Fprintf(&b, "| %s | %d | %d |\n", c, cs.Passed, cs.Total)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Scenarios\n\n")
	for _, res := range r.Results {
		status := "PASS"
		switch {
		case res.Error != "":
			status = "ERROR"
		case !res.Pass:
			status = "FAIL"
		}
		fmt.Fprintf(&b, "### %s %s\n\n", status, res.ScenarioID)
		if res.Error != "" {
			fmt.Fprintf(&b, "- Error: %s\n\n", res.Error)
			continue
		}
		for _, name := range []string{"urgency", "action", "routing", "language"} {
			f := res.Classification.Fields()[name]
			if !f.Match {
				fmt.Fprintf(&b, "- %s: expected %s, got %s\n", name, f.Expected, orDash(f.Actual))
			}
		}
		if len(res.Workflow.Agents.Missing) > 0 {
			fmt.Fprintf(&b, "- Missing agents: %s\n", strings.Join(res.Workflow.Agents.Missing, ", "))
		}
		if len(res.Workflow.Agents.Unexpected) > 0 {
			fmt.Fprintf(&b, "- Unexpected agents: %s\n", strings.Join(res.Workflow.Agents.Unexpected, ", "))
		}
		if len(res.Workflow.Tools.Missing) > 0 {
			fmt.Fprintf(&b, "- Missing tools: %s\n", strings.Join(res.Workflow.Tools.Missing, ", "))
		}
		if len(res.Workflow.Tools.Unexpected) > 0 {
			fmt.Fprintf(&b, "- Unexpected tools: %s\n", strings.Join(res.Workflow.Tools.Unexpected, ", "))
		}
		fmt.Fprintf(&b, "- Path: %s\n\n", strings.Join(res.Workflow.AgentsUsed, " -> "))
	}
	return b.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ratio(n, d int) float64 {
	return float64(n) / float64(d)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
