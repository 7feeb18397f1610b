// Package evaluation replays curated support tickets through the triage
// workflow and scores the classification and the path the graph took.
package evaluation

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"

	"gopkg.in/yaml.v3"
)

// Category groups scenarios for filtering and reporting.
type Category string

const (
	CategoryBilling      Category = "billing"
	CategoryTechnical    Category = "technical"
	CategoryGeneral      Category = "general"
	CategoryEscalation   Category = "escalation"
	CategoryMultilingual Category = "multilingual"
	CategoryEdgeCase     Category = "edge_case"
)

// Scenario is one ticket with the outcome a correct triage should produce.
type Scenario struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	Category    Category            `yaml:"category"`
	Description string              `yaml:"description,omitempty"`
	Messages    []ScenarioMessage   `yaml:"messages"`
	Customer    CustomerProfile     `yaml:"customer"`
	Workflow    WorkflowExpectation `yaml:"workflow"`
	Expected    TriageExpectation   `yaml:"expected"`
}

// ScenarioMessage is one ticket message.
type ScenarioMessage struct {
	Role      string    `yaml:"role"`
	Content   string    `yaml:"content"`
	Timestamp time.Time `yaml:"timestamp,omitempty"`
}

// CustomerProfile is the customer context sent with the ticket.
type CustomerProfile struct {
	Plan            string `yaml:"plan"`
	TenureMonths    int    `yaml:"tenure_months"`
	Region          string `yaml:"region,omitempty"`
	Seats           *int   `yaml:"seats,omitempty"`
	PreviousTickets int    `yaml:"previous_tickets"`
}

// WorkflowExpectation lists the nodes and tools that must and must not run.
type WorkflowExpectation struct {
	AgentsInclude []string `yaml:"agents_include,omitempty"`
	AgentsExclude []string `yaml:"agents_exclude,omitempty"`
	ToolsInclude  []string `yaml:"tools_include,omitempty"`
	ToolsExclude  []string `yaml:"tools_exclude,omitempty"`
}

// TriageExpectation is the classification a correct run produces.
// Sentiment and KBArticles are reported but not scored.
type TriageExpectation struct {
	Urgency    domain.Urgency           `yaml:"urgency"`
	Action     domain.RecommendedAction `yaml:"action"`
	TicketType domain.TicketType        `yaml:"ticket_type"`
	Language   string                   `yaml:"language,omitempty"`
	Sentiment  string                   `yaml:"sentiment,omitempty"`
	KBArticles bool                     `yaml:"kb_articles,omitempty"`
}

// ExpectedLanguage defaults to English.
func (e TriageExpectation) ExpectedLanguage() string {
	if e.Language == "" {
		return "en"
	}
	return e.Language
}

// Validate checks that the scenario can be run and scored.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("scenario id is required")
	}
	if strings.Contains(s.ID, ":") {
		return fmt.Errorf("scenario %s: id must not contain ':'", s.ID)
	}
	if len(s.Messages) == 0 {
		return fmt.Errorf("scenario %s: at least one message is required", s.ID)
	}
	for i, msg := range s.Messages {
		role := domain.MessageRole(msg.Role)
		if role != domain.RoleCustomer && role != domain.RoleAgent {
			return fmt.Errorf("scenario %s: message %d has unknown role %q", s.ID, i, msg.Role)
		}
	}
	if _, ok := domain.ParseUrgency(string(s.Expected.Urgency)); !ok {
		return fmt.Errorf("scenario %s: unknown urgency %q", s.ID, s.Expected.Urgency)
	}
	if _, ok := domain.ParseAction(string(s.Expected.Action)); !ok {
		return fmt.Errorf("scenario %s: unknown action %q", s.ID, s.Expected.Action)
	}
	if _, ok := domain.ParseTicketType(string(s.Expected.TicketType)); !ok {
		return fmt.Errorf("scenario %s: unknown ticket type %q", s.ID, s.Expected.TicketType)
	}
	return nil
}

// Ticket builds the inbound ticket for one run. Ticket and customer ids are
// unique per scenario and run so reruns never resume an old thread.
func (s Scenario) Ticket(runID string) domain.Ticket {
	ticket := domain.Ticket{
		TicketID:   fmt.Sprintf("eval-%s-%s", s.ID, runID),
		CustomerID: fmt.Sprintf("eval-customer-%s-%s", s.ID, runID),
		CustomerInfo: domain.CustomerInfo{
			Plan:            s.Customer.Plan,
			TenureMonths:    s.Customer.TenureMonths,
			Region:          s.Customer.Region,
			Seats:           s.Customer.Seats,
			PreviousTickets: s.Customer.PreviousTickets,
		},
		Metadata: map[string]any{"scenario": s.ID, "category": string(s.Category)},
	}
	for _, msg := range s.Messages {
		ticket.Messages = append(ticket.Messages, domain.TicketMessage{
			Role:      domain.MessageRole(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	return ticket
}

//go:embed scenarios/*.yaml
var builtinScenarios embed.FS

// DefaultScenarios returns the bundled scenario set.
func DefaultScenarios() ([]Scenario, error) {
	return LoadScenarios(builtinScenarios, "scenarios")
}

// LoadScenarios reads every *.yaml file under dir of fsys. Files are read
// in name order; scenario ids must be unique.
func LoadScenarios(fsys fs.FS, dir string) ([]Scenario, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext := path.Ext(entry.Name()); ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var scenarios []Scenario
	seen := map[string]string{}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		batch, err := decodeScenarios(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		for _, s := range batch {
			if prev, ok := seen[s.ID]; ok {
				return nil, fmt.Errorf("duplicate scenario %s in %s and %s", s.ID, prev, name)
			}
			seen[s.ID] = name
			scenarios = append(scenarios, s)
		}
	}
	return scenarios, nil
}

// LoadScenarioFile reads scenarios from a single YAML file.
func LoadScenarioFile(file string) ([]Scenario, error) {
	if strings.TrimSpace(file) == "" {
		return nil, fmt.Errorf("scenario path is required")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return decodeScenarios(data)
}

func decodeScenarios(data []byte) ([]Scenario, error) {
	var scenarios []Scenario
	if err := yaml.Unmarshal(data, &scenarios); err != nil {
		return nil, err
	}
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return scenarios, nil
}

// FilterByCategory keeps scenarios whose category is listed. An empty list
// keeps everything.
func FilterByCategory(scenarios []Scenario, categories []string) []Scenario {
	if len(categories) == 0 {
		return scenarios
	}
	wanted := make(map[Category]bool, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "edge_cases" {
			c = string(CategoryEdgeCase)
		}
		wanted[Category(c)] = true
	}
	var out []Scenario
	for _, s := range scenarios {
		if wanted[s.Category] {
			out = append(out, s)
		}
	}
	return out
}
