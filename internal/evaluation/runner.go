package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/triage"

	"golang.org/x/sync/errgroup"
)

// Triager runs one ticket through the workflow.
type Triager interface {
	Triage(ctx context.Context, ticket domain.Ticket) (*triage.Outcome, error)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Tools supplies the tools requested per session. Without it tool
	// expectations are checked against an empty list.
	Tools *ToolRecorder
	// Concurrency caps scenarios in flight, 1 by default.
	Concurrency int
	// Timeout bounds each scenario; zero means no limit.
	Timeout time.Duration
	Logger  logging.Logger
	Now     func() time.Time
}

// Runner replays scenarios through a Triager.
type Runner struct {
	triager     Triager
	tools       *ToolRecorder
	concurrency int
	timeout     time.Duration
	logger      logging.Logger
	now         func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(triager Triager, opts RunnerOptions) *Runner {
	r := &Runner{
		triager:     triager,
		tools:       opts.Tools,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	if logging.IsNil(opts.Logger) {
		r.logger = logging.NewComponentLogger("Evaluation")
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// ScenarioResult is the scored outcome of one scenario.
type ScenarioResult struct {
	ScenarioID     string               `json:"scenario_id"`
	Name           string               `json:"name"`
	Category       Category             `json:"category"`
	TicketID       string               `json:"ticket_id,omitempty"`
	Duration       time.Duration        `json:"duration"`
	Pass           bool                 `json:"pass"`
	Error          string               `json:"error,omitempty"`
	Persistence    string               `json:"persistence,omitempty"`
	Result         *domain.TriageResult `json:"result,omitempty"`
	Classification Classification       `json:"classification"`
	Workflow       WorkflowValidation   `json:"workflow"`
}

// Run executes every scenario. A failing scenario is recorded in the
// report; only cancellation of ctx fails the run.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*Report, error) {
	if r.triager == nil {
		return nil, fmt.Errorf("evaluation runner has no triager")
	}
	started := r.now()
	runID := started.UTC().Format("20060102-150405")
	results := make([]ScenarioResult, len(scenarios))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, scenario := range scenarios {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.runScenario(gctx, scenario, runID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     runID,
		StartedAt: started,
		Duration:  r.now().Sub(started),
		Results:   results,
		Summary:   Summarize(results),
	}
	r.logger.Info("evaluation %s: %d/%d scenarios passed", runID, report.Summary.Passed, report.Summary.Total)
	return report, nil
}

func (r *Runner) runScenario(ctx context.Context, scenario Scenario, runID string) ScenarioResult {
	res := ScenarioResult{
		ScenarioID: scenario.ID,
		Name:       scenario.Name,
		Category:   scenario.Category,
	}
	ticket := scenario.Ticket(runID)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.logger.Debug("running scenario %s", scenario.ID)
	start := r.now()
	outcome, err := r.triager.Triage(ctx, ticket)
	res.Duration = r.now().Sub(start)

	var toolsUsed []string
	if r.tools != nil {
		toolsUsed = r.tools.Take(ticket.CustomerID)
	}
	if err == nil && outcome == nil {
		err = fmt.Errorf("triage returned no outcome")
	}
	if err != nil {
		r.logger.Warn("scenario %s failed: %v", scenario.ID, err)
		res.Error = err.Error()
		res.Classification = Classify(scenario.Expected, nil)
		res.Workflow = ValidateWorkflow(scenario.Workflow, nil, toolsUsed)
		return res
	}

	res.TicketID = outcome.TicketID
	res.Persistence = outcome.Persistence
	res.Result = outcome.Result
	res.Classification = Classify(scenario.Expected, outcome.Result)
	res.Workflow = ValidateWorkflow(scenario.Workflow, outcome.Run.Order, toolsUsed)
	res.Pass = res.Workflow.Pass && res.Classification.Accuracy() == 1
	return res
}
