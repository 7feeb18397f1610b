package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/di"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/evaluation"

	"github.com/spf13/cobra"
)

// exitEvalBelowThreshold is returned when the pass rate misses --min-pass-rate.
const exitEvalBelowThreshold = 3

type evalOptions struct {
	categories  []string
	scenarios   string
	concurrency int
	timeout     time.Duration
	output      string
	asJSON      bool
	minPassRate float64
	list        bool
}

func newEvalCommand(c *cli) *cobra.Command {
	opts := evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Replay evaluation scenarios and score the workflow",
		Long: `Runs curated tickets through the full workflow and checks the urgency,
action, routing and language of each result, plus which nodes and tools ran.`,
		Example: `  triage eval
  triage eval --category billing --category escalation
  triage eval --scenarios my_scenarios.yaml --output report.md --min-pass-rate 0.8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := loadEvalScenarios(opts)
			if err != nil {
				return err
			}
			if opts.list {
				listScenarios(c.out, scenarios)
				return nil
			}
			if len(scenarios) == 0 {
				return fmt.Errorf("no scenarios match %v", opts.categories)
			}

			recorder := evaluation.NewToolRecorder()
			container, err := c.container(cmd.Context(), nil, di.WithLLMMiddleware(recorder.Wrap))
			if err != nil {
				return err
			}
			defer c.cleanup(container)

			fmt.Fprintf(c.errOut, "%s %d scenarios against %s/%s\n", gray("running"), len(scenarios), container.Config.LLM.Provider, container.LLM.Model())
			runner := evaluation.NewRunner(container.Triage, evaluation.RunnerOptions{
				Tools:       recorder,
				Concurrency: opts.concurrency,
				Timeout:     opts.timeout,
			})
			report, err := runner.Run(cmd.Context(), scenarios)
			if err != nil {
				return err
			}

			if opts.asJSON {
				if err := report.WriteJSON(c.out); err != nil {
					return err
				}
			} else {
				printEvalReport(c.out, report)
			}
			if opts.output != "" {
				if err := evaluation.SaveReport(report, opts.output); err != nil {
					return err
				}
				fmt.Fprintf(c.errOut, "%s %s\n", gray("report written to"), opts.output)
			}

			if rate := report.Summary.PassRate(); rate < opts.minPassRate {
				return &ExitCodeError{
					Code: exitEvalBelowThreshold,
					Err:  fmt.Errorf("pass rate %.0f%% is below %.0f%%", rate*100, opts.minPassRate*100),
				}
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVar(&opts.categories, "category", nil, "only run this category (repeatable)")
	flags.StringVar(&opts.scenarios, "scenarios", "", "YAML scenario file instead of the bundled set")
	flags.IntVar(&opts.concurrency, "concurrency", 1, "scenarios run in parallel")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "per-scenario timeout")
	flags.StringVarP(&opts.output, "output", "o", "", "write the report to a .md or .json file")
	flags.BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	flags.Float64Var(&opts.minPassRate, "min-pass-rate", 0, "exit with code 3 below this pass rate (0..1)")
	flags.BoolVar(&opts.list, "list", false, "list scenarios without running them")
	return cmd
}

func loadEvalScenarios(opts evalOptions) ([]evaluation.Scenario, error) {
	var (
		scenarios []evaluation.Scenario
		err       error
	)
	if opts.scenarios != "" {
		scenarios, err = evaluation.LoadScenarioFile(opts.scenarios)
	} else {
		scenarios, err = evaluation.DefaultScenarios()
	}
	if err != nil {
		return nil, err
	}
	return evaluation.FilterByCategory(scenarios, opts.categories), nil
}

func listScenarios(w io.Writer, scenarios []evaluation.Scenario) {
	for _, s := range scenarios {
		fmt.Fprintf(w, "%-34s %-13s %s\n", cyan(s.ID), s.Category, s.Name)
	}
}

func printEvalReport(w io.Writer, report *evaluation.Report) {
	for _, res := range report.Results {
		status := green("PASS")
		switch {
		case res.Error != "":
			status = red("ERROR")
		case !res.Pass:
			status = yellow("FAIL")
		}
		fmt.Fprintf(w, "%-5s %s %s\n", status, res.ScenarioID, gray(res.Duration.Round(time.Millisecond).String()))
		if res.Error != "" {
			fmt.Fprintf(w, "      %s\n", res.Error)
			continue
		}
		fields := res.Classification.Fields()
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if f := fields[name]; !f.Match {
				fmt.Fprintf(w, "      %s expected %s, got %s\n", name, f.Expected, f.Actual)
			}
		}
		for _, missing := range append(res.Workflow.Agents.Missing, res.Workflow.Tools.Missing...) {
			fmt.Fprintf(w, "      missing %s\n", missing)
		}
		for _, unexpected := range append(res.Workflow.Agents.Unexpected, res.Workflow.Tools.Unexpected...) {
			fmt.Fprintf(w, "      unexpected %s\n", unexpected)
		}
	}

	s := report.Summary
	fmt.Fprintf(w, "\n%s %d/%d passed", bold("Summary:"), s.Passed, s.Total)
	if s.Errored > 0 {
		fmt.Fprintf(w, ", %s", red(fmt.Sprintf("%d errored", s.Errored)))
	}
	fmt.Fprintf(w, "\n  urgency %.0f%%  action %.0f%%  routing %.0f%%  language %.0f%%  workflow %.0f%%\n",
		s.UrgencyAccuracy*100, s.ActionAccuracy*100, s.RoutingAccuracy*100, s.LanguageAccuracy*100, s.WorkflowPassRate*100)
}
