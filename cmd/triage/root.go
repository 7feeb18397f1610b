package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/config"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/di"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// cli holds flags shared by every command.
type cli struct {
	configFile string
	sets       []string
	verbose    bool
	noColor    bool

	out    io.Writer
	errOut io.Writer

	// build is replaced in tests.
	build func(ctx context.Context, cfg *config.Config, opts ...di.Option) (*di.Container, error)
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut, build: di.Build}

	root := &cobra.Command{
		Use:   "triage",
		Short: "Multi-agent support ticket triage",
		Long: fmt.Sprintf(`%s

Translates, classifies and routes customer support tickets to a billing,
technical or general specialist, or escalates them to a human.

%s
  triage serve                          # HTTP API on :8000
  triage run -c CUST-001 -m "I was charged twice"
  triage ingest ./knowledge_base        # index markdown articles
  triage history CUST-001
  triage eval --category billing
  triage prompts show triage_supervisor`,
			bold("triage"), bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.noColor {
				color.NoColor = true
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default ./triage.yaml or ~/.triage/triage.yaml)")
	flags.StringArrayVar(&c.sets, "set", nil, "override a config key, e.g. --set llm.provider=mock")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newServeCommand(c),
		newRunCommand(c),
		newIngestCommand(c),
		newHistoryCommand(c),
		newEvalCommand(c),
		newPromptsCommand(c),
	)
	return root
}

// loadConfig reads the config file and applies --set and extra overrides.
func (c *cli) loadConfig(extra map[string]any) (*config.Config, error) {
	overrides, err := parseSets(c.sets)
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		overrides[k] = v
	}
	if c.verbose {
		overrides["observability.logging.level"] = "debug"
	}

	opts := []config.Option{config.WithOverrides(overrides)}
	if c.configFile != "" {
		opts = append(opts, config.WithFile(c.configFile))
	}
	cfg, meta, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	if meta.File != "" && c.verbose {
		fmt.Fprintf(c.errOut, "%s %s\n", gray("config:"), meta.File)
	}
	for _, note := range meta.Notes {
		fmt.Fprintf(c.errOut, "%s %s\n", yellow("note:"), note)
	}
	return cfg, nil
}

// container loads config and builds the service graph. The caller owns
// Cleanup.
func (c *cli) container(ctx context.Context, extra map[string]any, opts ...di.Option) (*di.Container, error) {
	cfg, err := c.loadConfig(extra)
	if err != nil {
		return nil, err
	}
	container, err := c.build(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return container, nil
}

func (c *cli) cleanup(container *di.Container) {
	if err := container.Cleanup(context.Background()); err != nil {
		fmt.Fprintf(c.errOut, "%s %v\n", yellow("cleanup:"), err)
	}
}

func parseSets(sets []string) (map[string]any, error) {
	out := make(map[string]any, len(sets))
	for _, set := range sets {
		key, value, ok := strings.Cut(set, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", set)
		}
		out[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return out, nil
}
