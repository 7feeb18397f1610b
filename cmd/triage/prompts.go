package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/di"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/prompts"

	"github.com/spf13/cobra"
)

func newPromptsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect and publish agent prompt templates",
	}
	cmd.AddCommand(
		newPromptsListCommand(c),
		newPromptsShowCommand(c),
		newPromptsUploadCommand(c),
	)
	return cmd
}

func newPromptsListCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the templates the workflow uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range prompts.Names() {
				fmt.Fprintln(c.out, name)
			}
			return nil
		},
	}
}

func newPromptsShowCommand(c *cli) *cobra.Command {
	var (
		label    string
		metaOnly bool
	)
	cmd := &cobra.Command{
		Use:   "show [name...]",
		Short: "Resolve templates through the configured prompt provider",
		Example: `  triage prompts show triage_supervisor
  triage prompts show --set prompts.provider=langfuse --label staging`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(nil)
			if err != nil {
				return err
			}
			primary, err := di.NewPromptSource(cfg.Prompts)
			if err != nil {
				return fmt.Errorf("init prompts: %w", err)
			}
			source := prompts.WithFallback(primary, prompts.NewEmbeddedSource(), logging.NewComponentLogger("Prompts"))

			names := args
			if len(names) == 0 {
				names = prompts.Names()
			}
			if label == "" {
				label = cfg.Agents.PromptLabel
			}
			for i, name := range names {
				tmpl, err := source.GetTemplate(cmd.Context(), name, label)
				if err != nil {
					return err
				}
				if i > 0 {
					fmt.Fprintln(c.out)
				}
				printTemplate(c.out, tmpl, !metaOnly)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "prompt label (default agents.prompt_label)")
	cmd.Flags().BoolVar(&metaOnly, "meta", false, "omit template bodies")
	return cmd
}

func newPromptsUploadCommand(c *cli) *cobra.Command {
	var labels []string
	cmd := &cobra.Command{
		Use:   "upload [name...]",
		Short: "Publish the built-in templates to Langfuse",
		Long: `Creates a new Langfuse prompt version for each built-in template and
attaches the given labels. Requires prompts.langfuse.public_key and secret_key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(nil)
			if err != nil {
				return err
			}
			remote, err := di.NewLangfuseSource(cfg.Prompts.Langfuse)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = prompts.Names()
			}
			embedded := prompts.NewEmbeddedSource()
			for _, name := range names {
				tmpl, err := embedded.GetTemplate(cmd.Context(), name, "")
				if err != nil {
					return err
				}
				version, err := remote.Upload(cmd.Context(), name, tmpl.Content, labels)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "%s %s v%d [%s]\n", green("uploaded"), name, version, strings.Join(labels, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&labels, "label", []string{prompts.DefaultLabel}, "labels for the new versions")
	return cmd
}

func printTemplate(w io.Writer, tmpl *prompts.Template, body bool) {
	version := "-"
	if tmpl.Version > 0 {
		version = fmt.Sprintf("v%d", tmpl.Version)
	}
	fmt.Fprintf(w, "%s %s %s\n", bold(tmpl.Name), gray(tmpl.Label+" "+version), cyan(tmpl.Source))
	if vars := tmpl.Variables(); len(vars) > 0 {
		fmt.Fprintf(w, "  %s %s\n", gray("variables:"), strings.Join(vars, ", "))
	}
	if body {
		fmt.Fprintf(w, "%s\n", strings.TrimRight(tmpl.Content, "\n"))
	}
}
