package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index knowledge base articles",
		Long: `Reads markdown articles with YAML frontmatter (id, title, category, tags),
splits them into token chunks, embeds them and writes them to the vector
store. The directory defaults to kb.source.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(nil)
			if err != nil {
				return err
			}
			dir := cfg.KB.Source
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no article directory given and kb.source is empty")
			}

			// Startup seeding would index the same directory twice.
			cfg.KB.Source = ""
			container, err := c.build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer c.cleanup(container)

			stats, err := container.Ingest(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %d articles as %d chunks from %s (index now holds %d chunks)\n",
				green("ingested"), stats.Articles, stats.Chunks, dir, container.KBStore.Count())
			return nil
		},
	}
	return cmd
}
