package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/di"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/app"
	serverhttp "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCommand(c *cli) *cobra.Command {
	var (
		host  string
		port  int
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := map[string]any{}
			if cmd.Flags().Changed("host") {
				extra["server.host"] = host
			}
			if cmd.Flags().Changed("port") {
				extra["server.port"] = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			container, err := c.container(ctx, extra)
			if err != nil {
				return err
			}
			defer c.cleanup(container)

			router := newRouter(container, debug)
			fmt.Fprintf(c.out, "%s triage API on %s (llm=%s/%s)\n",
				green("serving"), container.Config.Server.Addr(), container.Config.LLM.Provider, container.Config.LLM.Model)
			return serverhttp.Serve(ctx, container.Config.Server, router)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&debug, "debug", false, "gin debug mode")
	return cmd
}

// newRouter assembles the HTTP layer over a built container.
func newRouter(container *di.Container, debug bool) *gin.Engine {
	cfg := container.Config
	tickets := app.NewTicketService(container.Triage, container.Store, container.Resolver, container.Checkpoints)

	health := app.NewHealthChecker()
	health.RegisterProbe(app.NewLLMProbe(cfg.LLM.Provider, container.LLM.Model()))
	health.RegisterProbe(app.NewStoreProbe(container.Store, cfg.Database.Provider))
	health.RegisterProbe(app.NewCheckpointProbe(container.Checkpoints, cfg.Checkpoint.Provider))
	health.RegisterProbe(app.NewKnowledgeBaseProbe(container.KBStore))

	return serverhttp.NewRouter(serverhttp.RouterDeps{
		Tickets:   tickets,
		Health:    health,
		Metrics:   container.Metrics,
		Tracer:    container.Tracer,
		Server:    cfg.Server,
		StartedAt: container.StartedAt,
		Debug:     debug,
	})
}
