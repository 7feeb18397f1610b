package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/app"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"

	"github.com/spf13/cobra"
)

func newHistoryCommand(c *cli) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history <customer_id>",
		Short: "Show a customer's closed tickets and activated conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID := args[0]
			container, err := c.container(cmd.Context(), map[string]any{"kb.source": ""})
			if err != nil {
				return err
			}
			defer c.cleanup(container)

			svc := app.NewTicketService(nil, container.Store, container.Resolver, container.Checkpoints)
			records, err := svc.History(cmd.Context(), customerID, limit)
			if err != nil {
				return err
			}
			active, err := svc.ActiveTickets(cmd.Context(), customerID)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := jsonx.MarshalIndent(map[string]any{
					"customer_id": customerID,
					"history":     records,
					"active":      active,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, string(data))
				return nil
			}
			printHistory(c.out, customerID, records, active)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum closed tickets to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printHistory(w io.Writer, customerID string, records []domain.TicketRecord, active []app.ActiveTicket) {
	fmt.Fprintf(w, "%s %s\n\n", bold("Customer"), cyan(customerID))

	fmt.Fprintf(w, "%s (%d)\n", bold("Active"), len(active))
	if len(active) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("none"))
	}
	for _, t := range active {
		fmt.Fprintf(w, "  %s %s %s\n", cyan(t.TicketID), gray(fmt.Sprintf("step %d at %s", t.Step, t.CurrentAgent)), firstLine(t.Summary))
	}

	fmt.Fprintf(w, "\n%s (%d)\n", bold("History"), len(records))
	if len(records) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("none"))
	}
	for _, r := range records {
		closed := "-"
		if r.ClosedAt != nil {
			closed = r.ClosedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "  %s %-8s %-10s %-9s %s\n", cyan(r.TicketID), r.Status, r.TicketType, urgencyColor(r.Urgency), gray(closed))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
