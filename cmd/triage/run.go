package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/app"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"

	"github.com/spf13/cobra"
)

func newRunCommand(c *cli) *cobra.Command {
	var (
		file       string
		customerID string
		ticketID   string
		messages   []string
		plan       string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Triage one ticket from flags or a JSON file",
		Example: `  triage run -c CUST-001 -m "I was charged twice this month"
  triage run -f ticket.json --json
  cat ticket.json | triage run -f -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := ticketFromFlags(cmd.InOrStdin(), file, customerID, ticketID, plan, messages)
			if err != nil {
				return err
			}
			if err := ticket.Validate(); err != nil {
				return fmt.Errorf("invalid ticket: %w", err)
			}

			container, err := c.container(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer c.cleanup(container)

			svc := app.NewTicketService(container.Triage, container.Store, container.Resolver, container.Checkpoints)
			resp, err := svc.Triage(cmd.Context(), ticket)
			if err != nil {
				return err
			}
			if asJSON {
				data, err := jsonx.MarshalIndent(resp, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, string(data))
				return nil
			}
			printTriage(c.out, resp)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "ticket JSON file, - for stdin")
	flags.StringVarP(&customerID, "customer", "c", "", "customer id")
	flags.StringVarP(&ticketID, "ticket", "t", "", "continue or create this ticket id")
	flags.StringArrayVarP(&messages, "message", "m", nil, "customer message (repeatable)")
	flags.StringVar(&plan, "plan", "", "customer plan")
	flags.BoolVar(&asJSON, "json", false, "print the API response as JSON")
	return cmd
}

// ticketFromFlags reads a ticket file or builds one from flags. Flags fill
// in what the file leaves empty.
func ticketFromFlags(stdin io.Reader, file, customerID, ticketID, plan string, messages []string) (domain.Ticket, error) {
	var ticket domain.Ticket
	if file != "" {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return ticket, fmt.Errorf("read ticket: %w", err)
		}
		if err := jsonx.Unmarshal(data, &ticket); err != nil {
			return ticket, fmt.Errorf("decode ticket: %w", err)
		}
	}
	if customerID != "" {
		ticket.CustomerID = customerID
	}
	if ticketID != "" {
		ticket.TicketID = ticketID
	}
	if plan != "" {
		ticket.CustomerInfo.Plan = plan
	}
	now := time.Now().UTC()
	for _, msg := range messages {
		if strings.TrimSpace(msg) == "" {
			continue
		}
		ticket.Messages = append(ticket.Messages, domain.TicketMessage{Role: domain.RoleCustomer, Content: msg, Timestamp: now})
	}
	if file == "" && len(messages) == 0 {
		return ticket, fmt.Errorf("either --file or at least one --message is required")
	}
	return ticket, nil
}

func printTriage(w io.Writer, resp *app.TriageResponse) {
	fmt.Fprintf(w, "%s %s %s\n", bold("Ticket"), cyan(resp.TicketID), gray("("+resp.Status+")"))
	if resp.Resolution != nil {
		fmt.Fprintf(w, "  %s %s\n", gray("resolution:"), resp.Resolution.Source)
	}
	if len(resp.NodesRun) > 0 {
		fmt.Fprintf(w, "  %s %s\n", gray("path:"), strings.Join(resp.NodesRun, " -> "))
	}
	result := resp.TriageResult
	if result == nil {
		return
	}
	fmt.Fprintf(w, "  %s %s\n", gray("urgency:"), urgencyColor(result.Urgency))
	fmt.Fprintf(w, "  %s %s\n", gray("action:"), bold(string(result.RecommendedAction)))
	info := result.ExtractedInfo
	fmt.Fprintf(w, "  %s %s / %s / %s / %s\n", gray("info:"), info.ProductArea, info.IssueType, info.Sentiment, info.Language)
	for _, article := range result.RelevantArticles {
		fmt.Fprintf(w, "  %s %s %s\n", gray("article:"), article.Title, gray(fmt.Sprintf("(%s, %.2f)", article.ID, article.RelevanceScore)))
	}
	if result.Reasoning != "" {
		fmt.Fprintf(w, "  %s %s\n", gray("reasoning:"), result.Reasoning)
	}
	if result.SuggestedResponse != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", bold("Suggested response"), result.SuggestedResponse)
	}
}

func urgencyColor(u domain.Urgency) string {
	switch u {
	case domain.UrgencyCritical:
		return red(string(u))
	case domain.UrgencyHigh:
		return yellow(string(u))
	default:
		return green(string(u))
	}
}
