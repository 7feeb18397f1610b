package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"
)

// CustomerLookupName is the tool name exposed to the supervisor.
const CustomerLookupName = "customer_lookup"

// CustomerDirectory resolves customer profiles. A missing customer is
// reported as storage.ErrNotFound or a nil profile.
type CustomerDirectory interface {
	LookupCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
}

type customerLookup struct {
	directory CustomerDirectory
}

// NewCustomerLookup builds the customer_lookup tool.
func NewCustomerLookup(directory CustomerDirectory) ports.ToolExecutor {
	return &customerLookup{directory: directory}
}

func (t *customerLookup) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        CustomerLookupName,
		Description: "Look up customer information including plan type, tenure, previous tickets, and account notes. Use customer_id from the ticket.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"customer_id": {Type: "string", Description: "Customer ID to look up"},
			},
			Required: []string{"customer_id"},
		},
	}
}

func (t *customerLookup) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	customerID := strings.TrimSpace(call.StringArg("customer_id"))
	if customerID == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'customer_id'")}, nil
	}

	customer, err := t.directory.LookupCustomer(ctx, customerID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && customer == nil) {
		return &ports.ToolResult{CallID: call.ID, Content: fmt.Sprintf("Customer %s not found.", customerID)}, nil
	}
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("lookup customer %s: %w", customerID, err)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: FormatCustomer(customer)}, nil
}

// FormatCustomer renders a profile the way the supervisor prompt expects.
func FormatCustomer(c *domain.Customer) string {
	seats := c.Seats
	if seats <= 0 {
		seats = 1
	}
	notes := c.Notes
	if notes == "" {
		notes = "None"
	}
	region := c.Region
	if region == "" {
		region = "N/A"
	}
	return fmt.Sprintf("**Customer:** %s\n**Email:** %s\n**Plan:** %s\n**Tenure:** %d months\n**Region:** %s\n**Seats:** %d\n**Previous Tickets:** %d\n**Notes:** %s",
		c.Name, c.Email, c.Plan, c.TenureMonths, region, seats, c.PreviousTickets, notes)
}
