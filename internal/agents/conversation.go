package agents

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
)

// Conversation renders the ticket messages one per line as
// "[role] (timestamp): text", using the English translation when present.
func Conversation(ticket *domain.Ticket, translation *domain.Translation) string {
	if ticket == nil {
		return ""
	}
	var translated []string
	if translation != nil && !translation.IsEnglish {
		translated = translation.TranslatedMessages
	}
	lines := make([]string, 0, len(ticket.Messages))
	for i, msg := range ticket.Messages {
		text := msg.Content
		if i < len(translated) && strings.TrimSpace(translated[i]) != "" {
			text = translated[i]
		}
		if msg.Timestamp.IsZero() {
			lines = append(lines, fmt.Sprintf("[%s]: %s", msg.Role, text))
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] (%s): %s", msg.Role, msg.Timestamp.UTC().Format(time.RFC3339), text))
	}
	return strings.Join(lines, "\n")
}

// TicketContent is the supervisor's view of a ticket.
func TicketContent(ticket *domain.Ticket, translation *domain.Translation) string {
	if ticket == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Ticket Information\n")
	fmt.Fprintf(&b, "- **Ticket ID:** %s\n", ticket.TicketID)
	fmt.Fprintf(&b, "- **Customer ID:** %s\n", ticket.CustomerID)
	if translation != nil && !translation.IsEnglish && translation.OriginalLanguage != "" {
		fmt.Fprintf(&b, "- **Original Language:** %s\n", translation.OriginalLanguage)
	}

	info := ticket.CustomerInfo
	b.WriteString("\n## Customer Context (from ticket)\n")
	fmt.Fprintf(&b, "- **Plan:** %s\n", orNA(info.Plan))
	fmt.Fprintf(&b, "- **Tenure:** %d months\n", info.TenureMonths)
	fmt.Fprintf(&b, "- **Region:** %s\n", orNA(info.Region))
	fmt.Fprintf(&b, "- **Seats:** %s\n", seats(info.Seats))
	fmt.Fprintf(&b, "- **Previous Tickets:** %d\n", info.PreviousTickets)

	b.WriteString("\n## Conversation\n")
	b.WriteString(Conversation(ticket, translation))
	return b.String()
}

// CustomerInfoLine is the one-line customer summary given to specialists.
func CustomerInfoLine(info domain.CustomerInfo) string {
	return fmt.Sprintf("Plan: %s, Tenure: %d months, Region: %s, Seats: %s, Previous Tickets: %d",
		orNA(info.Plan), info.TenureMonths, orNA(info.Region), seats(info.Seats), info.PreviousTickets)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func seats(n *int) string {
	if n == nil {
		return "N/A"
	}
	return strconv.Itoa(*n)
}
