// Package graph runs the triage workflow: translator, supervisor, then one
// specialist or the escalation node, checkpointing after every node.
package graph

import (
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
)

// Turn is one conversation entry of the shared state.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is shared by every node of one invocation. Agents write only their
// own field; Iteration and CurrentAgent belong to the workflow.
type State struct {
	Messages           []Turn                     `json:"messages"`
	Ticket             *domain.Ticket             `json:"ticket"`
	Translation        *domain.Translation        `json:"translation,omitempty"`
	SupervisorDecision *domain.SupervisorDecision `json:"supervisor_decision,omitempty"`
	TriageResult       *domain.TriageResult       `json:"triage_result,omitempty"`
	Iteration          int                        `json:"iteration"`
	CurrentAgent       string                     `json:"current_agent"`
}

// NewState seeds a state from a fresh ticket.
func NewState(ticket domain.Ticket) *State {
	t := cloneTicket(ticket)
	state := &State{Ticket: &t}
	for _, msg := range t.Messages {
		state.Messages = append(state.Messages, turnFromMessage(msg))
	}
	return state
}

// ResumeState continues a checkpointed conversation with ticket. Prior
// turns come first; ticket messages not seen before are appended to both
// the turns and the ticket. Outputs of the previous pass are cleared.
func ResumeState(prior *State, ticket domain.Ticket) *State {
	if prior == nil || prior.Ticket == nil {
		return NewState(ticket)
	}
	state := prior.Clone()

	merged := cloneTicket(ticket)
	merged.Messages = append([]domain.TicketMessage(nil), prior.Ticket.Messages...)
	seen := make(map[string]bool, len(merged.Messages))
	for _, msg := range merged.Messages {
		seen[messageKey(msg)] = true
	}
	for _, msg := range ticket.Messages {
		key := messageKey(msg)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged.Messages = append(merged.Messages, msg)
		state.Messages = append(state.Messages, turnFromMessage(msg))
	}
	if merged.TicketID == "" {
		merged.TicketID = prior.Ticket.TicketID
	}

	state.Ticket = &merged
	state.Translation = nil
	state.SupervisorDecision = nil
	state.TriageResult = nil
	state.Iteration = 0
	state.CurrentAgent = ""
	return state
}

// AppendAI records an ai turn.
func (s *State) AppendAI(content string, at time.Time) {
	s.Messages = append(s.Messages, Turn{Role: domain.ChatRoleAI, Content: content, Timestamp: at})
}

// LastMessage returns the newest turn content.
func (s *State) LastMessage() string {
	if s == nil || len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}

// Language returns the detected ticket language, "en" when unknown.
func (s *State) Language() string {
	if s != nil && s.Translation != nil && s.Translation.OriginalLanguage != "" {
		return s.Translation.OriginalLanguage
	}
	return "en"
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Turn(nil), s.Messages...)
	if s.Ticket != nil {
		t := cloneTicket(*s.Ticket)
		out.Ticket = &t
	}
	if s.Translation != nil {
		tr := *s.Translation
		tr.OriginalMessages = append([]string(nil), s.Translation.OriginalMessages...)
		if s.Translation.TranslatedMessages != nil {
			tr.TranslatedMessages = append([]string(nil), s.Translation.TranslatedMessages...)
		}
		out.Translation = &tr
	}
	if s.SupervisorDecision != nil {
		d := *s.SupervisorDecision
		out.SupervisorDecision = &d
	}
	if s.TriageResult != nil {
		r := *s.TriageResult
		r.RelevantArticles = append([]domain.Article(nil), s.TriageResult.RelevantArticles...)
		out.TriageResult = &r
	}
	return &out
}

func turnFromMessage(msg domain.TicketMessage) Turn {
	role := domain.ChatRoleHuman
	if msg.Role == domain.RoleAgent {
		role = domain.ChatRoleAI
	}
	return Turn{Role: role, Content: msg.Content, Timestamp: msg.Timestamp}
}

func messageKey(msg domain.TicketMessage) string {
	return string(msg.Role) + "\x00" + msg.Content + "\x00" + msg.Timestamp.UTC().Format(time.RFC3339Nano)
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	out := t
	out.Messages = append([]domain.TicketMessage(nil), t.Messages...)
	if t.CustomerInfo.Seats != nil {
		seats := *t.CustomerInfo.Seats
		out.CustomerInfo.Seats = &seats
	}
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
