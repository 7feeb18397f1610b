package domain

import "strings"

// Urgency ranks how quickly a ticket needs attention.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// ParseUrgency normalizes s; ok is false for unknown values.
func ParseUrgency(s string) (Urgency, bool) {
	u := Urgency(strings.ToLower(strings.TrimSpace(s)))
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow:
		return u, true
	}
	return "", false
}

// TicketType is the supervisor's routing category.
type TicketType string

const (
	TicketTypeBilling   TicketType = "billing"
	TicketTypeTechnical TicketType = "technical"
	TicketTypeGeneral   TicketType = "general"
)

// ParseTicketType normalizes s; ok is false for unknown values.
func ParseTicketType(s string) (TicketType, bool) {
	t := TicketType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TicketTypeBilling, TicketTypeTechnical, TicketTypeGeneral:
		return t, true
	}
	return "", false
}

// RecommendedAction is the final routing decision for a ticket.
type RecommendedAction string

const (
	ActionAutoRespond     RecommendedAction = "auto_respond"
	ActionRouteSpecialist RecommendedAction = "route_specialist"
	ActionEscalateHuman   RecommendedAction = "escalate_human"
)

// ParseAction normalizes s; ok is false for unknown values.
func ParseAction(s string) (RecommendedAction, bool) {
	a := RecommendedAction(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionAutoRespond, ActionRouteSpecialist, ActionEscalateHuman:
		return a, true
	}
	return "", false
}

// Terminal reports whether the action completes the ticket.
func (a RecommendedAction) Terminal() bool {
	return a == ActionAutoRespond || a == ActionEscalateHuman
}

// Confidence grades a ticket match.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence maps unknown values to low.
func ParseConfidence(s string) Confidence {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium:
		return c
	}
	return ConfidenceLow
}

// Accepted reports whether a match at this confidence may be reused.
func (c Confidence) Accepted() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium
}

// Translation is the translator's output.
type Translation struct {
	OriginalLanguage   string   `json:"original_language"`
	IsEnglish          bool     `json:"is_english"`
	TranslatedMessages []string `json:"translated_messages,omitempty"`
	OriginalMessages   []string `json:"original_messages"`
}

// Texts returns the messages downstream agents should read: the English
// translations when present, otherwise the originals.
func (t *Translation) Texts() []string {
	if t == nil {
		return nil
	}
	if !t.IsEnglish && len(t.TranslatedMessages) > 0 {
		return t.TranslatedMessages
	}
	return t.OriginalMessages
}

// SupervisorDecision is the supervisor's classification.
type SupervisorDecision struct {
	Urgency            Urgency    `json:"urgency"`
	TicketType         TicketType `json:"ticket_type"`
	Reasoning          string     `json:"reasoning"`
	RequiresEscalation bool       `json:"requires_escalation"`
}

// ExtractedInfo holds structured facts pulled from the conversation.
type ExtractedInfo struct {
	ProductArea string `json:"product_area"`
	IssueType   string `json:"issue_type"`
	Sentiment   string `json:"sentiment"`
	Language    string `json:"language"`
}

// Article references a knowledge base article.
type Article struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	RelevanceScore float64 `json:"relevance_score"`
}

// TriageResult is the final output of a workflow run.
type TriageResult struct {
	Urgency           Urgency           `json:"urgency"`
	ExtractedInfo     ExtractedInfo     `json:"extracted_info"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	SuggestedResponse string            `json:"suggested_response,omitempty"`
	RelevantArticles  []Article         `json:"relevant_articles"`
	Reasoning         string            `json:"reasoning"`
}
