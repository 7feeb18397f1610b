package llm

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"
)

// heuristicReply answers like a cooperative model using keyword rules, so the
// mock provider can drive the whole workflow offline.
func heuristicReply(req ports.CompletionRequest) *ports.CompletionResponse {
	user := lastRole(req.Messages, ports.RoleUser)
	system := lastRole(req.Messages, ports.RoleSystem)
	toolOutput := lastRole(req.Messages, ports.RoleTool)

	var payload any
	switch req.Agent() {
	case "translator":
		payload = heuristicTranslation(user)
	case "supervisor":
		if toolOutput == "" && hasTool(req.Tools, "customer_lookup") {
			if id := customerIDPattern.FindStringSubmatch(user); len(id) == 2 {
				return toolCallReply("call_lookup", "customer_lookup", map[string]any{"customer_id": id[1]})
			}
		}
		payload = heuristicClassification(user)
	case "billing", "technical", "general":
		if toolOutput == "" && hasTool(req.Tools, "kb_search") {
			return toolCallReply("call_kb", "kb_search", map[string]any{"query": firstN(conversationText(system+"\n"+user), 120), "top_k": 3})
		}
		payload = heuristicTriage(req.Agent(), system+"\n"+user, toolOutput)
	case "ticket_matcher":
		payload = heuristicMatch(user)
	default:
		return &ports.CompletionResponse{Content: "OK", StopReason: "stop"}
	}

	data, _ := jsonx.Marshal(payload)
	return &ports.CompletionResponse{Content: "```json\n" + string(data) + "\n```", StopReason: "stop"}
}

var (
	customerIDPattern = regexp.MustCompile(`\*\*Customer ID:\*\*\s*(\S+)`)
	urgencyPattern    = regexp.MustCompile(`(?i)urgency[^a-z]{0,8}(critical|high|medium|low)`)
	articlePattern    = regexp.MustCompile(`\*\*(.+?)\*\* \(id: ([^,]+), category: [^,]+, relevance: ([0-9.]+)\)`)
	messageLine       = regexp.MustCompile(`(?m)^Message \d+: (.*)$`)
	ticketIDPattern   = regexp.MustCompile(`TKT-[0-9A-F]{8}`)
)

func toolCallReply(id, name string, args map[string]any) *ports.CompletionResponse {
	return &ports.CompletionResponse{
		StopReason: "tool_calls",
		ToolCalls:  []ports.ToolCall{{ID: id, Name: name, Arguments: args}},
	}
}

func heuristicTranslation(user string) map[string]any {
	var originals []string
	for _, m := range messageLine.FindAllStringSubmatch(user, -1) {
		originals = append(originals, m[1])
	}
	joined := strings.ToLower(strings.Join(originals, " "))
	lang := detectLanguage(joined)
	out := map[string]any{
		"original_language": lang,
		"is_english":        lang == "en",
		"original_messages": originals,
	}
	if lang != "en" {
		translated := make([]string, len(originals))
		for i, text := range originals {
			translated[i] = "[translated from " + lang + "] " + text
		}
		out["translated_messages"] = translated
	}
	return out
}

func detectLanguage(text string) string {
	for _, r := range text {
		if unicode.In(r, unicode.Thai) {
			return "th"
		}
		if unicode.In(r, unicode.Hiragana, unicode.Katakana) {
			return "ja"
		}
	}
	switch {
	case containsAny(text, "hola", "cobro", "factura", "por favor", "gracias", "cuenta"):
		return "es"
	case containsAny(text, "bonjour", "facture", "merci", "s'il vous"):
		return "fr"
	case containsAny(text, "hallo", "rechnung", "danke", "bitte"):
		return "de"
	}
	return "en"
}

func heuristicClassification(content string) map[string]any {
	text := strings.ToLower(conversationText(content))
	ticketType := "general"
	switch {
	case containsAny(text, "charge", "charged", "refund", "invoice", "billing", "payment", "subscription", "price", "factura", "cobr"):
		ticketType = "billing"
	case containsAny(text, "error", "500", "crash", "bug", "api", "outage", "down", "timeout", "login", "broken"):
		ticketType = "technical"
	}

	escalate := containsAny(text, "lawyer", "legal", "lawsuit", "attorney", "data breach", "gdpr", "sue ")
	urgency := "medium"
	switch {
	case escalate || containsAny(text, "outage", "all users", "production down", "completely down"):
		urgency = "critical"
	case containsAny(text, "urgent", "asap", "twice", "immediately", "cannot access", "can't access"):
		urgency = "high"
	case containsAny(text, "how do i", "how can i", "question", "wondering", "feature request"):
		urgency = "low"
	}

	reasoning := fmt.Sprintf("Keyword classification: %s issue with %s urgency", ticketType, urgency)
	if escalate {
		reasoning = "Customer raises legal or compliance concerns that need human review"
	}
	return map[string]any{
		"urgency":             urgency,
		"ticket_type":         ticketType,
		"reasoning":           reasoning,
		"requires_escalation": escalate,
	}
}

func heuristicTriage(domain, content, kbOutput string) map[string]any {
	urgency := "medium"
	if m := urgencyPattern.FindStringSubmatch(content); len(m) == 2 {
		urgency = strings.ToLower(m[1])
	}

	var articles []map[string]any
	for _, m := range articlePattern.FindAllStringSubmatch(kbOutput, 3) {
		var score float64
		_, _ = fmt.Sscanf(m[3], "%f", &score)
		articles = append(articles, map[string]any{"id": m[2], "title": m[1], "relevance_score": score})
	}

	action := "auto_respond"
	if urgency == "critical" || urgency == "high" {
		action = "route_specialist"
	}
	sentiment := "neutral"
	lower := strings.ToLower(content)
	if containsAny(lower, "angry", "frustrated", "unacceptable", "twice", "!!") {
		sentiment = "frustrated"
	}

	result := map[string]any{
		"urgency": urgency,
		"extracted_info": map[string]any{
			"product_area": domain,
			"issue_type":   domain + "_inquiry",
			"sentiment":    sentiment,
		},
		"recommended_action": action,
		"relevant_articles":  articles,
		"reasoning":          fmt.Sprintf("%s specialist: %s urgency, %d knowledge base matches", domain, urgency, len(articles)),
	}
	if action == "auto_respond" {
		reply := "Thanks for reaching out. "
		if len(articles) > 0 {
			reply += fmt.Sprintf("Our article %q should help with this.", articles[0]["title"])
		} else {
			reply += "We have noted your request and will follow up shortly."
		}
		result["suggested_response"] = reply
	}
	return result
}

func heuristicMatch(content string) map[string]any {
	parts := strings.SplitN(content, "## Active Tickets", 2)
	message := strings.ToLower(parts[0])
	if len(parts) < 2 {
		return map[string]any{"matched_ticket_id": nil, "confidence": "low", "reasoning": "No active tickets listed"}
	}
	if ids := ticketIDPattern.FindAllString(strings.ToUpper(parts[0]), -1); len(ids) > 0 && strings.Contains(parts[1], ids[0]) {
		return map[string]any{"matched_ticket_id": ids[0], "confidence": "high", "reasoning": "Message references the ticket id"}
	}

	messageWords := significantWords(message)
	best, bestOverlap := "", 0
	for _, block := range strings.Split(parts[1], "\n- **")[1:] {
		id := strings.SplitN(block, "**", 2)[0]
		overlap := 0
		for word := range significantWords(strings.ToLower(block)) {
			if messageWords[word] {
				overlap++
			}
		}
		if overlap > bestOverlap {
			best, bestOverlap = strings.TrimSpace(id), overlap
		}
	}
	switch {
	case bestOverlap >= 4:
		return map[string]any{"matched_ticket_id": best, "confidence": "high", "reasoning": "Same subject as the active ticket"}
	case bestOverlap >= 2:
		return map[string]any{"matched_ticket_id": best, "confidence": "medium", "reasoning": "Overlapping subject with the active ticket"}
	}
	return map[string]any{"matched_ticket_id": nil, "confidence": "low", "reasoning": "Message does not relate to any active ticket"}
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true, "have": true,
	"from": true, "your": true, "you": true, "are": true, "was": true, "but": true, "not": true,
	"ticket": true, "type": true, "urgency": true, "current": true, "stage": true, "last": true, "message": true,
	"new": true, "customer": true, "still": true, "any": true, "can": true, "please": true, "thanks": true,
}

func significantWords(text string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		words[w] = true
	}
	return words
}

// conversationText keeps only the conversation block of a supervisor or
// specialist prompt so ticket metadata does not skew keyword rules.
func conversationText(content string) string {
	if idx := strings.Index(content, "## Conversation"); idx >= 0 {
		return content[idx:]
	}
	return content
}

func lastRole(msgs []ports.Message, role string) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i].Content
		}
	}
	return ""
}

func hasTool(tools []ports.ToolDefinition, name string) bool {
	for _, tool := range tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func firstN(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
