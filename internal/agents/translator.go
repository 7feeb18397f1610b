package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/prompts"
)

// Translator detects the ticket language and translates it to English.
type Translator struct {
	base
}

var _ graph.Agent = (*Translator)(nil)

// NewTranslator builds the translator node.
func NewTranslator(deps Deps) *Translator {
	return &Translator{base: newBase(NameTranslator, prompts.Translator, "Translator", deps)}
}

func (a *Translator) Execute(ctx context.Context, state *graph.State) error {
	if state == nil || state.Ticket == nil {
		return fmt.Errorf("translator: state has no ticket")
	}
	state.Translation = a.Translate(ctx, state.Ticket.MessageTexts())
	return nil
}

// Translate returns the translation of messages. It never fails: any
// problem yields English with the originals untouched.
func (a *Translator) Translate(ctx context.Context, messages []string) *domain.Translation {
	originals := append([]string(nil), messages...)
	fallback := &domain.Translation{OriginalLanguage: "en", IsEnglish: true, OriginalMessages: originals}

	system, err := a.systemPrompt(ctx, nil)
	if err != nil {
		a.fellBack(ctx, "prompt", err)
		return fallback
	}
	resp, err := a.complete(ctx, []ports.Message{
		{Role: ports.RoleSystem, Content: system},
		{Role: ports.RoleUser, Content: translatorRequest(originals)},
	}, nil)
	if err != nil {
		a.fellBack(ctx, "llm_error", err)
		return fallback
	}
	parsed, err := decodeObject(resp.Content)
	if err != nil {
		a.fellBack(ctx, "parse_error", err)
		return fallback
	}

	translation := &domain.Translation{OriginalLanguage: "en", IsEnglish: true, OriginalMessages: originals}
	if lang, ok := stringField(parsed, "original_language"); ok {
		translation.OriginalLanguage = strings.ToLower(lang)
	}
	if isEnglish, ok := boolField(parsed, "is_english"); ok {
		translation.IsEnglish = isEnglish
	} else {
		translation.IsEnglish = translation.OriginalLanguage == "en"
	}
	if !translation.IsEnglish {
		if translated, ok := stringSlice(parsed["translated_messages"]); ok && len(translated) > 0 {
			translation.TranslatedMessages = translated
			if len(translated) != len(originals) {
				a.logger.Warn("translator returned %d translations for %d messages", len(translated), len(originals))
			}
		}
	}
	return translation
}

func translatorRequest(messages []string) string {
	var b strings.Builder
	b.WriteString("Analyze the following customer support messages:\n\n")
	for i, msg := range messages {
		fmt.Fprintf(&b, "Message %d: %s\n", i+1, msg)
	}
	b.WriteString("\nDetect the language and translate to English if needed. Return JSON only.")
	return b.String()
}
