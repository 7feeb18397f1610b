package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/kb"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
)

// KBSearchName is the tool name exposed to specialists.
const KBSearchName = "kb_search"

const (
	defaultKBTopK  = 3
	maxKBTopK      = 10
	maxExcerptRune = 500
)

// KnowledgeSearcher finds knowledge base articles.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query, category string, topK int) ([]kb.SearchResult, error)
}

type kbSearch struct {
	searcher KnowledgeSearcher
	category string
	logger   logging.Logger
}

// NewKBSearch builds kb_search restricted to category ("" searches all).
func NewKBSearch(searcher KnowledgeSearcher, category string) ports.ToolExecutor {
	return &kbSearch{
		searcher: searcher,
		category: category,
		logger:   logging.NewComponentLogger("KBSearch"),
	}
}

func (t *kbSearch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        KBSearchName,
		Description: "Search the knowledge base for relevant articles. Use this to find documentation, FAQs, and troubleshooting guides related to customer issues.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Search query for knowledge base"},
				"top_k": {Type: "integer", Description: "Number of results to return (default 3)"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *kbSearch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query := strings.TrimSpace(call.StringArg("query"))
	if query == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'query'")}, nil
	}
	topK := call.IntArg("top_k", defaultKBTopK)
	if topK <= 0 {
		topK = defaultKBTopK
	}
	if topK > maxKBTopK {
		topK = maxKBTopK
	}

	t.logger.Debug("searching kb category=%q top_k=%d query=%q", t.category, topK, query)
	results, err := t.searcher.Search(ctx, query, t.category, topK)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("kb search: %w", err)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: FormatSearchResults(results)}, nil
}

// FormatSearchResults renders results as markdown entries separated by rules.
func FormatSearchResults(results []kb.SearchResult) string {
	if len(results) == 0 {
		return "No relevant articles found."
	}
	entries := make([]string, 0, len(results))
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		id := r.ArticleID
		if id == "" {
			id = "unknown"
		}
		category := r.Category
		if category == "" {
			category = "general"
		}
		entries = append(entries, fmt.Sprintf("**%s** (id: %s, category: %s, relevance: %.2f)\n%s...",
			title, id, category, r.Score, excerpt(r.Text, maxExcerptRune)))
	}
	return strings.Join(entries, "\n\n---\n\n")
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
