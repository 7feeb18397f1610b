package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
)

const defaultTopK = 3

// SearchResult is one article-level match.
type SearchResult struct {
	ArticleID string
	Title     string
	Category  string
	Text      string
	Score     float64
}

// Searcher answers knowledge base queries.
type Searcher struct {
	embedder ports.Embedder
	store    *Store
}

// NewSearcher builds a searcher over store.
func NewSearcher(embedder ports.Embedder, store *Store) *Searcher {
	return &Searcher{embedder: embedder, store: store}
}

// Search returns the topK best articles for query. A non-empty category
// restricts results to that category. Only the best chunk of each article
// is kept.
func (s *Searcher) Search(ctx context.Context, query, category string, topK int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))
	}

	var where map[string]string
	if category != "" {
		where = map[string]string{"category": category}
	}
	// Over-fetch so that several chunks of one article do not crowd out others.
	hits, err := s.store.Query(ctx, vectors[0], topK*3, where)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, topK)
	seen := map[string]bool{}
	for _, hit := range hits {
		meta := hit.Document.Metadata
		articleID := meta["article_id"]
		if articleID == "" {
			articleID = hit.Document.ID
		}
		if seen[articleID] {
			continue
		}
		seen[articleID] = true
		results = append(results, SearchResult{
			ArticleID: articleID,
			Title:     meta["title"],
			Category:  meta["category"],
			Text:      hit.Document.Content,
			Score:     float64(hit.Similarity),
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}
