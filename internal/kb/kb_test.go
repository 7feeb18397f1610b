package kb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArticleFrontmatter(t *testing.T) {
	doc := "---\nid: kb-billing-001\ntitle: Duplicate charges\ncategory: Billing\nkeywords: [refund, charge]\n---\n\nIf you were charged twice, we refund the duplicate within 5 days.\n"
	article, err := ParseArticle("billing/dup.md", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "kb-billing-001", article.ID)
	assert.Equal(t, "Duplicate charges", article.Title)
	assert.Equal(t, "billing", article.Category)
	assert.Equal(t, []string{"refund", "charge"}, article.Keywords)
	assert.True(t, strings.HasPrefix(article.Body, "If you were charged twice"))
}

func TestParseArticleDefaults(t *testing.T) {
	article, err := ParseArticle("kb/reset-password.md", []byte("Use the reset link on the login page."))
	require.NoError(t, err)
	assert.Equal(t, "reset-password", article.ID)
	assert.Equal(t, "general", article.Category)

	_, err = ParseArticle("bad.md", []byte("---\nid: x\nno end"))
	assert.Error(t, err)
	_, err = ParseArticle("empty.md", []byte("---\nid: x\n---\n"))
	assert.Error(t, err)
}

func TestChunkerSplitsWithMetadata(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{ChunkSize: 20, ChunkOverlap: 5})
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, "Line about billing refunds and invoices number")
	}
	chunks := chunker.Split(strings.Join(lines, "\n"), map[string]string{"article_id": "a1"})
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, "a1", chunk.Metadata["article_id"])
		assert.NotEmpty(t, chunk.Text)
		assert.LessOrEqual(t, chunker.CountTokens(chunk.Text), 20+chunker.CountTokens(lines[0]))
	}
}

func TestChunkerLongLine(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{ChunkSize: 10, ChunkOverlap: 2})
	chunks := chunker.Split(strings.Repeat("x", 200), nil)
	assert.Greater(t, len(chunks), 1)
}

func newTestKB(t *testing.T) (*Ingestor, *Searcher, *Store) {
	t.Helper()
	embedder := llm.NewHashEmbedder(128)
	store, err := NewStore(StoreConfig{Collection: "test"}, embedder)
	require.NoError(t, err)
	return NewIngestor(NewChunker(ChunkerConfig{}), embedder, store), NewSearcher(embedder, store), store
}

func testArticles() []Article {
	return []Article{
		{ID: "kb-001", Title: "Refund for duplicate charges", Category: "billing", Body: "When a customer is charged twice for a subscription we refund the duplicate charge."},
		{ID: "kb-002", Title: "API 500 errors", Category: "technical", Body: "Internal server errors from the API usually mean a failed deployment. Check the status page."},
		{ID: "kb-003", Title: "Exporting reports", Category: "general", Body: "Reports can be exported as CSV from the dashboard settings."},
	}
}

func TestIngestAndSearchWithCategoryFilter(t *testing.T) {
	ingestor, searcher, store := newTestKB(t)
	ctx := context.Background()

	stats, err := ingestor.Ingest(ctx, testArticles())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Articles)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, store.Count())

	results, err := searcher.Search(ctx, "charged twice refund", "billing", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kb-001", results[0].ArticleID)
	assert.Equal(t, "billing", results[0].Category)

	results, err = searcher.Search(ctx, "API server errors", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "kb-002", results[0].ArticleID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestReingestReplacesChunks(t *testing.T) {
	ingestor, _, store := newTestKB(t)
	ctx := context.Background()
	_, err := ingestor.Ingest(ctx, testArticles())
	require.NoError(t, err)
	_, err = ingestor.Ingest(ctx, testArticles()[:1])
	require.NoError(t, err)
	assert.Equal(t, 3, store.Count())
	assert.Equal(t, ChunkID("kb-001", 0), ChunkID("kb-001", 0))
	assert.NotEqual(t, ChunkID("kb-001", 0), ChunkID("kb-001", 1))
}

func TestSearchEmptyStore(t *testing.T) {
	_, searcher, _ := newTestKB(t)
	results, err := searcher.Search(context.Background(), "anything", "billing", 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = searcher.Search(context.Background(), "  ", "", 3)
	assert.Error(t, err)
}

func TestLoadArticles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "billing"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing", "a.md"), []byte("---\nid: a\ncategory: billing\n---\nbody"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("---\nid: b\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	articles, skipped, err := LoadArticles(dir)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "a", articles[0].ID)
	assert.Len(t, skipped, 1)

	_, _, err = LoadArticles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
