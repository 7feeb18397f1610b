package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"

	"github.com/google/uuid"
)

const embedBatchSize = 100

// IngestStats summarizes an ingestion run.
type IngestStats struct {
	Articles int
	Chunks   int
}

// Ingestor chunks articles, embeds the chunks and writes them to the store.
type Ingestor struct {
	chunker  *Chunker
	embedder ports.Embedder
	store    *Store
	logger   logging.Logger
}

// NewIngestor wires the ingestion pipeline.
func NewIngestor(chunker *Chunker, embedder ports.Embedder, store *Store) *Ingestor {
	return &Ingestor{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		logger:   logging.NewComponentLogger("KBIngestor"),
	}
}

// Ingest replaces the chunks of each article. Chunk ids are stable so
// re-ingesting an article overwrites it.
func (i *Ingestor) Ingest(ctx context.Context, articles []Article) (IngestStats, error) {
	var docs []Document
	for _, article := range articles {
		text := article.Title + "\n\n" + article.Body
		chunks := i.chunker.Split(text, map[string]string{
			"article_id": article.ID,
			"title":      article.Title,
			"category":   article.Category,
			"keywords":   strings.Join(article.Keywords, ","),
		})
		if err := i.store.DeleteArticle(ctx, article.ID); err != nil {
			return IngestStats{}, fmt.Errorf("delete previous chunks of %s: %w", article.ID, err)
		}
		for _, chunk := range chunks {
			docs = append(docs, Document{
				ID:       ChunkID(article.ID, chunk.Index),
				Content:  chunk.Text,
				Metadata: chunk.Metadata,
			})
		}
	}
	if len(docs) == 0 {
		i.logger.Warn("no chunks to ingest from %d articles", len(articles))
		return IngestStats{Articles: len(articles)}, nil
	}

	for start := 0; start < len(docs); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		texts := make([]string, len(batch))
		for j, doc := range batch {
			texts[j] = doc.Content
		}
		vectors, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			return IngestStats{}, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return IngestStats{}, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		for j := range batch {
			batch[j].Embedding = vectors[j]
		}
		if err := i.store.Add(ctx, batch); err != nil {
			return IngestStats{}, err
		}
		i.logger.Debug("ingested chunks %d-%d of %d", start, end, len(docs))
	}

	i.logger.Info("ingested %d chunks from %d articles", len(docs), len(articles))
	return IngestStats{Articles: len(articles), Chunks: len(docs)}, nil
}

// ChunkID derives a stable UUID for chunk index of an article.
func ChunkID(articleID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("%s_%d", articleID, index))).String()
}
