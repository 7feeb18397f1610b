package kb

import (
	"context"
	"fmt"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"

	chromem "github.com/philippgille/chromem-go"
)

// StoreConfig holds vector store configuration
type StoreConfig struct {
	PersistPath string // Directory to persist data; empty keeps the store in memory
	Collection  string
}

// Document is a stored chunk.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Hit is a raw similarity match.
type Hit struct {
	Document   Document
	Similarity float32
}

// Store is a chromem-go collection of article chunks.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewStore opens (or creates) the collection.
func NewStore(config StoreConfig, embedder ports.Embedder) (*Store, error) {
	if config.Collection == "" {
		config.Collection = "support_kb"
	}

	var db *chromem.DB
	if config.PersistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(config.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent kb %s: %w", config.PersistPath, err)
		}
	} else {
		db = chromem.NewDB()
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vectors))
		}
		return vectors[0], nil
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Store{db: db, collection: collection}, nil
}

// Add upserts documents. Documents without an embedding are embedded by the
// collection's embedding function.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	converted := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		converted[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		}
	}
	if err := s.collection.AddDocuments(ctx, converted, 4); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Query returns up to topK nearest chunks whose metadata matches where.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, where map[string]string) ([]Hit, error) {
	count := s.collection.Count()
	if count == 0 || topK <= 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}
	results, err := s.collection.QueryEmbedding(ctx, embedding, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			Document:   Document{ID: r.ID, Content: r.Content, Metadata: r.Metadata},
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

// DeleteArticle removes every chunk of an article.
func (s *Store) DeleteArticle(ctx context.Context, articleID string) error {
	return s.collection.Delete(ctx, map[string]string{"article_id": articleID}, nil)
}

// Count returns total chunk count
func (s *Store) Count() int {
	return s.collection.Count()
}
