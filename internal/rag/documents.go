// Package rag provides the document repository the retrieval agents consult.
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/agentlab/internal/embedding"
	"github.com/nidhogg/agentlab/internal/vectorstore"
	"go.uber.org/zap"
)

// Document is a retrieved chunk of content.
type Document struct {
	ID          string
	PageContent string
	Score       float32
	Metadata    map[string]string
}

// Index is the slice of the vector store the repository uses. Satisfied by
// *vectorstore.Client.
type Index interface {
	EnsureCollection(ctx context.Context, schema, collection string, dimension uint64) error
	UpsertBatch(ctx context.Context, schema, collection string, points []vectorstore.Point) error
	Search(ctx context.Context, schema, collection string, vector []float32, topK uint64) ([]*vectorstore.SearchResult, error)
}

// DocumentRepository stores and searches documents in the vector index. The
// embeddings model is supplied per call because each agent provisions its own.
type DocumentRepository struct {
	index  Index
	logger *zap.Logger
}

// NewDocumentRepository creates a repository over the given index.
func NewDocumentRepository(index Index, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{index: index, logger: logger}
}

// Add embeds documents and upserts them into the tenant's collection,
// creating it on first use. Collection dimension follows the vectors the
// embeddings model actually produced.
func (r *DocumentRepository) Add(ctx context.Context, embedder embedding.Provider, schema, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(docs))
	}

	if err := r.index.EnsureCollection(ctx, schema, collection, uint64(len(vectors[0]))); err != nil {
		return err
	}

	indexedAt := time.Now().UTC().Format(time.RFC3339)
	points := make([]vectorstore.Point, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.New().String()
		}
		payload := map[string]string{
			"content":    d.PageContent,
			"indexed_at": indexedAt,
		}
		for k, v := range d.Metadata {
			payload[k] = v
		}
		points[i] = vectorstore.Point{ID: id, Vector: vectors[i], Payload: payload}
	}
	if err := r.index.UpsertBatch(ctx, schema, collection, points); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	r.logger.Debug("documents indexed",
		zap.String("schema", schema),
		zap.String("collection", collection),
		zap.Int("count", len(points)))
	return nil
}

// Search embeds the query and returns the top-K documents from the tenant's
// collection, best match first.
func (r *DocumentRepository) Search(ctx context.Context, embedder embedding.Provider, schema, collection, query string, size int) ([]Document, error) {
	if size <= 0 {
		size = 5
	}
	vectors, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	hits, err := r.index.Search(ctx, schema, collection, vectors[0], uint64(size))
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, Document{
			ID:          h.ID,
			PageContent: h.Payload["content"],
			Score:       h.Score,
			Metadata:    h.Payload,
		})
	}
	r.logger.Debug("document search",
		zap.String("schema", schema),
		zap.String("collection", collection),
		zap.Int("hits", len(docs)))
	return docs, nil
}

// JoinContent concatenates document contents for prompt context.
func JoinContent(docs []Document, sep string) string {
	out := ""
	for i, d := range docs {
		if i > 0 {
			out += sep
		}
		out += d.PageContent
	}
	return out
}
