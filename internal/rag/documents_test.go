package rag

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/vectorstore"
)

type fakeIndex struct {
	ensuredSchema     string
	ensuredCollection string
	ensuredDimension  uint64

	upserted []vectorstore.Point
	hits     []*vectorstore.SearchResult
}

func (f *fakeIndex) EnsureCollection(_ context.Context, schema, collection string, dimension uint64) error {
	f.ensuredSchema = schema
	f.ensuredCollection = collection
	f.ensuredDimension = dimension
	return nil
}

func (f *fakeIndex) UpsertBatch(_ context.Context, _, _ string, points []vectorstore.Point) error {
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _, _ string, _ []float32, _ uint64) ([]*vectorstore.SearchResult, error) {
	return f.hits, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.5, 0.5}
	}
	return out, nil
}

func TestAddIndexesDocumentsInOneBatch(t *testing.T) {
	idx := &fakeIndex{}
	repo := NewDocumentRepository(idx, zap.NewNop())

	docs := []Document{
		{PageContent: "first", Metadata: map[string]string{"source": "upload"}},
		{ID: "doc-2", PageContent: "second"},
	}
	if err := repo.Add(context.Background(), fixedEmbedder{}, "acme", "knowledge", docs); err != nil {
		t.Fatalf("add: %v", err)
	}

	if idx.ensuredSchema != "acme" || idx.ensuredCollection != "knowledge" {
		t.Errorf("ensured %s/%s, want acme/knowledge", idx.ensuredSchema, idx.ensuredCollection)
	}
	if idx.ensuredDimension != 2 {
		t.Errorf("ensured dimension = %d, want 2", idx.ensuredDimension)
	}
	if len(idx.upserted) != 2 {
		t.Fatalf("upserted %d points, want 2", len(idx.upserted))
	}
	if idx.upserted[0].ID == "" {
		t.Error("first point has no generated id")
	}
	if idx.upserted[1].ID != "doc-2" {
		t.Errorf("second point id = %q, want %q", idx.upserted[1].ID, "doc-2")
	}
	if idx.upserted[0].Payload["content"] != "first" || idx.upserted[0].Payload["source"] != "upload" {
		t.Errorf("payload = %v, want content and metadata", idx.upserted[0].Payload)
	}
	if idx.upserted[0].Payload["indexed_at"] == "" {
		t.Error("payload missing indexed_at")
	}
}

func TestAddSkipsEmptySet(t *testing.T) {
	idx := &fakeIndex{}
	repo := NewDocumentRepository(idx, zap.NewNop())

	if err := repo.Add(context.Background(), fixedEmbedder{}, "acme", "knowledge", nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if idx.ensuredCollection != "" || len(idx.upserted) != 0 {
		t.Errorf("index touched for empty document set")
	}
}

func TestSearchMapsHitsToDocuments(t *testing.T) {
	idx := &fakeIndex{
		hits: []*vectorstore.SearchResult{
			{ID: "doc-1", Score: 0.9, Payload: map[string]string{"content": "hello", "source": "upload"}},
			{ID: "doc-2", Score: 0.4, Payload: map[string]string{"content": "world"}},
		},
	}
	repo := NewDocumentRepository(idx, zap.NewNop())

	docs, err := repo.Search(context.Background(), fixedEmbedder{}, "acme", "knowledge", "greeting", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].PageContent != "hello" || docs[0].Score != 0.9 {
		t.Errorf("first document = %+v", docs[0])
	}
	if docs[0].Metadata["source"] != "upload" {
		t.Errorf("metadata = %v, want payload carried through", docs[0].Metadata)
	}
}

func TestJoinContent(t *testing.T) {
	docs := []Document{{PageContent: "a"}, {PageContent: "b"}, {PageContent: "c"}}
	if got := JoinContent(docs, "\n---\n"); got != "a\n---\nb\n---\nc" {
		t.Errorf("got %q, want %q", got, "a\n---\nb\n---\nc")
	}
}
