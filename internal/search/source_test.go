package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/lumi/internal/embedding"
	"github.com/hyperjump/lumi/internal/keyword"
	"github.com/hyperjump/lumi/internal/models"
	"github.com/hyperjump/lumi/internal/storage"
	"github.com/hyperjump/lumi/internal/vector"
)

type testStack struct {
	store    *storage.SQLiteStorage
	kw       *keyword.BleveIndex
	vec      *vector.MemoryIndex
	embedder *embedding.MockEmbedder
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "docs.db"))
	if err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.NewMemBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	vec, err := vector.NewMemoryIndex(64)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = store.Close()
		_ = kw.Close()
		_ = vec.Close()
	})
	return &testStack{store: store, kw: kw, vec: vec, embedder: embedding.NewMockEmbedder(64)}
}

func (s *testStack) add(t *testing.T, docs ...*models.Document) {
	t.Helper()
	ctx := context.Background()
	for _, d := range docs {
		if err := s.store.UpsertDocument(ctx, d); err != nil {
			t.Fatal(err)
		}
		if err := s.kw.Index(ctx, d.ID, d); err != nil {
			t.Fatal(err)
		}
		emb, _ := s.embedder.Embed(ctx, d.Content)
		if err := s.vec.Add(ctx, []string{d.ID}, [][]float32{emb}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLexicalSource_HydratesAndRanks(t *testing.T) {
	s := newTestStack(t)
	s.add(t,
		&models.Document{ID: "fees", Title: "Tuition", Content: "tuition fees for the 2024 intake"},
		&models.Document{ID: "dorm", Title: "Dormitory", Content: "dormitory registration opens in August"},
	)
	src := NewLexicalSource(s.kw, s.store, nil)
	docs, err := src.Query(context.Background(), "tuition fees", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Document.ID != "fees" || docs[0].Rank != 1 {
		t.Fatalf("unexpected docs %+v", docs)
	}
	if docs[0].Document.Content == "" {
		t.Error("document content should be hydrated from the store")
	}
}

func TestLexicalSource_SkipsDocumentsMissingFromStore(t *testing.T) {
	s := newTestStack(t)
	s.add(t, &models.Document{ID: "kept", Content: "scholarship rules"})
	orphan := &models.Document{ID: "orphan", Content: "scholarship deadline"}
	if err := s.kw.Index(context.Background(), orphan.ID, orphan); err != nil {
		t.Fatal(err)
	}
	docs, err := NewLexicalSource(s.kw, s.store, nil).Query(context.Background(), "scholarship", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Document.ID != "kept" || docs[0].Rank != 1 {
		t.Fatalf("unexpected docs %+v", docs)
	}
}

func TestVectorSource_Query(t *testing.T) {
	s := newTestStack(t)
	s.add(t,
		&models.Document{ID: "fees", Content: "tuition fees for the 2024 intake"},
		&models.Document{ID: "dorm", Content: "dormitory registration opens in August"},
	)
	docs, err := NewVectorSource(s.vec, s.embedder, s.store, nil).Query(context.Background(), "dormitory registration", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Document.ID != "dorm" {
		t.Fatalf("unexpected docs %+v", docs)
	}
}

type failingEmbedder struct{ *embedding.MockEmbedder }

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

func TestVectorSource_EmbedFailureIsUnavailable(t *testing.T) {
	s := newTestStack(t)
	s.add(t, &models.Document{ID: "a", Content: "anything"})
	src := NewVectorSource(s.vec, failingEmbedder{s.embedder}, s.store, nil)
	_, err := src.Query(context.Background(), "q", 3)
	if !errors.Is(err, models.ErrIndexUnavailable) {
		t.Fatalf("err = %v, want ErrIndexUnavailable", err)
	}
}

func TestRetriever_EndToEnd(t *testing.T) {
	s := newTestStack(t)
	s.add(t,
		&models.Document{ID: "fees", Title: "Tuition", Content: "tuition fees for the information technology program"},
		&models.Document{ID: "dorm", Title: "Dormitory", Content: "dormitory registration opens in August"},
		&models.Document{ID: "grad", Title: "Graduation", Content: "graduation ceremony schedule and dress code"},
	)
	r := NewRetriever(
		NewLexicalSource(s.kw, s.store, nil),
		NewVectorSource(s.vec, s.embedder, s.store, nil),
		Config{PerSourceTopK: 3, TopK: 2},
	)
	res, err := r.Query(context.Background(), "tuition fees")
	if err != nil {
		t.Fatal(err)
	}
	if res.Degraded {
		t.Error("both sources are populated, result should not be degraded")
	}
	if res.Len() == 0 || res.Documents[0].Document.ID != "fees" {
		t.Fatalf("top document = %v, want fees", ids(res.Documents))
	}
	if res.Len() > 2 {
		t.Errorf("result exceeds top-k: %d", res.Len())
	}
}

func TestRetriever_EmptyIndicesUnavailable(t *testing.T) {
	s := newTestStack(t)
	r := NewRetriever(
		NewLexicalSource(s.kw, s.store, nil),
		NewVectorSource(s.vec, s.embedder, s.store, nil),
		Config{},
	)
	_, err := r.Query(context.Background(), "anything")
	if !errors.Is(err, models.ErrRetrievalUnavailable) {
		t.Fatalf("err = %v, want ErrRetrievalUnavailable", err)
	}
}
