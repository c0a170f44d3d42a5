package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/lumi/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_UpsertGet(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := &models.Document{
		ID:       "doc1",
		Title:    "Title",
		Content:  "Content",
		Metadata: map[string]string{"url": "https://example.edu/a"},
	}
	if err := store.UpsertDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Title" || got.Content != "Content" || got.Metadata["url"] != "https://example.edu/a" {
		t.Errorf("got %+v", got)
	}

	doc.Title = "Updated"
	if err := store.UpsertDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetDocument(ctx, "doc1")
	if got.Title != "Updated" {
		t.Errorf("expected Updated, got %s", got.Title)
	}
	if n, _ := store.CountDocuments(ctx); n != 1 {
		t.Errorf("upsert should not duplicate, count %d", n)
	}
}

func TestSQLiteStorage_GetMissing(t *testing.T) {
	store := newTestStorage(t)
	_, err := store.GetDocument(context.Background(), "nope")
	if !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestSQLiteStorage_GetDocuments(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.UpsertDocument(ctx, &models.Document{ID: id, Content: "text " + id}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.GetDocuments(ctx, []string{"a", "c", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["a"] == nil || got["c"] == nil {
		t.Errorf("got %v", got)
	}
	empty, err := store.GetDocuments(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("nil ids: %v %v", empty, err)
	}
}

func TestSQLiteStorage_DeleteByParent(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	for i, id := range []string{"p#0", "p#1", "other"} {
		parent := "p"
		if i == 2 {
			parent = "q"
		}
		doc := &models.Document{ID: id, Content: "x", Metadata: map[string]string{models.MetaParentID: parent}}
		if err := store.UpsertDocument(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := store.DeleteByParent(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("deleted ids = %v, want 2", ids)
	}
	if n, _ := store.CountDocuments(ctx); n != 1 {
		t.Errorf("count after delete = %d, want 1", n)
	}
}

func TestSQLiteStorage_ListAndDelete(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_ = store.UpsertDocument(ctx, &models.Document{ID: id, Content: id})
	}
	docs, err := store.ListDocuments(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Errorf("list limit: got %d", len(docs))
	}
	if err := store.DeleteDocument(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountDocuments(ctx); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
