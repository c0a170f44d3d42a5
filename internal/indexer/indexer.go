// Package indexer seeds the document store and both retrieval indices out of band.
// Each input document is split into chunks; every chunk is stored and indexed as its own
// Document carrying the parent id, so lexical and vector hits share one id space.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/lumi/internal/embedding"
	"github.com/hyperjump/lumi/internal/extract"
	"github.com/hyperjump/lumi/internal/fileid"
	"github.com/hyperjump/lumi/internal/keyword"
	"github.com/hyperjump/lumi/internal/models"
	"github.com/hyperjump/lumi/internal/storage"
	"github.com/hyperjump/lumi/internal/vector"
)

// Indexer indexes documents into storage, keyword index, and vector index.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex
	chunker      *Chunker
	extractor    *extract.Extractor
	taxonomy     *Taxonomy
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtractor sets the extractor used by IndexFile. Without one, files are read as plain text.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithTaxonomy annotates records files with metadata derived from their directories.
func WithTaxonomy(t *Taxonomy) IndexerOption {
	return func(idx *Indexer) { idx.taxonomy = t }
}

// NewIndexer creates an indexer with the given dependencies. chunkSize and chunkOverlap
// are in words.
func NewIndexer(
	storage storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	chunkSize, chunkOverlap int,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:      storage,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		chunker:      NewChunker(chunkSize, chunkOverlap),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexDocument replaces any chunks previously seeded under input.ID, then chunks, embeds
// and indexes the content. A missing ID is generated. Returns the number of chunks.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (int, error) {
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	content := Preprocess(input.Content)
	if content == "" {
		return 0, fmt.Errorf("%w: document %s has no content", models.ErrInvalidInput, input.ID)
	}
	if err := idx.DeleteDocument(ctx, input.ID); err != nil {
		return 0, err
	}

	texts := idx.chunker.Chunk(content)
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	ids := make([]string, len(texts))
	for i, text := range texts {
		meta := make(map[string]string, len(input.Metadata)+2)
		for k, v := range input.Metadata {
			meta[k] = v
		}
		meta[models.MetaParentID] = input.ID
		meta[models.MetaChunkIndex] = strconv.Itoa(i)
		doc := &models.Document{
			ID:        fileid.ChunkID(input.ID, i),
			Title:     input.Title,
			Content:   text,
			Metadata:  meta,
			Embedding: embeddings[i],
		}
		if err := idx.storage.UpsertDocument(ctx, doc); err != nil {
			return 0, fmt.Errorf("failed to store chunk: %w", err)
		}
		// Underscores as spaces so "tuition_fees_2024.pdf" matches "tuition fees".
		forKeyword := *doc
		forKeyword.Title = normalizeTitleForKeywordSearch(doc.Title)
		if err := idx.keywordIndex.Index(ctx, doc.ID, &forKeyword); err != nil {
			return 0, fmt.Errorf("failed to index keywords: %w", err)
		}
		ids[i] = doc.ID
	}
	if err := idx.vectorIndex.Add(ctx, ids, embeddings); err != nil {
		return 0, fmt.Errorf("failed to index vectors: %w", err)
	}
	idx.logger.Debug("indexer document indexed", zap.String("id", input.ID), zap.Int("chunks", len(ids)))
	return len(ids), nil
}

// normalizeTitleForKeywordSearch returns the title with underscores replaced by spaces
// since bleve's standard analyzer does not split on them.
func normalizeTitleForKeywordSearch(title string) string {
	return strings.ReplaceAll(title, "_", " ")
}

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// IndexFile reads a file and indexes it. The document ID is derived from the absolute
// path so re-indexing replaces the same chunks. If allowedExts is non-empty the file's
// extension must be in it (case-insensitive). Unchanged files (same mtime and size) are
// skipped. .json and .jsonl files are read as crawled records, one document per record.
// Returns the number of documents indexed.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) (int, error) {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return 0, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}
	if ext == ".json" || ext == ".jsonl" {
		return idx.IndexRecordsFile(ctx, absPath)
	}

	docID := fileid.FileDocID(absPath)
	if idx.unchanged(ctx, absPath, docID, info) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return 0, nil
	}
	text, err := idx.extractContent(absPath)
	if err != nil {
		return 0, fmt.Errorf("extract content: %w", err)
	}
	input := &models.DocumentInput{
		ID:      docID,
		Title:   filepath.Base(absPath),
		Content: text,
		Metadata: map[string]string{
			models.MetaSource:  absPath,
			metaKeySourcePath:  absPath,
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	}
	if _, err := idx.IndexDocument(ctx, input); err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			idx.logger.Warn("indexer skipping empty file", zap.String("path", absPath))
			return 0, nil
		}
		return 0, err
	}
	idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("doc_id", docID))
	return 1, nil
}

// unchanged reports whether the file's first chunk records the same path, mtime and size.
func (idx *Indexer) unchanged(ctx context.Context, absPath, docID string, info os.FileInfo) bool {
	doc, err := idx.storage.GetDocument(ctx, fileid.ChunkID(docID, 0))
	if err != nil || doc.Metadata == nil {
		return false
	}
	if doc.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	// Stored as strings; UnixNano exceeds float64 precision.
	return doc.Metadata[metaKeySourceMtime] == strconv.FormatInt(info.ModTime().UnixNano(), 10) &&
		doc.Metadata[metaKeySourceSize] == strconv.FormatInt(info.Size(), 10)
}

// IndexRecordsFile indexes every record of a JSON or JSONL crawl file. Records without
// content are skipped with a warning. With a taxonomy, the file's directories add
// metadata and a context line to each record.
func (idx *Indexer) IndexRecordsFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()
	records, err := ReadRecords(f)
	if err != nil {
		return 0, err
	}
	var pc *PathContext
	if idx.taxonomy != nil {
		c := idx.taxonomy.Annotate(path)
		pc = &c
	}
	return idx.indexRecords(ctx, records, DocName(path), pc)
}

// IndexRecords indexes crawled records and returns how many were indexed.
func (idx *Indexer) IndexRecords(ctx context.Context, records []*Record, docName string) (int, error) {
	return idx.indexRecords(ctx, records, docName, nil)
}

func (idx *Indexer) indexRecords(ctx context.Context, records []*Record, docName string, pc *PathContext) (int, error) {
	n := 0
	for i, rec := range records {
		input := rec.ToInput(docName)
		if pc != nil {
			pc.apply(input)
		}
		if _, err := idx.IndexDocument(ctx, input); err != nil {
			if errors.Is(err, models.ErrInvalidInput) {
				idx.logger.Warn("indexer skipping empty record", zap.Int("record", i), zap.String("doc_name", docName))
				continue
			}
			return n, fmt.Errorf("record %d: %w", i, err)
		}
		n++
	}
	idx.logger.Info("indexer records indexed", zap.String("doc_name", docName), zap.Int("count", n))
	return n, nil
}

// IndexDirectory walks dir recursively and indexes each regular file whose extension
// is in allowedExts (if non-empty; otherwise all files). A file that fails is logged and
// skipped; the walk stops only on cancellation or a walk error. Returns the number of
// documents indexed and the joined per-file errors.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	var fileErrs []error
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		count, indexErr := idx.IndexFile(ctx, path, allowedExts)
		if indexErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			idx.logger.Warn("indexer skipping file", zap.String("path", path), zap.Error(indexErr))
			fileErrs = append(fileErrs, fmt.Errorf("%s: %w", path, indexErr))
			return nil
		}
		n += count
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, errors.Join(fileErrs...)
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes every chunk seeded from id from storage and both indices.
// Deleting an unknown id is not an error.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	chunkIDs, err := idx.storage.DeleteByParent(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	for _, cid := range chunkIDs {
		if err := idx.keywordIndex.Delete(ctx, cid); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	if err := idx.vectorIndex.Remove(ctx, chunkIDs); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	idx.logger.Debug("indexer document deleted", zap.String("id", id), zap.Int("chunks", len(chunkIDs)))
	return nil
}
