package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/lumi/internal/models"
)

const (
	defaultTitleBoost = 2.0
	// fuzzyBoost keeps typo matches below exact matches of the same term.
	fuzzyBoost = 0.5
	// maxFuzziness is the largest edit distance bleve's fuzzy searcher accepts.
	maxFuzziness = 2
)

// indexedDoc is the subset of a Document stored in Bleve; the document store keeps the rest.
type indexedDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index       bleve.Index
	titleBoost  float64
	phraseBoost float64
	fuzziness   int
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithTitleBoost sets the boost applied to title matches. Values <= 1 disable the separate title clause.
func WithTitleBoost(boost float64) Option {
	return func(b *BleveIndex) { b.titleBoost = boost }
}

// WithPhraseBoost adds a phrase clause for multi-term queries so chunks containing the
// terms adjacently score higher. Values <= 1 disable it.
func WithPhraseBoost(boost float64) Option {
	return func(b *BleveIndex) { b.phraseBoost = boost }
}

// WithFuzziness adds per-term fuzzy clauses matching terms within the given edit distance
// (at most 2). 0 disables typo tolerance.
func WithFuzziness(n int) Option {
	return func(b *BleveIndex) {
		if n < 0 {
			n = 0
		}
		if n > maxFuzziness {
			n = maxFuzziness
		}
		b.fuzziness = n
	}
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is reopened
// as-is; remove the directory after changing the mapping.
func NewBleveIndex(path string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{titleBoost: defaultTitleBoost}
	for _, opt := range opts {
		opt(b)
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		b.index = index
		return b, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

// NewMemBleveIndex creates an in-memory index, used by tests and one-shot CLI runs.
func NewMemBleveIndex(opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{titleBoost: defaultTitleBoost}
	for _, opt := range opts {
		opt(b)
	}
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: unicode tokenization and lowercasing without stemming, which keeps
	// Vietnamese syllables intact.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// Index indexes the title and content of doc under id. Re-indexing an id replaces it.
func (b *BleveIndex) Index(ctx context.Context, id string, doc *models.Document) error {
	return b.index.Index(id, indexedDoc{Title: doc.Title, Content: doc.Content})
}

// Search runs a disjunction of a content match, a boosted title match, a phrase clause and
// fuzzy term clauses, each when enabled. Bleve's coordination factor ranks chunks matching
// more clauses higher.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("%w: bleve doc count: %v", models.ErrIndexUnavailable, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: lexical index is empty", models.ErrIndexUnavailable)
	}
	if limit <= 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(b.buildQuery(query))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: bleve search: %v", models.ErrIndexUnavailable, err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func (b *BleveIndex) buildQuery(query string) blevequery.Query {
	content := bleve.NewMatchQuery(query)
	content.SetField("content")
	clauses := []blevequery.Query{content}

	if b.titleBoost > 1 {
		title := bleve.NewMatchQuery(query)
		title.SetField("title")
		title.SetBoost(b.titleBoost)
		clauses = append(clauses, title)
	}

	terms := tokenizeQuery(query)
	if b.phraseBoost > 1 && len(terms) > 1 {
		phrase := bleve.NewMatchPhraseQuery(query)
		phrase.SetField("content")
		phrase.SetBoost(b.phraseBoost)
		clauses = append(clauses, phrase)
	}
	if b.fuzziness > 0 && len(terms) > 0 {
		clauses = append(clauses, b.fuzzyQuery(terms))
	}

	if len(clauses) == 1 {
		return content
	}
	return bleve.NewDisjunctionQuery(clauses...)
}

// fuzzyQuery matches any term within the configured edit distance in title or content.
func (b *BleveIndex) fuzzyQuery(terms []string) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(terms)*2)
	for _, term := range terms {
		for _, field := range []string{"content", "title"} {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(b.fuzziness)
			fq.SetField(field)
			queries = append(queries, fq)
		}
	}
	d := bleve.NewDisjunctionQuery(queries...)
	d.SetBoost(fuzzyBoost)
	return d
}

// tokenizeQuery lowercases query and splits it on anything that is not a letter or digit,
// approximating the standard analyzer for clauses that bypass analysis.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Mn, r)
	})
}

// Terms returns every indexed term of the title and content fields with its document
// frequency summed over both fields.
func (b *BleveIndex) Terms() (map[string]int, error) {
	terms := make(map[string]int)
	for _, field := range []string{"content", "title"} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("bleve field dict %s: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil {
				_ = dict.Close()
				return nil, fmt.Errorf("bleve field dict %s: %w", field, err)
			}
			if entry == nil {
				break
			}
			terms[entry.Term] += int(entry.Count)
		}
		if err := dict.Close(); err != nil {
			return nil, err
		}
	}
	return terms, nil
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
