package indexer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hyperjump/lumi/internal/models"
)

// Record is one crawled page. Crawl exports carry page_content plus free-form metadata
// (source URL, title, content type, language, school, department); article dumps carry
// title, abstract, content, url and images at the top level.
type Record struct {
	ID          string                 `json:"id,omitempty"`
	PageContent string                 `json:"page_content"`
	Title       string                 `json:"title,omitempty"`
	Abstract    string                 `json:"abstract,omitempty"`
	Content     string                 `json:"content,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Images      []RecordImage          `json:"images,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// RecordImage is an image scraped with an article.
type RecordImage struct {
	OriginalURL string `json:"original_url"`
}

const metaKeyImageURL = "image_url"

// text returns page_content when present, otherwise the non-empty title, abstract and
// content as paragraphs. A record with neither abstract nor content has no text.
func (r *Record) text() string {
	if r.PageContent != "" {
		return r.PageContent
	}
	if strings.TrimSpace(r.Abstract) == "" && strings.TrimSpace(r.Content) == "" {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Title, r.Abstract, r.Content} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ToInput converts r into a DocumentInput. docName is recorded as doc_name metadata and
// used as the title when the record has none. The id falls back to the url, then the source.
func (r *Record) ToInput(docName string) *models.DocumentInput {
	meta := make(map[string]string, len(r.Metadata)+3)
	for k, v := range r.Metadata {
		switch x := v.(type) {
		case nil:
		case string:
			if x != "" {
				meta[k] = x
			}
		default:
			meta[k] = fmt.Sprint(x)
		}
	}
	if r.URL != "" && meta[models.MetaURL] == "" {
		meta[models.MetaURL] = r.URL
	}
	if len(r.Images) > 0 && r.Images[0].OriginalURL != "" {
		meta[metaKeyImageURL] = r.Images[0].OriginalURL
	}
	if docName != "" {
		meta["doc_name"] = docName
	}
	title := r.Title
	if title == "" {
		title = meta["title"]
	}
	if title == "" {
		title = docName
	}
	id := r.ID
	if id == "" {
		id = meta[models.MetaURL]
	}
	if id == "" {
		id = meta[models.MetaSource]
	}
	return &models.DocumentInput{ID: id, Title: title, Content: r.text(), Metadata: meta}
}

// DocName derives a display name from a records file name: extension dropped, underscores
// as spaces.
func DocName(path string) string {
	base := filepath.Base(path)
	return strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), "_", " ")
}

// ReadRecords decodes a JSON array of records, or a stream of record objects: one per
// line (JSONL) or a single pretty-printed object per file.
func ReadRecords(r io.Reader) ([]*Record, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	dec := json.NewDecoder(br)
	if first == '[' {
		var records []*Record
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode record array: %w", err)
		}
		return records, nil
	}

	var records []*Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d at offset %d: %w", len(records)+1, dec.InputOffset(), err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
