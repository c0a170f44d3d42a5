package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns the text of every page, pages separated by a blank line. Pages that
// fail to decode are skipped; an error is returned only when no page yields text.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var (
		pages    []string
		firstErr error
	)
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("extract page %d: %w", i, err)
			}
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 && firstErr != nil {
		return "", firstErr
	}
	return strings.Join(pages, "\n\n"), nil
}
