package pdfx

import (
	"fmt"

	"lexrag/internal/util"

	"github.com/ledongthuc/pdf"
)

// fontCacheResetPages bounds the extractor's working set: the font cache shared
// across GetPlainText calls is dropped at this cadence so peak memory stays
// independent of document length.
const fontCacheResetPages = 10

type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// ExtractionError reports a document that could not be parsed, or could only
// be parsed partially. Pages holds how many pages were extracted before the
// failure; the content hash travels with the error so callers can record it
// without re-hashing.
type ExtractionError struct {
	DocHash string
	Pages   int
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract pdf %s: %d pages extracted: %v", e.DocHash, e.Pages, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExtractPages reads the PDF at path and returns its pages in document order,
// numbered from 1. maxPages <= 0 means all pages. Page text is sanitized but
// may be empty; empty pages keep their slot so numbering stays contiguous.
func ExtractPages(path, docHash string, maxPages int) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, &ExtractionError{DocHash: docHash, Err: err}
	}
	defer f.Close()

	total := r.NumPage()
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}
	pages := make([]Page, 0, total)
	fontCache := make(map[string]*pdf.Font)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		text := ""
		if !p.V.IsNull() {
			text, err = p.GetPlainText(fontCache)
			if err != nil {
				// Partial extraction is reported, never silently truncated.
				return pages, &ExtractionError{DocHash: docHash, Pages: len(pages), Err: err}
			}
		}
		pages = append(pages, Page{Number: i, Text: util.SanitizeText(text)})
		if i%fontCacheResetPages == 0 {
			fontCache = make(map[string]*pdf.Font)
		}
	}
	return pages, nil
}

// PageCount opens the PDF just far enough to read its page count. Used for
// the fast metadata pass at registration time.
func PageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}
