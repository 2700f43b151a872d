// Package pdfdoc loads paginated PDF catalogs and slices them into
// per-page sub-documents for independent processing.
package pdfdoc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ledongthuc/pdf"
)

// ErrInvalidRange marks a page index outside the document's bounds.
var ErrInvalidRange = errors.New("page index out of range")

// Page is one page of a catalog document with its extracted plain text.
// Number is the 0-based index within the original document.
type Page struct {
	Number int
	Text   string
}

// Document is a paginated catalog. Pages preserve content but not
// cross-page layout continuity.
type Document struct {
	Source string
	pages  []Page
}

// Load opens a PDF and eagerly extracts the plain text of every page.
// Pages whose text extraction fails are kept with empty text so page
// numbering stays aligned with the source document.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, Page{Number: i - 1, Text: text})
	}

	return &Document{
		Source: filepath.Base(path),
		pages:  pages,
	}, nil
}

// FromPages builds a document from prepared pages. Used for sub-documents
// and test fixtures.
func FromPages(source string, pages []Page) *Document {
	return &Document{Source: source, pages: pages}
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// Page returns the page at 0-based index i.
func (d *Document) Page(i int) (Page, error) {
	if i < 0 || i >= len(d.pages) {
		return Page{}, fmt.Errorf("%w: %d (document has %d pages)", ErrInvalidRange, i, len(d.pages))
	}
	return d.pages[i], nil
}

// Slice returns a new document containing exactly the named 0-based pages,
// in the given order. Page numbers keep their original values so
// provenance survives slicing.
func (d *Document) Slice(indices ...int) (*Document, error) {
	pages := make([]Page, 0, len(indices))
	for _, i := range indices {
		page, err := d.Page(i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return &Document{Source: d.Source, pages: pages}, nil
}

// Pages returns all pages in document order.
func (d *Document) Pages() []Page {
	return d.pages
}
