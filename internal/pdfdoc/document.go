// Package pdfdoc wraps go-fitz behind the small page-level surface the
// pipeline needs, so detectors and extractors can be tested with fakes.
package pdfdoc

import (
	"fmt"
	"image"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// BaseDPI is the MuPDF resolution that renders a page at 1x.
const BaseDPI = 72.0

// Document is an open PDF. Page indexes are 0-based.
type Document interface {
	PageCount() int
	PageText(page int) (string, error)
	RenderPage(page int, dpi float64) (*image.RGBA, error)
	Close() error
}

// Opener opens a PDF from disk.
type Opener func(path string) (Document, error)

type fitzDocument struct {
	doc *fitz.Document
}

// Open opens path with MuPDF.
func Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &fitzDocument{doc: doc}, nil
}

func (d *fitzDocument) PageCount() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) PageText(page int) (string, error) {
	return d.doc.Text(page)
}

func (d *fitzDocument) RenderPage(page int, dpi float64) (*image.RGBA, error) {
	return d.doc.ImageDPI(page, dpi)
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}

// PageCount opens path just long enough to count its pages.
func PageCount(open Opener, path string) (int, error) {
	doc, err := open(path)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.PageCount(), nil
}

// LeadingText concatenates the text of the first maxPages pages and cuts the
// result to maxChars runes. Unreadable pages are skipped.
func LeadingText(open Opener, path string, maxPages, maxChars int) (string, error) {
	doc, err := open(path)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	n := doc.PageCount()
	if maxPages > 0 && maxPages < n {
		n = maxPages
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		text, err := doc.PageText(i)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	out := strings.TrimSpace(b.String())
	if maxChars > 0 {
		if r := []rune(out); len(r) > maxChars {
			out = string(r[:maxChars])
		}
	}
	return out, nil
}
