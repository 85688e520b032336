package langsection

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

var ErrNoEnglishPages = errors.New("no English pages detected in manual")

const (
	minEnglishPageChars = 100
	minSubstantialWords = 15
)

// Noise that skews classification of technical pages.
var detectionNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://\S+|www\.\S+`),
	regexp.MustCompile(`\S+@\S+`),
	regexp.MustCompile(`\b\d+[x×]\d+\b`),
	regexp.MustCompile(`\b\d+°\s*[CF]\b`),
	regexp.MustCompile(`\b\d+\s*[VWAh]\b`),
	regexp.MustCompile(`\b\d{4,}\b`),
}

// PageWriter writes the 1-based pages of in to out.
type PageWriter func(in, out string, pages []int) error

// PdfcpuPageWriter keeps only the listed pages using pdfcpu.
func PdfcpuPageWriter(in, out string, pages []int) error {
	sel := make([]string, len(pages))
	for i, p := range pages {
		sel[i] = strconv.Itoa(p)
	}
	if err := api.TrimFile(in, out, sel, nil); err != nil {
		return fmt.Errorf("pdfcpu trim: %w", err)
	}
	return nil
}

// EnglishPages returns the 1-based pages of doc that read as English prose.
func (d *Detector) EnglishPages(doc PageSource) []int {
	var pages []int
	for i := 0; i < doc.PageCount(); i++ {
		text, err := doc.PageText(i)
		if err != nil {
			continue
		}
		if len([]rune(strings.TrimSpace(text))) < minEnglishPageChars {
			continue
		}
		cleaned := CleanForDetection(text)
		if !HasSubstantialText(cleaned, minSubstantialWords) {
			continue
		}
		if code, ok := d.classifier.Classify(cleaned); ok && code == "en" {
			pages = append(pages, i+1)
		}
	}
	return pages
}

// ExtractEnglish writes the English pages of in to out and returns them.
func (d *Detector) ExtractEnglish(in, out string, write PageWriter) ([]int, error) {
	doc, err := d.open(in)
	if err != nil {
		return nil, fmt.Errorf("english extraction: %w", err)
	}
	pages := d.EnglishPages(doc)
	doc.Close()

	if len(pages) == 0 {
		return nil, ErrNoEnglishPages
	}
	if write == nil {
		write = PdfcpuPageWriter
	}
	if err := write(in, out, pages); err != nil {
		return nil, err
	}
	log.Info().Str("file", out).Ints("pages", pages).Msg("english pages extracted")
	return pages, nil
}

// CleanForDetection strips URLs, emails, dimensions, units and long numbers.
func CleanForDetection(text string) string {
	for _, re := range detectionNoise {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// HasSubstantialText counts words longer than two chars that are not numbers.
func HasSubstantialText(text string, minWords int) bool {
	n := 0
	for _, w := range strings.Fields(text) {
		if len([]rune(w)) > 2 && !isDigits(w) {
			n++
		}
	}
	return n >= minWords
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
