// Package langsection finds the language sections of a multilingual PDF and
// picks the one worth extracting.
package langsection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/pdfdoc"
)

const (
	leadingPages   = 5
	minSampleChars = 20
	unrankedEase   = 999
)

// easeRank orders languages by how well they translate to English.
var easeRank = map[string]int{
	"en": 0, "nl": 1, "de": 2, "da": 3, "sv": 4, "no": 5,
	"fr": 6, "es": 7, "pt": 8, "it": 9, "ro": 10,
	"pl": 11, "cs": 12, "ru": 13, "tr": 14,
	"ar": 15, "zh": 16, "ja": 17, "ko": 18,
}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ar": "Arabic",
	"tr": "Turkish",
	"pl": "Polish",
	"cs": "Czech",
	"da": "Danish",
	"sv": "Swedish",
	"no": "Norwegian",
	"ro": "Romanian",
}

// Section is a contiguous run of pages in one language. Pages are 0-based and
// End is inclusive. End is an estimate for every section but the last.
type Section struct {
	Language  string `json:"language"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
	PageCount int    `json:"page_count"`
}

// PageSource is the slice of a PDF the scanner reads.
type PageSource interface {
	PageCount() int
	PageText(page int) (string, error)
}

// Classifier returns the ISO 639-1 code of text, or false when unsure.
type Classifier interface {
	Classify(text string) (string, bool)
}

type Detector struct {
	classifier Classifier
	open       pdfdoc.Opener
}

func NewDetector(classifier Classifier, open pdfdoc.Opener) *Detector {
	if open == nil {
		open = pdfdoc.Open
	}
	return &Detector{classifier: classifier, open: open}
}

// LanguageName maps an ISO code to its English name, or the upper-cased code.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return strings.ToUpper(code)
}

// EaseRank is the translation-ease rank of code; unknown codes rank last.
func EaseRank(code string) int {
	if r, ok := easeRank[code]; ok {
		return r
	}
	return unrankedEase
}

// Scan classifies the first five pages and then every interval-th page.
// Pages with too little text, or that the classifier rejects, are absent.
func (d *Detector) Scan(doc PageSource, interval int) map[int]string {
	if interval < 1 {
		interval = 1
	}
	total := doc.PageCount()
	first := min(leadingPages, total)

	samples := make(map[int]string)
	sample := func(page int) {
		text, err := doc.PageText(page)
		if err != nil {
			log.Warn().Err(err).Int("page", page+1).Msg("language sample: page text unavailable")
			return
		}
		text = strings.TrimSpace(text)
		if len([]rune(text)) < minSampleChars {
			return
		}
		code, ok := d.classifier.Classify(text)
		if !ok || code == "" {
			return
		}
		samples[page] = code
		log.Debug().Int("page", page+1).Str("lang", code).Msg("language sample")
	}

	for p := 0; p < first; p++ {
		sample(p)
	}
	for p := first; p < total; p += interval {
		sample(p)
	}
	return samples
}

// Group folds samples into ordered, non-overlapping sections. A section ends
// one page before the next section's first sample; the last runs to the end.
func Group(samples map[int]string, totalPages int) []Section {
	if len(samples) == 0 {
		return nil
	}

	pages := make([]int, 0, len(samples))
	for p := range samples {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var sections []Section
	curLang, curStart := samples[pages[0]], pages[0]
	for _, p := range pages[1:] {
		lang := samples[p]
		if lang == curLang {
			continue
		}
		sections = append(sections, newSection(curLang, curStart, p-1))
		curLang, curStart = lang, p
	}
	sections = append(sections, newSection(curLang, curStart, totalPages-1))
	return sections
}

func newSection(lang string, start, end int) Section {
	return Section{Language: lang, StartPage: start, EndPage: end, PageCount: end - start + 1}
}

// Select prefers the largest English section, first one on ties. Without
// English it takes the easiest language to translate, then the largest.
func Select(sections []Section) *Section {
	if len(sections) == 0 {
		return nil
	}

	var best *Section
	for i := range sections {
		s := &sections[i]
		if s.Language != "en" {
			continue
		}
		if best == nil || s.PageCount > best.PageCount {
			best = s
		}
	}
	if best != nil {
		out := *best
		return &out
	}

	best = &sections[0]
	for i := 1; i < len(sections); i++ {
		s := &sections[i]
		rs, rb := EaseRank(s.Language), EaseRank(best.Language)
		if rs < rb || (rs == rb && s.PageCount > best.PageCount) {
			best = s
		}
	}
	out := *best
	return &out
}

// Result is the outcome of a full scan of one file.
type Result struct {
	TotalPages int
	Sections   []Section
	Selected   *Section
}

// DetectAndSelect scans path and returns its sections and the chosen one.
// A nil Selected means "extract everything".
func (d *Detector) DetectAndSelect(path string, interval int) (*Result, error) {
	doc, err := d.open(path)
	if err != nil {
		return nil, fmt.Errorf("language scan: %w", err)
	}
	defer doc.Close()

	total := doc.PageCount()
	samples := d.Scan(doc, interval)
	sections := Group(samples, total)
	res := &Result{TotalPages: total, Sections: sections, Selected: Select(sections)}

	for _, s := range sections {
		log.Info().
			Str("lang", LanguageName(s.Language)).
			Int("start", s.StartPage+1).
			Int("end", s.EndPage+1).
			Int("pages", s.PageCount).
			Msg("language section")
	}
	return res, nil
}
