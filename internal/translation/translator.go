// Package translation turns OCR markdown into English with a chat model and
// scrubs the artifacts such models leave behind.
package translation

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/core"
)

const (
	DefaultChunkSize = 4000
	detectSample     = 1000
	UnknownLanguage  = "Unknown"
)

const translateRules = "Translate ALL content, including table headers, table cells, and labels. " +
	"Do not leave any words or phrases in the original language. " +
	"Preserve markdown formatting. Respond with ONLY the translated markdown, " +
	"with no explanations or commentary."

const detectPrompt = `What language is this text written in? Answer with ONLY the language name (e.g., "Spanish", "English", "German").

TEXT:
%s

LANGUAGE:`

type Translator struct {
	llm      core.LLMProvider
	detector core.LLMProvider
}

// NewTranslator uses llm for translation and detector for language
// identification. A nil detector reuses llm.
func NewTranslator(llm, detector core.LLMProvider) *Translator {
	if detector == nil {
		detector = llm
	}
	return &Translator{llm: llm, detector: detector}
}

// Translate renders text in target. source may be empty. On any failure the
// original text is returned.
func (t *Translator) Translate(ctx context.Context, text, source, target string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	instruction := fmt.Sprintf("Translate this text to %s. %s", target, translateRules)
	if source != "" {
		instruction = fmt.Sprintf("Translate this text from %s to %s. %s", source, target, translateRules)
	}

	out, err := t.llm.Generate(ctx, "", instruction+"\n\n"+text)
	if err != nil {
		log.Warn().Err(err).Msg("translation failed, returning original text")
		return text
	}

	cleaned := StripPreambleAndFences(strings.TrimSpace(out))
	cleaned = stripPromptLeaks(cleaned)
	return strings.TrimSpace(cleaned)
}

// TranslateInChunks translates text in paragraph-aligned pieces of at most
// chunkSize characters, unless a single paragraph is larger.
func (t *Translator) TranslateInChunks(ctx context.Context, text, target string, chunkSize int) string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if utf8.RuneCountInString(text) <= chunkSize {
		return t.Translate(ctx, text, "", target)
	}

	var out []string
	for _, chunk := range SplitParagraphs(text, chunkSize) {
		out = append(out, t.Translate(ctx, chunk, "", target))
	}
	return strings.Join(out, "\n\n")
}

// SplitParagraphs groups "\n\n"-separated paragraphs into chunks whose
// paragraph lengths sum to at most size.
func SplitParagraphs(text string, size int) []string {
	var (
		chunks  []string
		current []string
		n       int
	)
	for _, para := range strings.Split(text, "\n\n") {
		l := utf8.RuneCountInString(para)
		if n+l > size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current, n = nil, 0
		}
		current = append(current, para)
		n += l
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}
	return chunks
}

// DetectLanguage asks the model for the language name of text, e.g. "Spanish".
func (t *Translator) DetectLanguage(ctx context.Context, text string) string {
	sample := text
	if r := []rune(text); len(r) > detectSample {
		sample = string(r[:detectSample])
	}

	out, err := t.detector.Generate(ctx, "", fmt.Sprintf(detectPrompt, sample))
	if err != nil {
		log.Warn().Err(err).Msg("language detection failed")
		return UnknownLanguage
	}
	lang := strings.TrimFunc(strings.TrimSpace(out), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	if lang == "" {
		return UnknownLanguage
	}
	return lang
}

// CleanMarkdown is the second pass over a translated document. It drops junk
// paragraphs and, when retranslate is set, translates paragraphs that still
// read as foreign.
func (t *Translator) CleanMarkdown(ctx context.Context, text string, retranslate bool) string {
	if text == "" {
		return text
	}

	var out []string
	for _, para := range strings.Split(StripPreambleAndFences(text), "\n\n") {
		if isJunk(para) {
			continue
		}
		if retranslate && LooksNonEnglish(para) {
			para = t.Translate(ctx, para, "", "English")
		}
		out = append(out, para)
	}
	return strings.Join(out, "\n\n")
}
