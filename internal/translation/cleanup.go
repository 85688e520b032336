package translation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Whole lines of model chatter that never belong to a manual.
var preambleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*here is the english translation of your text, preserving markdown formatting:.*$`),
	regexp.MustCompile(`(?im)^\s*here is the english translation of your text:.*$`),
	regexp.MustCompile(`(?im)^\s*here is the translated text in english:.*$`),
	regexp.MustCompile(`(?im)^\s*here is the translated text with preserved markdown formatting:.*$`),
	regexp.MustCompile(`(?im)^\s*here is the english translation:.*$`),
	regexp.MustCompile(`(?im)^\s*english translation:.*$`),
	regexp.MustCompile(`(?im)^\s*the translated markdown is as follows:.*$`),
	regexp.MustCompile(`(?im)^\s*the translated markdown is:.*$`),
	regexp.MustCompile(`(?im)^\s*this text is a table with two rows.*$`),
	regexp.MustCompile(`(?im)^\s*this table contains information about.*$`),
	regexp.MustCompile(`(?im)^\s*each row corresponds to a specific dish.*$`),
	regexp.MustCompile(`(?im)^\s*the instructions are provided in both english and spanish.*$`),
}

var (
	fenceLineRe      = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")
	translatedTextRe = regexp.MustCompile(`TRANSLATED TEXT:\s*`)
)

// Paragraphs containing any of these are hallucinated filler.
var junkMarkers = []string{
	"physics work",
	"chemistry report",
	"mathematics project",
	"tarefas pendentes",
	"completed tasks",
	"descrição da tarefa",
	"limpeza geral do escritório",
	"negociação de preços",
	"relatório mensal de vendas",
	"sistema de contabilidade",
}

var stopwords = []string{" the ", " and ", " to ", " of ", " in ", " for ", " with ", " on "}

// StripPreambleAndFences drops translator chatter lines and unwraps a
// response fenced in ``` as a whole.
func StripPreambleAndFences(text string) string {
	out := text
	for _, re := range preambleRes {
		out = re.ReplaceAllString(out, "")
	}
	out = strings.TrimLeftFunc(out, unicode.IsSpace)

	if strings.HasPrefix(out, "```") {
		inner := ""
		if nl := strings.IndexByte(out, '\n'); nl != -1 {
			inner = out[nl+1:]
		}
		if trimmed := strings.TrimRightFunc(inner, unicode.IsSpace); strings.HasSuffix(trimmed, "```") {
			inner = strings.TrimSuffix(trimmed, "```")
		}
		out = strings.Trim(inner, "\n")
	}

	return fenceLineRe.ReplaceAllString(out, "")
}

// stripPromptLeaks removes echoed prompt sections. A CRITICAL RULES block
// runs to the next blank line or the end of the text.
func stripPromptLeaks(text string) string {
	out := translatedTextRe.ReplaceAllString(text, "")
	out = cutBlock(out, "CRITICAL RULES:", false)
	out = cutBlock(out, "TEXT TO TRANSLATE:", true)
	return out
}

func cutBlock(text, marker string, anchored bool) string {
	for {
		i := strings.Index(text, marker)
		if i < 0 || (anchored && i != 0) {
			return text
		}
		end := strings.Index(text[i:], "\n\n")
		if end < 0 {
			return text[:i]
		}
		text = text[:i] + text[i+end:]
		if anchored {
			return text
		}
	}
}

// LooksNonEnglish flags paragraphs with several non-ASCII letters, or long
// paragraphs with almost no English stopwords.
func LooksNonEnglish(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	nonASCII := 0
	for _, r := range text {
		if r > unicode.MaxASCII && unicode.IsLetter(r) {
			nonASCII++
			if nonASCII >= 2 {
				return true
			}
		}
	}

	lower := strings.ToLower(text)
	hits := 0
	for _, w := range stopwords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return utf8.RuneCountInString(text) > 120 && hits <= 1
}

func isJunk(paragraph string) bool {
	lower := strings.ToLower(paragraph)
	for _, m := range junkMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
