package langsection

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// LinguaClassifier classifies text with lingua's n-gram models.
// The detector is built on first use since loading every model is slow.
type LinguaClassifier struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

func NewLinguaClassifier() *LinguaClassifier {
	return &LinguaClassifier{}
}

func (c *LinguaClassifier) Classify(text string) (string, bool) {
	c.once.Do(func() {
		c.detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build()
	})

	lang, ok := c.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return normalizeCode(lang.IsoCode639_1().String()), true
}

// lingua reports the two Norwegian written standards separately.
func normalizeCode(code string) string {
	code = strings.ToLower(code)
	switch code {
	case "nb", "nn":
		return "no"
	}
	return code
}
