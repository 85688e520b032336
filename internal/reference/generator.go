// Package reference renders OCR pages into the English reference markdown
// filed with each device.
package reference

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/ocr"
	"github.com/markdave123-py/Homedex/internal/translation"
)

// Translator is the slice of translation.Translator the generator uses.
type Translator interface {
	TranslateInChunks(ctx context.Context, text, target string, chunkSize int) string
	DetectLanguage(ctx context.Context, text string) string
	CleanMarkdown(ctx context.Context, text string, retranslate bool) string
}

type Options struct {
	// SourceName is the PDF file name; its stem becomes the title.
	SourceName string
	// ImagesRelPath is the figure directory relative to the markdown file.
	ImagesRelPath  string
	Translate      bool
	SkipIndexPages int
	Now            func() time.Time
}

type Generator struct {
	translator Translator
}

func NewGenerator(t Translator) *Generator {
	return &Generator{translator: t}
}

// Build returns the reference markdown for pages.
func (g *Generator) Build(ctx context.Context, pages []ocr.PageResult, opts Options) string {
	translate := opts.Translate
	if translate && len(pages) > 0 {
		lang := g.translator.DetectLanguage(ctx, pages[0].Text)
		log.Info().Str("lang", lang).Msg("reference: detected language")
		if strings.EqualFold(lang, "english") {
			translate = false
		}
	}

	rel := opts.ImagesRelPath
	if rel == "" {
		rel = "images"
	}

	var chunks []string
	figure := 0
	for i, p := range pages {
		if i < opts.SkipIndexPages {
			figure += len(p.ImageFiles)
			continue
		}

		text := p.Text
		if translate {
			if i%10 == 0 {
				log.Info().Int("page", i+1).Int("pages", len(pages)).Msg("reference: translating")
			}
			text = g.translator.TranslateInChunks(ctx, text, "English", translation.DefaultChunkSize)
		}
		chunks = append(chunks, text)

		for _, img := range p.ImageFiles {
			figure++
			chunks = append(chunks, fmt.Sprintf("![Figure %d](%s)", figure, path.Join(filepath.ToSlash(rel), img)))
		}
	}

	body := g.translator.CleanMarkdown(ctx, strings.Join(chunks, "\n\n"), translate)

	var b strings.Builder
	stem := strings.TrimSuffix(opts.SourceName, filepath.Ext(opts.SourceName))
	fmt.Fprintf(&b, "# %s\n\n", TitleCase(strings.ReplaceAll(stem, "_", " ")))
	fmt.Fprintf(&b, "**Source:** %s\n\n", opts.SourceName)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", now(opts).Format("2006-01-02"))
	if translate {
		b.WriteString("**Language:** English (translated)\n\n")
	}
	b.WriteString("---\n\n")
	b.WriteString(body)
	b.WriteString("\n")
	return b.String()
}

// Write builds the reference markdown and saves it to dst.
func (g *Generator) Write(ctx context.Context, dst string, pages []ocr.PageResult, opts Options) error {
	md := g.Build(ctx, pages, opts)
	if err := os.WriteFile(dst, []byte(md), 0o644); err != nil {
		return fmt.Errorf("write reference markdown: %w", err)
	}
	log.Info().Str("file", dst).Msg("reference markdown saved")
	return nil
}

// BuildDebug renders the raw per-page OCR output for manual review.
func BuildDebug(pages []ocr.PageResult, source string, at time.Time) string {
	var b strings.Builder
	b.WriteString("# Manual Extraction - Debug Output\n\n")
	fmt.Fprintf(&b, "**Source:** `%s`\n\n", source)
	fmt.Fprintf(&b, "**Pages extracted:** %d\n\n", len(pages))
	fmt.Fprintf(&b, "**Date:** %s\n\n", at.Format("2006-01-02 15:04"))
	b.WriteString("**Purpose:** Quality validation (raw OCR output, original language)\n\n")
	b.WriteString("---\n\n")

	for _, p := range pages {
		fmt.Fprintf(&b, "\n## Page %d\n\n", p.PageNum+1)
		b.WriteString(p.Text)
		b.WriteString("\n\n")
		if len(p.ImageFiles) > 0 {
			fmt.Fprintf(&b, "**Images on this page:** %d\n\n", len(p.ImageFiles))
			for _, img := range p.ImageFiles {
				fmt.Fprintf(&b, "- `%s`\n", img)
			}
			b.WriteString("\n")
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

// TitleCase upper-cases the first letter of every letter run and
// lower-cases the rest, so "smv4x" becomes "Smv4X".
func TitleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func now(opts Options) time.Time {
	if opts.Now != nil {
		return opts.Now()
	}
	return time.Now()
}
