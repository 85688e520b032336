package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"code.sajari.com/docconv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Homedex/internal/core"
)

const (
	ContentTypeMarkdown = "text/markdown"
	ContentTypePDF      = "application/pdf"
	ContentTypeText     = "text/plain"
)

var (
	pageHeadingRe = regexp.MustCompile(`^#{1,6}\s+Page\s+(\d+)\s*$`)
	imageLineRe   = regexp.MustCompile(`^!\[[^\]]*\]\([^)]*\)$`)
)

// ManualExtractor implements core.DocumentExtractor. Markdown and plain text
// are split in-process; PDFs go through sajari/docconv.
type ManualExtractor struct {
	convert func(data []byte, contentType string) (string, error)
}

func NewManualExtractor() *ManualExtractor {
	return &ManualExtractor{convert: docconvText}
}

func docconvText(data []byte, contentType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

// ContentTypeFor maps a manual filename to the type ExtractText expects.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return ContentTypeMarkdown
	case ".pdf":
		return ContentTypePDF
	default:
		return ContentTypeText
	}
}

// ExtractText emits one fragment per non-empty line. Page headings in
// markdown and form feeds in converted PDFs advance the page counter.
func (e *ManualExtractor) ExtractText(ctx context.Context, g *errgroup.Group, src core.ManualSource) (<-chan core.Fragment, error) {
	contentType := src.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(src.FileName)
	}
	switch contentType {
	case ContentTypeMarkdown, ContentTypeText, ContentTypePDF:
	default:
		return nil, fmt.Errorf("unsupported content type %q for %s", contentType, src.FileName)
	}

	out := make(chan core.Fragment, 32)

	g.Go(func() error {
		defer close(out)

		text := string(src.Data)
		page := 0
		if contentType == ContentTypePDF {
			converted, err := e.convert(src.Data, contentType)
			if err != nil {
				return fmt.Errorf("docconv %s: %w", src.FileName, err)
			}
			text = converted
			page = 1
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			log.Warn().Str("file", src.FileName).Msg("extracted empty text")
			return nil
		}

		emit := func(f core.Fragment) error {
			select {
			case out <- f:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for pi, pageText := range strings.Split(text, "\f") {
			if contentType == ContentTypePDF {
				page = pi + 1
			}
			for _, line := range strings.Split(pageText, "\n") {
				line = strings.TrimSpace(line)
				if line == "" || imageLineRe.MatchString(line) {
					continue
				}
				if contentType == ContentTypeMarkdown {
					if m := pageHeadingRe.FindStringSubmatch(line); m != nil {
						page, _ = strconv.Atoi(m[1])
						continue
					}
				}
				if err := emit(core.Fragment{Text: line, Page: page}); err != nil {
					return err
				}
			}
		}
		return nil
	})

	return out, nil
}

var _ core.DocumentExtractor = (*ManualExtractor)(nil)
