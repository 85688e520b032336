// Package ocr runs pages of a PDF through a grounding vision-OCR model and
// saves the figures it locates.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/pdfdoc"
)

const (
	// Instruction asks the model for markdown with embedded figure boxes.
	Instruction = "<|grounding|>Convert the document to markdown."

	renderDPI = 2 * pdfdoc.BaseDPI
)

var errEmptyCrop = errors.New("empty crop region")

// PageResult is the OCR output of one page. PageNum is 0-based and
// ImageFiles are names relative to the images directory.
type PageResult struct {
	PageNum    int      `json:"page_num"`
	Text       string   `json:"text"`
	ImageFiles []string `json:"image_files"`
}

// RangeOptions bounds an extraction. End < 0 means the last page.
type RangeOptions struct {
	Start     int
	End       int
	Progress  func(done, total int)
	Cancelled func() bool
}

type Extractor struct {
	vision  core.VisionProvider
	open    pdfdoc.Opener
	limiter *rate.Limiter
}

type Option func(*Extractor)

// WithRateLimit paces model calls to perSecond; zero or less disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(e *Extractor) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithOpener replaces the go-fitz opener.
func WithOpener(open pdfdoc.Opener) Option {
	return func(e *Extractor) { e.open = open }
}

func NewExtractor(vision core.VisionProvider, opts ...Option) *Extractor {
	e := &Extractor{vision: vision, open: pdfdoc.Open}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractPage renders one page, runs OCR on it and crops its figures into
// imagesDir. The temporary render is always removed.
func (e *Extractor) ExtractPage(ctx context.Context, doc pdfdoc.Document, pageIndex int, imagesDir string) (*PageResult, error) {
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}

	img, err := doc.RenderPage(pageIndex, renderDPI)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageIndex+1, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", pageIndex+1, err)
	}

	tmp := filepath.Join(imagesDir, fmt.Sprintf("page_%03d_temp.png", pageIndex+1))
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write page render: %w", err)
	}
	defer os.Remove(tmp)

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	raw, err := e.vision.Recognize(ctx, Instruction, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ocr page %d: %w", pageIndex+1, err)
	}

	bounds := img.Bounds()

	var files []string
	for _, el := range ParseGrounding(raw, bounds.Dx(), bounds.Dy()) {
		name := fmt.Sprintf("page_%03d_image_%d.png", pageIndex+1, el.Index)
		if err := saveCrop(img, el.Box, filepath.Join(imagesDir, name)); err != nil {
			log.Warn().Err(err).Int("page", pageIndex+1).Int("figure", el.Index).Msg("failed to extract image region")
			continue
		}
		files = append(files, name)
	}

	return &PageResult{
		PageNum:    pageIndex,
		Text:       CleanText(raw),
		ImageFiles: files,
	}, nil
}

// ExtractRange runs ExtractPage over [Start, End]. It stops early, without
// error, when Cancelled reports true. Failed pages are skipped.
func (e *Extractor) ExtractRange(ctx context.Context, pdfPath, imagesDir string, opts RangeOptions) []PageResult {
	doc, err := e.open(pdfPath)
	if err != nil {
		log.Error().Err(err).Str("file", pdfPath).Msg("ocr: cannot open document")
		return nil
	}
	defer doc.Close()

	count := doc.PageCount()
	end := opts.End
	if end < 0 || end > count-1 {
		end = count - 1
	}
	if opts.Start >= count {
		log.Warn().Int("start", opts.Start).Int("pages", count).Msg("ocr: start page is beyond document length")
		return nil
	}

	total := end - opts.Start + 1
	log.Info().Int("from", opts.Start+1).Int("to", end+1).Int("pages", total).Msg("ocr: extracting pages")

	var results []PageResult
	for p := opts.Start; p <= end; p++ {
		if opts.Cancelled != nil && opts.Cancelled() {
			log.Info().Int("page", p+1).Msg("ocr: cancelled")
			break
		}
		if ctx.Err() != nil {
			break
		}

		done := p - opts.Start + 1
		res, err := e.ExtractPage(ctx, doc, p, imagesDir)
		if err != nil {
			log.Warn().Err(err).Int("page", p+1).Msg("ocr: page failed")
			continue
		}
		results = append(results, *res)
		report(opts.Progress, done, total)
	}
	return results
}

func report(progress func(int, int), done, total int) {
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("ocr: progress callback panicked")
		}
	}()
	progress(done, total)
}

func saveCrop(img *image.RGBA, box image.Rectangle, path string) error {
	r := box.Canon().Intersect(img.Bounds())
	if r.Empty() {
		return errEmptyCrop
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img.SubImage(r)); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
