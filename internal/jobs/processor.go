package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/langsection"
	"github.com/markdave123-py/Homedex/internal/models"
	"github.com/markdave123-py/Homedex/internal/ocr"
	"github.com/markdave123-py/Homedex/internal/reference"
)

var (
	ErrQueueFull    = errors.New("processing queue is full")
	errCancelled    = errors.New("cancelled")
	errNoPagesFound = errors.New("OCR extraction returned no pages")
)

const (
	DefaultSampleInterval = 2
	DefaultQueueSize      = 64

	unknownLanguage = "unknown"
)

type SectionDetector interface {
	DetectAndSelect(path string, interval int) (*langsection.Result, error)
}

type PageExtractor interface {
	ExtractRange(ctx context.Context, pdfPath, imagesDir string, opts ocr.RangeOptions) []ocr.PageResult
}

type LanguageDetector interface {
	DetectLanguage(ctx context.Context, text string) string
}

type ReferenceWriter interface {
	Write(ctx context.Context, dst string, pages []ocr.PageResult, opts reference.Options) error
}

type MetaStore interface {
	UpdateMeta(token string, fn func(*models.UploadMeta)) error
}

// Deps are the pipeline stages a Processor drives.
type Deps struct {
	Sections  SectionDetector
	Pages     PageExtractor
	Language  LanguageDetector
	Reference ReferenceWriter
	Meta      MetaStore
}

// Task is one uploaded PDF waiting for a worker. Figures go to images/ and
// the reference markdown to <stem>_reference.md, both beside the PDF.
type Task struct {
	Token   string
	PDFPath string
}

func (t Task) imagesDir() string {
	return filepath.Join(filepath.Dir(t.PDFPath), "images")
}

func (t Task) referencePath() string {
	base := filepath.Base(t.PDFPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(t.PDFPath), stem+"_reference.md")
}

// Processor runs Tasks on a bounded worker pool and reports into a Registry.
type Processor struct {
	registry       *Registry
	deps           Deps
	sampleInterval int
	queue          chan Task
}

func NewProcessor(registry *Registry, deps Deps, queueSize, sampleInterval int) *Processor {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if sampleInterval <= 0 {
		sampleInterval = DefaultSampleInterval
	}
	return &Processor{
		registry:       registry,
		deps:           deps,
		sampleInterval: sampleInterval,
		queue:          make(chan Task, queueSize),
	}
}

func (p *Processor) Registry() *Registry { return p.registry }

// Start launches numWorkers goroutines that drain the queue until ctx ends.
// Tasks still queued at shutdown end in the error state.
func (p *Processor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Info().Int("worker", w).Msg("processor: worker shutting down")
					p.drain(ctx.Err())
					return
				case task := <-p.queue:
					if ctx.Err() != nil {
						p.abandon(task, ctx.Err())
						continue
					}
					log.Info().Str("token", task.Token).Int("worker", w).Msg("processor: processing manual")
					p.run(ctx, task)
				}
			}
		}(w)
	}
}

func (p *Processor) drain(cause error) {
	for {
		select {
		case task := <-p.queue:
			p.abandon(task, cause)
		default:
			return
		}
	}
}

func (p *Processor) abandon(task Task, cause error) {
	log.Warn().Str("token", task.Token).Msg("processor: dropping queued manual at shutdown")
	p.registry.Release(task.Token)
	p.fail(task.Token, interrupted(cause))
}

func interrupted(cause error) error {
	return fmt.Errorf("processing interrupted: %w", cause)
}

// Submit records the job and queues it. The record exists before Submit
// returns, so a poll right after never misses it.
func (p *Processor) Submit(token, pdfPath string) error {
	p.registry.Create(token, "[INFO] Upload received, starting processing...")

	select {
	case p.queue <- Task{Token: token, PDFPath: pdfPath}:
		return nil
	default:
		p.registry.Update(token, func(j *Job) {
			j.Status, j.Stage = StatusError, StageError
			j.Logs = append(j.Logs, "[ERROR] "+ErrQueueFull.Error())
		})
		p.registry.Release(token)
		return ErrQueueFull
	}
}

func (p *Processor) run(ctx context.Context, task Task) {
	token := task.Token
	defer p.registry.Release(token)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("token", token).Interface("panic", r).Msg("processor: panic")
			p.fail(token, fmt.Errorf("internal error: %v", r))
		}
	}()

	err := p.process(ctx, task)
	switch {
	case err == nil:
	case errors.Is(err, errCancelled):
		p.registry.Update(token, func(j *Job) {
			j.Logs = append(j.Logs, "[INFO] Processing cancelled by user")
			j.Status, j.Stage = StatusCancelled, StageCancelled
		})
		log.Info().Str("token", token).Msg("processor: cancelled")
	default:
		log.Error().Err(err).Str("token", token).Msg("processor: failed")
		p.fail(token, err)
	}
}

func (p *Processor) fail(token string, err error) {
	p.registry.Update(token, func(j *Job) {
		j.Status, j.Stage = StatusError, StageError
		j.Logs = append(j.Logs, "[ERROR] "+err.Error())
	})
}

// checkpoint reports a user cancellation first, then a dead worker context.
func (p *Processor) checkpoint(ctx context.Context, token string) error {
	if p.registry.IsCancelled(token) {
		return errCancelled
	}
	if err := ctx.Err(); err != nil {
		return interrupted(err)
	}
	return nil
}

func (p *Processor) process(ctx context.Context, task Task) error {
	token := task.Token
	reg := p.registry

	reg.AppendLog(token, "[INFO] Scanning PDF for language sections...")
	reg.SetStage(token, StageLanguageScan)

	scan, err := p.deps.Sections.DetectAndSelect(task.PDFPath, p.sampleInterval)
	if err != nil || scan == nil {
		// an unreadable scan falls back to extracting everything
		log.Warn().Err(err).Str("token", token).Msg("processor: language scan failed")
		scan = &langsection.Result{}
	}
	if err := p.checkpoint(ctx, token); err != nil {
		return err
	}

	start, end, language := 0, -1, unknownLanguage
	if s := scan.Selected; s != nil {
		start, end, language = s.StartPage, s.EndPage, s.Language
		reg.AppendLog(token, fmt.Sprintf("[OK] Found %s section (pages %d-%d)", langsection.LanguageName(language), start+1, end+1))
		reg.AppendLog(token, fmt.Sprintf("[INFO] Will extract %d pages instead of entire PDF", end-start+1))
	} else {
		reg.AppendLog(token, "[INFO] No clear language sections detected, will extract all pages")
	}

	reg.AppendLog(token, "[INFO] Starting OCR extraction...")
	reg.SetStage(token, StageOCRExtraction)

	pages := p.deps.Pages.ExtractRange(ctx, task.PDFPath, task.imagesDir(), ocr.RangeOptions{
		Start: start,
		End:   end,
		Progress: func(done, total int) {
			if reg.IsCancelled(token) {
				return
			}
			reg.AppendLog(token, fmt.Sprintf("[OK] Page %d/%d processed", done, total))
		},
		Cancelled: func() bool { return reg.IsCancelled(token) },
	})
	if err := p.checkpoint(ctx, token); err != nil {
		return err
	}
	if len(pages) == 0 {
		return errNoPagesFound
	}

	reg.AppendLog(token, fmt.Sprintf("[OK] Extracted %d pages", len(pages)))
	reg.SetStage(token, StageOCRComplete)

	if language == unknownLanguage {
		if err := p.checkpoint(ctx, token); err != nil {
			return err
		}
		reg.AppendLog(token, "[INFO] Detecting language from extracted content...")
		reg.SetStage(token, StageLanguageDetection)
		language = p.deps.Language.DetectLanguage(ctx, pages[0].Text)
		reg.AppendLog(token, fmt.Sprintf("[OK] Detected language: %s", language))
	} else {
		reg.AppendLog(token, fmt.Sprintf("[INFO] Using pre-scanned language: %s", langsection.LanguageName(language)))
	}

	if err := p.checkpoint(ctx, token); err != nil {
		return err
	}

	english := IsEnglish(language)
	if !english {
		reg.AppendLog(token, fmt.Sprintf("[INFO] Translating from %s to English...", displayLanguage(language)))
		reg.SetStage(token, StageTranslating)
	} else {
		reg.AppendLog(token, "[INFO] Text already in English, generating reference markdown...")
		reg.SetStage(token, StageGeneratingReference)
	}

	refPath := task.referencePath()
	err = p.deps.Reference.Write(ctx, refPath, pages, reference.Options{
		SourceName:    filepath.Base(task.PDFPath),
		ImagesRelPath: "images",
		Translate:     !english,
	})
	if err != nil {
		return err
	}
	if err := p.checkpoint(ctx, token); err != nil {
		return err
	}

	output := filepath.Base(refPath)
	reg.AppendLog(token, "[OK] Reference markdown generated")
	reg.Update(token, func(j *Job) {
		j.Status, j.Stage = StatusComplete, StageComplete
		j.DetectedLanguage = language
		j.Translated = !english
		j.OutputFilename = output
	})

	err = p.deps.Meta.UpdateMeta(token, func(m *models.UploadMeta) {
		m.TranslatedFilename = output
		m.DetectedLanguage = language
	})
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("processor: could not persist token meta")
	}
	return nil
}

// displayLanguage names ISO codes and passes model-reported names through.
func displayLanguage(language string) string {
	if len(language) == 2 {
		return langsection.LanguageName(strings.ToLower(language))
	}
	return language
}

// IsEnglish accepts both the ISO code and the language name.
func IsEnglish(language string) bool {
	l := strings.ToLower(strings.TrimSpace(language))
	return l == "en" || l == "english"
}
