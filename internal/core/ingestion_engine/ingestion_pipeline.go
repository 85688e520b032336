package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/models"
)

const (
	SourceMarkdown = "markdown_reference"
	SourcePDF      = "pdf_text"

	deviceTimeout = 10 * time.Minute
)

// NewManualIngestor constructs the ingestor with a bounded job queue (64).
func NewManualIngestor(db core.DbClient, emb core.EmbeddingProvider, extractor core.DocumentExtractor, manualsDir string, cfg *IngestConfig) *ManualIngestor {
	return &ManualIngestor{
		db:         db,
		embedder:   emb,
		extractor:  extractor,
		cfg:        cfg.withDefaults(),
		manualsDir: manualsDir,
		jobs:       make(chan string, 64),
	}
}

// Start runs numWorkers goroutines that re-ingest queued devices.
func (i *ManualIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Info().Int("worker", w).Msg("ingestor: worker shutting down")
					return
				case deviceID := <-i.jobs:
					log.Info().Str("device_id", deviceID).Int("worker", w).Msg("ingestor: processing device")
					if _, err := i.IngestDevice(ctx, deviceID); err != nil {
						log.Error().Err(err).Str("device_id", deviceID).Msg("ingestor: device failed")
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a device for re-ingestion. It reports false when the
// queue is full.
func (i *ManualIngestor) Enqueue(deviceID string) bool {
	select {
	case i.jobs <- deviceID:
		return true
	default:
		return false
	}
}

// RemoveDevice drops every chunk of deviceID.
func (i *ManualIngestor) RemoveDevice(ctx context.Context, deviceID string) error {
	return i.db.DeleteChunksByDevice(ctx, deviceID)
}

// IngestDevice replaces the chunks of deviceID with fresh ones built from
// its manual files and returns how many were written.
func (i *ManualIngestor) IngestDevice(ctx context.Context, deviceID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, deviceTimeout)
	defer cancel()

	device, err := i.db.GetDevice(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("load device %s: %w", deviceID, err)
	}

	sources, sourceType := i.loadSources(device)
	if err := i.RemoveDevice(ctx, deviceID); err != nil {
		return 0, fmt.Errorf("remove old chunks: %w", err)
	}
	if len(sources) == 0 {
		log.Warn().Str("device_id", deviceID).Msg("ingestor: no manual files found")
		return 0, nil
	}

	total := 0
	for _, src := range sources {
		n, err := i.ingestSource(ctx, device.ID, src, sourceType)
		total += n
		if err != nil {
			return total, fmt.Errorf("ingest %s: %w", src.FileName, err)
		}
		log.Info().Str("device_id", deviceID).Str("file", src.FileName).Int("chunks", n).Msg("ingestor: manual indexed")
	}
	return total, nil
}

// RebuildAll re-ingests every catalogued device. Failures are logged and
// the rest continue; the first error is returned.
func (i *ManualIngestor) RebuildAll(ctx context.Context) (int, error) {
	devices, err := i.db.ListDevices(ctx)
	if err != nil {
		return 0, err
	}
	var (
		total int
		errs  []error
	)
	for _, d := range devices {
		n, err := i.IngestDevice(ctx, d.ID)
		total += n
		if err != nil {
			log.Error().Err(err).Str("device_id", d.ID).Msg("ingestor: rebuild failed")
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// loadSources prefers processed markdown references and only falls back to
// the device's PDFs when there are none.
func (i *ManualIngestor) loadSources(device *models.Device) ([]core.ManualSource, string) {
	dir := filepath.Join(i.manualsDir, device.ID)

	var markdown, pdfs []string
	for _, name := range device.ManualFiles {
		switch ContentTypeFor(name) {
		case ContentTypeMarkdown:
			markdown = append(markdown, name)
		case ContentTypePDF:
			pdfs = append(pdfs, name)
		}
	}

	names, sourceType := markdown, SourceMarkdown
	if len(markdown) == 0 {
		names, sourceType = pdfs, SourcePDF
	}

	var out []core.ManualSource
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, filepath.Base(name)))
		if err != nil {
			log.Warn().Err(err).Str("device_id", device.ID).Str("file", name).Msg("ingestor: manual file unreadable")
			continue
		}
		if strings.TrimSpace(string(data)) == "" {
			log.Warn().Str("device_id", device.ID).Str("file", name).Msg("ingestor: empty manual file")
			continue
		}
		out = append(out, core.ManualSource{FileName: filepath.Base(name), Data: data, ContentType: ContentTypeFor(name)})
	}
	return out, sourceType
}

// ingestSource streams, chunks, embeds and persists one manual file.
func (i *ManualIngestor) ingestSource(ctx context.Context, deviceID string, src core.ManualSource, sourceType string) (int, error) {
	g, gctx := errgroup.WithContext(ctx)

	// extract manual -> fragments
	fragCh, err := i.extractor.ExtractText(gctx, g, src)
	if err != nil {
		return 0, err
	}

	// fragments -> chunks
	chunkCh := streamChunk(gctx, g, fragCh, i.cfg.ChunkSize, i.cfg.ChunkOverlap)

	// chunks -> embed + persist
	var written int
	g.Go(func() error {
		n, err := i.embedAndPersist(gctx, deviceID, src.FileName, sourceType, chunkCh)
		written = n
		return err
	})

	// Any stage error cancels the rest.
	err = g.Wait()
	return written, err
}
