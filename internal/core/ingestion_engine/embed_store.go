package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/markdave123-py/Homedex/internal/models"
)

// embedAndPersist consumes chunks, embeds them in batches, and writes to DB.
//
// deviceID:   owner of the chunks.
// fileName:   manual file the chunks came from.
// sourceType: "markdown_reference" or "pdf_text".
// in:         chunk stream from streamChunk.
// It returns the number of chunks written.
func (i *ManualIngestor) embedAndPersist(
	ctx context.Context,
	deviceID, fileName, sourceType string,
	in <-chan chunk,
) (int, error) {
	batchSize := i.cfg.BatchSize
	batch := make([]chunk, 0, batchSize)
	written := 0

	flush := func(items []chunk) error {
		if len(items) == 0 {
			return nil
		}

		texts := make([]string, len(items))
		for idx := range items {
			texts[idx] = items[idx].Text
		}

		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(items) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(items))
		}

		rows := make([]models.ManualChunk, len(items))
		for k := range items {
			rows[k] = models.ManualChunk{
				ID:         uuid.NewString(),
				DeviceID:   deviceID,
				FileName:   fileName,
				Position:   items[k].Pos,
				Text:       items[k].Text,
				Embedding:  vecs[k],
				TokenCount: items[k].TokenCnt,
				SourceType: sourceType,
			}
			if p := items[k].Page; p > 0 {
				rows[k].Page = &p
			}
		}
		if err := i.db.InsertManualChunks(ctx, rows); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		written += len(rows)
		return nil
	}

	for c := range in {
		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return written, err
			}
			batch = batch[:0]
		}
	}
	if err := flush(batch); err != nil {
		return written, err
	}
	return written, nil
}
