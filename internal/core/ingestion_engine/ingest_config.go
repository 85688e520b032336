package ingestion_engine

import (
	"github.com/markdave123-py/Homedex/internal/core"
)

// IngestConfig tunes the streaming pipeline.
//
// ChunkSize:    target characters per chunk (e.g., 800).
// ChunkOverlap: characters carried from the end of one chunk into the next (e.g., 200).
// BatchSize:    how many chunks to embed/write in one batch (e.g., 32).
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

func (c *IngestConfig) withDefaults() IngestConfig {
	out := IngestConfig{ChunkSize: 800, ChunkOverlap: 200, BatchSize: 32}
	if c == nil {
		return out
	}
	if c.ChunkSize > 0 {
		out.ChunkSize = c.ChunkSize
	}
	if c.ChunkOverlap >= 0 && c.ChunkOverlap < out.ChunkSize {
		out.ChunkOverlap = c.ChunkOverlap
	}
	if c.BatchSize > 0 {
		out.BatchSize = c.BatchSize
	}
	return out
}

// chunk is the internal representation passed through the pipeline.
//
// Pos:      zero-based position of the chunk inside the manual file.
// Text:     chunk content (built from one or more fragments).
// Page:     1-based page of the first fragment, 0 when unknown.
// TokenCnt: approximate token count.
type chunk struct {
	Pos      int
	Text     string
	Page     int
	TokenCnt int
}

// ManualIngestor orchestrates the ingestion pipeline for device manuals:
//
// db:         persistence for devices and chunks.
// embedder:   embedding provider (Ollama/Gemini).
// extractor:  turns manual files into text fragments.
// manualsDir: root holding one directory per device.
// jobs:       in-memory queue of device IDs to re-ingest.
type ManualIngestor struct {
	db         core.DbClient
	embedder   core.EmbeddingProvider
	extractor  core.DocumentExtractor
	cfg        IngestConfig
	manualsDir string
	jobs       chan string
}
