package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ManualSource is one file of a device manual handed to ingestion.
type ManualSource struct {
	FileName    string
	Data        []byte
	ContentType string
}

// Fragment is a piece of manual text with its 1-based page, when known.
type Fragment struct {
	Text string
	Page int
}

// DocumentExtractor turns a manual file into a stream of text fragments.
type DocumentExtractor interface {
	// ExtractText returns a channel of fragments fed by a goroutine registered on g.
	// The contentType hint picks the parsing strategy.
	ExtractText(ctx context.Context, g *errgroup.Group, src ManualSource) (<-chan Fragment, error)
}
