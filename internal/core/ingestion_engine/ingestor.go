package ingestion_engine

import "context"

// Ingestor rebuilds the vector store entries of devices.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(deviceID string) bool
	IngestDevice(ctx context.Context, deviceID string) (int, error)
	RemoveDevice(ctx context.Context, deviceID string) error
	RebuildAll(ctx context.Context) (int, error)
}

var _ Ingestor = (*ManualIngestor)(nil)
