package core

import (
	"context"
	"errors"
	"io"

	"github.com/markdave123-py/Homedex/internal/models"
)

var ErrDeviceNotFound = errors.New("device not found")

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	UpsertDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	UpdateDeviceMetadata(ctx context.Context, id string, meta models.DeviceMetadata) (*models.Device, error)
	RenameRoom(ctx context.Context, oldRoom, newRoom string) (int64, error)
	ListRooms(ctx context.Context) ([]string, error)

	InsertManualChunks(ctx context.Context, chunks []models.ManualChunk) error
	DeleteChunksByDevice(ctx context.Context, deviceID string) error
	SearchChunks(ctx context.Context, embedding []float32, filter models.ChunkFilter, limit int) ([]models.ChunkMatch, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, body io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
