package objectclient

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/core"
)

// Archiver mirrors device manual directories into a bucket under
// devices/<id>/.
type Archiver struct {
	store  core.ObjectClient
	bucket string
}

func NewArchiver(store core.ObjectClient, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket}
}

func DevicePrefix(deviceID string) string {
	return path.Join("devices", deviceID) + "/"
}

// ArchiveDir uploads every regular file below dir and returns how many were sent.
func (a *Archiver) ArchiveDir(ctx context.Context, deviceID, dir string) (int, error) {
	prefix := DevicePrefix(deviceID)
	count := 0

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if err := a.uploadFile(ctx, p, prefix+filepath.ToSlash(rel)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("archive %s: %w", deviceID, err)
	}

	log.Info().Str("device_id", deviceID).Int("files", count).Msg("manual archived")
	return count, nil
}

func (a *Archiver) uploadFile(ctx context.Context, p, key string) error {
	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return fmt.Errorf("detect %s: %w", p, err)
	}

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := a.store.UploadFile(ctx, a.bucket, key, f, contentType(p, mt)); err != nil {
		return err
	}
	return nil
}

// contentType prefers text/markdown for .md files, which sniff as plain text.
func contentType(p string, mt *mimetype.MIME) string {
	if filepath.Ext(p) == ".md" {
		return "text/markdown; charset=utf-8"
	}
	return mt.String()
}

// RemoveDevice deletes everything archived for deviceID.
func (a *Archiver) RemoveDevice(ctx context.Context, deviceID string) error {
	return a.store.DeletePrefix(ctx, a.bucket, DevicePrefix(deviceID))
}
