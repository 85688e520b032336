package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/models"
)

var (
	ErrNoMarkdown    = errors.New("no markdown reference for device")
	ErrForbiddenPath = errors.New("path escapes device directory")
	ErrFileNotFound  = errors.New("file not found")
	ErrEmptyRoom     = errors.New("old room is required")
)

// ReplaceQueue schedules a background re-ingest of one device.
type ReplaceQueue interface {
	Enqueue(deviceID string) bool
}

type DeviceService struct {
	db         core.DbClient
	ingestor   DeviceIngestor
	queue      ReplaceQueue
	archive    Archive
	manualsDir string
}

// NewDeviceService builds the catalog service. queue and archive may be nil;
// without a queue Replace ingests inline.
func NewDeviceService(db core.DbClient, ingestor DeviceIngestor, queue ReplaceQueue, archive Archive, manualsDir string) *DeviceService {
	return &DeviceService{
		db:         db,
		ingestor:   ingestor,
		queue:      queue,
		archive:    archive,
		manualsDir: manualsDir,
	}
}

func (s *DeviceService) List(ctx context.Context) ([]models.Device, error) {
	devices, err := s.db.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []models.Device{}
	}
	return devices, nil
}

func (s *DeviceService) Get(ctx context.Context, id string) (*models.Device, error) {
	return s.db.GetDevice(ctx, id)
}

func (s *DeviceService) Rooms(ctx context.Context) ([]string, error) {
	rooms, err := s.db.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []string{}
	}
	return rooms, nil
}

func (s *DeviceService) Update(ctx context.Context, id string, meta models.DeviceMetadata) (*models.Device, error) {
	meta.Room = strings.TrimSpace(meta.Room)
	return s.db.UpdateDeviceMetadata(ctx, id, meta)
}

// RenameRoom moves every device in oldRoom to newRoom. A blank newRoom
// leaves them without a room.
func (s *DeviceService) RenameRoom(ctx context.Context, oldRoom, newRoom string) (int64, error) {
	oldRoom = strings.TrimSpace(oldRoom)
	if oldRoom == "" {
		return 0, ErrEmptyRoom
	}
	n, err := s.db.RenameRoom(ctx, oldRoom, strings.TrimSpace(newRoom))
	if err != nil {
		return 0, fmt.Errorf("rename room: %w", err)
	}
	log.Info().Str("from", oldRoom).Str("to", newRoom).Int64("devices", n).Msg("room renamed")
	return n, nil
}

// Delete removes the device's chunks, files, archive and row. Only the row
// removal is fatal.
func (s *DeviceService) Delete(ctx context.Context, id string) error {
	if _, err := s.db.GetDevice(ctx, id); err != nil {
		return err
	}

	if err := s.ingestor.RemoveDevice(ctx, id); err != nil {
		log.Warn().Err(err).Str("device_id", id).Msg("could not remove device chunks")
	}
	if validDeviceID(id) {
		if err := os.RemoveAll(filepath.Join(s.manualsDir, id)); err != nil {
			log.Warn().Err(err).Str("device_id", id).Msg("could not remove device directory")
		}
	}
	if s.archive != nil {
		if err := s.archive.RemoveDevice(ctx, id); err != nil {
			log.Warn().Err(err).Str("device_id", id).Msg("could not remove archived files")
		}
	}

	if err := s.db.DeleteDevice(ctx, id); err != nil {
		return err
	}
	log.Info().Str("device_id", id).Msg("device deleted")
	return nil
}

// Replace rebuilds the device's chunks from the files on disk.
func (s *DeviceService) Replace(ctx context.Context, id string) error {
	if _, err := s.db.GetDevice(ctx, id); err != nil {
		return err
	}
	if s.queue != nil && s.queue.Enqueue(id) {
		return nil
	}
	_, err := s.ingestor.IngestDevice(ctx, id)
	return err
}

// Markdown returns the first markdown file in the device directory.
func (s *DeviceService) Markdown(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.db.GetDevice(ctx, id); err != nil {
		return nil, err
	}
	if !validDeviceID(id) {
		return nil, ErrNoMarkdown
	}
	matches, err := filepath.Glob(filepath.Join(s.manualsDir, id, "*.md"))
	if err != nil || len(matches) == 0 {
		return nil, ErrNoMarkdown
	}
	sort.Strings(matches)
	return os.ReadFile(matches[0])
}

// FilePath resolves rel inside the device directory, following symlinks
// before the containment check.
func (s *DeviceService) FilePath(id, rel string) (string, error) {
	if !validDeviceID(id) {
		return "", ErrForbiddenPath
	}
	base, err := filepath.EvalSymlinks(filepath.Join(s.manualsDir, id))
	if err != nil {
		return "", ErrFileNotFound
	}

	target := filepath.Join(base, filepath.FromSlash(rel))
	if !within(base, target) {
		return "", ErrForbiddenPath
	}
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", ErrFileNotFound
	}
	if !within(base, resolved) {
		return "", ErrForbiddenPath
	}

	fi, err := os.Stat(resolved)
	if err != nil || fi.IsDir() {
		return "", ErrFileNotFound
	}
	return resolved, nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
