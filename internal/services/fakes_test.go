package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/langsection"
	"github.com/markdave123-py/Homedex/internal/models"
)

type fakeDB struct {
	core.DbClient

	mu      sync.Mutex
	devices map[string]*models.Device

	matches    []models.ChunkMatch
	lastFilter models.ChunkFilter
	lastLimit  int
	renamed    [2]string
}

func newFakeDB(devices ...models.Device) *fakeDB {
	db := &fakeDB{devices: map[string]*models.Device{}}
	for i := range devices {
		d := devices[i]
		db.devices[d.ID] = &d
	}
	return db
}

func (f *fakeDB) UpsertDevice(_ context.Context, d *models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.devices[d.ID] = &cp
	return nil
}

func (f *fakeDB) GetDevice(_ context.Context, id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, core.ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDB) ListDevices(context.Context) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Device
	for _, d := range f.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDB) DeleteDevice(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[id]; !ok {
		return core.ErrDeviceNotFound
	}
	delete(f.devices, id)
	return nil
}

func (f *fakeDB) UpdateDeviceMetadata(_ context.Context, id string, meta models.DeviceMetadata) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, core.ErrDeviceNotFound
	}
	d.Name, d.Brand, d.Model, d.Room, d.Category = meta.Name, meta.Brand, meta.Model, meta.Room, meta.Category
	cp := *d
	return &cp, nil
}

func (f *fakeDB) RenameRoom(_ context.Context, oldRoom, newRoom string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed = [2]string{oldRoom, newRoom}
	var n int64
	for _, d := range f.devices {
		if d.Room == oldRoom {
			d.Room = newRoom
			n++
		}
	}
	return n, nil
}

func (f *fakeDB) ListRooms(context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeDB) SearchChunks(_ context.Context, _ []float32, filter models.ChunkFilter, limit int) ([]models.ChunkMatch, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	return f.matches, nil
}

// fakeLLM replays responses in order; the last one repeats.
type fakeLLM struct {
	responses []string
	err       error
	prompts   []string
}

func (l *fakeLLM) Generate(_ context.Context, _ string, prompt string) (string, error) {
	l.prompts = append(l.prompts, prompt)
	if l.err != nil {
		return "", l.err
	}
	if len(l.responses) == 0 {
		return "", nil
	}
	i := len(l.prompts) - 1
	if i >= len(l.responses) {
		i = len(l.responses) - 1
	}
	return l.responses[i], nil
}

type fakeEmbedder struct{ texts []string }

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.texts = append(e.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeIngestor struct {
	ingested  []string
	removed   []string
	ingestErr error
	removeErr error
}

func (i *fakeIngestor) IngestDevice(_ context.Context, id string) (int, error) {
	i.ingested = append(i.ingested, id)
	return 3, i.ingestErr
}

func (i *fakeIngestor) RemoveDevice(_ context.Context, id string) error {
	i.removed = append(i.removed, id)
	return i.removeErr
}

type fakeArchive struct {
	archived []string
	removed  []string
}

func (a *fakeArchive) ArchiveDir(_ context.Context, id, _ string) (int, error) {
	a.archived = append(a.archived, id)
	return 1, errors.New("bucket unavailable")
}

func (a *fakeArchive) RemoveDevice(_ context.Context, id string) error {
	a.removed = append(a.removed, id)
	return nil
}

type fakeQueue struct {
	accept bool
	queued []string
}

func (q *fakeQueue) Enqueue(id string) bool {
	if q.accept {
		q.queued = append(q.queued, id)
	}
	return q.accept
}

type fakeEnglish struct {
	pages []int
	err   error
	out   string
}

func (e *fakeEnglish) ExtractEnglish(_, out string, _ langsection.PageWriter) ([]int, error) {
	e.out = out
	return e.pages, e.err
}
