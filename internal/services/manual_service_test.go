package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Homedex/internal/langsection"
	"github.com/markdave123-py/Homedex/internal/models"
	"github.com/markdave123-py/Homedex/internal/pdfdoc/pdfdoctest"
	"github.com/markdave123-py/Homedex/internal/uploads"
)

type manualFixture struct {
	svc      *ManualService
	store    *uploads.Store
	db       *fakeDB
	llm      *fakeLLM
	ingestor *fakeIngestor
	archive  *fakeArchive
	english  *fakeEnglish
	manuals  string
}

func newManualFixture(t *testing.T, pages ...string) *manualFixture {
	t.Helper()
	root := t.TempDir()
	f := &manualFixture{
		store:    uploads.NewStore(filepath.Join(root, "_uploads")),
		db:       newFakeDB(),
		llm:      &fakeLLM{},
		ingestor: &fakeIngestor{},
		archive:  &fakeArchive{},
		english:  &fakeEnglish{pages: []int{1, 2}},
		manuals:  filepath.Join(root, "manuals"),
	}
	f.svc = NewManualService(ManualDeps{
		Uploads:    f.store,
		DB:         f.db,
		LLM:        f.llm,
		Ingestor:   f.ingestor,
		Archive:    f.archive,
		English:    f.english,
		WritePages: func(string, string, []int) error { return nil },
		Open:       pdfdoctest.Opener(&pdfdoctest.Memory{Pages: pages}),
		ManualsDir: f.manuals,
	})
	return f
}

func (f *manualFixture) upload(t *testing.T, name string) *models.UploadMeta {
	t.Helper()
	meta, err := f.store.Register(name, []byte("%PDF-1.7"))
	require.NoError(t, err)
	return meta
}

func TestParseMetadataJSON(t *testing.T) {
	m, err := ParseMetadataJSON("Here you go:\n```json\n{\"name\": \"Serie 4\", \"brand\": \"Bosch\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Serie 4", m.Name)
	assert.Equal(t, "Bosch", m.Brand)

	_, err = ParseMetadataJSON("I could not find anything")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ParseMetadataJSON("{not json}")
	assert.Error(t, err)
}

func TestInferRoom(t *testing.T) {
	tests := []struct {
		name string
		meta models.ManualMetadata
		text string
		want string
	}{
		{"model room wins", models.ManualMetadata{Room: " Garage ", Category: "oven"}, "", "garage"},
		{"category", models.ManualMetadata{Category: "Cooker hood"}, "", "kitchen"},
		{"text", models.ManualMetadata{}, "Place the towel rail on a wall", "bathroom"},
		{"order matters", models.ManualMetadata{Name: "Washing machine"}, "", "laundry"},
		{"office", models.ManualMetadata{Category: "standing desk"}, "", "office"},
		{"nothing", models.ManualMetadata{Name: "Router"}, "Connect the cable", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferRoom(tt.meta, tt.text))
		})
	}
}

func TestSuggestFromFilename(t *testing.T) {
	m := SuggestFromFilename("bosch_oven-HB123.pdf")
	assert.Equal(t, "bosch_oven_hb123", m.ID)
	assert.Equal(t, "Bosch Oven Hb123", m.Name)
	assert.Equal(t, []string{"bosch_oven-HB123.pdf"}, m.ManualFiles)

	m = SuggestFromFilename("___.pdf")
	assert.True(t, strings.HasPrefix(m.ID, "device_"))
	assert.Len(t, m.ID, len("device_")+6)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "serie_4_hba534bs0", Slug("Serie 4 / HBA534BS0"))
	assert.Equal(t, "", Slug("--"))
}

func TestAnalyze_UsesModel(t *testing.T) {
	f := newManualFixture(t, "Bosch Serie 4 built-in oven", "Safety instructions")
	f.llm.responses = []string{`Sure! {"name":"Serie 4","brand":"Bosch","model":"HBA534","category":"oven","room":""}`}
	up := f.upload(t, "manual.pdf")

	got, err := f.svc.Analyze(context.Background(), up.Token)
	require.NoError(t, err)
	assert.Equal(t, "serie_4_hba534", got.ID)
	assert.Equal(t, "Bosch", got.Brand)
	assert.Equal(t, "kitchen", got.Room)
	assert.Equal(t, []string{"manual.pdf"}, got.ManualFiles)

	require.Len(t, f.llm.prompts, 1)
	assert.Contains(t, f.llm.prompts[0], "Bosch Serie 4 built-in oven")
}

func TestAnalyze_BrandModelID(t *testing.T) {
	f := newManualFixture(t, "Some text")
	f.llm.responses = []string{`{"name":"","brand":"Miele","model":"G 7000"}`}
	up := f.upload(t, "manual.pdf")

	got, err := f.svc.Analyze(context.Background(), up.Token)
	require.NoError(t, err)
	assert.Equal(t, "miele_g_7000", got.ID)
}

func TestAnalyze_FallsBackAfterTwoAttempts(t *testing.T) {
	f := newManualFixture(t, "Some text")
	f.llm.responses = []string{"no idea", "still nothing"}
	up := f.upload(t, "dyson v11.pdf")

	got, err := f.svc.Analyze(context.Background(), up.Token)
	require.NoError(t, err)
	assert.Len(t, f.llm.prompts, 2)
	assert.Equal(t, "dyson_v11", got.ID)
	assert.Equal(t, "Dyson V11", got.Name)
}

func TestAnalyze_NoTextSkipsModel(t *testing.T) {
	f := newManualFixture(t, "  ", "")
	up := f.upload(t, "fridge.pdf")

	got, err := f.svc.Analyze(context.Background(), up.Token)
	require.NoError(t, err)
	assert.Empty(t, f.llm.prompts)
	assert.Equal(t, "fridge", got.ID)
}

func TestAnalyze_UnknownToken(t *testing.T) {
	f := newManualFixture(t)
	_, err := f.svc.Analyze(context.Background(), strings.Repeat("a", 32))
	assert.ErrorIs(t, err, uploads.ErrTokenNotFound)
}

func TestExtractEnglish(t *testing.T) {
	f := newManualFixture(t)
	up := f.upload(t, "oven manual.pdf")

	got, err := f.svc.ExtractEnglish(context.Background(), up.Token)
	require.NoError(t, err)
	assert.Equal(t, "oven_manual_english.pdf", got.EnglishFilename)
	assert.Equal(t, "oven_manual.pdf", got.OriginalFilename)
	assert.Equal(t, []int{1, 2}, got.EnglishPages)
	assert.Equal(t, filepath.Join(f.store.TokenDir(up.Token), "oven_manual_english.pdf"), f.english.out)

	meta, err := f.store.LoadMeta(up.Token)
	require.NoError(t, err)
	require.NotNil(t, meta.EnglishFilename)
	assert.Equal(t, "oven_manual_english.pdf", *meta.EnglishFilename)
	assert.Equal(t, []int{1, 2}, meta.ExtractedPages)
}

func TestExtractEnglish_NoPages(t *testing.T) {
	f := newManualFixture(t)
	f.english.err = langsection.ErrNoEnglishPages
	up := f.upload(t, "oven.pdf")

	_, err := f.svc.ExtractEnglish(context.Background(), up.Token)
	assert.ErrorIs(t, err, langsection.ErrNoEnglishPages)
}

func TestCommit(t *testing.T) {
	f := newManualFixture(t)
	require.NoError(t, f.db.UpsertDevice(context.Background(), &models.Device{ID: "oven_x", ManualFiles: []string{"older.pdf"}}))
	up := f.upload(t, "oven manual.pdf")

	images := filepath.Join(f.store.TokenDir(up.Token), "images")
	require.NoError(t, os.MkdirAll(images, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(images, "page_001_image_1.png"), []byte("png"), 0o644))

	meta := models.ManualMetadata{ID: "oven_x", Name: "Oven", Room: "kitchen"}
	device, err := f.svc.Commit(context.Background(), up.Token, meta, "oven_manual.pdf")
	require.NoError(t, err)

	assert.Equal(t, []string{"older.pdf", "oven_manual.pdf"}, device.ManualFiles)
	assert.FileExists(t, filepath.Join(f.manuals, "oven_x", "oven_manual.pdf"))
	assert.FileExists(t, filepath.Join(f.manuals, "oven_x", "images", "page_001_image_1.png"))
	assert.Equal(t, []string{"oven_x"}, f.ingestor.ingested)
	assert.Equal(t, []string{"oven_x"}, f.archive.archived, "archive failures are not fatal")
	assert.NoDirExists(t, f.store.TokenDir(up.Token))

	stored, err := f.db.GetDevice(context.Background(), "oven_x")
	require.NoError(t, err)
	assert.Equal(t, "kitchen", stored.Room)
}

func TestCommit_IngestFailureCleansUp(t *testing.T) {
	f := newManualFixture(t)
	f.ingestor.ingestErr = errors.New("embedder offline")
	up := f.upload(t, "oven.pdf")

	_, err := f.svc.Commit(context.Background(), up.Token, models.ManualMetadata{ID: "oven"}, "oven.pdf")
	assert.ErrorContains(t, err, "embedder offline")
	assert.NoDirExists(t, f.store.TokenDir(up.Token))

	_, err = f.db.GetDevice(context.Background(), "oven")
	assert.NoError(t, err, "device row is kept")
}

func TestCommit_Validation(t *testing.T) {
	f := newManualFixture(t)
	up := f.upload(t, "oven.pdf")

	_, err := f.svc.Commit(context.Background(), up.Token, models.ManualMetadata{ID: "../etc"}, "oven.pdf")
	assert.ErrorIs(t, err, ErrInvalidDeviceID)

	_, err = f.svc.Commit(context.Background(), up.Token, models.ManualMetadata{ID: "oven"}, "missing.pdf")
	assert.ErrorIs(t, err, uploads.ErrFileNotFound)
}

func TestAttachManual(t *testing.T) {
	f := newManualFixture(t)
	require.NoError(t, f.db.UpsertDevice(context.Background(), &models.Device{ID: "dryer", ManualFiles: []string{"b.pdf"}}))

	device, err := f.svc.AttachManual(context.Background(), "dryer", "quick start.pdf", bytes.NewBufferString("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf", "quick_start.pdf"}, device.ManualFiles)
	assert.FileExists(t, filepath.Join(f.manuals, "dryer", "quick_start.pdf"))
	assert.Equal(t, []string{"dryer"}, f.ingestor.ingested)

	_, err = f.svc.AttachManual(context.Background(), "nope", "a.pdf", bytes.NewBufferString("x"))
	assert.Error(t, err)
}
