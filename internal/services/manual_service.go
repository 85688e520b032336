package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/langsection"
	"github.com/markdave123-py/Homedex/internal/models"
	"github.com/markdave123-py/Homedex/internal/pdfdoc"
	"github.com/markdave123-py/Homedex/internal/uploads"
)

const (
	analysisPages = 5
	analysisChars = 3000
)

var (
	ErrInvalidDeviceID = errors.New("invalid device id")
	ErrNoJSON          = errors.New("no JSON found in LLM response")

	slugRe    = regexp.MustCompile(`[^a-z0-9]+`)
	wordSepRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// roomKeywords is checked in order; the first needle found wins.
var roomKeywords = []struct{ needle, room string }{
	{"bath", "bathroom"},
	{"towel", "bathroom"},
	{"toilet", "bathroom"},
	{"shower", "bathroom"},
	{"kitchen", "kitchen"},
	{"oven", "kitchen"},
	{"cook", "kitchen"},
	{"laundry", "laundry"},
	{"washer", "laundry"},
	{"washing machine", "laundry"},
	{"dryer", "laundry"},
	{"garage", "garage"},
	{"living", "living room"},
	{"sofa", "living room"},
	{"bedroom", "bedroom"},
	{"bed", "bedroom"},
	{"patio", "outdoor"},
	{"outdoor", "outdoor"},
	{"desk", "office"},
	{"office", "office"},
}

// DeviceIngestor keeps a device's chunks in the vector store current.
type DeviceIngestor interface {
	IngestDevice(ctx context.Context, deviceID string) (int, error)
	RemoveDevice(ctx context.Context, deviceID string) error
}

// Archive mirrors device directories to object storage.
type Archive interface {
	ArchiveDir(ctx context.Context, deviceID, dir string) (int, error)
	RemoveDevice(ctx context.Context, deviceID string) error
}

// EnglishExtractor pulls the English pages out of a PDF.
type EnglishExtractor interface {
	ExtractEnglish(in, out string, write langsection.PageWriter) ([]int, error)
}

// ManualDeps wires a ManualService. Archive may be nil.
type ManualDeps struct {
	Uploads    *uploads.Store
	DB         core.DbClient
	LLM        core.LLMProvider
	Ingestor   DeviceIngestor
	Archive    Archive
	English    EnglishExtractor
	WritePages langsection.PageWriter
	Open       pdfdoc.Opener
	ManualsDir string
}

// ManualService drives an upload from analysis to a committed device.
type ManualService struct {
	deps ManualDeps
}

func NewManualService(deps ManualDeps) *ManualService {
	if deps.Open == nil {
		deps.Open = pdfdoc.Open
	}
	if deps.WritePages == nil {
		deps.WritePages = langsection.PdfcpuPageWriter
	}
	return &ManualService{deps: deps}
}

// EnglishResult describes the English-only PDF cut from an upload.
type EnglishResult struct {
	Token            string `json:"token"`
	OriginalFilename string `json:"original_filename"`
	EnglishFilename  string `json:"english_filename"`
	EnglishPages     []int  `json:"english_pages"`
}

// ExtractEnglish writes <stem>_english.pdf next to the upload and records it
// in the token meta.
func (s *ManualService) ExtractEnglish(ctx context.Context, token string) (*EnglishResult, error) {
	meta, err := s.deps.Uploads.LoadMeta(token)
	if err != nil {
		return nil, err
	}
	in, err := s.deps.Uploads.FilePath(token, meta.StoredFilename)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(meta.StoredFilename, filepath.Ext(meta.StoredFilename))
	name := stem + "_english.pdf"
	out := filepath.Join(s.deps.Uploads.TokenDir(token), name)

	pages, err := s.deps.English.ExtractEnglish(in, out, s.deps.WritePages)
	if err != nil {
		return nil, err
	}

	err = s.deps.Uploads.UpdateMeta(token, func(m *models.UploadMeta) {
		m.EnglishFilename = &name
		m.ExtractedPages = pages
	})
	if err != nil {
		return nil, err
	}

	return &EnglishResult{
		Token:            token,
		OriginalFilename: meta.StoredFilename,
		EnglishFilename:  name,
		EnglishPages:     pages,
	}, nil
}

// Analyze suggests device metadata from the first pages of the uploaded PDF.
// When the text or the model gives nothing usable it falls back to the filename.
func (s *ManualService) Analyze(ctx context.Context, token string) (*models.ManualMetadata, error) {
	meta, err := s.deps.Uploads.LoadMeta(token)
	if err != nil {
		return nil, err
	}
	if meta.StoredFilename == "" {
		return nil, fmt.Errorf("no PDF file available for analysis")
	}
	pdfPath, err := s.deps.Uploads.FilePath(token, meta.StoredFilename)
	if err != nil {
		return nil, err
	}

	text, err := pdfdoc.LeadingText(s.deps.Open, pdfPath, analysisPages, analysisChars)
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("analysis: could not read PDF text")
	}
	if strings.TrimSpace(text) == "" {
		return SuggestFromFilename(meta.StoredFilename), nil
	}

	extracted, ok := s.askModel(ctx, token, text)
	if !ok {
		log.Warn().Str("token", token).Msg("analysis: LLM failed twice, falling back to filename")
		return SuggestFromFilename(meta.StoredFilename), nil
	}

	base := meta.StoredFilename
	switch {
	case extracted.Name != "" && extracted.Model != "":
		base = extracted.Name + " " + extracted.Model
	case extracted.Brand != "" && extracted.Model != "":
		base = extracted.Brand + " " + extracted.Model
	case extracted.Name != "":
		base = extracted.Name
	case extracted.Brand != "":
		base = extracted.Brand
	}

	room := InferRoom(extracted, text)

	return &models.ManualMetadata{
		ID:          slugOrRandom(base),
		Name:        strings.TrimSpace(extracted.Name),
		Brand:       strings.TrimSpace(extracted.Brand),
		Model:       strings.TrimSpace(extracted.Model),
		Category:    strings.TrimSpace(extracted.Category),
		Room:        room,
		ManualFiles: []string{meta.StoredFilename},
	}, nil
}

const analysisPrompt = `You are analyzing a device manual. Extract the following information from the text:
- Device name (the product name)
- Brand/Manufacturer
- Model number
- Category (e.g., "cooker hood", "microwave", "dishwasher", "washing machine", etc.)

Text from manual (truncated for brevity):
%s

Respond ONLY with a JSON object in this exact format (no prose, no code fences). Use empty strings if not found:
{
  "name": "device name here",
  "brand": "brand name here",
  "model": "model number here",
  "category": "device category here",
  "room": "room this device is in"
}`

const analysisFallbackPrompt = `Return ONLY JSON with keys name, brand, model, category. Use empty strings if unknown.
{
  "name": "",
  "brand": "",
  "model": "",
  "category": "",
  "room": ""
}`

func (s *ManualService) askModel(ctx context.Context, token, text string) (models.ManualMetadata, bool) {
	prompts := []string{fmt.Sprintf(analysisPrompt, text), analysisFallbackPrompt}
	for i, prompt := range prompts {
		resp, err := s.deps.LLM.Generate(ctx, "", prompt)
		if err == nil {
			var out models.ManualMetadata
			if out, err = ParseMetadataJSON(resp); err == nil {
				return out, true
			}
		}
		log.Warn().Err(err).Str("token", token).Int("attempt", i+1).Msg("analysis: LLM attempt failed")
	}
	return models.ManualMetadata{}, false
}

// ParseMetadataJSON decodes the span between the first '{' and the last '}'.
func ParseMetadataJSON(text string) (models.ManualMetadata, error) {
	var out models.ManualMetadata
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return out, ErrNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return out, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

// InferRoom keeps a room the model named and otherwise looks for keywords in
// the category, name, brand and manual text.
func InferRoom(m models.ManualMetadata, text string) string {
	if room := strings.ToLower(strings.TrimSpace(m.Room)); room != "" {
		return room
	}
	combined := strings.ToLower(strings.Join([]string{m.Category, m.Name, m.Brand, text}, " "))
	for _, k := range roomKeywords {
		if strings.Contains(combined, k.needle) {
			return k.room
		}
	}
	return ""
}

// SuggestFromFilename derives an id and a display name from the file stem.
func SuggestFromFilename(filename string) *models.ManualMetadata {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	id := slugOrRandom(stem)

	words := strings.Fields(wordSepRe.ReplaceAllString(stem, " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	name := strings.Join(words, " ")
	if name == "" {
		name = strings.ReplaceAll(id, "_", " ")
	}

	return &models.ManualMetadata{
		ID:          id,
		Name:        name,
		ManualFiles: []string{filename},
	}
}

// Slug lowercases s and collapses every non-alphanumeric run to '_'.
func Slug(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

func slugOrRandom(s string) string {
	if id := Slug(s); id != "" {
		return id
	}
	return "device_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// Commit files the upload under manuals/<id>/, upserts the device and
// re-ingests it. The token is cleaned up whatever the outcome of ingestion.
func (s *ManualService) Commit(ctx context.Context, token string, meta models.ManualMetadata, manualFilename string) (*models.Device, error) {
	if _, err := s.deps.Uploads.LoadMeta(token); err != nil {
		return nil, err
	}
	src, err := s.deps.Uploads.FilePath(token, manualFilename)
	if err != nil {
		return nil, err
	}
	if !validDeviceID(meta.ID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeviceID, meta.ID)
	}

	targetDir := filepath.Join(s.deps.ManualsDir, meta.ID)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("create device dir: %w", err)
	}
	name := filepath.Base(src)
	if err := moveFile(src, filepath.Join(targetDir, name)); err != nil {
		return nil, fmt.Errorf("move manual: %w", err)
	}

	images := filepath.Join(s.deps.Uploads.TokenDir(token), "images")
	if fi, err := os.Stat(images); err == nil && fi.IsDir() {
		target := filepath.Join(targetDir, "images")
		_ = os.RemoveAll(target)
		if err := moveFile(images, target); err != nil {
			return nil, fmt.Errorf("move images: %w", err)
		}
	}

	defer s.deps.Uploads.Cleanup(token)

	files := []string{name}
	existing, err := s.deps.DB.GetDevice(ctx, meta.ID)
	switch {
	case err == nil:
		files = append(files, existing.ManualFiles...)
	case !errors.Is(err, core.ErrDeviceNotFound):
		return nil, err
	}

	device := &models.Device{
		ID:          meta.ID,
		Name:        meta.Name,
		Brand:       meta.Brand,
		Model:       meta.Model,
		Room:        meta.Room,
		Category:    meta.Category,
		ManualFiles: sortedSet(files),
	}
	if err := s.deps.DB.UpsertDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("save device: %w", err)
	}

	s.archive(ctx, device.ID, targetDir)

	if _, err := s.deps.Ingestor.IngestDevice(ctx, device.ID); err != nil {
		return nil, fmt.Errorf("failed to update vector store: %w", err)
	}
	log.Info().Str("device_id", device.ID).Str("file", name).Msg("manual committed")
	return device, nil
}

// AttachManual adds another file to an existing device and re-ingests it.
func (s *ManualService) AttachManual(ctx context.Context, deviceID, filename string, body io.Reader) (*models.Device, error) {
	device, err := s.deps.DB.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	name := uploads.SanitizeFilename(filename)
	if name == "" {
		return nil, fmt.Errorf("invalid filename %q", filename)
	}

	dir := filepath.Join(s.deps.ManualsDir, deviceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(dir, name), body); err != nil {
		return nil, err
	}

	if !contains(device.ManualFiles, name) {
		device.ManualFiles = sortedSet(append(device.ManualFiles, name))
		if err := s.deps.DB.UpsertDevice(ctx, device); err != nil {
			return nil, fmt.Errorf("save device: %w", err)
		}
	}

	s.archive(ctx, deviceID, dir)

	if _, err := s.deps.Ingestor.IngestDevice(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("failed to update vector store: %w", err)
	}
	return device, nil
}

func (s *ManualService) archive(ctx context.Context, deviceID, dir string) {
	if s.deps.Archive == nil {
		return
	}
	if _, err := s.deps.Archive.ArchiveDir(ctx, deviceID, dir); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("archive upload failed")
	}
}

func validDeviceID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func sortedSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
			return err
		}
		return os.RemoveAll(src)
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := writeFile(dst, f); err != nil {
		return err
	}
	return os.Remove(src)
}

func writeFile(dst string, r io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
