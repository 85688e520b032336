// Package uploads keeps each uploaded manual in its own token directory
// until it is committed to a device or discarded.
package uploads

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/models"
)

const metaFile = "meta.json"

var (
	ErrTokenNotFound = errors.New("unknown upload token")
	ErrFileNotFound  = errors.New("file not found for token")
)

type Store struct {
	root string
	// serialises meta.json read-modify-write cycles
	mu sync.Mutex
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Register writes content under a fresh token and records its meta.json.
func (s *Store) Register(filename string, content []byte) (*models.UploadMeta, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return nil, errors.New("filename is required")
	}
	if reserved(name) {
		name = "upload_" + name
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	dir := s.TokenDir(token)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	meta := &models.UploadMeta{
		Token:            token,
		OriginalFilename: name,
		StoredFilename:   name,
		ExtractedPages:   []int{},
	}
	if err := s.writeMeta(token, meta); err != nil {
		return nil, err
	}
	log.Info().Str("token", token).Str("file", name).Int("bytes", len(content)).Msg("upload registered")
	return meta, nil
}

func (s *Store) LoadMeta(token string) (*models.UploadMeta, error) {
	if !validToken(token) {
		return nil, ErrTokenNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.TokenDir(token), metaFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	var meta models.UploadMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	return &meta, nil
}

// UpdateMeta applies fn to the stored meta and writes it back.
func (s *Store) UpdateMeta(token string, fn func(*models.UploadMeta)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.LoadMeta(token)
	if err != nil {
		return err
	}
	fn(meta)
	return s.writeMeta(token, meta)
}

// FilePath resolves name inside the token directory. It never escapes it.
func (s *Store) FilePath(token, name string) (string, error) {
	if !validToken(token) {
		return "", ErrTokenNotFound
	}
	dir := s.TokenDir(token)
	p := filepath.Join(dir, filepath.Base(filepath.Clean("/"+name)))
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return p, nil
}

func (s *Store) TokenDir(token string) string {
	return filepath.Join(s.root, token)
}

// Cleanup removes everything stored under token.
func (s *Store) Cleanup(token string) {
	if !validToken(token) {
		return
	}
	if err := os.RemoveAll(s.TokenDir(token)); err != nil {
		log.Warn().Err(err).Str("token", token).Msg("upload cleanup failed")
	}
}

func (s *Store) writeMeta(token string, meta *models.UploadMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.TokenDir(token), metaFile), data, 0o644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

// SanitizeFilename keeps the base name and replaces spaces with underscores.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return strings.ReplaceAll(name, " ", "_")
}

// reserved names belong to the store or the pipeline inside a token dir.
func reserved(name string) bool {
	return strings.EqualFold(name, metaFile) || strings.EqualFold(name, "images")
}

// Tokens are 32 lowercase hex chars.
func validToken(token string) bool {
	if len(token) != 32 {
		return false
	}
	for _, r := range token {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
