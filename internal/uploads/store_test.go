package uploads

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Homedex/internal/models"
)

func TestRegister(t *testing.T) {
	s := NewStore(t.TempDir())

	meta, err := s.Register("My Oven Manual.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	assert.Len(t, meta.Token, 32)
	assert.Equal(t, "My_Oven_Manual.pdf", meta.StoredFilename)
	assert.Equal(t, "My_Oven_Manual.pdf", meta.OriginalFilename)

	data, err := os.ReadFile(filepath.Join(s.TokenDir(meta.Token), "My_Oven_Manual.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	raw, err := os.ReadFile(filepath.Join(s.TokenDir(meta.Token), "meta.json"))
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Nil(t, fields["english_filename"])
	assert.Equal(t, []any{}, fields["extracted_pages"])
	assert.NotContains(t, fields, "translated_filename")
}

func TestRegister_StripsDirectories(t *testing.T) {
	s := NewStore(t.TempDir())
	meta, err := s.Register("../../etc/passwd manual.pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "passwd_manual.pdf", meta.StoredFilename)

	_, err = s.Register("..", []byte("x"))
	assert.Error(t, err)
}

func TestRegister_RenamesReservedNames(t *testing.T) {
	s := NewStore(t.TempDir())

	meta, err := s.Register("META.json", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "upload_META.json", meta.StoredFilename)

	data, err := os.ReadFile(filepath.Join(s.TokenDir(meta.Token), "upload_META.json"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	loaded, err := s.LoadMeta(meta.Token)
	require.NoError(t, err)
	assert.Equal(t, "upload_META.json", loaded.StoredFilename)

	meta, err = s.Register("images", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "upload_images", meta.StoredFilename)
}

func TestUpdateMeta(t *testing.T) {
	s := NewStore(t.TempDir())
	meta, err := s.Register("hood.pdf", []byte("x"))
	require.NoError(t, err)

	err = s.UpdateMeta(meta.Token, func(m *models.UploadMeta) {
		m.TranslatedFilename = "hood_reference.md"
		m.DetectedLanguage = "de"
	})
	require.NoError(t, err)

	got, err := s.LoadMeta(meta.Token)
	require.NoError(t, err)
	assert.Equal(t, "hood_reference.md", got.TranslatedFilename)
	assert.Equal(t, "de", got.DetectedLanguage)
	assert.Equal(t, "hood.pdf", got.StoredFilename)
}

func TestUnknownToken(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.LoadMeta("0123456789abcdef0123456789abcdef")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = s.LoadMeta("../../secret")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	err = s.UpdateMeta("0123456789abcdef0123456789abcdef", func(*models.UploadMeta) {})
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestFilePath(t *testing.T) {
	s := NewStore(t.TempDir())
	meta, err := s.Register("hood.pdf", []byte("x"))
	require.NoError(t, err)

	p, err := s.FilePath(meta.Token, "hood.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.TokenDir(meta.Token), "hood.pdf"), p)

	_, err = s.FilePath(meta.Token, "missing.md")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = s.FilePath(meta.Token, "../../meta.json")
	require.NoError(t, err, "escapes collapse to the base name inside the token dir")
}

func TestCleanup(t *testing.T) {
	s := NewStore(t.TempDir())
	meta, err := s.Register("hood.pdf", []byte("x"))
	require.NoError(t, err)

	s.Cleanup(meta.Token)

	_, err = os.Stat(s.TokenDir(meta.Token))
	assert.True(t, os.IsNotExist(err))
	_, err = s.LoadMeta(meta.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
