package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Homedex/internal/models"
)

func TestManualFilesRoundTrip(t *testing.T) {
	enc, err := encodeManualFiles([]string{"b.md", "a.pdf", "b.md", ""})
	require.NoError(t, err)
	assert.Equal(t, `["a.pdf","b.md"]`, enc)

	got, err := decodeManualFiles([]byte(enc))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.md"}, got)

	empty, err := decodeManualFiles(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, empty)

	_, err = decodeManualFiles([]byte(`{"not":"a list"}`))
	assert.Error(t, err)
}

func TestSearchQuery(t *testing.T) {
	vec := pgvector.NewVector([]float32{0.1, 0.2})

	tests := []struct {
		name      string
		filter    models.ChunkFilter
		limit     int
		wantWhere string
		wantArgs  int
		wantLimit any
	}{
		{"no filter", models.ChunkFilter{}, 3, "", 2, 3},
		{"device", models.ChunkFilter{DeviceID: "oven"}, 5, "WHERE c.device_id = $2", 3, 5},
		{"room", models.ChunkFilter{Room: "Kitchen"}, 5, "WHERE d.room = $2", 3, 5},
		{"device wins over room", models.ChunkFilter{DeviceID: "oven", Room: "Kitchen"}, 5, "WHERE c.device_id = $2", 3, 5},
		{"default limit", models.ChunkFilter{}, 0, "", 2, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := searchQuery(vec, tt.filter, tt.limit)
			require.Len(t, args, tt.wantArgs)
			assert.Equal(t, tt.wantLimit, args[len(args)-1])
			assert.Contains(t, q, "ORDER BY c.embedding <=> $1")
			assert.Contains(t, q, fmt.Sprintf("LIMIT $%d", tt.wantArgs))
			if tt.wantWhere == "" {
				assert.NotContains(t, q, "WHERE")
			} else {
				assert.Contains(t, q, tt.wantWhere)
			}
		})
	}
}

func TestRenameRoomQuery(t *testing.T) {
	q, args := renameRoomQuery(UncategorizedRoom, "  Garage ")
	assert.Contains(t, q, "room IS NULL")
	assert.Equal(t, []any{"Garage"}, args)

	q, args = renameRoomQuery("Kitchen", "")
	assert.Contains(t, q, "WHERE room = $2")
	assert.Equal(t, []any{"", "Kitchen"}, args)
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN("postgres://u:p@db:5432/homedex", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/homedex", dsn)

	_, err = buildDSN("postgres://u:p@db:5432/homedex", filepath.Join(t.TempDir(), "missing.crt"))
	assert.ErrorContains(t, err, "ssl cert not accessible")

	cert := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(cert, []byte("pem"), 0o600))
	dsn, err = buildDSN("postgres://u:p@db:5432/homedex", cert)
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=verify-ca")
	assert.Contains(t, dsn, "sslrootcert=")
}

func TestBootstrapScriptEmbedded(t *testing.T) {
	b, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	require.NoError(t, err)
	sql := string(b)
	for _, want := range []string{"CREATE EXTENSION IF NOT EXISTS vector", "CREATE TABLE IF NOT EXISTS devices", "manual_chunks", "homedex_meta"} {
		assert.Contains(t, sql, want)
	}
}
