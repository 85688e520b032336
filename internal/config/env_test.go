package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/homedex")
	t.Setenv("TOP_K", "")

	cfg := LoadConfig()

	assert.Equal(t, "/tmp/homedex/_uploads", cfg.UploadsDir)
	assert.Equal(t, "/tmp/homedex/manuals", cfg.ManualsDir)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, time.Hour, cfg.StatusTTL)
	assert.Equal(t, 2, cfg.LanguageSampleInterval)
	assert.InDelta(t, 0.3, cfg.RelevanceThreshold, 1e-9)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("STATUS_TTL", "90")
	t.Setenv("PROCESSING_WORKERS", "4")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abc")

	cfg := LoadConfig()

	assert.Equal(t, 90*time.Second, cfg.StatusTTL)
	assert.Equal(t, 4, cfg.ProcessingWorkers)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CorsOrigins)
	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.True(t, cfg.AuthEnabled())
}

func TestGetEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "many")
	t.Setenv("X_FLOAT", "lots")
	t.Setenv("X_DUR", "soon")

	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.InDelta(t, 1.5, getEnvFloat("X_FLOAT", 1.5), 1e-9)
	assert.Equal(t, time.Minute, getEnvDuration("X_DUR", time.Minute))
}

func TestArchiveEnabled(t *testing.T) {
	cfg := &Config{BucketName: "manuals"}
	assert.False(t, cfg.ArchiveEnabled())

	cfg.AwsAccessKey, cfg.AwsSecretKey = "a", "b"
	assert.True(t, cfg.ArchiveEnabled())
}
