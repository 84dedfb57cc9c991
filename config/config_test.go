package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/sampletag/blob"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, blob.DriverFilesystem, cfg.Blob.Driver)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SAMPLETAG_LOG_LEVEL", "debug")
	t.Setenv("SAMPLETAG_STORE_DRIVER", "postgres")
	t.Setenv("SAMPLETAG_STORE_DSN", "postgres://localhost/sampletag")
	t.Setenv("SAMPLETAG_BLOB_DRIVER", "s3")
	t.Setenv("SAMPLETAG_BLOB_S3_BUCKET", "labels")
	t.Setenv("SAMPLETAG_BLOB_S3_PATH_STYLE", "TRUE")
	t.Setenv("SAMPLETAG_REDIS_ADDR", "localhost:6379")
	t.Setenv("SAMPLETAG_REDIS_DB", "2")
	t.Setenv("SAMPLETAG_CACHE_TTL", "90m")
	t.Setenv("SAMPLETAG_RENDER_BACKGROUND", "bg.png")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/sampletag", cfg.Store.DSN)
	assert.Equal(t, blob.DriverS3, cfg.Blob.Driver)
	assert.Equal(t, "labels", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 90*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "bg.png", cfg.Background)
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("SAMPLETAG_REDIS_DB", "two")
	_, err := Load()
	assert.Error(t, err)

	cfg := Default()
	t.Setenv("X_REDIS_DB", "")
	t.Setenv("X_CACHE_TTL", "soon")
	assert.Error(t, cfg.LoadFromEnv("X"))
}
