package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "")
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, "filesystem", cfg.MediaStorageType)
	assert.Equal(t, 800, cfg.CanvasWidth)
	assert.Equal(t, 600, cfg.CanvasHeight)
	assert.Equal(t, time.Hour, cfg.RenderCacheTTL)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "sqlite")
	t.Setenv("CANVAS_WIDTH", "1024")
	t.Setenv("UPLOAD_RATE_PER_MINUTE", "2.5")
	t.Setenv("IMAGE_HOSTS", "cdn.example.com;assets.shop.test")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StorageType)
	assert.Equal(t, 1024, cfg.CanvasWidth)
	assert.Equal(t, 2.5, cfg.UploadRatePerMinute)
	assert.Equal(t, []string{"cdn.example.com", "assets.shop.test"}, cfg.ImageHosts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORAGE_TYPE": "postgres"}},
		{"s3 without bucket", map[string]string{"STORAGE_TYPE": "s3"}},
		{"unknown storage", map[string]string{"STORAGE_TYPE": "floppy"}},
		{"media s3 without bucket", map[string]string{"MEDIA_STORAGE_TYPE": "s3"}},
		{"redis without url", map[string]string{"RENDER_CACHE": "redis"}},
		{"zero canvas", map[string]string{"CANVAS_WIDTH": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
