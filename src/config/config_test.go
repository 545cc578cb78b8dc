package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "video/output", cfg.Output)
	assert.Equal(t, "MP4V", cfg.OutputFormat)
	assert.False(t, cfg.AdjustBrightness)
	assert.Equal(t, 256, cfg.ImgSize)
	assert.Equal(t, "square", cfg.ResizePolicy)
	assert.Equal(t, "onnxruntime", cfg.Backend)
	assert.Equal(t, "ffmpeg", cfg.VideoBackend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video2anime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
video: clips/cherry.mp4
checkpoint_dir: checkpoints/paprika
output_format: H264
if_adjust_brightness: true
img_size: 512
log:
  level: debug
`), 0o644))

	t.Setenv("VIDEO2ANIME_OUTPUT_FORMAT", "MJPG")
	t.Setenv("VIDEO2ANIME_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "clips/cherry.mp4", cfg.Video)
	assert.Equal(t, "checkpoints/paprika", cfg.CheckpointDir)
	assert.True(t, cfg.AdjustBrightness)
	assert.Equal(t, 512, cfg.ImgSize)
	assert.Equal(t, "MJPG", cfg.OutputFormat, "environment wins over the file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "video/output", cfg.Output, "untouched keys keep their default")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("img_size: [1, 2]"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	t.Setenv("VIDEO2ANIME_IMG_SIZE", "big")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty video", func(c *Config) { c.Video = "" }},
		{"empty output", func(c *Config) { c.Output = "" }},
		{"bad codec", func(c *Config) { c.OutputFormat = "MPEG4" }},
		{"bad policy", func(c *Config) { c.ResizePolicy = "crop" }},
		{"bad size", func(c *Config) { c.ImgSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
