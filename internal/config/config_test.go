package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("RUNS_DIR", filepath.Join(dir, "runs"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "", cfg.TTSEngine)
	assert.True(t, cfg.EspeakFallbackEnabled)
	assert.True(t, cfg.CaptionsEnabled)
	assert.Equal(t, 2, cfg.MaxConcurrentRuns)

	info, err := os.Stat(cfg.RunsDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadRejectsEngineWithoutKey(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("RUNS_DIR", filepath.Join(dir, "runs"))
	t.Setenv("TTS_ENGINE", "elevenlabs")
	t.Setenv("ELEVENLABS_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ELEVENLABS_API_KEY")
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("RUNS_DIR", filepath.Join(dir, "runs"))
	t.Setenv("TTS_ENGINE", "kokoro")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsRedisWithoutWorker(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("RUNS_DIR", filepath.Join(dir, "runs"))
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("WORKER_ENABLED", "false")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_ENABLED")

	t.Setenv("WORKER_ENABLED", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.True(t, cfg.WorkerEnabled)
}

func TestTOMLOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	overlay := filepath.Join(dir, "adforge.toml")
	require.NoError(t, os.WriteFile(overlay, []byte(`
runs_dir = "from-toml"
api_port = "9090"
captions_enabled = false
render_workers = 4
`), 0644))

	t.Setenv("ADFORGE_CONFIG", overlay)
	t.Setenv("API_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-toml", cfg.RunsDir)
	assert.Equal(t, "7070", cfg.APIPort, "env must win over the overlay")
	assert.False(t, cfg.CaptionsEnabled)
	assert.Equal(t, 4, cfg.RenderWorkers)
}

func TestTOMLOverlayUnknownKey(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	overlay := filepath.Join(dir, "adforge.toml")
	require.NoError(t, os.WriteFile(overlay, []byte(`not_a_setting = 1`), 0644))
	t.Setenv("ADFORGE_CONFIG", overlay)
	t.Setenv("RUNS_DIR", filepath.Join(dir, "runs"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}
