package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markstash/markstash/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = t.TempDir()
	return cfg
}

func TestCheckDataDirWritable(t *testing.T) {
	c := New(testConfig(t))

	result := c.CheckDataDir()
	assert.Equal(t, StatusPass, result.Status)
	assert.True(t, result.Required)
}

func TestCheckDataDirCreatesMissingDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.DataDir = filepath.Join(cfg.Paths.DataDir, "nested", "data")
	c := New(cfg)

	result := c.CheckDataDir()
	assert.Equal(t, StatusPass, result.Status)

	_, err := os.Stat(cfg.Paths.DataDir)
	assert.NoError(t, err)
}

func TestCheckDataDirFailsOnFileCollision(t *testing.T) {
	cfg := testConfig(t)
	collision := filepath.Join(cfg.Paths.DataDir, "occupied")
	require.NoError(t, os.WriteFile(collision, []byte("x"), 0o644))
	cfg.Paths.DataDir = collision
	c := New(cfg)

	result := c.CheckDataDir()
	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.Critical())
}

func TestCheckDiskSpace(t *testing.T) {
	c := New(testConfig(t))

	result := c.CheckDiskSpace()
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "free")
}

func TestCheckDatabaseCreatesAndQueries(t *testing.T) {
	c := New(testConfig(t))

	result := c.CheckDatabase(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "0 bookmarks")
}

func TestCheckVectorSnapshot(t *testing.T) {
	cfg := testConfig(t)
	c := New(cfg)

	result := c.CheckVectorSnapshot()
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.Critical())

	require.NoError(t, os.WriteFile(cfg.VectorIndexPath(), []byte("snapshot"), 0o644))
	result = c.CheckVectorSnapshot()
	assert.Equal(t, StatusPass, result.Status)
}

func TestCheckEmbedderUnreachableWarns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.OllamaHost = "http://127.0.0.1:1"
	c := New(cfg)

	result := c.CheckEmbedder(context.Background())
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.Critical())
}

func TestHasCriticalFailures(t *testing.T) {
	assert.False(t, HasCriticalFailures([]Result{
		{Status: StatusPass, Required: true},
		{Status: StatusWarn, Required: false},
		{Status: StatusFail, Required: false},
	}))
	assert.True(t, HasCriticalFailures([]Result{
		{Status: StatusFail, Required: true},
	}))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
}
