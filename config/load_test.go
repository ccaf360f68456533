package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "persona.db", cfg.Database.Path)
	assert.Equal(t, []string{"lexical", "vector"}, cfg.Search.Strategies)
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.Equal(t, 100, cfg.Search.ScorePoolSize)
	assert.Equal(t, 15, cfg.Search.ScoreBatchSize)
	assert.Equal(t, 60, cfg.Search.StrategyTimeoutSeconds)
	assert.Equal(t, 120, cfg.Embeddings.BatchTimeoutSeconds)
	assert.Equal(t, 4, cfg.Pools.SearchWorkers)
	assert.False(t, cfg.Provider.Enabled)
}

func TestLoadCaches(t *testing.T) {
	Reset()
	defer Reset()

	first, err := Load()
	require.NoError(t, err)
	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.toml")
	content := `
[database]
path = "/tmp/test-persona.db"

[search]
rrf_k = 30
strategies = ["lexical"]

[provider]
enabled = true
chat_model = "gpt-4o"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test-persona.db", cfg.Database.Path)
	assert.Equal(t, 30, cfg.Search.RRFK)
	assert.Equal(t, []string{"lexical"}, cfg.Search.Strategies)
	assert.True(t, cfg.Provider.Enabled)
	assert.Equal(t, "gpt-4o", cfg.Provider.ChatModel)

	// Values absent from the file keep their defaults
	assert.Equal(t, 15, cfg.Search.ScoreBatchSize)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
