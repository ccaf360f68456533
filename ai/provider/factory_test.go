package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personakb/persona/config"
	"github.com/personakb/persona/errors"
)

func TestNewFromConfigDisabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.Provider.Enabled = false

	client, err := NewFromConfig(cfg, nil)
	assert.Nil(t, client)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStrategyUnavailable))
}

func TestNewFromConfigNil(t *testing.T) {
	client, err := NewFromConfig(nil, nil)
	assert.Nil(t, client)
	assert.True(t, errors.Is(err, errors.ErrStrategyUnavailable))
}

func TestNewFromConfigEnabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.Provider.Enabled = true
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.ChatModel = "gpt-4o-mini"
	cfg.Embeddings.Model = "text-embedding-3-small"

	client, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "text-embedding-3-small", client.EmbeddingModel())
}

func TestNewOpenAIClientRequiresKeyOrURL(t *testing.T) {
	_, err := NewOpenAIClient(config.ProviderConfig{Enabled: true}, config.EmbeddingsConfig{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStrategyUnavailable))
}

func TestNewOpenAIClientLocalEndpointWithoutKey(t *testing.T) {
	client, err := NewOpenAIClient(config.ProviderConfig{
		Enabled: true,
		BaseURL: "http://localhost:11434/v1",
	}, config.EmbeddingsConfig{Model: "nomic-embed-text"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", client.EmbeddingModel())
}
