package provider

import (
	"go.uber.org/zap"

	"github.com/personakb/persona/config"
	"github.com/personakb/persona/errors"
)

// NewFromConfig returns the configured provider client, or
// ErrStrategyUnavailable when the provider is disabled. Callers treat the
// error as "skip provider-backed strategies", not as a hard failure.
func NewFromConfig(cfg *config.Config, logger *zap.SugaredLogger) (Client, error) {
	if cfg == nil || !cfg.Provider.Enabled {
		return nil, errors.Wrap(errors.ErrStrategyUnavailable, "provider disabled in configuration")
	}
	return NewOpenAIClient(cfg.Provider, cfg.Embeddings, logger)
}
