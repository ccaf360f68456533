package logger

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitializeConsole(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.False(t, JSONOutput)
}

func TestInitializeJSON(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.True(t, JSONOutput)
}

func TestLevelFromEnv(t *testing.T) {
	cases := []struct {
		env  string
		want string
	}{
		{"debug", "debug"},
		{"warn", "warn"},
		{"error", "error"},
		{"", "info"},
		{"garbage", "info"},
	}

	for _, tc := range cases {
		t.Run("level "+tc.env, func(t *testing.T) {
			os.Setenv("PERSONA_LOG_LEVEL", tc.env)
			defer os.Unsetenv("PERSONA_LOG_LEVEL")
			assert.Equal(t, tc.want, levelFromEnv().String())
		})
	}
}

func TestHelpersDoNotPanicBeforeInitialize(t *testing.T) {
	// Package init installs a no-op logger, so helpers are always safe
	Logger = zap.NewNop().Sugar()
	Infow("info", "k", "v")
	Warnw("warn", "k", "v")
	Errorw("error", "k", "v")
	Debugw("debug", "k", "v")
}
