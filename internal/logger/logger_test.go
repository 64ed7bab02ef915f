package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	levels := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
	for name, want := range levels {
		t.Run("sets "+name+" level", func(t *testing.T) {
			SetLevel(name)
			require.Equal(t, want, zerolog.GlobalLevel())
		})
	}

	t.Run("defaults to info for unknown level", func(t *testing.T) {
		SetLevel("unknown")
		require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	})
}

func TestSetJSON(t *testing.T) {
	SetJSON()
	require.NotNil(t, Log)

	Log.Info().
		Str("key", "value").
		Int("count", 42).
		Msg("test with fields")
}
