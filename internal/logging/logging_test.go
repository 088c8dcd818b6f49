package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "chatty", false)
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger.Debug().Msg("hidden")
	require.Zero(t, buf.Len())

	logger.Info().Str("component", "test").Msg("visible")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "visible", line["message"])
	require.Equal(t, "test", line["component"])
}

func TestNewHonoursDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "DEBUG", false)
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}
