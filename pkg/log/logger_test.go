package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintfLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	NewPrintfLogger(ctx, "migrations", zerolog.InfoLevel).
		Printf("OK   %s (%s)\n", "00002_base_importance.sql", "1.2ms")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "migrations", entry["component"])
	assert.Equal(t, "OK   00002_base_importance.sql (1.2ms)", entry["message"])
}

func TestPrintfLogger_RespectsLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).Level(zerolog.InfoLevel).WithContext(context.Background())

	NewPrintfLogger(ctx, "migrations", zerolog.DebugLevel).Printf("goose: no migrations to run")
	assert.Zero(t, buf.Len())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	FromCtx(WithComponent(ctx, "extractor")).Info().Msg("tick")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "extractor", entry["component"])
}
