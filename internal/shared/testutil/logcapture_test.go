package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCapture(t *testing.T) {
	logger, logs := NewTestLogger(t)

	logger.With("component", "batch").Warn("item failed", "path", "a.csv")
	logger.Info("done", slog.Int("files", 2))

	records := logs.Records()
	require.Len(t, records, 2)

	failed := AssertLogged(t, logs, slog.LevelWarn, "item failed")
	assert.Equal(t, "batch", failed.Attrs["component"])
	assert.Equal(t, "a.csv", failed.Attrs["path"])

	done, ok := logs.Find("done")
	require.True(t, ok)
	assert.Equal(t, int64(2), done.Attrs["files"])

	_, ok = logs.Find("missing")
	assert.False(t, ok)
}
