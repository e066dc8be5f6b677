package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestForPaperAddsPaperID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := Logger
	Logger = zap.New(core)
	defer func() { Logger = prev }()

	ForPaper("smith-2020").Info("stage finished")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "smith-2020", entries[0].ContextMap()["paper_id"])
}

func TestInitHonoursLevel(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	require.NoError(t, Init("production", "warn"))
	assert.False(t, Get().Core().Enabled(zap.InfoLevel))
	assert.True(t, Get().Core().Enabled(zap.WarnLevel))
}
