package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hub-protocol/hub-go/pkg/log"
)

func TestCollectStats(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	stats, err := CollectStats(path)
	require.NoError(t, err)

	assert.Equal(t, 7, stats.TotalEvents)
	assert.Equal(t, 1, stats.EventsByLayer[log.LayerTransport])
	assert.Equal(t, 5, stats.EventsByLayer[log.LayerWire])
	assert.Equal(t, 1, stats.EventsByLayer[log.LayerDispatch])
	assert.Equal(t, 3, stats.EventsByCategory[log.CategoryReply])
	assert.Equal(t, 2, stats.EventsByDirection[log.DirectionLocal])
	assert.Equal(t, 1, stats.RepliesByType[":"])
	assert.Equal(t, 1, stats.RepliesByType["f"])
	assert.Equal(t, 1, stats.CommandsByKind[log.CommandKindUser])
	assert.Equal(t, 1, stats.CommandsByKind[log.CommandKindRefresh])
	assert.Equal(t, 1, stats.Synthesized)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, testTime, stats.TimeRange.Start.UTC())
	assert.Equal(t, testTime.Add(22*time.Second), stats.TimeRange.End.UTC())

	require.Len(t, stats.Connections, 1)
	for _, conn := range stats.Connections {
		assert.Equal(t, 7, conn.Events)
		assert.Equal(t, "tester", conn.Commander)
		assert.Equal(t, 2, conn.Commands)
		assert.Equal(t, 1, conn.Failures)
	}
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	out := buf.String()

	assert.Contains(t, out, "Total Events: 7")
	assert.Contains(t, out, "Duration:   22s")
	assert.Contains(t, out, "REFRESH:")
	assert.Contains(t, out, "local:")
	assert.Contains(t, out, "[abc12345] 7 events")
	assert.Contains(t, out, "Commander: tester")
	assert.Contains(t, out, "Commands: 2 (1 failed replies)")
	assert.Contains(t, out, "Errors: 1")
}

func TestRunStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	assert.Contains(t, buf.String(), "Total Events: 0")
	assert.NotContains(t, buf.String(), "Time Range")
}
