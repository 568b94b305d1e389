package commands

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hub-protocol/hub-go/pkg/log"
)

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	require.NoError(t, RunExport(path, "jsonl", outPath, log.Filter{}))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 7)

	var cmd log.Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &cmd))
	require.NotNil(t, cmd.Command)
	assert.Equal(t, "move 1,2", cmd.Command.Text)
	assert.Equal(t, "tester", cmd.Commander)

	var reply log.Event
	require.NoError(t, json.Unmarshal([]byte(lines[5]), &reply))
	require.NotNil(t, reply.Reply)
	assert.True(t, reply.Reply.Synthesized)
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "out.csv")

	require.NoError(t, RunExport(path, "csv", outPath, log.Filter{}))

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 8)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"2026-03-04T10:15:32.124456Z", "abc12345-0000-4000-8000-000000000001",
		"OUT", "WIRE", "COMMAND", "tester", "command:user", "1", "tcc", "move 1,2",
	}, records[2])
	assert.Equal(t, "line", records[3][6])
	assert.Equal(t, "tester 1 tcc : AxePos=1,2,3", records[3][9])
	assert.Equal(t, "reply::", records[4][6])
	assert.Equal(t, "AxePos=1,2,3", records[4][9])
	assert.Equal(t, "command:refresh", records[5][6])
	assert.Equal(t, "state", records[1][6])
	assert.Equal(t, "CONNECTED", records[1][9])
	assert.Equal(t, "error", records[7][6])
}

func TestExportFiltered(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	layer := log.LayerTransport
	require.NoError(t, RunExport(path, "jsonl", outPath, log.Filter{Layer: &layer}))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	err := RunExport(path, "xml", "", log.Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
