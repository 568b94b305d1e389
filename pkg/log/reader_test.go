package log

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func collect(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, event)
	}
}

func sessionEvents(base time.Time) []Event {
	return []Event{
		{Timestamp: base, ConnectionID: "conn-1", Direction: DirectionOut, Layer: LayerWire, Category: CategoryCommand,
			Command: &CommandEvent{CmdID: 1, Actor: "tcc", Text: "track 10,20"}},
		{Timestamp: base.Add(time.Second), ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerWire, Category: CategoryReply,
			Reply: &ReplyEvent{CmdID: 1, Actor: "tcc", MsgType: ">"}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerWire, Category: CategoryReply,
			Reply: &ReplyEvent{CmdID: 1, Actor: "tcc", MsgType: "f"}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "conn-2", Direction: DirectionIn, Layer: LayerWire, Category: CategoryReply,
			Reply: &ReplyEvent{CmdID: 0, Actor: "mcp", MsgType: "i"}},
		{Timestamp: base.Add(4 * time.Second), ConnectionID: "conn-2", Direction: DirectionLocal, Layer: LayerDispatch, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityConnection, NewState: "DISCONNECTED"}},
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(time.Now()))

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	events := collect(t, reader)
	require.Len(t, events, 5)
	assert.Equal(t, "track 10,20", events[0].Command.Text)
	assert.Equal(t, "mcp", events[3].Reply.Actor)
}

func TestFilteredReader(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, sessionEvents(base))

	in := DirectionIn
	reply := CategoryReply
	cmdID := 1
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 5},
		{"connection", Filter{ConnectionID: "conn-2"}, 2},
		{"direction", Filter{Direction: &in}, 3},
		{"category", Filter{Category: &reply}, 3},
		{"actor case-insensitive", Filter{Actor: "TCC"}, 3},
		{"cmd id", Filter{CmdID: &cmdID}, 3},
		{"failures", Filter{MsgTypes: "f!"}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{Actor: "tcc", Category: &reply, MsgTypes: ">"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer reader.Close()

			assert.Len(t, collect(t, reader), tt.want)
		})
	}
}

func TestReaderTruncatedFile(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(time.Now()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0644))

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	assert.Len(t, collect(t, reader), 4, "partial final event ends the stream")
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "nope.hlog"))
	assert.Error(t, err)
}
