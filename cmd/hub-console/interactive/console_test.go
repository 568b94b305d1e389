package interactive

import (
	"bytes"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hub-protocol/hub-go/pkg/catalog"
	"github.com/hub-protocol/hub-go/pkg/dispatch"
	"github.com/hub-protocol/hub-go/pkg/transport"
)

type fakeConn struct {
	mu        sync.Mutex
	connected bool
	lines     []string
}

func (c *fakeConn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	return nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) CommanderID() string { return "tester" }

func (c *fakeConn) SetLineHandler(transport.LineHandler) {}

func (c *fakeConn) SetStateHandler(transport.StateHandler) {}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

const testCatalog = `
actors:
  - name: tcc
    refresh:
      allowed: true
    keywords:
      - name: AxePos
        types: [float]
        count: 3
      - name: TCCStatus
        types: [str]
`

type testConsole struct {
	*Console
	conn *fakeConn
	hub  *dispatch.Dispatcher
	buf  *bytes.Buffer
}

func newTestConsole(t *testing.T, connected bool, withCatalog bool) *testConsole {
	t.Helper()
	conn := &fakeConn{connected: connected}
	disp, err := dispatch.New(conn, dispatch.Config{Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)

	cfg := Config{Address: "hub.local:9877"}
	if withCatalog {
		c, err := catalog.Parse([]byte(testCatalog))
		require.NoError(t, err)
		model, err := catalog.Build(c, disp, catalog.BuildOptions{})
		require.NoError(t, err)
		t.Cleanup(model.Stop)
		cfg.Model = model
	}

	out := &bytes.Buffer{}
	return &testConsole{
		Console: newConsole(disp, cfg, out),
		conn:    conn,
		hub:     disp,
		buf:     out,
	}
}

func TestCommand(t *testing.T) {
	tc := newTestConsole(t, true, false)

	assert.True(t, tc.Execute("cmd tcc move  1, 2"))
	assert.Equal(t, []string{"1 tcc move  1, 2"}, tc.conn.written())
	assert.Contains(t, tc.buf.String(), "[1] tcc move  1, 2")

	tc.hub.HandleLine("tester 1 tcc i text=\"moving\"")
	tc.hub.HandleLine("tester 1 tcc : AxePos=1,2,3")
	out := tc.buf.String()
	assert.Contains(t, out, "[1] tcc i text=moving")
	assert.Contains(t, out, "[1] tcc : AxePos=1,2,3")
	assert.Contains(t, out, "[1] DONE")
	assert.Empty(t, tc.hub.PendingCommands())
}

func TestCommandUsage(t *testing.T) {
	tc := newTestConsole(t, true, false)

	tc.Execute("cmd tcc")
	assert.Contains(t, tc.buf.String(), "Usage: cmd <actor> <text>")
	assert.Empty(t, tc.conn.written())
}

func TestCommandNotConnected(t *testing.T) {
	tc := newTestConsole(t, false, false)

	tc.Execute("cmd tcc move 1,2")
	assert.Empty(t, tc.conn.written())
	assert.Contains(t, tc.buf.String(), "Not connected")
	assert.Contains(t, tc.buf.String(), "FAILED")
}

func TestAbort(t *testing.T) {
	tc := newTestConsole(t, true, false)

	tc.Execute("cmd tcc move 1,2")
	tc.Execute("abort 1")
	assert.Contains(t, tc.buf.String(), "[1] ABORTED")
	assert.Empty(t, tc.hub.PendingCommands())

	tc.buf.Reset()
	tc.Execute("abort 1")
	assert.Contains(t, tc.buf.String(), "No running command 1")

	tc.buf.Reset()
	tc.Execute("abort one")
	assert.Contains(t, tc.buf.String(), "Invalid command ID: one")
}

func TestWatchAdHocKeyword(t *testing.T) {
	tc := newTestConsole(t, true, false)

	tc.Execute("watch mcp Door")
	assert.Contains(t, tc.buf.String(), "Watching mcp.Door")
	require.Len(t, tc.hub.KeyVarsFor("mcp", "door"), 1)

	tc.hub.HandleLine("tester 0 mcp i Door=open,closed")
	assert.Contains(t, tc.buf.String(), `mcp.Door = "open", "closed"`)

	tc.buf.Reset()
	tc.Execute("watch mcp door")
	assert.Contains(t, tc.buf.String(), "Already watching")

	tc.Execute("unwatch mcp door")
	assert.Contains(t, tc.buf.String(), "Stopped watching mcp.Door")
	assert.Empty(t, tc.hub.KeyVarsFor("mcp", "door"))

	tc.buf.Reset()
	tc.Execute("unwatch mcp door")
	assert.Contains(t, tc.buf.String(), "Not watching mcp.door")
}

func TestWatchCatalogKeyword(t *testing.T) {
	tc := newTestConsole(t, true, true)

	tc.Execute("watch tcc axepos")
	assert.Contains(t, tc.buf.String(), "Watching tcc.AxePos")
	assert.Len(t, tc.hub.KeyVarsFor("tcc", "AxePos"), 1)

	tc.hub.HandleLine("tester 0 tcc i AxePos=1.5,2,nan")
	assert.Contains(t, tc.buf.String(), "tcc.AxePos = 1.5, 2, NaN")

	tc.Execute("unwatch tcc axepos")
	assert.Len(t, tc.hub.KeyVarsFor("tcc", "AxePos"), 1)
}

func TestShow(t *testing.T) {
	tc := newTestConsole(t, true, true)

	tc.hub.HandleLine(`tester 0 tcc i TCCStatus="Tracking"`)
	tc.Execute("show tcc")
	out := tc.buf.String()
	assert.Contains(t, out, "tcc.AxePos")
	assert.Contains(t, out, "None, None, None (not current)")
	assert.Contains(t, out, `"Tracking"`)

	tc.buf.Reset()
	tc.Execute("show apogee")
	assert.Contains(t, tc.buf.String(), "No keywords")
}

func TestPending(t *testing.T) {
	tc := newTestConsole(t, true, false)

	tc.Execute("pending")
	assert.Contains(t, tc.buf.String(), "No running commands")

	tc.Execute("cmd tcc move 1,2")
	tc.buf.Reset()
	tc.Execute("pending")
	assert.Contains(t, tc.buf.String(), "DISPATCHED")
	assert.Contains(t, tc.buf.String(), "move 1,2")
}

func TestRefresh(t *testing.T) {
	tc := newTestConsole(t, true, true)

	tc.hub.HandleLine("tester 0 tcc i AxePos=1,2,3")
	kv, ok := tc.config.Model.KeyVar("tcc", "AxePos")
	require.True(t, ok)
	require.True(t, kv.IsCurrent())

	tc.Execute("refresh tcc")
	assert.Contains(t, tc.buf.String(), "Refreshing 2 keywords")
	assert.False(t, kv.IsCurrent())

	tc.buf.Reset()
	tc.Execute("refresh mcp")
	assert.Contains(t, tc.buf.String(), "Refreshing 0 keywords")
}

func TestStatus(t *testing.T) {
	tc := newTestConsole(t, true, true)
	tc.config.ConnState = func() string { return "RECONNECTING" }

	tc.Execute("status")
	out := tc.buf.String()
	assert.Contains(t, out, "Hub:        hub.local:9877")
	assert.Contains(t, out, "Connection: RECONNECTING")
	assert.Contains(t, out, "Session:    "+tc.hub.ConnectionID())
	assert.Contains(t, out, "Actors:     tcc")
	assert.Contains(t, out, "Keywords:   2")
}

func TestUnknownAndQuit(t *testing.T) {
	tc := newTestConsole(t, true, false)

	assert.True(t, tc.Execute(""))
	assert.True(t, tc.Execute("frobnicate"))
	assert.Contains(t, tc.buf.String(), "Unknown command: frobnicate")
	assert.False(t, tc.Execute("QUIT"))
}

func TestCommandText(t *testing.T) {
	assert.Equal(t, "move 1,2", commandText("cmd tcc move 1,2", "tcc"))
	assert.Equal(t, `set text="a  b"`, commandText(`  c   mcp   set text="a  b"`, "mcp"))
}
