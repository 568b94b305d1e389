package dispatch

import (
	"slices"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/hub-protocol/hub-go/pkg/keyvar"
	"github.com/hub-protocol/hub-go/pkg/log"
	"github.com/hub-protocol/hub-go/pkg/transport"
)

const testCommander = "tester"

// fakeConn is an in-memory LineConnection.
type fakeConn struct {
	mu        sync.Mutex
	connected bool
	cmdr      string
	lines     []string
	writeErr  error
	onLine    transport.LineHandler
	onState   transport.StateHandler
}

func newFakeConn(connected bool) *fakeConn {
	return &fakeConn{connected: connected, cmdr: testCommander}
}

func (c *fakeConn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.lines = append(c.lines, line)
	return nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) CommanderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmdr
}

func (c *fakeConn) SetLineHandler(fn transport.LineHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLine = fn
}

func (c *fakeConn) SetStateHandler(fn transport.StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// setState moves the fake to state and notifies the state handler.
func (c *fakeConn) setState(oldState, newState transport.ConnectionState) {
	c.mu.Lock()
	c.connected = newState == transport.StateConnected
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(oldState, newState)
	}
}

func (c *fakeConn) disconnect() {
	c.setState(transport.StateConnected, transport.StateDisconnected)
}

func (c *fakeConn) connect() {
	c.setState(transport.StateConnecting, transport.StateConnected)
}

// reply feeds a line to the registered line handler.
func (c *fakeConn) reply(line string) {
	c.mu.Lock()
	fn := c.onLine
	c.mu.Unlock()
	fn(line)
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lines)
}

var _ transport.LineConnection = (*fakeConn)(nil)

// traceRecorder collects protocol trace events.
type traceRecorder struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *traceRecorder) Log(ev log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *traceRecorder) byCategory(c log.Category) []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []log.Event
	for _, ev := range r.events {
		if ev.Category == c {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	d     *Dispatcher
	conn  *fakeConn
	clock *clockwork.FakeClock
	trace *traceRecorder
}

func newTestEnv(t *testing.T, connected bool) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, connected, Config{})
}

func newTestEnvWithConfig(t *testing.T, connected bool, config Config) *testEnv {
	t.Helper()
	conn := newFakeConn(connected)
	clock := clockwork.NewFakeClock()
	trace := &traceRecorder{}
	config.Clock = clock
	config.ProtocolLogger = trace
	d, err := New(conn, config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{d: d, conn: conn, clock: clock, trace: trace}
}

func floats(n int) []keyvar.Converter {
	out := make([]keyvar.Converter, n)
	for i := range out {
		out[i] = keyvar.AsFloat
	}
	return out
}

// kvRecorder counts KeyVar callbacks by currency.
type kvRecorder struct {
	mu         sync.Mutex
	current    int
	notCurrent int
}

func (r *kvRecorder) callback(_ []any, isCurrent bool, _ *keyvar.KeyVar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if isCurrent {
		r.current++
	} else {
		r.notCurrent++
	}
}

func (r *kvRecorder) counts() (current, notCurrent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.notCurrent
}
