package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hub-protocol/hub-go/pkg/log"
)

// Connection states.
type ConnectionState int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates dial or login in progress.
	StateConnecting

	// StateConnected indicates a logged-in session.
	StateConnected

	// StateClosing indicates a local close in progress.
	StateClosing
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrLoginFailed      = errors.New("login failed")
)

// Config configures a LineConn.
type Config struct {
	// Address is the hub's host:port.
	Address string

	// Program, Username and Password are the login credentials.
	// Login is skipped when Username is empty.
	Program  string
	Username string
	Password string

	// CommanderID is the commander name used when login is skipped.
	CommanderID string

	// DialTimeout bounds the TCP (and TLS) connect (default: 10s).
	DialTimeout time.Duration

	// LoginTimeout bounds the login handshake (default: 10s).
	LoginTimeout time.Duration

	// WriteTimeout is the timeout for a single line write (0 = no timeout).
	WriteTimeout time.Duration

	// MaxLineLength is the maximum line length in either direction
	// (default: DefaultMaxLineLength).
	MaxLineLength int

	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config

	// Logger is used for operational logging.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives every line read or written.
	// If nil, line tracing is disabled.
	ProtocolLogger log.Logger

	// ConnectionID tags the line trace events.
	ConnectionID string
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() Config {
	return Config{
		DialTimeout:   10 * time.Second,
		LoginTimeout:  10 * time.Second,
		MaxLineLength: DefaultMaxLineLength,
	}
}

// LineConn is a line-oriented TCP session with the hub.
// Incoming lines are delivered to the line handler from a single read
// goroutine, in arrival order.
type LineConn struct {
	config Config
	logger *slog.Logger

	// State
	state atomic.Int32

	// Session resources, replaced on every connect.
	mu      sync.RWMutex
	conn    net.Conn
	framer  *LineFramer
	cmdr    string
	done    chan struct{}
	onLine  LineHandler
	onState StateHandler

	writeMu sync.Mutex
}

// NewLineConn creates a connection (not yet connected).
func NewLineConn(config Config) *LineConn {
	def := DefaultConfig()
	if config.DialTimeout <= 0 {
		config.DialTimeout = def.DialTimeout
	}
	if config.LoginTimeout <= 0 {
		config.LoginTimeout = def.LoginTimeout
	}
	if config.MaxLineLength <= 0 {
		config.MaxLineLength = def.MaxLineLength
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &LineConn{
		config: config,
		logger: logger,
		cmdr:   config.CommanderID,
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// State returns the current connection state.
func (c *LineConn) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected reports whether the session is connected and logged in.
func (c *LineConn) IsConnected() bool {
	return c.State() == StateConnected
}

// CommanderID returns the commander name of the current or last session.
func (c *LineConn) CommanderID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cmdr
}

// SetLineHandler registers the read callback.
func (c *LineConn) SetLineHandler(fn LineHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLine = fn
}

// SetStateHandler registers the state-change callback.
func (c *LineConn) SetStateHandler(fn StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// RemoteAddr returns the hub's address, or nil when disconnected.
func (c *LineConn) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn != nil {
		return c.conn.RemoteAddr()
	}
	return nil
}

// Connect dials the configured address and logs in.
func (c *LineConn) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.notifyStateChange(StateDisconnected, StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if c.config.TLSConfig != nil {
		dialer := &tls.Dialer{Config: c.config.TLSConfig}
		conn, err = dialer.DialContext(dialCtx, "tcp", c.config.Address)
	} else {
		dialer := &net.Dialer{}
		conn, err = dialer.DialContext(dialCtx, "tcp", c.config.Address)
	}
	if err != nil {
		c.abortConnect()
		return fmt.Errorf("dial failed: %w", err)
	}

	return c.establish(ctx, conn)
}

// ConnectWith logs in over an already established stream.
func (c *LineConn) ConnectWith(ctx context.Context, conn net.Conn) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.notifyStateChange(StateDisconnected, StateConnecting)
	return c.establish(ctx, conn)
}

func (c *LineConn) establish(ctx context.Context, conn net.Conn) error {
	framer := NewLineFramer(conn, c.config.MaxLineLength)
	if c.config.ProtocolLogger != nil {
		framer.SetLogger(c.config.ProtocolLogger, c.config.ConnectionID)
	}

	cmdr := c.config.CommanderID
	if c.config.Username != "" {
		var err error
		cmdr, err = c.login(ctx, conn, framer)
		if err != nil {
			conn.Close()
			c.abortConnect()
			return err
		}
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.framer = framer
	c.cmdr = cmdr
	c.done = done
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	c.logger.Info("connected to hub", "address", conn.RemoteAddr().String(), "commander", cmdr)
	c.notifyStateChange(StateConnecting, StateConnected)

	go c.readLoop(framer, done)
	return nil
}

func (c *LineConn) abortConnect() {
	c.state.Store(int32(StateDisconnected))
	c.notifyStateChange(StateConnecting, StateDisconnected)
}

// WriteLine sends one line. The terminator is appended.
func (c *LineConn) WriteLine(line string) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	c.mu.RLock()
	framer := c.framer
	conn := c.conn
	c.mu.RUnlock()
	if framer == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	return framer.WriteLine(line)
}

// Close closes the session. Closing a disconnected LineConn is a no-op.
func (c *LineConn) Close() error {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateClosing)) {
		return nil
	}
	c.notifyStateChange(StateConnected, StateClosing)

	c.mu.RLock()
	conn := c.conn
	done := c.done
	c.mu.RUnlock()

	err := conn.Close()
	<-done

	c.release()
	c.state.Store(int32(StateDisconnected))
	c.logger.Info("hub connection closed")
	c.notifyStateChange(StateClosing, StateDisconnected)
	return err
}

// Done returns a channel closed when the current session's read loop ends.
// It returns nil before the first connect.
func (c *LineConn) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

func (c *LineConn) release() {
	c.mu.Lock()
	c.conn = nil
	c.framer = nil
	c.mu.Unlock()
}

// readLoop delivers lines until the stream fails or is closed.
func (c *LineConn) readLoop(framer *LineFramer, done chan struct{}) {
	defer close(done)

	for {
		line, err := framer.ReadLine()
		if err != nil {
			if !c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
				return // Local close in progress
			}
			if errors.Is(err, io.EOF) {
				err = ErrConnectionClosed
			}
			c.logger.Warn("hub connection lost", "error", err)

			c.mu.Lock()
			if c.conn != nil {
				c.conn.Close()
			}
			c.mu.Unlock()
			c.release()
			c.notifyStateChange(StateConnected, StateDisconnected)
			return
		}
		if line == "" {
			continue
		}

		c.mu.RLock()
		handler := c.onLine
		c.mu.RUnlock()
		if handler != nil {
			handler(line)
		}
	}
}

// notifyStateChange notifies the handler of state changes.
func (c *LineConn) notifyStateChange(oldState, newState ConnectionState) {
	c.mu.RLock()
	handler := c.onState
	c.mu.RUnlock()
	if handler != nil {
		handler(oldState, newState)
	}
}
