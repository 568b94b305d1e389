package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hub-protocol/hub-go/pkg/metrics"
	"github.com/hub-protocol/hub-go/pkg/transport"
)

// Manager errors.
var (
	ErrManagerRunning    = errors.New("manager already running")
	ErrReconnectDisabled = errors.New("reconnection disabled")
)

// State represents the managed connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates the manager is waiting to retry.
	StateReconnecting

	// StateClosed indicates the manager has stopped.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is a connection the manager keeps alive.
// Implemented by *transport.LineConn.
type Session interface {
	// Connect establishes the session.
	Connect(ctx context.Context) error

	// Done is closed when the current session ends.
	Done() <-chan struct{}

	// Close ends the current session.
	Close() error
}

var _ Session = (*transport.LineConn)(nil)

// Config configures a Manager.
type Config struct {
	// Backoff configures the delay between attempts.
	Backoff BackoffConfig

	// ConnectTimeout bounds each attempt (default: 30s).
	ConnectTimeout time.Duration

	// AutoReconnect retries after failures and connection loss.
	AutoReconnect bool

	// Clock drives backoff waits. Nil means the real clock.
	Clock clockwork.Clock

	// Logger is used for operational logging.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Backoff:        DefaultBackoffConfig(),
		ConnectTimeout: 30 * time.Second,
		AutoReconnect:  true,
	}
}

// Manager keeps a Session connected, reconnecting with exponential backoff.
type Manager struct {
	mu sync.RWMutex

	session Session
	config  Config
	backoff *Backoff
	clock   clockwork.Clock
	logger  *slog.Logger

	state   State
	running bool

	// Callbacks
	onStateChange  func(oldState, newState State)
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a manager for session.
func NewManager(session Session, config Config) *Manager {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Manager{
		session: session,
		config:  config,
		backoff: NewBackoffWithConfig(config.Backoff),
		clock:   config.Clock,
		logger:  logger,
		state:   StateDisconnected,
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.AutoReconnect = enabled
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnReconnecting sets a callback run before each backoff wait.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// BackoffAttempts returns the number of failed attempts since the last success.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

// Run connects and keeps the session connected until ctx ends. Without
// auto-reconnect it returns the first connect error, or
// ErrReconnectDisabled when the session is lost.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrManagerRunning
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.setState(StateClosed)
	}()

	for {
		m.setState(StateConnecting)
		err := m.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil {
			m.setState(StateConnected)
			select {
			case <-ctx.Done():
				m.session.Close()
				return ctx.Err()
			case <-m.session.Done():
				m.logger.Warn("hub session ended")
			}
		} else {
			m.logger.Warn("hub connect failed", "error", err)
		}

		if !m.autoReconnect() {
			m.setState(StateDisconnected)
			if err != nil {
				return err
			}
			return ErrReconnectDisabled
		}

		m.setState(StateReconnecting)
		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()
		m.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
		if fn := m.reconnectingCallback(); fn != nil {
			fn(attempt, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(delay):
		}
	}
}

func (m *Manager) connect(ctx context.Context) error {
	attemptCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	if err := m.session.Connect(attemptCtx); err != nil {
		metrics.ReconnectAttemptsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("connect: %w", err)
	}
	metrics.ReconnectAttemptsTotal.WithLabelValues("success").Inc()
	m.backoff.Reset()
	return nil
}

func (m *Manager) autoReconnect() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.AutoReconnect
}

func (m *Manager) reconnectingCallback() func(int, time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onReconnecting
}

func (m *Manager) setState(newState State) {
	m.mu.Lock()
	oldState := m.state
	if oldState == newState {
		m.mu.Unlock()
		return
	}
	m.state = newState
	fn := m.onStateChange
	m.mu.Unlock()

	if fn != nil {
		fn(oldState, newState)
	}
}
