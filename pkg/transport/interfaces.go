package transport

// LineHandler receives each line read from the hub, without the line terminator.
type LineHandler func(line string)

// StateHandler receives connection state transitions.
type StateHandler func(oldState, newState ConnectionState)

// LineConnection is a line-oriented session with the hub.
// Implemented by LineConn.
type LineConnection interface {
	// WriteLine sends one line; the terminator is appended.
	WriteLine(line string) error

	// IsConnected reports whether the session is connected and logged in.
	IsConnected() bool

	// CommanderID returns the commander name assigned at login.
	CommanderID() string

	// SetLineHandler registers the single read callback.
	SetLineHandler(fn LineHandler)

	// SetStateHandler registers the single state-change callback.
	SetStateHandler(fn StateHandler)
}

var _ LineConnection = (*LineConn)(nil)
