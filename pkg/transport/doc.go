// Package transport provides the line-oriented session with the hub.
//
// The transport layer handles:
//   - TCP (optionally TLS) connections to the hub
//   - Newline framing with a maximum line length
//   - The knock/login handshake that assigns the commander name
//   - Connection state management
//
// # Login
//
// The client sends "1 auth knock". The hub answers with a nonce:
//
//	. 1 auth : nonce="8a2f..."
//
// The client then sends
//
//	2 auth login program=<program> username=<user> password=<sha1hex(nonce+password)>
//
// and a ':' reply carrying cmdr="<program.user>" completes the login.
// Login is skipped when no username is configured; the configured
// commander name is used instead.
//
// # Reading
//
// A single goroutine reads lines and hands each to the registered
// LineHandler in arrival order. When the stream ends the state moves to
// DISCONNECTED and the StateHandler is called.
package transport
