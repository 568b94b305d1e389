// Package connection keeps the hub session alive.
//
// This package handles:
//   - Exponential backoff for reconnection attempts
//   - Jitter to spread out clients reconnecting at once
//   - Automatic reconnection when the session is lost
//
// # Reconnection Strategy
//
// When a connect attempt fails or a session ends, the Manager waits and
// tries again:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful
//  5. Reset to 1s on successful login
//
// # Jitter
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// A connect attempt succeeds only when the login handshake completes, so a
// rejected login keeps backing off.
package connection
