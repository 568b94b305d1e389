// Package dispatch correlates hub commands with their replies and routes
// published keyword values to keyword variables.
//
// A Dispatcher owns three tables:
//   - the routing table, mapping (actor, lowercase keyword) to the KeyVars
//     that follow it
//   - the command table, mapping live command IDs to their CmdVars
//   - the refresh table, tracking at most one outstanding refresh command per
//     (actor, command text) pair
//
// # Commands
//
// Application code builds a CmdVar and submits it with ExecuteCmd. The
// dispatcher assigns an ID from the user range (refresh commands use a
// separate range), writes "<id> <actor> <text>" to the connection and routes
// every reply carrying this session's commander and that ID to the CmdVar.
//
// Local failures (not connected, write failure, timeout, abort) are delivered
// as ordinary terminal failure replies. They are formatted as reply lines and
// parsed back so they travel the same path as replies from the hub.
//
// # Sweeps
//
// Two sweeps run from Run: the timeout sweep fails commands past their
// deadline or whose connection is down, and the refresh sweep issues refresh
// commands for KeyVars that are not current. Each sweep handles one item per
// step and releases the dispatcher lock between steps, so a large table never
// holds off reply processing.
//
// # Connection State
//
// On disconnect every current KeyVar is marked not current. On connect the
// refresh table is cleared and a refresh sweep starts immediately.
package dispatch
