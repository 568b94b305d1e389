// Package wire implements the hub's line-oriented reply format.
//
// Every reply from the hub is a single text line:
//
//	cmdr cmdID actor type key1=v1,v2; key2=v3; key3
//
// where cmdr is the commander that issued the command (program.user),
// cmdID is the command ID assigned by that commander (0 for unsolicited
// status), actor is the name of the replying actor and type is a one
// character message-type code.
//
// # Message Types
//
//	!  fatal error       (terminal, failure)
//	f  command failed    (terminal, failure)
//	w  warning
//	i  information
//	s  status
//	>  queued / started
//	:  command finished  (terminal, success)
//
// # Keyword Data
//
// Keyword data is an ordered list of keywords separated by semicolons.
// A keyword may carry zero or more comma separated values. Values may be
// quoted with single or double quotes; backslash escapes the next character
// inside a quoted value. Values are delivered as strings with quotes removed.
// Keyword names are matched case-insensitively but their original spelling
// is kept.
//
// # Commands
//
// Commands sent to the hub are also single lines:
//
//	cmdID actor command text
//
// FormatCommand builds them.
package wire
