package wire

import (
	"fmt"
	"strings"
)

// MsgType is the one character message-type code of a reply.
type MsgType byte

const (
	// TypeFatal reports a fatal error. Terminal.
	TypeFatal MsgType = '!'

	// TypeFailed reports command failure. Terminal.
	TypeFailed MsgType = 'f'

	// TypeWarning reports a warning.
	TypeWarning MsgType = 'w'

	// TypeInformation reports information.
	TypeInformation MsgType = 'i'

	// TypeStatus reports status.
	TypeStatus MsgType = 's'

	// TypeQueued reports that a command was queued or started.
	TypeQueued MsgType = '>'

	// TypeDone reports successful completion. Terminal.
	TypeDone MsgType = ':'
)

// Message type sets.
const (
	// DoneTypes lists the terminal message types.
	DoneTypes = ":f!"

	// FailTypes lists the terminal failure message types.
	FailTypes = "f!"

	// AllTypes lists every valid message type.
	AllTypes = "!fwis>:"
)

// Category groups message types by severity.
type Category uint8

const (
	// CategoryInformation covers i, s, > and :.
	CategoryInformation Category = iota

	// CategoryWarning covers w.
	CategoryWarning

	// CategoryError covers f and !.
	CategoryError
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryInformation:
		return "INFORMATION"
	case CategoryWarning:
		return "WARNING"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseMsgType validates a message-type code.
func ParseMsgType(s string) (MsgType, error) {
	if len(s) != 1 || !strings.Contains(AllTypes, s) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMsgType, s)
	}
	return MsgType(s[0]), nil
}

// IsValid returns true if t is a known message type.
func (t MsgType) IsValid() bool {
	return t != 0 && strings.IndexByte(AllTypes, byte(t)) >= 0
}

// IsDone returns true if t is terminal.
func (t MsgType) IsDone() bool {
	return t != 0 && strings.IndexByte(DoneTypes, byte(t)) >= 0
}

// IsFailure returns true if t is a terminal failure.
func (t MsgType) IsFailure() bool {
	return t != 0 && strings.IndexByte(FailTypes, byte(t)) >= 0
}

// In returns true if t is one of the codes in set.
func (t MsgType) In(set string) bool {
	return t != 0 && strings.IndexByte(set, byte(t)) >= 0
}

// Category returns the severity category of t.
func (t MsgType) Category() Category {
	switch t {
	case TypeFatal, TypeFailed:
		return CategoryError
	case TypeWarning:
		return CategoryWarning
	default:
		return CategoryInformation
	}
}

// String returns the code as a one character string.
func (t MsgType) String() string {
	if t == 0 {
		return ""
	}
	return string(rune(t))
}
