package log

import (
	"fmt"
	"time"

	"github.com/hub-protocol/hub-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the hub session (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Commander is the local commander ID (populated after login).
	Commander string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the hub address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Line        *LineEvent        `cbor:"10,keyasint,omitempty"` // Transport layer
	Reply       *ReplyEvent       `cbor:"11,keyasint,omitempty"` // Wire layer, inbound
	Command     *CommandEvent     `cbor:"12,keyasint,omitempty"` // Wire layer, outbound
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"` // Connection/command state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a line received from the hub.
	DirectionIn Direction = 0
	// DirectionOut indicates a line sent to the hub.
	DirectionOut Direction = 1
	// DirectionLocal indicates an event that never crossed the wire,
	// such as a synthesized failure reply.
	DirectionLocal Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionLocal:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the line layer (raw text).
	LayerTransport Layer = 0
	// LayerWire is the parsed reply/command layer.
	LayerWire Layer = 1
	// LayerDispatch is the keyword/command dispatch layer.
	LayerDispatch Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerDispatch:
		return "DISPATCH"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryReply indicates a reply from the hub (or a synthesized one).
	CategoryReply Category = 0
	// CategoryCommand indicates a command issued to the hub.
	CategoryCommand Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryReply:
		return "REPLY"
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory converts a category name (case-sensitive, as printed by String).
func ParseCategory(s string) (Category, error) {
	for _, c := range []Category{CategoryReply, CategoryCommand, CategoryState, CategoryError} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// MaxLineData is the number of line bytes kept in a LineEvent.
const MaxLineData = 4096

// LineEvent captures a raw line at the transport layer.
type LineEvent struct {
	// Size is the full line length in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the line text (may be truncated for very long lines).
	Data string `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewLineEvent captures line, truncating to MaxLineData bytes.
func NewLineEvent(line string) *LineEvent {
	ev := &LineEvent{Size: len(line), Data: line}
	if len(line) > MaxLineData {
		ev.Data = line[:MaxLineData]
		ev.Truncated = true
	}
	return ev
}

// ReplyEvent captures a parsed reply at the wire layer.
type ReplyEvent struct {
	Commander string `cbor:"1,keyasint"`
	CmdID     int    `cbor:"2,keyasint"`
	Actor     string `cbor:"3,keyasint"`

	// MsgType is the single-character message type code.
	MsgType string `cbor:"4,keyasint"`

	// Keywords in reply order.
	Keywords []KeywordData `cbor:"5,keyasint,omitempty"`

	// Synthesized marks replies generated locally (timeouts, aborts,
	// write failures) rather than received from the hub.
	Synthesized bool `cbor:"6,keyasint,omitempty"`
}

// KeywordData is one keyword of a reply with its values rendered as text.
type KeywordData struct {
	Name   string   `cbor:"1,keyasint"`
	Values []string `cbor:"2,keyasint,omitempty"`
}

// NewReplyEvent captures msg.
func NewReplyEvent(msg *wire.Message, synthesized bool) *ReplyEvent {
	ev := &ReplyEvent{
		Commander:   msg.Commander,
		CmdID:       msg.CmdID,
		Actor:       msg.Actor,
		MsgType:     msg.Type.String(),
		Synthesized: synthesized,
	}
	for _, kw := range msg.Data {
		kd := KeywordData{Name: kw.Name}
		for _, v := range kw.Values {
			kd.Values = append(kd.Values, fmt.Sprint(v))
		}
		ev.Keywords = append(ev.Keywords, kd)
	}
	return ev
}

// CommandKind distinguishes who issued a command.
type CommandKind uint8

const (
	// CommandKindUser is a command issued by application code.
	CommandKindUser CommandKind = 0
	// CommandKindRefresh is a refresh command issued by the dispatcher.
	CommandKindRefresh CommandKind = 1
	// CommandKindAbort is an abort command issued for another command.
	CommandKindAbort CommandKind = 2
)

// String returns the command kind name.
func (k CommandKind) String() string {
	switch k {
	case CommandKindUser:
		return "USER"
	case CommandKindRefresh:
		return "REFRESH"
	case CommandKindAbort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// CommandEvent captures a command sent to the hub.
type CommandEvent struct {
	CmdID int         `cbor:"1,keyasint"`
	Actor string      `cbor:"2,keyasint"`
	Text  string      `cbor:"3,keyasint"`
	Kind  CommandKind `cbor:"4,keyasint"`

	// TimeLimit is the command's time limit (0 = none). Stored as nanoseconds.
	TimeLimit time.Duration `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures connection and command lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityLogin indicates a login state change.
	StateEntityLogin StateEntity = 1
	// StateEntityCommand indicates a command state change.
	StateEntityCommand StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityLogin:
		return "LOGIN"
	case StateEntityCommand:
		return "COMMAND"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
