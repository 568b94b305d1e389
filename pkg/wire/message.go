package wire

import (
	"strings"
)

// Keyword is one keyword of a reply with its raw values.
// Values are strings as received unless the message was built locally.
type Keyword struct {
	Name   string
	Values []any
}

// Data is the ordered keyword data of a reply.
type Data []Keyword

// Get returns the values of the first keyword matching name
// (case-insensitive).
func (d Data) Get(name string) ([]any, bool) {
	for _, kw := range d {
		if strings.EqualFold(kw.Name, name) {
			return kw.Values, true
		}
	}
	return nil, false
}

// Has returns true if the data contains the keyword.
func (d Data) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// Names returns the keyword names in order.
func (d Data) Names() []string {
	names := make([]string, len(d))
	for i, kw := range d {
		names[i] = kw.Name
	}
	return names
}

// Message is a parsed hub reply.
type Message struct {
	// Commander that issued the command this reply belongs to.
	Commander string

	// CmdID is the command ID assigned by the commander (0 if unsolicited).
	CmdID int

	// Actor is the replying actor.
	Actor string

	// Type is the message-type code.
	Type MsgType

	// Data is the keyword data in the order received.
	Data Data

	// Raw is the original line (or the formatted line for synthesized replies).
	Raw string
}

// Text returns the first value of the "text" keyword, if any.
func (m *Message) Text() string {
	vals, ok := m.Data.Get("text")
	if !ok || len(vals) == 0 {
		return ""
	}
	if s, ok := vals[0].(string); ok {
		return s
	}
	return ""
}

// IsDone returns true if the message type is terminal.
func (m *Message) IsDone() bool {
	return m.Type.IsDone()
}
