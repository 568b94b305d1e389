package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Codec errors.
var (
	ErrMalformedReply = errors.New("malformed reply")
	ErrUnknownMsgType = errors.New("unknown message type")
)

// ParseReply parses a single reply line.
func ParseReply(line string) (*Message, error) {
	raw := strings.TrimRight(line, "\r\n")

	cmdr, rest := nextField(raw)
	idStr, rest := nextField(rest)
	actor, rest := nextField(rest)
	typeStr, rest := nextField(rest)
	if typeStr == "" {
		return nil, fmt.Errorf("%w: expected cmdr cmdID actor type, got %q", ErrMalformedReply, raw)
	}

	cmdID, err := strconv.Atoi(idStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad command ID %q", ErrMalformedReply, idStr)
	}

	msgType, err := ParseMsgType(typeStr)
	if err != nil {
		return nil, err
	}

	data, err := parseData(rest)
	if err != nil {
		return nil, err
	}

	return &Message{
		Commander: cmdr,
		CmdID:     cmdID,
		Actor:     actor,
		Type:      msgType,
		Data:      data,
		Raw:       raw,
	}, nil
}

// FormatCommand builds the line sent to the hub for a command.
func FormatCommand(cmdID int, actor, text string) string {
	return fmt.Sprintf("%d %s %s", cmdID, actor, text)
}

// FormatReply renders a message as a reply line that ParseReply accepts.
func FormatReply(commander string, cmdID int, actor string, msgType MsgType, data Data) string {
	var b strings.Builder
	if commander == "" {
		commander = "."
	}
	if actor == "" {
		actor = "."
	}
	fmt.Fprintf(&b, "%s %d %s %s", commander, cmdID, actor, msgType)
	for i, kw := range data {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString("; ")
		}
		b.WriteString(kw.Name)
		if len(kw.Values) == 0 {
			continue
		}
		b.WriteByte('=')
		for j, v := range kw.Values {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(formatValue(v))
		}
	}
	return b.String()
}

// QuoteString double-quotes s, escaping backslashes and double quotes.
func QuoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NaN"
	case string:
		if val == "" || strings.ContainsAny(val, " \t,;\"'=\\") {
			return QuoteString(val)
		}
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "T"
		}
		return "F"
	default:
		return fmt.Sprint(val)
	}
}

// nextField splits off the next whitespace-delimited field.
func nextField(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

func parseData(s string) (Data, error) {
	var data Data
	n := len(s)
	i := 0
	for i < n {
		i = skipSpace(s, i)
		if i >= n {
			break
		}
		if s[i] == ';' {
			i++
			continue
		}

		start := i
		for i < n && s[i] != '=' && s[i] != ';' {
			i++
		}
		name := strings.TrimSpace(s[start:i])
		if name == "" || strings.ContainsAny(name, " \t\"'") {
			return nil, fmt.Errorf("%w: bad keyword name %q", ErrMalformedReply, name)
		}

		kw := Keyword{Name: name, Values: []any{}}
		if i < n && s[i] == '=' {
			i++
			for {
				val, next, err := parseValue(s, i)
				if err != nil {
					return nil, err
				}
				kw.Values = append(kw.Values, val)
				i = skipSpace(s, next)
				if i < n && s[i] == ',' {
					i++
					continue
				}
				break
			}
			if i < n && s[i] != ';' {
				return nil, fmt.Errorf("%w: unexpected %q after value of %s", ErrMalformedReply, s[i], name)
			}
		}
		data = append(data, kw)
	}
	return data, nil
}

func parseValue(s string, i int) (string, int, error) {
	i = skipSpace(s, i)
	if i < len(s) && (s[i] == '"' || s[i] == '\'') {
		quote := s[i]
		i++
		var b strings.Builder
		for i < len(s) {
			c := s[i]
			if c == '\\' && i+1 < len(s) {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			if c == quote {
				return b.String(), i + 1, nil
			}
			b.WriteByte(c)
			i++
		}
		return "", i, fmt.Errorf("%w: unterminated quote", ErrMalformedReply)
	}

	start := i
	for i < len(s) && s[i] != ',' && s[i] != ';' {
		i++
	}
	return strings.TrimSpace(s[start:i]), i, nil
}
