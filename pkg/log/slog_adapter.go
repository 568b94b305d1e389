package log

import (
	"context"
	"log/slog"
	"strings"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
// Error events are logged at Warn.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Commander != "" {
		attrs = append(attrs, slog.String("commander", event.Commander))
	}

	level := slog.LevelDebug
	switch {
	case event.Line != nil:
		attrs = append(attrs,
			slog.Int("line_size", event.Line.Size),
			slog.String("line", event.Line.Data),
		)
		if event.Line.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
	case event.Reply != nil:
		names := make([]string, len(event.Reply.Keywords))
		for i, kw := range event.Reply.Keywords {
			names[i] = kw.Name
		}
		attrs = append(attrs,
			slog.Int("cmd_id", event.Reply.CmdID),
			slog.String("actor", event.Reply.Actor),
			slog.String("msg_type", event.Reply.MsgType),
			slog.String("keywords", strings.Join(names, ",")),
		)
		if event.Reply.Synthesized {
			attrs = append(attrs, slog.Bool("synthesized", true))
		}
	case event.Command != nil:
		attrs = append(attrs,
			slog.Int("cmd_id", event.Command.CmdID),
			slog.String("actor", event.Command.Actor),
			slog.String("text", event.Command.Text),
			slog.String("kind", event.Command.Kind.String()),
		)
		if event.Command.TimeLimit > 0 {
			attrs = append(attrs, slog.Duration("time_limit", event.Command.TimeLimit))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), level, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
