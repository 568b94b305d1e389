package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hub-protocol/hub-go/pkg/log"
)

// RunExport exports the matching events of a trace file to format
// (jsonl or csv). An empty output writes to stdout.
func RunExport(path, format, output string, filter log.Filter) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{"timestamp", "connection_id", "direction", "layer", "category", "commander", "type", "cmd_id", "actor", "text"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		eventType, cmdID, actor, text := "unknown", "", "", ""
		switch {
		case event.Line != nil:
			eventType = "line"
			text = event.Line.Data
		case event.Reply != nil:
			eventType = "reply:" + event.Reply.MsgType
			cmdID = strconv.Itoa(event.Reply.CmdID)
			actor = event.Reply.Actor
			kws := make([]string, len(event.Reply.Keywords))
			for i, kw := range event.Reply.Keywords {
				kws[i] = formatKeyword(kw)
			}
			text = strings.Join(kws, "; ")
		case event.Command != nil:
			eventType = "command:" + strings.ToLower(event.Command.Kind.String())
			cmdID = strconv.Itoa(event.Command.CmdID)
			actor = event.Command.Actor
			text = event.Command.Text
		case event.StateChange != nil:
			eventType = "state"
			text = event.StateChange.NewState
		case event.Error != nil:
			eventType = "error"
			text = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Commander,
			eventType,
			cmdID,
			actor,
			text,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
