// Command hub-log is a tool for viewing and analyzing hub protocol trace files.
//
// Trace files are written by hub-console with the -protocol-log flag.
//
// Usage:
//
//	hub-log <command> [flags] <file.hlog>
//
// Commands:
//
//	view     View trace file in human-readable format
//	export   Export trace file to JSONL or CSV format
//	filter   Filter trace file and write to new file
//	stats    Show statistics about the trace file
//
// Examples:
//
//	# View all events
//	hub-log view session.hlog
//
//	# View only failed replies of the tcc actor
//	hub-log view -actor tcc -types 'f!' session.hlog
//
//	# View locally synthesized replies (timeouts, aborts)
//	hub-log view -direction local session.hlog
//
//	# Export to CSV
//	hub-log export -format csv -o session.csv session.hlog
//
//	# Filter by connection and save to new file
//	hub-log filter -conn-id abc12345-... -o filtered.hlog session.hlog
//
//	# Show statistics
//	hub-log stats session.hlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hub-protocol/hub-go/cmd/hub-log/commands"
)

const usage = `hub-log - Hub Protocol Trace Analyzer

Usage:
  hub-log <command> [flags] <file.hlog>

Commands:
  view     View trace file in human-readable format
  export   Export trace file to JSONL or CSV format
  filter   Filter trace file and write to new file
  stats    Show statistics about the trace file

Use "hub-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet creates a flag set with the usage text of a subcommand.
func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `hub-log %s - %s

Usage:
  hub-log %s [flags] <file.hlog>

Flags:
`, name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// addFilterFlags registers the event filter flags on fs.
func addFilterFlags(fs *flag.FlagSet, f *commands.FilterFlags) {
	fs.StringVar(&f.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&f.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&f.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&f.Layer, "layer", "", "Filter by layer (transport, wire, dispatch)")
	fs.StringVar(&f.Direction, "direction", "", "Filter by direction (in, out, local)")
	fs.StringVar(&f.Category, "category", "", "Filter by category (reply, command, state, error)")
	fs.StringVar(&f.Actor, "actor", "", "Filter replies and commands by actor")
	fs.IntVar(&f.CmdID, "cmd-id", -1, "Filter replies and commands by command ID")
	fs.StringVar(&f.Types, "types", "", "Filter replies by message type codes, e.g. 'f!'")
}

// parseArgs parses args and returns the trace file path.
func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View trace file in human-readable format")
	var ff commands.FilterFlags
	addFilterFlags(fs, &ff)
	path := parseArgs(fs, args)

	filter, err := ff.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export trace file to JSONL or CSV format")
	var ff commands.FilterFlags
	addFilterFlags(fs, &ff)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parseArgs(fs, args)

	filter, err := ff.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunExport(path, *format, *output, filter); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter trace file and write to new file")
	var ff commands.FilterFlags
	addFilterFlags(fs, &ff)
	output := fs.String("o", "", "Output file (required)")
	path := parseArgs(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := ff.Build()
	if err != nil {
		fail(err)
	}
	n, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the trace file")
	path := parseArgs(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
