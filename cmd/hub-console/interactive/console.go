// Package interactive provides the interactive command-line interface
// for hub-console.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/hub-protocol/hub-go/pkg/catalog"
	"github.com/hub-protocol/hub-go/pkg/dispatch"
	"github.com/hub-protocol/hub-go/pkg/keyvar"
	"github.com/hub-protocol/hub-go/pkg/wire"
)

// DefaultTimeLimit applies to commands issued with "cmd".
const DefaultTimeLimit = 60 * time.Second

// Config configures a Console.
type Config struct {
	// Model holds the catalog KeyVars. May be nil.
	Model *catalog.Model

	// ConnState reports the managed connection state for "status".
	ConnState func() string

	// Address is the hub address shown by "status".
	Address string

	// TimeLimit applies to commands issued with "cmd" (default: DefaultTimeLimit).
	TimeLimit time.Duration
}

type watch struct {
	kv    *keyvar.KeyVar
	id    keyvar.CallbackID
	adHoc bool
}

// Console handles interactive mode for hub-console.
type Console struct {
	disp   *dispatch.Dispatcher
	config Config
	rl     *readline.Instance
	out    io.Writer

	mu      sync.Mutex
	watches map[string]watch
}

// New creates a new interactive console.
func New(disp *dispatch.Dispatcher, cfg Config) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hub> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(disp, cfg, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(disp *dispatch.Dispatcher, cfg Config, out io.Writer) *Console {
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = DefaultTimeLimit
	}
	return &Console{
		disp:    disp,
		config:  cfg,
		out:     out,
		watches: make(map[string]watch),
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Close stops a running command loop.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(line) {
			cancel()
			return
		}
	}
}

// Execute runs one console command line. It returns false when the console
// should exit.
func (c *Console) Execute(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "cmd", "c":
		c.cmdCommand(input, args)

	case "abort", "a":
		c.cmdAbort(args)

	case "watch", "w":
		c.cmdWatch(args)

	case "unwatch":
		c.cmdUnwatch(args)

	case "show", "s":
		c.cmdShow(args)

	case "pending", "p":
		c.cmdPending()

	case "refresh", "r":
		c.cmdRefresh(args)

	case "status":
		c.cmdStatus()

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `
Commands:
  cmd <actor> <text>       Send a command (alias: c)
  abort <id>               Abort a running command (alias: a)
  watch <actor> <keyword>  Print keyword updates (alias: w)
  unwatch <actor> <keyword>
                           Stop printing keyword updates
  show [actor]             Show keyword values (alias: s)
  pending                  List running commands (alias: p)
  refresh [actor]          Re-issue refresh commands (alias: r)
  status                   Show connection status
  help                     Show this help
  quit                     Exit (alias: q)
`)
}

func (c *Console) cmdCommand(input string, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: cmd <actor> <text>")
		return
	}
	actor := args[0]
	text := commandText(input, actor)

	cmd := dispatch.NewCmdVar(actor, text, &dispatch.CmdOptions{
		TimeLimit: c.config.TimeLimit,
		Callback:  c.printReply,
		CallTypes: wire.AllTypes,
	})
	c.disp.ExecuteCmd(cmd)
	if id := cmd.ID(); id != 0 {
		fmt.Fprintf(c.out, "[%d] %s %s\n", id, actor, text)
	}
}

// commandText returns the command text following the verb and actor,
// preserving its original spacing.
func commandText(input, actor string) string {
	rest := strings.TrimSpace(input)
	_, rest, _ = strings.Cut(rest, " ")
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, actor)
	return strings.TrimSpace(rest)
}

func (c *Console) printReply(msgType wire.MsgType, msg *wire.Message, cmd *dispatch.CmdVar) {
	fmt.Fprintf(c.out, "[%d] %s %s %s\n", cmd.ID(), msg.Actor, msgType, formatData(msg.Data))
	if msgType.IsDone() {
		fmt.Fprintf(c.out, "[%d] %s\n", cmd.ID(), cmd.State())
	}
}

func (c *Console) cmdAbort(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: abort <id>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid command ID: %s\n", args[0])
		return
	}
	if err := c.disp.Abort(id); err != nil {
		if errors.Is(err, dispatch.ErrNotDispatched) {
			fmt.Fprintf(c.out, "No running command %d\n", id)
			return
		}
		fmt.Fprintf(c.out, "Abort failed: %v\n", err)
	}
}

func watchKey(actor, keyword string) string {
	return strings.ToLower(actor + "." + keyword)
}

func (c *Console) cmdWatch(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: watch <actor> <keyword>")
		return
	}
	actor, keyword := args[0], args[1]
	key := watchKey(actor, keyword)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watches[key]; ok {
		fmt.Fprintf(c.out, "Already watching %s.%s\n", actor, keyword)
		return
	}

	w := watch{}
	if kvs := c.disp.KeyVarsFor(actor, keyword); len(kvs) > 0 {
		w.kv = kvs[0]
	} else {
		// Keywords outside the catalogs are watched with their raw values.
		w.kv = keyvar.New(actor, keyword, keyvar.Options{MaxCount: keyvar.Unbounded})
		w.adHoc = true
		c.disp.Add(w.kv)
	}
	w.id = w.kv.AddCallback(c.printKeyVar, true)
	c.watches[key] = w
	fmt.Fprintf(c.out, "Watching %s\n", w.kv)
}

func (c *Console) cmdUnwatch(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: unwatch <actor> <keyword>")
		return
	}
	key := watchKey(args[0], args[1])

	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.watches[key]
	if !ok {
		fmt.Fprintf(c.out, "Not watching %s.%s\n", args[0], args[1])
		return
	}
	delete(c.watches, key)
	_ = w.kv.RemoveCallback(w.id)
	if w.adHoc {
		c.disp.Remove(w.kv)
	}
	fmt.Fprintf(c.out, "Stopped watching %s\n", w.kv)
}

func (c *Console) printKeyVar(values []any, isCurrent bool, kv *keyvar.KeyVar) {
	fmt.Fprintf(c.out, "%s = %s%s\n", kv, formatValues(values), currentSuffix(isCurrent))
}

func (c *Console) cmdShow(args []string) {
	var actor string
	if len(args) > 0 {
		actor = args[0]
	}

	kvs := c.disp.KeyVars()
	slices.SortFunc(kvs, func(a, b *keyvar.KeyVar) int {
		return strings.Compare(strings.ToLower(a.String()), strings.ToLower(b.String()))
	})

	shown := 0
	for _, kv := range kvs {
		if actor != "" && !strings.EqualFold(kv.Actor(), actor) {
			continue
		}
		values, isCurrent := kv.Get()
		fmt.Fprintf(c.out, "  %-30s %s%s\n", kv, formatValues(values), currentSuffix(isCurrent))
		shown++
	}
	if shown == 0 {
		fmt.Fprintln(c.out, "No keywords")
	}
}

func (c *Console) cmdPending() {
	cmds := c.disp.PendingCommands()
	if len(cmds) == 0 {
		fmt.Fprintln(c.out, "No running commands")
		return
	}
	for _, cmd := range cmds {
		line := fmt.Sprintf("  %-5d %-10s %-10s %s", cmd.ID(), cmd.State(), cmd.Actor(), cmd.CmdStr())
		if deadline := cmd.Deadline(); !deadline.IsZero() {
			line += " (until " + deadline.Format(time.TimeOnly) + ")"
		}
		fmt.Fprintln(c.out, line)
	}
}

func (c *Console) cmdRefresh(args []string) {
	var actor string
	if len(args) > 0 {
		actor = args[0]
	}

	n := 0
	for _, kv := range c.disp.KeyVars() {
		if !kv.HasRefreshCmd() {
			continue
		}
		if actor != "" && !strings.EqualFold(kv.Actor(), actor) {
			continue
		}
		kv.SetNotCurrent()
		c.disp.Refresh(kv)
		n++
	}
	fmt.Fprintf(c.out, "Refreshing %d keywords\n", n)
}

func (c *Console) cmdStatus() {
	state := "CONNECTED"
	if !c.disp.IsConnected() {
		state = "DISCONNECTED"
	}
	if c.config.ConnState != nil {
		state = c.config.ConnState()
	}

	fmt.Fprintln(c.out, "Status:")
	if c.config.Address != "" {
		fmt.Fprintf(c.out, "  Hub:        %s\n", c.config.Address)
	}
	fmt.Fprintf(c.out, "  Connection: %s\n", state)
	fmt.Fprintf(c.out, "  Session:    %s\n", c.disp.ConnectionID())
	if c.config.Model != nil {
		fmt.Fprintf(c.out, "  Actors:     %s\n", strings.Join(c.config.Model.Actors(), ", "))
	}
	fmt.Fprintf(c.out, "  Keywords:   %d\n", len(c.disp.KeyVars()))
	fmt.Fprintf(c.out, "  Running:    %d\n", len(c.disp.PendingCommands()))

	c.mu.Lock()
	watching := len(c.watches)
	c.mu.Unlock()
	fmt.Fprintf(c.out, "  Watching:   %d\n", watching)
}

func currentSuffix(isCurrent bool) string {
	if isCurrent {
		return ""
	}
	return " (not current)"
}

func formatValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, ", ")
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "None"
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func formatData(data wire.Data) string {
	parts := make([]string, len(data))
	for i, kw := range data {
		if len(kw.Values) == 0 {
			parts[i] = kw.Name
			continue
		}
		vals := make([]string, len(kw.Values))
		for j, v := range kw.Values {
			vals[j] = fmt.Sprint(v)
		}
		parts[i] = kw.Name + "=" + strings.Join(vals, ",")
	}
	return strings.Join(parts, "; ")
}
