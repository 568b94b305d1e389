package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/hub-protocol/hub-go/pkg/keyvar"
	"github.com/hub-protocol/hub-go/pkg/log"
	"github.com/hub-protocol/hub-go/pkg/metrics"
	"github.com/hub-protocol/hub-go/pkg/transport"
	"github.com/hub-protocol/hub-go/pkg/wire"
)

// keysActorPrefix marks replies relayed by the keyword cache actor.
const keysActorPrefix = "keys."

// Texts of locally synthesized failure replies.
const (
	textNotConnected = "Not connected"
	textTimedOut     = "Timed out"
	textAborted      = "Aborted"
	textNoFreeID     = "No free command ID"
)

type routeKey struct {
	actor   string
	keyword string
}

type refreshKey struct {
	actor string
	cmd   string
}

// refreshEntry records the last refresh issued for a refreshKey.
// A missing entry means the pair has not been refreshed this session.
type refreshEntry struct {
	kv     *keyvar.KeyVar
	cmd    *CmdVar
	failed bool
}

// Dispatcher routes hub replies to KeyVars and CmdVars and issues commands.
type Dispatcher struct {
	conn   transport.LineConnection
	config Config
	clock  clockwork.Clock
	logger *slog.Logger
	plog   log.Logger

	mu         sync.Mutex
	routes     map[routeKey][]*keyvar.KeyVar
	keyVars    []*keyvar.KeyVar
	cmds       map[int]*CmdVar
	refresh    map[refreshKey]refreshEntry
	userIDs    *idRange
	refreshIDs *idRange

	refreshKick chan struct{}
}

// New creates a Dispatcher bound to conn and registers its line and state
// handlers. Zero config fields take their defaults.
func New(conn transport.LineConnection, config Config) (*Dispatcher, error) {
	config = config.withDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		conn:        conn,
		config:      config,
		clock:       config.Clock,
		logger:      config.Logger,
		plog:        config.ProtocolLogger,
		routes:      make(map[routeKey][]*keyvar.KeyVar),
		cmds:        make(map[int]*CmdVar),
		refresh:     make(map[refreshKey]refreshEntry),
		userIDs:     newIDRange(config.UserIDMin, config.UserIDMax),
		refreshIDs:  newIDRange(config.RefreshIDMin, config.RefreshIDMax),
		refreshKick: make(chan struct{}, 1),
	}

	conn.SetLineHandler(d.HandleLine)
	conn.SetStateHandler(d.handleStateChange)
	if conn.IsConnected() {
		kick(d.refreshKick)
	}
	return d, nil
}

// ConnectionID returns the ID tagging this session's trace events.
func (d *Dispatcher) ConnectionID() string {
	return d.config.ConnectionID
}

// IsConnected reports whether the underlying connection is up.
func (d *Dispatcher) IsConnected() bool {
	return d.conn.IsConnected()
}

func normalizeActor(actor string) string {
	return strings.TrimPrefix(actor, keysActorPrefix)
}

func routeKeyFor(actor, keyword string) routeKey {
	return routeKey{actor: normalizeActor(actor), keyword: strings.ToLower(keyword)}
}

// Add registers kv for its (actor, keyword). Adding the same KeyVar twice is a no-op.
func (d *Dispatcher) Add(kv *keyvar.KeyVar) {
	key := routeKeyFor(kv.Actor(), kv.Keyword())

	d.mu.Lock()
	if slices.Contains(d.routes[key], kv) {
		d.mu.Unlock()
		return
	}
	d.routes[key] = append(d.routes[key], kv)
	d.keyVars = append(d.keyVars, kv)
	d.mu.Unlock()

	if d.conn.IsConnected() && !kv.IsCurrent() && kv.HasRefreshCmd() {
		kick(d.refreshKick)
	}
}

// Remove unregisters kv. Removing an unknown KeyVar is a no-op.
func (d *Dispatcher) Remove(kv *keyvar.KeyVar) {
	key := routeKeyFor(kv.Actor(), kv.Keyword())

	d.mu.Lock()
	defer d.mu.Unlock()
	bucket := slices.DeleteFunc(d.routes[key], func(k *keyvar.KeyVar) bool { return k == kv })
	if len(bucket) == 0 {
		delete(d.routes, key)
	} else {
		d.routes[key] = bucket
	}
	d.keyVars = slices.DeleteFunc(d.keyVars, func(k *keyvar.KeyVar) bool { return k == kv })
}

// KeyVars returns the registered KeyVars in registration order.
func (d *Dispatcher) KeyVars() []*keyvar.KeyVar {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.keyVars)
}

// KeyVarsFor returns the KeyVars registered for actor and keyword.
func (d *Dispatcher) KeyVarsFor(actor, keyword string) []*keyvar.KeyVar {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.routes[routeKeyFor(actor, keyword)])
}

// Command returns the live command with the given ID.
func (d *Dispatcher) Command(id int) (*CmdVar, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd, ok := d.cmds[id]
	return cmd, ok
}

// PendingCommands returns the live commands ordered by ID.
func (d *Dispatcher) PendingCommands() []*CmdVar {
	d.mu.Lock()
	ids := make([]int, 0, len(d.cmds))
	for id := range d.cmds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*CmdVar, len(ids))
	for i, id := range ids {
		out[i] = d.cmds[id]
	}
	d.mu.Unlock()
	return out
}

// HandleLine parses one line read from the hub and dispatches it.
// Unparseable lines are logged and dropped.
func (d *Dispatcher) HandleLine(line string) {
	msg, err := wire.ParseReply(line)
	if err != nil {
		metrics.ParseErrorsTotal.Inc()
		d.logger.Error("malformed reply", "line", line, "error", err)
		d.trace(log.Event{
			Direction: log.DirectionIn,
			Layer:     log.LayerWire,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerWire, Message: err.Error(), Context: line},
		})
		return
	}

	d.trace(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryReply,
		Reply:     log.NewReplyEvent(msg, false),
	})
	d.Dispatch(msg)
}

// Dispatch delivers a parsed reply: keyword data goes to matching KeyVars,
// then the reply goes to the CmdVar it answers, if any.
func (d *Dispatcher) Dispatch(msg *wire.Message) {
	for _, kw := range msg.Data {
		values := kw.Values
		if values == nil {
			values = []any{}
		}
		for _, kv := range d.KeyVarsFor(msg.Actor, kw.Name) {
			d.setKeyVar(kv, values, msg)
		}
	}

	cmdr := d.conn.CommanderID()
	if cmdr == "" || msg.Commander != cmdr {
		return
	}
	d.mu.Lock()
	cmd, ok := d.cmds[msg.CmdID]
	d.mu.Unlock()
	if ok {
		d.replyCmdVar(cmd, msg)
	}
}

func (d *Dispatcher) setKeyVar(kv *keyvar.KeyVar, values []any, msg *wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("keyvar set panicked",
				"keyvar", kv.String(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	if err := kv.Set(values, true, msg); err != nil {
		d.logger.Warn("keyword value rejected", "keyvar", kv.String(), "error", err)
		return
	}
	metrics.KeyVarUpdatesTotal.Inc()
}

// ExecuteCmd assigns cmd an ID, registers it and writes it to the hub.
// Every failure to send (not connected, no free ID, write error) is delivered
// to cmd as a terminal failure reply.
func (d *Dispatcher) ExecuteCmd(cmd *CmdVar) {
	if cmd.State() != StateCreated {
		d.logger.Warn("command already submitted", "cmd", cmd.String())
		return
	}
	if !d.conn.IsConnected() {
		d.failCmd(cmd, textNotConnected)
		return
	}

	kind := cmd.commandKind()
	ids := d.userIDs
	if kind == log.CommandKindRefresh {
		ids = d.refreshIDs
	}

	d.mu.Lock()
	id, ok := ids.allocate(func(id int) bool {
		_, used := d.cmds[id]
		return used
	})
	if !ok {
		d.mu.Unlock()
		d.logger.Error("command ID range exhausted", "actor", cmd.Actor(), "error", ErrNoFreeCommandID)
		d.failCmd(cmd, textNoFreeID)
		return
	}
	if !cmd.markDispatched(d, id, d.clock.Now()) {
		d.mu.Unlock()
		d.logger.Warn("command already submitted", "cmd", cmd.String())
		return
	}
	d.cmds[id] = cmd
	pending := len(d.cmds)
	d.mu.Unlock()

	metrics.CommandsPending.Set(float64(pending))
	metrics.CommandsIssuedTotal.WithLabelValues(kindLabel(kind)).Inc()

	line := wire.FormatCommand(id, cmd.Actor(), cmd.CmdStr())
	d.trace(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerWire,
		Category:  log.CategoryCommand,
		Command: &log.CommandEvent{
			CmdID:     id,
			Actor:     cmd.Actor(),
			Text:      cmd.CmdStr(),
			Kind:      kind,
			TimeLimit: cmd.TimeLimit(),
		},
	})
	if err := d.conn.WriteLine(line); err != nil {
		d.logger.Warn("command write failed", "cmd_id", id, "actor", cmd.Actor(), "error", err)
		d.failCmd(cmd, fmt.Sprintf("Write failed: %v", err))
	}
}

// Abort aborts the live command with the given ID.
func (d *Dispatcher) Abort(id int) error {
	cmd, ok := d.Command(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotDispatched, id)
	}
	d.abortCmd(cmd)
	return nil
}

func (d *Dispatcher) abortCmd(cmd *CmdVar) {
	if !cmd.beginAbort() {
		return
	}
	if abortStr := cmd.AbortCmd(); abortStr != "" && d.conn.IsConnected() {
		abort := NewCmdVar(cmd.Actor(), abortStr, nil)
		abort.kind = log.CommandKindAbort
		d.ExecuteCmd(abort)
	}
	d.failCmd(cmd, textAborted)
}

// failCmd finishes cmd with a locally generated failure reply. The reply is
// formatted and parsed like hub input so it takes the normal reply path.
func (d *Dispatcher) failCmd(cmd *CmdVar, text string) {
	line := wire.FormatReply(d.conn.CommanderID(), cmd.ID(), cmd.Actor(), wire.TypeFailed,
		wire.Data{{Name: "text", Values: []any{text}}})
	msg, err := wire.ParseReply(line)
	if err != nil {
		d.logger.Error("synthesized reply does not parse", "line", line, "error", err)
		return
	}

	d.trace(log.Event{
		Direction: log.DirectionLocal,
		Layer:     log.LayerDispatch,
		Category:  log.CategoryReply,
		Reply:     log.NewReplyEvent(msg, true),
	})
	d.replyCmdVar(cmd, msg)
}

// replyCmdVar delivers msg to cmd. A terminal reply removes cmd from the
// command table before its callbacks run.
func (d *Dispatcher) replyCmdVar(cmd *CmdVar, msg *wire.Message) {
	if msg.IsDone() {
		d.mu.Lock()
		if id := cmd.ID(); id != 0 && d.cmds[id] == cmd {
			delete(d.cmds, id)
		}
		pending := len(d.cmds)
		d.mu.Unlock()
		metrics.CommandsPending.Set(float64(pending))
	}

	if err := cmd.Reply(msg); err != nil {
		return
	}
	metrics.CommandRepliesTotal.WithLabelValues(msg.Type.String()).Inc()

	if !msg.IsDone() {
		return
	}

	outcome := "done"
	if msg.Type.IsFailure() {
		outcome = "failed"
	}
	if start := cmd.StartTime(); !start.IsZero() {
		metrics.CommandDuration.WithLabelValues(outcome).Observe(d.clock.Since(start).Seconds())
	}
	d.trace(log.Event{
		Direction: log.DirectionLocal,
		Layer:     log.LayerDispatch,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityCommand,
			NewState: cmd.State().String(),
			Reason:   msg.Text(),
		},
	})

	if cmd.IsRefresh() {
		d.completeRefresh(cmd)
	}
}

func (d *Dispatcher) handleStateChange(oldState, newState transport.ConnectionState) {
	d.trace(log.Event{
		Direction: log.DirectionLocal,
		Layer:     log.LayerDispatch,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
		},
	})

	switch {
	case newState == transport.StateConnected:
		d.logger.Info("hub connected", "commander", d.conn.CommanderID())
		metrics.ConnectionState.Set(1)
		d.mu.Lock()
		clear(d.refresh)
		d.mu.Unlock()
		d.markAllNotCurrent()
		kick(d.refreshKick)

	case oldState == transport.StateConnected:
		d.logger.Info("hub disconnected", "state", newState.String())
		metrics.ConnectionState.Set(0)
		d.markAllNotCurrent()
		d.checkTimeouts(context.Background())
	}
}

func (d *Dispatcher) markAllNotCurrent() {
	for _, kv := range d.KeyVars() {
		if kv.IsCurrent() {
			kv.SetNotCurrent()
		}
	}
}

// Run drives the timeout and refresh sweeps until ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	timeouts := d.clock.NewTicker(d.config.TimeoutCheckInterval)
	defer timeouts.Stop()
	refreshes := d.clock.NewTicker(d.config.RefreshCheckInterval)
	defer refreshes.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeouts.Chan():
			d.checkTimeouts(ctx)
		case <-refreshes.Chan():
			d.refreshKeyVars(ctx, false)
		case <-d.refreshKick:
			d.refreshKeyVars(ctx, false)
		}
	}
}

func (d *Dispatcher) trace(ev log.Event) {
	ev.Timestamp = d.clock.Now()
	ev.ConnectionID = d.config.ConnectionID
	ev.Commander = d.conn.CommanderID()
	d.plog.Log(ev)
}

func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func kindLabel(kind log.CommandKind) string {
	switch kind {
	case log.CommandKindRefresh:
		return metrics.KindRefresh
	case log.CommandKindAbort:
		return metrics.KindAbort
	default:
		return metrics.KindUser
	}
}
