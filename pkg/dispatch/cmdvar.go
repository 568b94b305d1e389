package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hub-protocol/hub-go/pkg/keyvar"
	"github.com/hub-protocol/hub-go/pkg/log"
	"github.com/hub-protocol/hub-go/pkg/wire"
)

// Command errors.
var (
	// ErrCommandDone indicates the command already received a terminal reply.
	ErrCommandDone = errors.New("command already done")

	// ErrNoFreeCommandID indicates every ID in the command's range is live.
	ErrNoFreeCommandID = errors.New("no free command ID")

	// ErrNotDispatched indicates no live command has the given ID.
	ErrNotDispatched = errors.New("command not dispatched")
)

// CmdState is the lifecycle state of a command.
type CmdState uint8

const (
	// StateCreated: not yet given an ID.
	StateCreated CmdState = iota
	// StateDispatched: ID assigned and written to the hub.
	StateDispatched
	// StateRunning: at least one non-terminal reply received.
	StateRunning
	// StateDone: finished with ':'.
	StateDone
	// StateFailed: finished with 'f'.
	StateFailed
	// StateFatal: finished with '!'.
	StateFatal
	// StateAborted: cancelled by Abort.
	StateAborted
)

// String returns the state name.
func (s CmdState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateDispatched:
		return "DISPATCHED"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	case StateFatal:
		return "FATAL"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further replies are accepted.
func (s CmdState) IsTerminal() bool {
	return s >= StateDone
}

// CmdCallback receives replies whose message type is in the registered set.
type CmdCallback func(msgType wire.MsgType, msg *wire.Message, cmd *CmdVar)

// CmdOptions configures a CmdVar.
type CmdOptions struct {
	// TimeLimit fails the command locally if it runs longer. Zero means none.
	TimeLimit time.Duration

	// TimeLimKeyword names a reply keyword whose value (seconds) extends the
	// deadline to now + value + TimeLimit.
	TimeLimKeyword string

	// AbortCmd is sent to the same actor when the command is aborted.
	AbortCmd string

	// Callback is registered with CallTypes (default: wire.DoneTypes).
	Callback  CmdCallback
	CallTypes string

	// Logger receives warnings before the command is dispatched.
	// Once dispatched the dispatcher's logger is used.
	Logger *slog.Logger
}

type cmdCallbackEntry struct {
	types string
	fn    CmdCallback
}

// CmdVar is one command and its reply history.
type CmdVar struct {
	actor          string
	cmdStr         string
	abortCmd       string
	timeLimit      time.Duration
	timeLimKeyword string

	mu         sync.Mutex
	kind       log.CommandKind
	refreshKV  *keyvar.KeyVar
	id         int
	state      CmdState
	aborting   bool
	replies    []*wire.Message
	lastType   wire.MsgType
	startTime  time.Time
	deadline   time.Time
	callbacks  []cmdCallbackEntry
	dispatcher *Dispatcher
	clock      clockwork.Clock
	logger     *slog.Logger
	done       chan struct{}
}

// NewCmdVar creates a command for actor. opts may be nil.
func NewCmdVar(actor, cmdStr string, opts *CmdOptions) *CmdVar {
	if opts == nil {
		opts = &CmdOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &CmdVar{
		actor:          actor,
		cmdStr:         cmdStr,
		abortCmd:       opts.AbortCmd,
		timeLimit:      opts.TimeLimit,
		timeLimKeyword: opts.TimeLimKeyword,
		logger:         logger,
		done:           make(chan struct{}),
	}
	if opts.Callback != nil {
		types := opts.CallTypes
		if types == "" {
			types = wire.DoneTypes
		}
		c.callbacks = append(c.callbacks, cmdCallbackEntry{types: types, fn: opts.Callback})
	}
	return c
}

func newRefreshCmdVar(kv *keyvar.KeyVar, actor, cmdStr string, timeLimit time.Duration) *CmdVar {
	c := NewCmdVar(actor, cmdStr, &CmdOptions{TimeLimit: timeLimit})
	c.kind = log.CommandKindRefresh
	c.refreshKV = kv
	return c
}

// Actor returns the target actor.
func (c *CmdVar) Actor() string { return c.actor }

// CmdStr returns the command text.
func (c *CmdVar) CmdStr() string { return c.cmdStr }

// AbortCmd returns the abort command text, if any.
func (c *CmdVar) AbortCmd() string { return c.abortCmd }

// TimeLimit returns the configured time limit (0 = none).
func (c *CmdVar) TimeLimit() time.Duration { return c.timeLimit }

// IsRefresh reports whether the dispatcher issued this command to refresh a KeyVar.
func (c *CmdVar) IsRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind == log.CommandKindRefresh
}

// ID returns the assigned command ID, or 0 before dispatch.
func (c *CmdVar) ID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// State returns the lifecycle state.
func (c *CmdVar) State() CmdState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsDone reports whether a terminal reply has been received.
func (c *CmdVar) IsDone() bool {
	return c.State().IsTerminal()
}

// DidFail reports whether the command ended in failure (including abort).
func (c *CmdVar) DidFail() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsTerminal() && c.lastType.IsFailure()
}

// LastType returns the message type of the latest reply (0 if none).
func (c *CmdVar) LastType() wire.MsgType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastType
}

// LastReply returns the latest reply, or nil.
func (c *CmdVar) LastReply() *wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return nil
	}
	return c.replies[len(c.replies)-1]
}

// Replies returns the replies received so far, oldest first.
func (c *CmdVar) Replies() []*wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*wire.Message, len(c.replies))
	copy(out, c.replies)
	return out
}

// StartTime returns when the command was dispatched.
func (c *CmdVar) StartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime
}

// Deadline returns the current deadline. Zero means none.
func (c *CmdVar) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// KeywordValues returns the values of the latest reply keyword called name.
func (c *CmdVar) KeywordValues(name string) ([]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.replies) - 1; i >= 0; i-- {
		if vals, ok := c.replies[i].Data.Get(name); ok {
			return vals, true
		}
	}
	return nil, false
}

// CallbackCount returns the number of registered callbacks.
// It is zero once the command is done.
func (c *CmdVar) CallbackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.callbacks)
}

// Done returns a channel closed when the command reaches a terminal state.
func (c *CmdVar) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the command is done or ctx ends.
func (c *CmdVar) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddCallback registers fn for replies whose type is in callTypes
// (default: wire.DoneTypes).
func (c *CmdVar) AddCallback(fn CmdCallback, callTypes string) error {
	if callTypes == "" {
		callTypes = wire.DoneTypes
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsTerminal() {
		return fmt.Errorf("%w: %d %s %s", ErrCommandDone, c.id, c.actor, c.cmdStr)
	}
	c.callbacks = append(c.callbacks, cmdCallbackEntry{types: callTypes, fn: fn})
	return nil
}

// Reply records a reply and runs the matching callbacks. Replies after a
// terminal one are rejected with ErrCommandDone.
func (c *CmdVar) Reply(msg *wire.Message) error {
	c.mu.Lock()
	if c.state.IsTerminal() {
		logger := c.logger
		c.mu.Unlock()
		logger.Warn("reply to finished command ignored",
			"cmd_id", msg.CmdID, "actor", msg.Actor, "type", msg.Type.String())
		return fmt.Errorf("%w: %s", ErrCommandDone, c)
	}

	c.replies = append(c.replies, msg)
	c.lastType = msg.Type

	var run []CmdCallback
	for _, cb := range c.callbacks {
		if msg.Type.In(cb.types) {
			run = append(run, cb.fn)
		}
	}

	if msg.Type.IsDone() {
		switch {
		case c.aborting:
			c.state = StateAborted
		case msg.Type == wire.TypeDone:
			c.state = StateDone
		case msg.Type == wire.TypeFatal:
			c.state = StateFatal
		default:
			c.state = StateFailed
		}
		c.callbacks = nil
		close(c.done)
	} else {
		c.state = StateRunning
		c.extendDeadlineLocked(msg)
	}
	logger := c.logger
	c.mu.Unlock()

	for _, fn := range run {
		c.runCallback(logger, fn, msg)
	}
	return nil
}

func (c *CmdVar) runCallback(logger *slog.Logger, fn CmdCallback, msg *wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("command callback panicked",
				"actor", c.actor,
				"cmd", c.cmdStr,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn(msg.Type, msg, c)
}

func (c *CmdVar) extendDeadlineLocked(msg *wire.Message) {
	if c.timeLimKeyword == "" || c.clock == nil {
		return
	}
	vals, ok := msg.Data.Get(c.timeLimKeyword)
	if !ok || len(vals) == 0 {
		return
	}
	v, err := keyvar.AsFloat(vals[0])
	if err != nil {
		c.logger.Warn("invalid time limit keyword",
			"keyword", c.timeLimKeyword, "value", vals[0], "error", err)
		return
	}
	secs := v.(float64)
	if math.IsNaN(secs) || secs < 0 {
		return
	}
	extra := time.Duration(secs * float64(time.Second))
	c.deadline = c.clock.Now().Add(extra + c.timeLimit)
}

// markDispatched records the ID and start time. It returns false if the
// command was already submitted.
func (c *CmdVar) markDispatched(d *Dispatcher, id int, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCreated {
		return false
	}
	c.id = id
	c.state = StateDispatched
	c.startTime = now
	c.dispatcher = d
	c.clock = d.clock
	c.logger = d.logger.With("cmd_id", id, "actor", c.actor)
	if c.timeLimit > 0 {
		c.deadline = now.Add(c.timeLimit)
	}
	return true
}

// expired reports whether the deadline has passed at now.
func (c *CmdVar) expired(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.state.IsTerminal() && !c.deadline.IsZero() && now.After(c.deadline)
}

// beginAbort marks the command as aborting. It returns false if the command
// was never dispatched or is already done.
func (c *CmdVar) beginAbort() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCreated || c.state.IsTerminal() || c.aborting {
		return false
	}
	c.aborting = true
	return true
}

// Abort cancels a running command: the abort command (if any) is sent and
// the command is finished with a local failure reply. It is a no-op if the
// command was never dispatched or is already done.
func (c *CmdVar) Abort() {
	c.mu.Lock()
	d := c.dispatcher
	c.mu.Unlock()
	if d == nil {
		return
	}
	d.abortCmd(c)
}

func (c *CmdVar) commandKind() log.CommandKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

func (c *CmdVar) refreshTarget() *keyvar.KeyVar {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshKV
}

// String returns "id actor text".
func (c *CmdVar) String() string {
	return wire.FormatCommand(c.ID(), c.actor, c.cmdStr)
}
