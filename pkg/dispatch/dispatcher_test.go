package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hub-protocol/hub-go/pkg/keyvar"
	"github.com/hub-protocol/hub-go/pkg/log"
	"github.com/hub-protocol/hub-go/pkg/metrics"
	"github.com/hub-protocol/hub-go/pkg/transport"
	"github.com/hub-protocol/hub-go/pkg/transport/mocks"
	"github.com/hub-protocol/hub-go/pkg/wire"
)

func TestNewRejectsOverlappingRanges(t *testing.T) {
	_, err := New(newFakeConn(false), Config{
		UserIDMin:    1,
		UserIDMax:    100,
		RefreshIDMin: 50,
		RefreshIDMax: 200,
	})
	assert.Error(t, err)

	_, err = New(newFakeConn(false), Config{UserIDMin: 0, UserIDMax: 10, RefreshIDMin: 20, RefreshIDMax: 30})
	assert.Error(t, err, "ID 0 is reserved")
}

func TestNewFillsDefaults(t *testing.T) {
	d, err := New(newFakeConn(false), Config{})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ConnectionID())
	assert.Equal(t, DefaultUserIDMin, d.config.UserIDMin)
	assert.Equal(t, DefaultRefreshIDMax, d.config.RefreshIDMax)
	assert.Equal(t, keyvar.DefaultRefreshTimeLimit, d.config.DefaultRefreshTimeLimit)
}

func TestDispatchRoutesKeywords(t *testing.T) {
	env := newTestEnv(t, true)
	pos := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3)})
	status := keyvar.New("tcc", "TCCStatus", keyvar.Options{Converters: []keyvar.Converter{keyvar.AsString}})
	other := keyvar.New("mcp", "AxePos", keyvar.Options{Converters: floats(3)})
	env.d.Add(pos)
	env.d.Add(status)
	env.d.Add(other)

	env.conn.reply(".hub 0 tcc i axepos=1,2,3; TCCSTATUS=Moving")

	values, current := pos.Get()
	assert.True(t, current)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, values)
	assert.Equal(t, "Moving", status.Value(0))
	assert.Zero(t, other.Count(), "keyword of another actor must not be set")
	assert.Equal(t, "tcc", pos.LastMessage().Actor)
}

func TestDispatchStripsKeysPrefix(t *testing.T) {
	env := newTestEnv(t, true)
	pos := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3)})
	env.d.Add(pos)

	env.conn.reply(".hub 0 keys.tcc i AxePos=4,5,6")

	values, current := pos.Get()
	assert.True(t, current)
	assert.Equal(t, []any{4.0, 5.0, 6.0}, values)
}

func TestDispatchRejectedValuesLeaveKeyVarUnchanged(t *testing.T) {
	env := newTestEnv(t, true)
	pos := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3)})
	env.d.Add(pos)

	env.conn.reply(".hub 0 tcc i AxePos=1,2")

	assert.Zero(t, pos.Count())
	assert.False(t, pos.IsCurrent())
}

func TestAddIsIdempotentAndRemoveStopsRouting(t *testing.T) {
	env := newTestEnv(t, true)
	pos := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3)})
	env.d.Add(pos)
	env.d.Add(pos)
	assert.Len(t, env.d.KeyVars(), 1)
	assert.Len(t, env.d.KeyVarsFor("keys.tcc", "AXEPOS"), 1)

	env.d.Remove(pos)
	env.d.Remove(pos)
	assert.Empty(t, env.d.KeyVars())

	env.conn.reply(".hub 0 tcc i AxePos=1,2,3")
	assert.Zero(t, pos.Count())
}

func TestDispatchRecoversFromCallbackPanic(t *testing.T) {
	env := newTestEnv(t, true)
	first := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3)})
	second := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3)})
	first.AddCallback(func([]any, bool, *keyvar.KeyVar) { panic("boom") }, false)
	env.d.Add(first)
	env.d.Add(second)

	assert.NotPanics(t, func() { env.conn.reply(".hub 0 tcc i AxePos=1,2,3") })
	assert.True(t, second.IsCurrent())
}

func TestExecuteCmdNotConnected(t *testing.T) {
	env := newTestEnv(t, false)

	var gotType wire.MsgType
	cmd := NewCmdVar("tcc", "status", &CmdOptions{
		Callback: func(msgType wire.MsgType, _ *wire.Message, _ *CmdVar) { gotType = msgType },
	})
	env.d.ExecuteCmd(cmd)

	assert.Equal(t, StateFailed, cmd.State())
	assert.True(t, cmd.DidFail())
	assert.Equal(t, 0, cmd.ID())
	assert.Equal(t, "Not connected", cmd.LastReply().Text())
	assert.Equal(t, wire.TypeFailed, gotType)
	assert.Empty(t, env.conn.written())
	assert.Empty(t, env.d.PendingCommands())
}

func TestExecuteCmdWritesAndCompletes(t *testing.T) {
	env := newTestEnv(t, true)

	var types []wire.MsgType
	cmd := NewCmdVar("tcc", "status", &CmdOptions{
		CallTypes: wire.AllTypes,
		Callback: func(msgType wire.MsgType, _ *wire.Message, _ *CmdVar) {
			types = append(types, msgType)
		},
	})
	env.d.ExecuteCmd(cmd)

	require.Equal(t, []string{"1 tcc status"}, env.conn.written())
	assert.Equal(t, StateDispatched, cmd.State())
	assert.Equal(t, env.clock.Now(), cmd.StartTime())
	got, ok := env.d.Command(1)
	require.True(t, ok)
	assert.Same(t, cmd, got)

	env.conn.reply("tester 1 tcc > ")
	assert.Equal(t, StateRunning, cmd.State())
	env.conn.reply(`tester 1 tcc w text="slow axis"`)
	env.conn.reply("tester 1 tcc : ")

	assert.Equal(t, StateDone, cmd.State())
	assert.False(t, cmd.DidFail())
	assert.Equal(t, []wire.MsgType{wire.TypeQueued, wire.TypeWarning, wire.TypeDone}, types)
	assert.Len(t, cmd.Replies(), 3)
	_, ok = env.d.Command(1)
	assert.False(t, ok, "terminal reply must remove the command")

	select {
	case <-cmd.Done():
	default:
		t.Fatal("Done() not closed after terminal reply")
	}
}

func TestExecuteCmdTwiceIsIgnored(t *testing.T) {
	env := newTestEnv(t, true)
	cmd := NewCmdVar("tcc", "status", nil)
	env.d.ExecuteCmd(cmd)
	env.d.ExecuteCmd(cmd)
	assert.Len(t, env.conn.written(), 1)
	assert.Equal(t, 1, cmd.ID())
}

func TestReplyFromOtherCommanderIsNotDelivered(t *testing.T) {
	env := newTestEnv(t, true)
	cmd := NewCmdVar("tcc", "status", nil)
	env.d.ExecuteCmd(cmd)

	env.conn.reply("someone.else 1 tcc : ")
	assert.Equal(t, StateDispatched, cmd.State())

	env.conn.reply("tester 1 tcc : ")
	assert.Equal(t, StateDone, cmd.State())
}

func TestReplyKeywordsReachKeyVarsBeforeCommand(t *testing.T) {
	env := newTestEnv(t, true)
	pos := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3)})
	env.d.Add(pos)

	var seen []any
	cmd := NewCmdVar("tcc", "status", &CmdOptions{
		Callback: func(wire.MsgType, *wire.Message, *CmdVar) {
			seen, _ = pos.Get()
		},
	})
	env.d.ExecuteCmd(cmd)
	env.conn.reply("tester 1 tcc : AxePos=7,8,9")

	assert.Equal(t, []any{7.0, 8.0, 9.0}, seen)
}

func TestCommandIDsWrapAndSkipLiveIDs(t *testing.T) {
	env := newTestEnvWithConfig(t, true, Config{UserIDMin: 1, UserIDMax: 3})

	cmds := make([]*CmdVar, 3)
	for i := range cmds {
		cmds[i] = NewCmdVar("tcc", "status", nil)
		env.d.ExecuteCmd(cmds[i])
	}
	assert.Equal(t, 1, cmds[0].ID())
	assert.Equal(t, 2, cmds[1].ID())
	assert.Equal(t, 3, cmds[2].ID())

	env.conn.reply("tester 2 tcc : ")

	reused := NewCmdVar("tcc", "status", nil)
	env.d.ExecuteCmd(reused)
	assert.Equal(t, 2, reused.ID(), "wrapped allocation must skip live ID 1")

	exhausted := NewCmdVar("tcc", "status", nil)
	env.d.ExecuteCmd(exhausted)
	assert.Equal(t, StateFailed, exhausted.State())
	assert.Equal(t, "No free command ID", exhausted.LastReply().Text())
	assert.Len(t, env.d.PendingCommands(), 3)
}

func TestExecuteCmdWriteFailure(t *testing.T) {
	conn := mocks.NewMockLineConnection(t)
	conn.EXPECT().SetLineHandler(mock.Anything).Return()
	conn.EXPECT().SetStateHandler(mock.Anything).Return()
	conn.EXPECT().IsConnected().Return(true)
	conn.EXPECT().CommanderID().Return(testCommander).Maybe()
	conn.EXPECT().WriteLine("1 tcc status").Return(errors.New("broken pipe")).Once()

	d, err := New(conn, Config{})
	require.NoError(t, err)

	cmd := NewCmdVar("tcc", "status", nil)
	d.ExecuteCmd(cmd)

	assert.Equal(t, StateFailed, cmd.State())
	assert.Equal(t, "Write failed: broken pipe", cmd.LastReply().Text())
	assert.Equal(t, testCommander, cmd.LastReply().Commander)
	_, ok := d.Command(1)
	assert.False(t, ok)
}

func TestAbortSendsAbortCommand(t *testing.T) {
	env := newTestEnv(t, true)
	cmd := NewCmdVar("tcc", "move 1,2", &CmdOptions{AbortCmd: "stop"})
	env.d.ExecuteCmd(cmd)

	require.NoError(t, env.d.Abort(cmd.ID()))

	assert.Equal(t, StateAborted, cmd.State())
	assert.True(t, cmd.DidFail())
	assert.Equal(t, "Aborted", cmd.LastReply().Text())
	assert.Equal(t, []string{"1 tcc move 1,2", "2 tcc stop"}, env.conn.written())

	// A second abort is a no-op.
	cmd.Abort()
	assert.Len(t, env.conn.written(), 2)

	err := env.d.Abort(1)
	assert.ErrorIs(t, err, ErrNotDispatched)
}

func TestAbortWithoutAbortCmd(t *testing.T) {
	env := newTestEnv(t, true)
	cmd := NewCmdVar("tcc", "status", nil)

	cmd.Abort()
	assert.Equal(t, StateCreated, cmd.State(), "abort before dispatch is a no-op")

	env.d.ExecuteCmd(cmd)
	cmd.Abort()
	assert.Equal(t, StateAborted, cmd.State())
	assert.Len(t, env.conn.written(), 1)
}

func TestLateReplyIsIgnored(t *testing.T) {
	env := newTestEnv(t, true)
	cmd := NewCmdVar("tcc", "status", nil)
	env.d.ExecuteCmd(cmd)
	env.conn.reply("tester 1 tcc f text=nope")
	require.Equal(t, StateFailed, cmd.State())

	env.conn.reply("tester 1 tcc : ")
	assert.Equal(t, StateFailed, cmd.State())
	assert.Len(t, cmd.Replies(), 1)
}

func TestMalformedLineIsCounted(t *testing.T) {
	env := newTestEnv(t, true)
	before := testutil.ToFloat64(metrics.ParseErrorsTotal)

	env.conn.reply("garbage")
	env.conn.reply(`tester 1 tcc i text="unterminated`)

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.ParseErrorsTotal))
	errs := env.trace.byCategory(log.CategoryError)
	require.Len(t, errs, 2)
	assert.Equal(t, "garbage", errs[0].Error.Context)
	assert.Equal(t, log.LayerWire, errs[0].Layer)
}

func TestTraceEvents(t *testing.T) {
	env := newTestEnvWithConfig(t, true, Config{ConnectionID: "session-1"})
	cmd := NewCmdVar("tcc", "status", &CmdOptions{TimeLimit: 5 * time.Second})
	env.d.ExecuteCmd(cmd)
	env.conn.reply("tester 1 tcc : ")

	commands := env.trace.byCategory(log.CategoryCommand)
	require.Len(t, commands, 1)
	ev := commands[0]
	assert.Equal(t, "session-1", ev.ConnectionID)
	assert.Equal(t, testCommander, ev.Commander)
	assert.Equal(t, log.DirectionOut, ev.Direction)
	assert.Equal(t, 1, ev.Command.CmdID)
	assert.Equal(t, log.CommandKindUser, ev.Command.Kind)
	assert.Equal(t, 5*time.Second, ev.Command.TimeLimit)

	replies := env.trace.byCategory(log.CategoryReply)
	require.Len(t, replies, 1)
	assert.Equal(t, log.LayerWire, replies[0].Layer)
	assert.Equal(t, 1, replies[0].Reply.CmdID)
	assert.False(t, replies[0].Reply.Synthesized)

	states := env.trace.byCategory(log.CategoryState)
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.Equal(t, log.StateEntityCommand, last.StateChange.Entity)
	assert.Equal(t, "DONE", last.StateChange.NewState)
}

func TestSynthesizedRepliesAreTraced(t *testing.T) {
	env := newTestEnv(t, false)
	env.d.ExecuteCmd(NewCmdVar("tcc", "status", nil))

	var synthesized int
	for _, ev := range env.trace.byCategory(log.CategoryReply) {
		if ev.Reply != nil && ev.Reply.Synthesized {
			synthesized++
			assert.Equal(t, log.DirectionLocal, ev.Direction)
			assert.Equal(t, "f", ev.Reply.MsgType)
		}
	}
	assert.Equal(t, 1, synthesized)
}

func TestDisconnectMarksKeyVarsNotCurrentOnce(t *testing.T) {
	env := newTestEnv(t, true)
	pos := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3)})
	rec := &kvRecorder{}
	pos.AddCallback(rec.callback, false)
	env.d.Add(pos)

	env.conn.reply(".hub 0 tcc i AxePos=1,2,3")
	require.True(t, pos.IsCurrent())

	env.conn.disconnect()
	env.conn.setState(transport.StateDisconnected, transport.StateConnecting)
	env.conn.setState(transport.StateConnecting, transport.StateDisconnected)

	current, notCurrent := rec.counts()
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, notCurrent)
	assert.False(t, pos.IsCurrent())
	values, _ := pos.Get()
	assert.Equal(t, []any{1.0, 2.0, 3.0}, values, "values survive disconnect")
}

func TestDisconnectFailsPendingCommands(t *testing.T) {
	env := newTestEnv(t, true)
	cmd := NewCmdVar("tcc", "status", nil)
	env.d.ExecuteCmd(cmd)

	env.conn.disconnect()
	assert.Equal(t, StateFailed, cmd.State(), "failed before the disconnect handler returns")
	assert.Zero(t, env.d.CheckTimeouts())
	assert.Equal(t, "Not connected", cmd.LastReply().Text())
	assert.Equal(t, testCommander, cmd.LastReply().Commander)
	assert.Empty(t, env.d.PendingCommands())
}

func TestQuickReconnectFailsOldCommands(t *testing.T) {
	env := newTestEnv(t, true)
	cmd := NewCmdVar("tcc", "track", nil)
	env.d.ExecuteCmd(cmd)
	pos := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3), RefreshCmd: "status"})
	env.d.Add(pos)
	require.Equal(t, 1, env.d.RefreshKeyVars(false))

	env.conn.disconnect()
	env.conn.connect()

	assert.Equal(t, StateFailed, cmd.State(), "command without a time limit is failed on disconnect")
	assert.Empty(t, env.d.PendingCommands())

	assert.Equal(t, 1, env.d.RefreshKeyVars(false))
	assert.Zero(t, env.d.RefreshKeyVars(false))
	assert.Equal(t, []string{"1 tcc track", "30000 tcc status", "30001 tcc status"}, env.conn.written())
}

func TestTimeoutWithTimeLimitKeyword(t *testing.T) {
	env := newTestEnv(t, true)
	start := env.clock.Now()
	cmd := NewCmdVar("tcc", "move", &CmdOptions{
		TimeLimit:      10 * time.Second,
		TimeLimKeyword: "ExpTime",
	})
	env.d.ExecuteCmd(cmd)
	assert.Equal(t, start.Add(10*time.Second), cmd.Deadline())

	env.clock.Advance(5 * time.Second)
	env.conn.reply("tester 1 tcc > ExpTime=3")
	assert.Equal(t, start.Add(18*time.Second), cmd.Deadline())

	env.clock.Advance(12 * time.Second)
	assert.Zero(t, env.d.CheckTimeouts(), "t=17s is before the extended deadline")
	assert.Equal(t, StateRunning, cmd.State())

	env.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, env.d.CheckTimeouts())
	assert.Equal(t, StateFailed, cmd.State())
	assert.Equal(t, "Timed out", cmd.LastReply().Text())
}

func TestCommandWithoutTimeLimitNeverTimesOut(t *testing.T) {
	env := newTestEnv(t, true)
	cmd := NewCmdVar("tcc", "status", nil)
	env.d.ExecuteCmd(cmd)

	env.clock.Advance(24 * time.Hour)
	assert.Zero(t, env.d.CheckTimeouts())
	assert.Equal(t, StateDispatched, cmd.State())
}

func TestRunDrivesSweeps(t *testing.T) {
	env := newTestEnv(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = env.d.Run(ctx)
	}()

	pos := keyvar.New("tcc", "AxePos", keyvar.Options{Converters: floats(3), RefreshCmd: "status"})
	env.d.Add(pos)
	assert.Eventually(t, func() bool {
		return len(env.conn.written()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "30000 tcc status", env.conn.written()[0])

	require.NoError(t, env.clock.BlockUntilContext(ctx, 2))
	cmd := NewCmdVar("tcc", "move", &CmdOptions{TimeLimit: time.Second})
	env.d.ExecuteCmd(cmd)
	env.clock.Advance(2 * time.Second)

	assert.Eventually(t, cmd.IsDone, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Timed out", cmd.LastReply().Text())

	cancel()
	wg.Wait()
	assert.ErrorIs(t, runErr, context.Canceled)
}
