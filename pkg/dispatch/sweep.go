package dispatch

import (
	"context"

	"github.com/hub-protocol/hub-go/pkg/keyvar"
	"github.com/hub-protocol/hub-go/pkg/metrics"
)

// CheckTimeouts runs one timeout sweep and returns the number of commands it failed.
// A command fails if the connection is down or its deadline has passed.
func (d *Dispatcher) CheckTimeouts() int {
	return d.checkTimeouts(context.Background())
}

// checkTimeouts walks a snapshot of the command table one command per step.
// The dispatcher lock is not held between steps.
func (d *Dispatcher) checkTimeouts(ctx context.Context) int {
	failed := 0
	for _, cmd := range d.PendingCommands() {
		if ctx.Err() != nil {
			break
		}
		if cmd.IsDone() {
			continue
		}
		switch {
		case !d.conn.IsConnected():
			d.failCmd(cmd, textNotConnected)
			failed++
		case cmd.expired(d.clock.Now()):
			d.logger.Warn("command timed out", "cmd_id", cmd.ID(), "actor", cmd.Actor(), "cmd", cmd.CmdStr())
			metrics.CommandTimeoutsTotal.Inc()
			d.failCmd(cmd, textTimedOut)
			failed++
		}
	}
	return failed
}

// RefreshKeyVars runs one refresh sweep and returns the number of refresh
// commands issued. A KeyVar is refreshed if it is not current, has a refresh
// command, and no refresh for its (actor, command) pair is outstanding. With
// retryFailed, pairs whose last refresh failed are retried too.
func (d *Dispatcher) RefreshKeyVars(retryFailed bool) int {
	return d.refreshKeyVars(context.Background(), retryFailed)
}

func (d *Dispatcher) refreshKeyVars(ctx context.Context, retryFailed bool) int {
	issued := 0
	for _, kv := range d.KeyVars() {
		if ctx.Err() != nil || !d.conn.IsConnected() {
			break
		}
		if d.refreshOne(kv, retryFailed) {
			issued++
		}
	}
	return issued
}

func (d *Dispatcher) refreshOne(kv *keyvar.KeyVar, retryFailed bool) bool {
	if kv.IsCurrent() || !kv.HasRefreshCmd() {
		return false
	}
	actor, cmdStr, timeLimit := kv.RefreshInfo()
	if timeLimit <= 0 {
		timeLimit = d.config.DefaultRefreshTimeLimit
	}
	key := refreshKey{actor: actor, cmd: cmdStr}

	d.mu.Lock()
	if entry, tracked := d.refresh[key]; tracked && !(entry.failed && retryFailed) {
		d.mu.Unlock()
		return false
	}
	cmd := newRefreshCmdVar(kv, actor, cmdStr, timeLimit)
	d.refresh[key] = refreshEntry{kv: kv, cmd: cmd}
	d.mu.Unlock()

	d.ExecuteCmd(cmd)
	return true
}

// Refresh forgets the refresh state of kv's refresh command so the next
// sweep issues it again if kv is not current. A refresh that is still
// running stays tracked.
func (d *Dispatcher) Refresh(kv *keyvar.KeyVar) {
	actor, cmdStr, _ := kv.RefreshInfo()
	if cmdStr == "" {
		return
	}
	key := refreshKey{actor: actor, cmd: cmdStr}
	d.mu.Lock()
	if entry, ok := d.refresh[key]; ok && (entry.failed || entry.cmd.IsDone()) {
		delete(d.refresh, key)
	}
	d.mu.Unlock()
	kick(d.refreshKick)
}

// RefreshStatus reports whether a refresh for (actor, cmd) has been issued
// this session and whether it failed.
func (d *Dispatcher) RefreshStatus(actor, cmd string) (issued, failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.refresh[refreshKey{actor: actor, cmd: cmd}]
	return ok, entry.failed
}

// completeRefresh updates refresh tracking after a refresh command finishes.
func (d *Dispatcher) completeRefresh(cmd *CmdVar) {
	kv := cmd.refreshTarget()
	key := refreshKey{actor: cmd.Actor(), cmd: cmd.CmdStr()}

	if cmd.DidFail() {
		metrics.RefreshFailuresTotal.Inc()
		d.mu.Lock()
		if entry, ok := d.refresh[key]; ok && entry.cmd == cmd {
			d.refresh[key] = refreshEntry{kv: kv, cmd: cmd, failed: true}
		}
		d.mu.Unlock()
		d.logger.Warn("refresh command failed", "actor", key.actor, "cmd", key.cmd)
		return
	}

	if kv != nil && !kv.IsCurrent() {
		kv.ClearRefreshCmd()
		d.logger.Warn("refresh command did not set its keyword; refresh disabled",
			"keyvar", kv.String(), "actor", key.actor, "cmd", key.cmd)
	}
}
