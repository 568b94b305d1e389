package transport

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/hub-protocol/hub-go/pkg/wire"
)

// Login command IDs. They precede the dispatcher's session, so they may
// coincide with IDs it assigns later.
const (
	knockCmdID = 1
	loginCmdID = 2
)

// authActor handles the login handshake.
const authActor = "auth"

// PasswordDigest returns the hex SHA-1 of nonce followed by password,
// the form in which the hub expects the password.
func PasswordDigest(nonce, password string) string {
	sum := sha1.Sum([]byte(nonce + password))
	return hex.EncodeToString(sum[:])
}

// login runs the knock/login handshake and returns the commander name the
// hub assigned.
func (c *LineConn) login(ctx context.Context, conn net.Conn, framer *LineFramer) (string, error) {
	conn.SetDeadline(time.Now().Add(c.config.LoginTimeout))
	defer conn.SetDeadline(time.Time{})

	// Unblock the handshake if ctx ends first.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := framer.WriteLine(wire.FormatCommand(knockCmdID, authActor, "knock")); err != nil {
		return "", fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	reply, err := c.awaitLoginReply(ctx, framer, knockCmdID)
	if err != nil {
		return "", err
	}
	nonce, ok := firstString(reply, "nonce")
	if !ok {
		return "", fmt.Errorf("%w: knock reply has no nonce", ErrLoginFailed)
	}

	text := fmt.Sprintf("login program=%s username=%s password=%s",
		c.config.Program,
		c.config.Username,
		PasswordDigest(nonce, c.config.Password))
	if err := framer.WriteLine(wire.FormatCommand(loginCmdID, authActor, text)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	reply, err = c.awaitLoginReply(ctx, framer, loginCmdID)
	if err != nil {
		return "", err
	}
	cmdr, ok := firstString(reply, "cmdr")
	if !ok || cmdr == "" {
		return "", fmt.Errorf("%w: login reply has no cmdr", ErrLoginFailed)
	}
	return cmdr, nil
}

// awaitLoginReply reads until the terminal reply to cmdID from the auth
// actor. Other lines are skipped.
func (c *LineConn) awaitLoginReply(ctx context.Context, framer *LineFramer, cmdID int) (*wire.Message, error) {
	for {
		line, err := framer.ReadLine()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
		}
		msg, err := wire.ParseReply(line)
		if err != nil {
			c.logger.Debug("ignoring line during login", "line", line, "error", err)
			continue
		}
		if msg.CmdID != cmdID || msg.Actor != authActor || !msg.IsDone() {
			continue
		}
		if msg.Type.IsFailure() {
			return nil, fmt.Errorf("%w: %s", ErrLoginFailed, msg.Text())
		}
		return msg, nil
	}
}

func firstString(msg *wire.Message, keyword string) (string, bool) {
	vals, ok := msg.Data.Get(keyword)
	if !ok || len(vals) == 0 {
		return "", false
	}
	s, ok := vals[0].(string)
	return s, ok
}
