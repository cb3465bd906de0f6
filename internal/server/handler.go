package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
)

// CredentialStore is the account backend consulted during the handshake.
// It must be safe for concurrent use.
type CredentialStore interface {
	Exists(ctx context.Context, username string) (bool, error)
	Authenticate(ctx context.Context, username, password string) (bool, error)
	Create(ctx context.Context, username, password string) (bool, error)
}

type state int

const (
	stateConnected state = iota
	stateAuthenticating
	stateChatting
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateAuthenticating:
		return "authenticating"
	case stateChatting:
		return "chatting"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler drives one connection at a time through the handshake and chat
// relay. A single Handler is shared by all connections.
type Handler struct {
	registry    *Registry
	broadcaster *Broadcaster
	store       CredentialStore
	cfg         *config.Config
	log         logging.Logger
}

func NewHandler(cfg *config.Config, registry *Registry, broadcaster *Broadcaster, store CredentialStore, log logging.Logger) *Handler {
	return &Handler{
		registry:    registry,
		broadcaster: broadcaster,
		store:       store,
		cfg:         cfg,
		log:         log,
	}
}

// Handle serves conn until the peer disconnects. It owns conn and closes it
// before returning.
func (h *Handler) Handle(ctx context.Context, conn Conn) {
	session := NewSession(conn, h.cfg.SendQueueSize, h.cfg.WriteTimeout, h.log)
	c := &connection{
		h:       h,
		session: session,
		conn:    conn,
		log:     h.log.With("session", session.ID(), "remote", conn.RemoteAddr()),
		limiter: newRateLimiter(h.cfg.RateLimit.Burst, h.cfg.RateLimit.RefillInterval),
		state:   stateConnected,
	}

	c.log.Info(ctx, "client connected")
	c.run(ctx)
}

// connection is the per-connection state machine.
type connection struct {
	h       *Handler
	session *Session
	conn    Conn
	log     logging.Logger
	limiter *rateLimiter
	state   state
}

func (c *connection) run(ctx context.Context) {
	defer c.close(ctx)

	if timeout := c.h.cfg.HandshakeTimeout; timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			c.log.Warn(ctx, "could not set handshake deadline", "error", err)
			return
		}
	}
	if !c.handshake(ctx) {
		return
	}
	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		c.log.Warn(ctx, "could not clear handshake deadline", "error", err)
		return
	}
	c.chat(ctx)
}

// handshake returns true once the client has logged in.
func (c *connection) handshake(ctx context.Context) bool {
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			c.logReadError(ctx, err)
			return false
		}
		if c.state == stateConnected {
			c.state = stateAuthenticating
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			c.log.Warn(ctx, "disconnecting client", "state", c.state, "error", err)
			return false
		}

		switch cmd.Kind {
		case CommandQuit:
			c.log.Info(ctx, "client disconnected without signing in")
			return false
		case CommandNewUser:
			c.newUser(ctx, cmd.Username, cmd.Password)
		case CommandLogin:
			if c.login(ctx, cmd.Username, cmd.Password) {
				return true
			}
		}
	}
}

func (c *connection) newUser(ctx context.Context, username, password string) {
	exists, err := c.h.store.Exists(ctx, username)
	if err != nil {
		c.log.Error(ctx, "credential lookup failed", "user", username, "error", err)
		c.reply(ctx, ReplyTaken)
		return
	}
	if exists {
		c.reply(ctx, ReplyTaken)
		return
	}

	created, err := c.h.store.Create(ctx, username, password)
	switch {
	case err != nil:
		c.log.Warn(ctx, "account creation rejected", "user", username, "error", err)
		c.reply(ctx, ReplyTaken)
	case !created:
		c.reply(ctx, ReplyTaken)
	default:
		c.log.Info(ctx, "account created", "user", username)
		c.reply(ctx, ReplyUserCreated)
	}
}

func (c *connection) login(ctx context.Context, username, password string) bool {
	ok, err := c.h.store.Authenticate(ctx, username, password)
	if err != nil {
		c.log.Error(ctx, "credential store unavailable; denying login", "user", username, "error", err)
		c.reply(ctx, ReplyDenied)
		return false
	}
	if !ok {
		c.log.Info(ctx, "login denied", "user", username)
		c.reply(ctx, ReplyDenied)
		return false
	}

	c.session.setUsername(username)
	c.log = c.log.With("user", username)

	// Queue ACCEPTED before joining the registry so it precedes every broadcast.
	c.reply(ctx, ReplyAccepted)
	if !c.h.registry.Add(c.session) {
		c.log.Error(ctx, "session already registered")
	}
	c.state = stateChatting

	c.log.Info(ctx, "client logged in")
	c.h.broadcaster.Broadcast(ctx, JoinNotice(username))
	c.h.broadcaster.BroadcastRoster(ctx)
	return true
}

func (c *connection) chat(ctx context.Context) {
	username := c.session.Username()
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			c.logReadError(ctx, err)
			return
		}
		if line == "" {
			continue
		}
		if isCommand(line) {
			if strings.TrimSpace(line) == cmdQuit {
				c.log.Info(ctx, "client quit")
				return
			}
			c.log.Debug(ctx, "ignoring handshake command after login")
			continue
		}
		if !c.limiter.allow() {
			c.log.Warn(ctx, "rate limit exceeded; discarding message",
				"burst", c.h.cfg.RateLimit.Burst, "interval", c.h.cfg.RateLimit.RefillInterval)
			continue
		}

		c.h.broadcaster.Broadcast(ctx, ChatLine(username, line))
	}
}

// close runs exactly once per connection.
func (c *connection) close(ctx context.Context) {
	wasChatting := c.state == stateChatting
	c.state = stateClosed

	if wasChatting && c.h.registry.Remove(c.session) {
		username := c.session.Username()
		c.h.broadcaster.Broadcast(ctx, LeaveNotice(username))
		c.h.broadcaster.BroadcastRoster(ctx)
	}

	c.session.Close()
	c.log.Info(ctx, "client connection closed")
}

func (c *connection) reply(ctx context.Context, line string) {
	if !c.session.Send(line) {
		c.log.Warn(ctx, "could not queue reply", "reply", line)
	}
}

// logReadError logs why the read side ended.
func (c *connection) logReadError(ctx context.Context, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		c.log.Info(ctx, "client closed connection", "state", c.state)
	case errors.As(err, &ne) && ne.Timeout():
		c.log.Info(ctx, "client did not sign in in time", "state", c.state, "timeout", c.h.cfg.HandshakeTimeout)
	case errors.Is(err, ErrLineTooLong), errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn(ctx, "client line exceeded maximum length", "max", c.h.cfg.MaxLineLength)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info(ctx, "client disconnected", "state", c.state, "reason", err)
	case isExpectedCloseError(err):
		c.log.Info(ctx, "connection closed", "state", c.state)
	default:
		c.log.Warn(ctx, "read error", "state", c.state, "error", err)
	}
}
