package server

import (
	"errors"
	"fmt"
	"strings"
)

// Handshake commands sent by clients before login.
const (
	cmdNewUser = "NEWUSER: "
	cmdLogin   = "LOGIN: "
	cmdQuit    = "QUIT"
)

// Replies sent only to the requesting client.
const (
	ReplyUserCreated = "USERCREATED"
	ReplyTaken       = "TAKEN"
	ReplyAccepted    = "ACCEPTED"
	ReplyDenied      = "DENIED"
)

const (
	rosterPrefix = "USERLIST:"
	serverName   = "ChatServer"
)

var (
	ErrProtocolViolation = errors.New("protocol violation")
	ErrMalformedPayload  = fmt.Errorf("%w: expected <user>,<pass>", ErrProtocolViolation)
)

type CommandKind int

const (
	CommandNewUser CommandKind = iota + 1
	CommandLogin
	CommandQuit
)

func (k CommandKind) String() string {
	switch k {
	case CommandNewUser:
		return "NEWUSER"
	case CommandLogin:
		return "LOGIN"
	case CommandQuit:
		return "QUIT"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is a parsed handshake line.
type Command struct {
	Kind     CommandKind
	Username string
	Password string
}

// ParseCommand parses a handshake line. The credentials payload is split on
// its first comma, so passwords may contain commas.
func ParseCommand(line string) (Command, error) {
	switch {
	case strings.TrimSpace(line) == cmdQuit:
		return Command{Kind: CommandQuit}, nil
	case strings.HasPrefix(line, cmdNewUser):
		return parseCredentials(CommandNewUser, strings.TrimPrefix(line, cmdNewUser))
	case strings.HasPrefix(line, cmdLogin):
		return parseCredentials(CommandLogin, strings.TrimPrefix(line, cmdLogin))
	default:
		return Command{}, fmt.Errorf("%w: unexpected message %q", ErrProtocolViolation, truncate(line, 64))
	}
}

func parseCredentials(kind CommandKind, payload string) (Command, error) {
	user, pass, ok := strings.Cut(payload, ",")
	if !ok {
		return Command{}, fmt.Errorf("%w in %s", ErrMalformedPayload, kind)
	}
	return Command{Kind: kind, Username: user, Password: pass}, nil
}

// isCommand reports whether a chat-phase line looks like a handshake command.
func isCommand(line string) bool {
	return strings.TrimSpace(line) == cmdQuit ||
		strings.HasPrefix(line, cmdNewUser) ||
		strings.HasPrefix(line, cmdLogin)
}

func JoinNotice(username string) string {
	return serverName + ": User " + username + " has joined the chat."
}

func LeaveNotice(username string) string {
	return serverName + ": User " + username + " has left the chat."
}

func ChatLine(username, message string) string {
	return username + ": " + message
}

// RosterLine renders the USERLIST broadcast for names, in order.
func RosterLine(names []string) string {
	var b strings.Builder
	b.WriteString(rosterPrefix)
	for _, n := range names {
		b.WriteByte(' ')
		b.WriteString(n)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
