package server

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrLineTooLong is returned by ReadLine when a client line exceeds the
// configured maximum.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// Conn is a line-oriented client endpoint. ReadLine and WriteLine may be
// called from different goroutines, but each from only one at a time.
type Conn interface {
	// ReadLine returns the next line without its terminator.
	ReadLine() (string, error)
	// WriteLine writes line followed by a terminator. A zero deadline means
	// no deadline.
	WriteLine(line string, deadline time.Time) error
	// SetReadDeadline bounds pending and future ReadLine calls. A zero value
	// clears it.
	SetReadDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader
	maxLen int
}

// NewTCPConn wraps a stream socket speaking newline-delimited text.
// Both "\n" and "\r\n" terminators are accepted on input.
func NewTCPConn(conn net.Conn, maxLineLength int) Conn {
	return &tcpConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 4096),
		maxLen: maxLineLength,
	}
}

func (c *tcpConn) ReadLine() (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, chunk...)
		if c.maxLen > 0 && len(line) > c.maxLen {
			return "", ErrLineTooLong
		}
		if !isPrefix {
			return textLine(line), nil
		}
	}
}

func (c *tcpConn) WriteLine(line string, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := c.conn.Write(buf)
	return err
}

func (c *tcpConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// textLine converts raw client bytes to a relayable line. Invalid UTF-8 is
// replaced with U+FFFD because WebSocket peers drop non-UTF-8 text frames.
func textLine(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "io: read/write on closed pipe")
}
