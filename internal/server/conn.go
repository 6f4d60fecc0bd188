package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"dispense/internal/protocol"
)

var msgTooLong = protocol.Reply{
	Status: protocol.StatusBadArgument,
	Lines:  []protocol.Line{{Code: 499, Text: "Command too long (limit 256)"}},
}

type clientConn struct {
	server  *Server
	conn    net.Conn
	session *protocol.Session
}

// serve reads newline-terminated commands and writes one reply per command.
// An overlong command is answered with 499 and the rest of it is discarded.
func (c *clientConn) serve(ctx context.Context) {
	s := c.server
	id := c.session.ClientID()
	defer c.conn.Close()

	if s.opts.Metrics != nil {
		s.opts.Metrics.ConnectionOpened()
		defer s.opts.Metrics.ConnectionClosed()
	}
	s.debugf(1, "client %d: connected from %s (trusted=%t)", id, c.session.RemoteAddr(), c.session.Trusted())

	r := bufio.NewReaderSize(c.conn, MaxLineLength)
	discarding := false
	for {
		if s.opts.IdleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		}
		raw, err := r.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			if !discarding {
				s.debugf(1, "client %d: command too long", id)
				if !c.write(msgTooLong) {
					return
				}
			}
			discarding = true
			continue
		case err != nil:
			c.closed(err)
			return
		}
		if discarding {
			discarding = false
			continue
		}

		line := strings.TrimRight(string(raw), "\r\n")
		if line == "" {
			continue
		}
		command, _, _ := strings.Cut(line, " ")
		reply := s.dispatcher.Dispatch(ctx, c.session, line)
		s.debugf(2, "client %d: %s -> %d", id, command, reply.Code())
		if !c.write(reply) {
			return
		}
	}
}

func (c *clientConn) write(reply protocol.Reply) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.opts.WriteTimeout))
	if _, err := reply.WriteTo(c.conn); err != nil {
		c.server.debugf(1, "client %d: write: %v", c.session.ClientID(), err)
		return false
	}
	return true
}

func (c *clientConn) closed(err error) {
	id := c.session.ClientID()
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.server.debugf(1, "client %d: disconnected", id)
	case errors.As(err, &ne) && ne.Timeout():
		c.server.debugf(1, "client %d: idle timeout", id)
	default:
		c.server.debugf(1, "client %d: read: %v", id, err)
	}
}
