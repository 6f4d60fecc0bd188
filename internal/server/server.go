package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"dispense/internal/protocol"
)

const (
	DefaultPort = 11020

	// MaxLineLength bounds one command including its newline.
	MaxLineLength = 256

	defaultWriteTimeout = 10 * time.Second
	trustedPortBelow    = 1024
)

// trustedHosts may AUTOAUTH when connecting from a privileged port.
var trustedHosts = map[netip.Addr]bool{
	netip.MustParseAddr("127.0.0.1"):    true,
	netip.MustParseAddr("130.95.13.18"): true,
	netip.MustParseAddr("130.95.13.23"): true,
}

type Dispatcher interface {
	Dispatch(ctx context.Context, s *protocol.Session, line string) protocol.Reply
}

type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
}

type Options struct {
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	DebugLevel   int
	Metrics      Metrics
}

// Server is the listener plus the state shared by all connection workers.
type Server struct {
	dispatcher Dispatcher
	opts       Options

	nextClientID atomic.Int64
	active       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func New(dispatcher Dispatcher, opts Options) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Server{
		dispatcher: dispatcher,
		opts:       opts,
		conns:      make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on all interfaces at port.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	log.Printf("Listening on 0.0.0.0:%d", port)
	return s.Serve(ctx, ln)
}

// Serve accepts connections until ctx is cancelled, then closes every open
// connection and waits for the workers to exit.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
			return
		}
		ln.Close()
		s.closeAll()
	}()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Printf("accept: %v", err)
				continue
			}
			s.closeAll()
			s.active.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			break
		}
		c := s.newConn(conn)
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			defer s.untrack(conn)
			c.serve(ctx)
		}()
	}

	s.active.Wait()
	return nil
}

// Trusted reports whether a peer may AUTOAUTH: a privileged source port on
// one of the fixed trusted hosts.
func (s *Server) Trusted(addr net.Addr) bool {
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return false
	}
	return ap.Port() < trustedPortBelow && trustedHosts[ap.Addr().Unmap()]
}

func (s *Server) newConn(conn net.Conn) *clientConn {
	id := int(s.nextClientID.Add(1) - 1)
	return &clientConn{
		server:  s,
		conn:    conn,
		session: protocol.NewSession(id, conn.RemoteAddr().String(), s.Trusted(conn.RemoteAddr())),
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

func (s *Server) debugf(level int, format string, args ...any) {
	if s.opts.DebugLevel >= level {
		log.Printf(format, args...)
	}
}
