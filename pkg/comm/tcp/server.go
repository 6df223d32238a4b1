// Package tcp serves the drive protocol over TCP with UDP discovery.
package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/drivelink/pkg/comm"
	"github.com/robotalks/drivelink/pkg/framework"
)

// DefaultPort is used by both the TCP protocol port and the UDP query
// port.
const DefaultPort = 23

// Server accepts one connection at a time for an Engine. A newer
// connection replaces the current one.
type Server struct {
	Engine *comm.Engine
	Addr   string
	// IdleTimeout returns the time a connection may stay without traffic
	// in either direction. Zero disables it. It's evaluated each time the
	// connection is checked so it may follow a live parameter.
	IdleTimeout func() time.Duration
	// Window is the number of bytes accepted ahead of the socket.
	Window int
	// RxCount and TxCount count socket reads and writes, including
	// discovery requests. They may be parameter cells.
	RxCount *comm.Word
	TxCount *comm.Word

	lock     sync.Mutex
	listener net.Listener
	conn     net.Conn
}

// NewServer creates a Server listening on addr.
func NewServer(engine *comm.Engine, addr string) *Server {
	return &Server{
		Engine:  engine,
		Addr:    addr,
		RxCount: comm.NewWord(4, 0),
		TxCount: comm.NewWord(4, 0),
	}
}

// Listen binds the listener. Run calls it when needed.
func (s *Server) Listen() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	glog.Infof("%s: listening on %s", s.Engine.Name, ln.Addr())
	return nil
}

// ListenAddr returns the bound address, nil before Listen.
func (s *Server) ListenAddr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Peer returns the address of the current connection, nil if none.
func (s *Server) Peer() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.RemoteAddr()
}

// Counters returns the number of socket reads and writes so far.
func (s *Server) Counters() (rx, tx uint32) {
	return s.RxCount.Get(), s.TxCount.Get()
}

// Run implements framework.Runnable. It returns comm.ErrUpgrading when
// a peer requested a firmware upgrade.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg         sync.WaitGroup
		upgradeErr atomic.Value
	)
	err := framework.RunWithContextCloser(ctx, s.listener, func() error {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return err
			}
			s.lock.Lock()
			s.conn = conn
			s.lock.Unlock()
			glog.V(2).Infof("%s: accepted %s", s.Engine.Name, conn.RemoteAddr())
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.serve(ctx, conn); errors.Is(err, comm.ErrUpgrading) {
					upgradeErr.Store(err)
					cancel()
				}
			}()
		}
	})
	cancel()
	wg.Wait()
	s.lock.Lock()
	s.listener, s.conn = nil, nil
	s.lock.Unlock()
	if err, ok := upgradeErr.Load().(error); ok {
		return err
	}
	return err
}

func (s *Server) serve(ctx context.Context, conn net.Conn) error {
	c := &idleConn{Conn: conn, server: s}
	c.touch()
	err := s.Engine.Serve(ctx, c, s.Window)
	s.lock.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.lock.Unlock()
	glog.V(2).Infof("%s: %s closed: %v", s.Engine.Name, conn.RemoteAddr(), err)
	return err
}

// idleConn counts traffic and fails a read when the connection stays
// idle longer than the server's IdleTimeout.
type idleConn struct {
	net.Conn
	server *Server
	last   atomic.Int64
}

func (c *idleConn) touch() {
	c.last.Store(time.Now().UnixNano())
}

func (c *idleConn) timeout() time.Duration {
	if c.server.IdleTimeout == nil {
		return 0
	}
	return c.server.IdleTimeout()
}

func (c *idleConn) Read(p []byte) (int, error) {
	for {
		d := c.timeout()
		if d <= 0 {
			c.Conn.SetReadDeadline(time.Time{})
		} else {
			c.Conn.SetReadDeadline(time.Unix(0, c.last.Load()).Add(d))
		}
		n, err := c.Conn.Read(p)
		if n > 0 {
			c.server.RxCount.Add(1)
			c.touch()
			return n, err
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// outgoing traffic may have moved the deadline.
			if d = c.timeout(); d <= 0 || time.Since(time.Unix(0, c.last.Load())) < d {
				continue
			}
			glog.Warningf("%s: %s idle timeout", c.server.Engine.Name, c.RemoteAddr())
		}
		return n, err
	}
}

func (c *idleConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.server.TxCount.Add(1)
		c.touch()
	}
	return n, err
}
