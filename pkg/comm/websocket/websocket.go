// Package websocket serves the drive protocol to browsers and remote
// hosts over binary WebSocket frames.
package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/drivelink/pkg/comm"
	"github.com/robotalks/drivelink/pkg/framework"
)

// DefaultPath is the endpoint of the protocol stream.
const DefaultPath = "/drive"

// Server accepts WebSocket connections for an Engine. Like the TCP
// transport, a newer connection replaces the current one.
type Server struct {
	Engine *comm.Engine
	Addr   string
	Path   string
	Window int

	lock     sync.Mutex
	listener net.Listener
	upgrade  func()
}

// NewServer creates a Server.
func NewServer(engine *comm.Engine, addr string) *Server {
	return &Server{Engine: engine, Addr: addr, Path: DefaultPath}
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
	glog.Infof("%s: websocket on ws://%s%s", s.Engine.Name, ln.Addr(), s.Path)
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

// Handler returns the http.Handler serving the protocol stream.
func (s *Server) Handler() http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		glog.V(2).Infof("%s: websocket from %s", s.Engine.Name, conn.Request().RemoteAddr)
		err := s.Engine.Serve(conn.Request().Context(), conn, s.Window)
		if errors.Is(err, comm.ErrUpgrading) {
			s.lock.Lock()
			upgrade := s.upgrade
			s.lock.Unlock()
			if upgrade != nil {
				upgrade()
			}
		}
	})
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.lock.Lock()
	s.upgrade = cancel
	ln := s.listener
	s.lock.Unlock()

	mux := http.NewServeMux()
	path := s.Path
	if path == "" {
		path = DefaultPath
	}
	mux.Handle(path, s.Handler())
	srv := &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	err := framework.RunWithContextCloser(ctx, srv, func() error {
		return srv.Serve(ln)
	})
	s.lock.Lock()
	s.listener, s.upgrade = nil, nil
	s.lock.Unlock()
	if s.Engine.Upgrading() {
		return comm.ErrUpgrading
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Dial connects to a drive's WebSocket endpoint.
func Dial(rawURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	origin := &url.URL{Scheme: "http", Host: u.Host}
	if u.Scheme == "wss" {
		origin.Scheme = "https"
	}
	conn, err := websocket.Dial(u.String(), "", origin.String())
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}
