package tcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/drivelink/pkg/comm"
)

type serverTestEnv struct {
	t        *testing.T
	upgrades int
	server   *Server
	errCh    chan error
	cancel   func()
}

func newServerTestEnv(t *testing.T, opts ...func(*Server)) *serverTestEnv {
	env := &serverTestEnv{t: t, errCh: make(chan error, 1)}
	reg := comm.MustNewRegistry(comm.TargetBLDC, nil, nil)
	engine := comm.NewEngine("tcp", reg, comm.HookFuncs{
		UpgradeFunc: func() { env.upgrades++ },
	})
	env.server = NewServer(engine, "127.0.0.1:0")
	for _, opt := range opts {
		opt(env.server)
	}
	require.NoError(t, env.server.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	go func() { env.errCh <- env.server.Run(ctx) }()
	t.Cleanup(cancel)
	return env
}

func (e *serverTestEnv) dial() net.Conn {
	conn, err := net.Dial("tcp", e.server.ListenAddr().String())
	require.NoError(e.t, err)
	e.t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *serverTestEnv) identify(conn net.Conn) {
	_, err := conn.Write(comm.Command(comm.CmdIDTarget))
	require.NoError(e.t, err)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	resp := make([]byte, 5)
	_, err = io.ReadFull(conn, resp)
	require.NoError(e.t, err)
	require.Equal(e.t, []byte{0xfe, 0x05, 0x00, 0x00, 0xfd}, resp)
}

func TestServerExchange(t *testing.T) {
	env := newServerTestEnv(t)
	conn := env.dial()
	env.identify(conn)
	require.Eventually(t, func() bool {
		rx, tx := env.server.Counters()
		return rx > 0 && tx > 0
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, conn.LocalAddr().String(), env.server.Peer().String())

	env.cancel()
	require.ErrorIs(t, <-env.errCh, context.Canceled)
}

func TestServerReplacesConnection(t *testing.T) {
	env := newServerTestEnv(t)
	first := env.dial()
	env.identify(first)

	second := env.dial()
	env.identify(second)

	first.SetReadDeadline(time.Now().Add(time.Second))
	_, err := first.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
	env.identify(second)
}

func TestServerIdleTimeout(t *testing.T) {
	env := newServerTestEnv(t, func(s *Server) {
		s.IdleTimeout = func() time.Duration { return 50 * time.Millisecond }
	})
	conn := env.dial()
	env.identify(conn)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}

func TestServerUpgrade(t *testing.T) {
	env := newServerTestEnv(t)
	conn := env.dial()
	env.identify(conn)
	_, err := conn.Write(comm.Command(comm.CmdUpgrade))
	require.NoError(t, err)
	select {
	case err := <-env.errCh:
		require.ErrorIs(t, err, comm.ErrUpgrading)
	case <-time.After(2 * time.Second):
		t.Fatal("server still running after upgrade")
	}
	require.Equal(t, 1, env.upgrades)
}
