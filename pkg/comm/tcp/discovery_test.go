package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/drivelink/pkg/comm"
)

func TestDiscoveryReply(t *testing.T) {
	reg := comm.MustNewRegistry(comm.TargetACIM, nil, nil)
	d := NewDiscovery(NewServer(comm.NewEngine("tcp", reg, nil), ""), "", 0x07)

	reply := d.Reply([]byte{0xff, 0x04, 0x02, 0xfb})
	require.Equal(t, []byte{0xfe, 0x0a, 0x02, 0x02, 0x07, 0, 0, 0, 0}, reply[:9])
	require.True(t, comm.Valid(reply))

	for _, req := range [][]byte{
		{0xff, 0x04, 0x02},
		{0xfe, 0x04, 0x02, 0xfc},
		{0xff, 0x05, 0x02, 0x00, 0xfa},
		{0xff, 0x04, 0x00, 0xfd},
		{0xff, 0x04, 0x02, 0xfa},
	} {
		require.Nil(t, d.Reply(req), "% x", req)
	}
}

func TestDiscoveryOverUDP(t *testing.T) {
	env := newServerTestEnv(t)
	conn := env.dial()
	env.identify(conn)

	d := NewDiscovery(env.server, "127.0.0.1:0", 0x31)
	require.NoError(t, d.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	udp, err := net.Dial("udp", d.ListenAddr().String())
	require.NoError(t, err)
	defer udp.Close()
	_, err = udp.Write([]byte{0xff, 0x04, 0x02, 0xfb})
	require.NoError(t, err)
	udp.SetReadDeadline(time.Now().Add(time.Second))
	reply := make([]byte, 16)
	n, err := udp.Read(reply)
	require.NoError(t, err)
	require.Equal(t, DiscoveryReplySize, n)
	require.Equal(t, []byte{0xfe, 0x0a, 0x02, 0x00, 0x31, 127, 0, 0, 1}, reply[:9])
}
