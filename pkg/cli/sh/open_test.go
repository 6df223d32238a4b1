package sh

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/drivelink/pkg/comm"
)

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	for _, target := range []string{ln.Addr().String(), "tcp://" + ln.Addr().String()} {
		stream, err := Open(target)
		require.NoError(t, err, target)
		stream.Close()
	}
}

func TestOpenErrors(t *testing.T) {
	for _, target := range []string{
		"ftp://host/file",
		"serial:///dev/null?baud=fast",
		"mqtt://localhost:1883/",
	} {
		_, err := Open(target)
		require.Error(t, err, target)
	}
}

func TestTargetName(t *testing.T) {
	require.Equal(t, "ACIM", TargetName(comm.TargetACIM))
	require.Equal(t, "BLDC", TargetName(comm.TargetBLDC))
	require.Equal(t, "stepper", TargetName(comm.TargetStepper))
	require.Equal(t, "0x7f", TargetName(0x7f))
}
