package serial

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/robotalks/drivelink/pkg/comm"
)

func TestTransport(t *testing.T) {
	device, host := net.Pipe()
	defer host.Close()
	reg := comm.MustNewRegistry(comm.TargetStepper, nil, nil)
	tr := New(comm.NewEngine("serial", reg, nil), "/dev/ttyTEST", 0)
	var opened string
	tr.Open = func(name string, mode *serial.Mode) (io.ReadWriteCloser, error) {
		opened = name
		require.Equal(t, DefaultBaudRate, mode.BaudRate)
		return device, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tr.Run(ctx) }()

	go host.Write(comm.Command(comm.CmdIDTarget))
	host.SetReadDeadline(time.Now().Add(time.Second))
	resp := make([]byte, 5)
	_, err := io.ReadFull(host, resp)
	require.NoError(t, err)
	require.Equal(t, []byte{0xfe, 0x05, 0x00, 0x01, 0xfc}, resp)
	require.Equal(t, "/dev/ttyTEST", opened)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestTransportOpenFailure(t *testing.T) {
	reg := comm.MustNewRegistry(comm.TargetStepper, nil, nil)
	tr := New(comm.NewEngine("serial", reg, nil), "/dev/missing", 9600)
	tr.Open = func(string, *serial.Mode) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}
	require.EqualError(t, tr.Run(context.Background()), "open serial port /dev/missing: no such device")
}
