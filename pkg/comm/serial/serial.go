// Package serial serves the drive protocol on a serial port.
package serial

import (
	"context"
	"fmt"
	"io"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/drivelink/pkg/comm"
)

// DefaultBaudRate matches the drive's UART setting.
const DefaultBaudRate = 115200

// OpenFunc opens the serial device.
type OpenFunc func(device string, mode *serial.Mode) (io.ReadWriteCloser, error)

// Transport attaches an Engine to a serial device.
type Transport struct {
	Engine *comm.Engine
	Device string
	Mode   serial.Mode
	Window int
	// Open defaults to serial.Open.
	Open OpenFunc
}

// New creates a Transport using 8N1 at baudRate.
func New(engine *comm.Engine, device string, baudRate int) *Transport {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	return &Transport{
		Engine: engine,
		Device: device,
		Mode: serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
}

// Ports lists the serial devices on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// Run implements framework.Runnable.
func (t *Transport) Run(ctx context.Context) error {
	open := t.Open
	if open == nil {
		open = func(device string, mode *serial.Mode) (io.ReadWriteCloser, error) {
			return serial.Open(device, mode)
		}
	}
	port, err := open(t.Device, &t.Mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", t.Device, err)
	}
	glog.Infof("%s: serving on %s at %d baud", t.Engine.Name, t.Device, t.Mode.BaudRate)
	return t.Engine.Serve(ctx, port, t.Window)
}
