package sh

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/robotalks/drivelink/pkg/comm/mqtt"
	commserial "github.com/robotalks/drivelink/pkg/comm/serial"
	"github.com/robotalks/drivelink/pkg/comm/tcp"
	"github.com/robotalks/drivelink/pkg/comm/websocket"
)

// DialTimeout bounds TCP connects.
const DialTimeout = 3 * time.Second

// Open connects to a drive. Supported targets:
//
//	tcp://host[:port] or host[:port]
//	serial:///dev/ttyUSB0?baud=115200
//	ws://host:port/drive
//	mqtt://broker:1883/prefix/name
func Open(target string) (io.ReadWriteCloser, error) {
	if !strings.Contains(target, "://") {
		target = "tcp://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		addr := u.Host
		if u.Port() == "" {
			addr = net.JoinHostPort(u.Hostname(), strconv.Itoa(tcp.DefaultPort))
		}
		return net.DialTimeout("tcp", addr, DialTimeout)
	case "serial":
		mode := &serial.Mode{
			BaudRate: commserial.DefaultBaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		if val := u.Query().Get("baud"); val != "" {
			if mode.BaudRate, err = strconv.Atoi(val); err != nil {
				return nil, fmt.Errorf("invalid baud rate: %w", err)
			}
		}
		device := u.Path
		if device == "" {
			device = u.Opaque
		}
		return serial.Open(device, mode)
	case "ws", "wss":
		return websocket.Dial(target)
	case "mqtt", "mqtts":
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." {
			return nil, fmt.Errorf("drive name missing in %s", target)
		}
		u.Path = strings.TrimSuffix(u.Path, name)
		conn, err := mqtt.Dial(u.String(), name)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported target %q", target)
	}
}
