package daemon

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/robotalks/drivelink/pkg/comm/serial"
	"github.com/robotalks/drivelink/pkg/comm/tcp"
)

// Config provides options to setup a Daemon. Empty addresses disable the
// corresponding transport.
type Config struct {
	// Name identifies the drive in the parameter store and on MQTT.
	// Empty uses the machine ID.
	Name string
	// BoardID is reported by discovery. Negative uses the machine ID.
	BoardID int

	SerialDevice string
	BaudRate     int
	// ListenAddr is the TCP address of the protocol port.
	ListenAddr string
	// DiscoveryAddr is the UDP address answering discovery requests.
	DiscoveryAddr string
	// WebSocketAddr is the HTTP address of the WebSocket endpoint.
	WebSocketAddr string
	// MQTTURL is the broker and topic prefix,
	// e.g. mqtt://localhost:1883/drive/
	MQTTURL string
	// DBPath is the SQLite file persisting parameters.
	DBPath string
	// Tick is the simulation and telemetry loop interval.
	Tick time.Duration
	// Window is the number of bytes a transport accepts ahead of the wire.
	Window int
}

var defaultConfig = Config{
	BoardID:       -1,
	BaudRate:      serial.DefaultBaudRate,
	ListenAddr:    net.JoinHostPort("", strconv.Itoa(tcp.DefaultPort)),
	DiscoveryAddr: net.JoinHostPort("", strconv.Itoa(tcp.DefaultPort)),
	Tick:          10 * time.Millisecond,
}

func init() {
	if val := os.Getenv("DRIVE_NAME"); val != "" {
		defaultConfig.Name = val
	}
	if val := os.Getenv("DRIVE_BOARD_ID"); val != "" {
		if id, err := strconv.ParseUint(val, 0, 8); err == nil {
			defaultConfig.BoardID = int(id)
		} else {
			glog.Warningf("DRIVE_BOARD_ID: %v", err)
		}
	}
	if val := os.Getenv("DRIVE_SERIAL"); val != "" {
		defaultConfig.SerialDevice = val
	}
	if val := os.Getenv("DRIVE_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.BaudRate = baud
		} else {
			glog.Warningf("DRIVE_BAUD: %v", err)
		}
	}
	if val, ok := os.LookupEnv("DRIVE_LISTEN"); ok {
		defaultConfig.ListenAddr = val
	}
	if val, ok := os.LookupEnv("DRIVE_DISCOVERY"); ok {
		defaultConfig.DiscoveryAddr = val
	}
	if val := os.Getenv("DRIVE_WEBSOCKET"); val != "" {
		defaultConfig.WebSocketAddr = val
	}
	if val := os.Getenv("DRIVE_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("DRIVE_DB"); val != "" {
		defaultConfig.DBPath = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags(fs *pflag.FlagSet) {
	fs.StringVar(&defaultConfig.Name, "name", defaultConfig.Name, "Drive name, defaults to one derived from the machine ID.")
	fs.IntVar(&defaultConfig.BoardID, "board-id", defaultConfig.BoardID, "Board ID reported by discovery, negative to derive from the machine ID.")
	fs.StringVar(&defaultConfig.SerialDevice, "serial", defaultConfig.SerialDevice, "Serial device to serve.")
	fs.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Serial baud rate.")
	fs.StringVar(&defaultConfig.ListenAddr, "listen", defaultConfig.ListenAddr, "TCP listen address, empty to disable.")
	fs.StringVar(&defaultConfig.DiscoveryAddr, "discovery", defaultConfig.DiscoveryAddr, "UDP discovery address, empty to disable.")
	fs.StringVar(&defaultConfig.WebSocketAddr, "websocket", defaultConfig.WebSocketAddr, "WebSocket listen address.")
	fs.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL with topic prefix.")
	fs.StringVar(&defaultConfig.DBPath, "db", defaultConfig.DBPath, "SQLite file persisting parameters.")
	fs.DurationVar(&defaultConfig.Tick, "tick", defaultConfig.Tick, "Simulation loop interval.")
	fs.IntVar(&defaultConfig.Window, "window", defaultConfig.Window, "Bytes accepted ahead of the wire per transport.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.SerialDevice == "" && c.ListenAddr == "" && c.WebSocketAddr == "" && c.MQTTURL == "" {
		return fmt.Errorf("no transport enabled")
	}
	if c.DiscoveryAddr != "" && c.ListenAddr == "" {
		return fmt.Errorf("discovery requires the TCP transport")
	}
	if c.BoardID > 0xff {
		return fmt.Errorf("board id %d out of range", c.BoardID)
	}
	return nil
}

// MustNewDaemon creates a Daemon and exits on error.
func (c *Config) MustNewDaemon() *Daemon {
	d, err := c.NewDaemon()
	if err != nil {
		glog.Exit(err)
	}
	return d
}
