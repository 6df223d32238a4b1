// Package daemon serves a simulated drive over the configured transports.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/drivelink/pkg/comm"
	"github.com/robotalks/drivelink/pkg/comm/mqtt"
	"github.com/robotalks/drivelink/pkg/comm/serial"
	"github.com/robotalks/drivelink/pkg/comm/tcp"
	"github.com/robotalks/drivelink/pkg/comm/websocket"
	"github.com/robotalks/drivelink/pkg/framework"
	"github.com/robotalks/drivelink/pkg/motor"
	"github.com/robotalks/drivelink/pkg/store"
)

// Daemon runs a Drive simulation with one Engine per transport. All
// engines share the drive's registry.
type Daemon struct {
	Name    string
	BoardID byte
	Drive   *motor.Drive
	Loop    *framework.Loop
	Engines []*comm.Engine

	TCP       *tcp.Server
	Discovery *tcp.Discovery
	WebSocket *websocket.Server
	Serial    *serial.Transport
	MQTT      *mqtt.Bridge

	store      *store.Store
	transports []framework.Runnable
}

// NewDaemon creates a Daemon from the config.
func (c *Config) NewDaemon() (*Daemon, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	d := &Daemon{Name: c.Name}
	machineName, machineBoard := MachineIdentity()
	if d.Name == "" {
		d.Name = machineName
	}
	d.BoardID = machineBoard
	if c.BoardID >= 0 {
		d.BoardID = byte(c.BoardID)
	}

	d.Drive = motor.New(d.Name)
	if c.DBPath != "" {
		s, err := store.Open(store.Config{Path: c.DBPath})
		if err != nil {
			return nil, err
		}
		d.store = s
		d.Drive.Store = s
		if err := d.Drive.LoadParams(); err != nil {
			s.Close()
			return nil, err
		}
	}

	d.Loop = framework.NewLoop()
	if c.Tick > 0 {
		d.Loop.Interval = c.Tick
	}
	d.Loop.Add(d.Drive)

	if c.SerialDevice != "" {
		d.Serial = serial.New(d.newEngine("serial"), c.SerialDevice, c.BaudRate)
		d.Serial.Window = c.Window
		d.addTransport("serial", d.Serial)
	}
	if c.ListenAddr != "" {
		cells := d.Drive.Cells()
		d.TCP = tcp.NewServer(d.newEngine("tcp"), c.ListenAddr)
		d.TCP.Window = c.Window
		d.TCP.IdleTimeout = d.Drive.IdleTimeout
		d.TCP.RxCount, d.TCP.TxCount = cells.EthRxCount, cells.EthTxCount
		d.addTransport("tcp", d.TCP)
		if c.DiscoveryAddr != "" {
			d.Discovery = tcp.NewDiscovery(d.TCP, c.DiscoveryAddr, d.BoardID)
			d.addTransport("discovery", d.Discovery)
		}
	}
	if c.WebSocketAddr != "" {
		d.WebSocket = websocket.NewServer(d.newEngine("websocket"), c.WebSocketAddr)
		d.WebSocket.Window = c.Window
		d.addTransport("websocket", d.WebSocket)
	}
	if c.MQTTURL != "" {
		bridge, err := mqtt.NewBridge(c.MQTTURL, d.Name, d.newEngine("mqtt"), d.BoardID)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		bridge.Window = c.Window
		d.MQTT = bridge
		d.addTransport("mqtt", bridge)
	}
	return d, nil
}

func (d *Daemon) newEngine(transport string) *comm.Engine {
	e := comm.NewEngine(transport, d.Drive.Registry(), d.Drive)
	d.Engines = append(d.Engines, e)
	d.Loop.AddController(framework.PrLvReport, framework.Throttle(d.Drive.DataRate, e))
	return e
}

func (d *Daemon) addTransport(name string, r framework.Runnable) {
	d.transports = append(d.transports, framework.NamedRun(name, r))
}

// Upgrading reports whether any host requested a firmware upgrade.
func (d *Daemon) Upgrading() bool {
	for _, e := range d.Engines {
		if e.Upgrading() {
			return true
		}
	}
	return false
}

// Run implements framework.Runnable. It returns comm.ErrUpgrading when
// a host requested a firmware upgrade, which stops all transports.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.Close()
	runner := framework.NewRunnerWith(ctx)
	d.Drive.OnUpgrade = runner.Stop
	runner.Go(framework.NamedRun("loop", d.Loop))
	runner.Go(d.transports...)
	glog.Infof("%s: board 0x%02x serving %d transports", d.Name, d.BoardID, len(d.transports))
	err := runner.Wait()
	if d.Upgrading() {
		glog.Warningf("%s: stopped for firmware upgrade", d.Name)
		return comm.ErrUpgrading
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the parameter store.
func (d *Daemon) Close() error {
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store = nil
	return err
}
