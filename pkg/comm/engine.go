package comm

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// Buffer sizes of an Engine.
const (
	// DefaultRxSize fits the largest packet the length byte can express.
	DefaultRxSize = MaxPacketSize + 1
	DefaultTxSize = 1024
)

// ErrDetached is returned when writing to a Session replaced by a newer
// one.
var ErrDetached = errors.New("session detached")

// Hooks are the actions of the application driven by remote commands.
type Hooks interface {
	Run()
	Stop()
	EmergencyStop()
	LoadParams() error
	SaveParams() error
	// Upgrade hands control to the firmware updater. The engine accepts
	// no further input afterwards.
	Upgrade()
}

// HookFuncs implements Hooks with optional funcs.
type HookFuncs struct {
	RunFunc           func()
	StopFunc          func()
	EmergencyStopFunc func()
	LoadParamsFunc    func() error
	SaveParamsFunc    func() error
	UpgradeFunc       func()
}

// Run implements Hooks.
func (h HookFuncs) Run() { call(h.RunFunc) }

// Stop implements Hooks.
func (h HookFuncs) Stop() { call(h.StopFunc) }

// EmergencyStop implements Hooks.
func (h HookFuncs) EmergencyStop() { call(h.EmergencyStopFunc) }

// Upgrade implements Hooks.
func (h HookFuncs) Upgrade() { call(h.UpgradeFunc) }

// LoadParams implements Hooks.
func (h HookFuncs) LoadParams() error {
	if h.LoadParamsFunc != nil {
		return h.LoadParamsFunc()
	}
	return nil
}

// SaveParams implements Hooks.
func (h HookFuncs) SaveParams() error {
	if h.SaveParamsFunc != nil {
		return h.SaveParamsFunc()
	}
	return nil
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// Stats are traffic counters of an Engine.
type Stats struct {
	RxPackets uint64
	TxPackets uint64
	Overflows uint64
}

// Engine runs the protocol for one transport. Received bytes go through
// a Session created by Attach; responses and telemetry go to the
// attached Port.
type Engine struct {
	Name string

	registry *Registry
	hooks    Hooks

	// rxLock guards the scanner and dispatch.
	rxLock  sync.Mutex
	scanner *Scanner
	resp    []byte
	value   []byte

	// txLock is held while a packet goes to the wire, so packets never
	// interleave. It also guards the fields below.
	txLock    sync.Mutex
	port      Port
	tx        *Ring
	drainBuf  []byte
	queued    uint64
	drained   uint64
	telemetry []byte
	// drained must reach telemetryEnd before the next telemetry packet.
	telemetryEnd uint64

	gen       atomic.Uint64
	enabled   [8]atomic.Uint32
	streaming atomic.Bool
	upgraded  atomic.Bool

	rxPackets atomic.Uint64
	txPackets atomic.Uint64
	overflows atomic.Uint64
}

// NewEngine creates an Engine with default buffer sizes.
func NewEngine(name string, reg *Registry, hooks Hooks) *Engine {
	return NewEngineSize(name, reg, hooks, DefaultRxSize, DefaultTxSize)
}

// NewEngineSize creates an Engine with the receive and transmit buffer
// sizes.
func NewEngineSize(name string, reg *Registry, hooks Hooks, rxSize, txSize int) *Engine {
	if hooks == nil {
		hooks = HookFuncs{}
	}
	return &Engine{
		Name:      name,
		registry:  reg,
		hooks:     hooks,
		scanner:   NewScanner(rxSize, TagCommand),
		resp:      make([]byte, 0, MaxPacketSize),
		value:     make([]byte, MaxPacketSize),
		tx:        NewRing(txSize),
		drainBuf:  make([]byte, txSize),
		telemetry: make([]byte, 0, MaxPacketSize),
	}
}

// Registry returns the registry served by the engine.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Attach makes port the destination of outgoing packets and returns the
// Session receiving bytes from the same connection. An earlier port is
// closed if it is an io.Closer. Buffers and streaming are reset.
func (e *Engine) Attach(port Port) *Session {
	e.rxLock.Lock()
	e.txLock.Lock()
	old := e.port
	e.port = port
	gen := e.gen.Add(1)
	e.resetLocked()
	e.txLock.Unlock()
	e.rxLock.Unlock()

	if n, ok := port.(SpaceNotifier); ok {
		n.OnSpace(e.Drain)
	}
	if old != nil && old != port {
		glog.V(2).Infof("%s: connection replaced", e.Name)
		if c, ok := old.(io.Closer); ok {
			c.Close()
		}
	}
	return &Session{engine: e, port: port, gen: gen}
}

// Attached reports whether a port is attached.
func (e *Engine) Attached() bool {
	e.txLock.Lock()
	defer e.txLock.Unlock()
	return e.port != nil
}

// resetLocked requires both locks.
func (e *Engine) resetLocked() {
	e.scanner.Reset()
	e.tx.Reset()
	e.queued, e.drained, e.telemetryEnd = 0, 0, 0
	e.streaming.Store(false)
}

func (e *Engine) detach(gen uint64) {
	e.rxLock.Lock()
	defer e.rxLock.Unlock()
	e.txLock.Lock()
	defer e.txLock.Unlock()
	if e.gen.Load() != gen {
		return
	}
	e.port = nil
	e.gen.Add(1)
	e.resetLocked()
}

// Streaming reports whether the telemetry stream is started.
func (e *Engine) Streaming() bool {
	return e.streaming.Load()
}

// Enabled reports whether the data item is enabled for streaming.
func (e *Engine) Enabled(id byte) bool {
	return e.enabled[id/32].Load()&(1<<(id%32)) != 0
}

func (e *Engine) setEnabled(id byte, on bool) {
	word, bit := &e.enabled[id/32], uint32(1)<<(id%32)
	for {
		old := word.Load()
		v := old &^ bit
		if on {
			v = old | bit
		}
		if word.CompareAndSwap(old, v) {
			return
		}
	}
}

// Upgrading reports whether a firmware upgrade was requested.
func (e *Engine) Upgrading() bool {
	return e.upgraded.Load()
}

// Stats returns the traffic counters.
func (e *Engine) Stats() Stats {
	return Stats{
		RxPackets: e.rxPackets.Load(),
		TxPackets: e.txPackets.Load(),
		Overflows: e.overflows.Load(),
	}
}

// Session feeds bytes received on one connection to the engine.
type Session struct {
	engine *Engine
	port   Port
	gen    uint64
}

// Port returns the port attached with the session.
func (s *Session) Port() Port {
	return s.port
}

// Write implements io.Writer. It fails once the session is replaced or
// a firmware upgrade started.
func (s *Session) Write(p []byte) (int, error) {
	e := s.engine
	if e.upgraded.Load() {
		return 0, ErrUpgrading
	}
	e.rxLock.Lock()
	defer e.rxLock.Unlock()
	if e.gen.Load() != s.gen {
		return 0, ErrDetached
	}
	e.scanner.Feed(p, e.dispatch)
	if e.upgraded.Load() {
		return len(p), ErrUpgrading
	}
	return len(p), nil
}

// Close detaches the port unless the session was already replaced. The
// port itself is left open.
func (s *Session) Close() error {
	s.engine.detach(s.gen)
	return nil
}

// Detached reports whether the session was closed or replaced.
func (s *Session) Detached() bool {
	return s.engine.gen.Load() != s.gen
}
