package comm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memPort struct {
	avail  int
	out    bytes.Buffer
	closed bool
	err    error
}

func newMemPort() *memPort {
	return &memPort{avail: 1 << 16}
}

func (p *memPort) Available() int {
	return p.avail
}

func (p *memPort) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	n := min(len(b), p.avail)
	p.avail -= n
	return p.out.Write(b[:n])
}

func (p *memPort) Close() error {
	p.closed = true
	return nil
}

// take returns and clears the written bytes.
func (p *memPort) take() []byte {
	b := append([]byte(nil), p.out.Bytes()...)
	p.out.Reset()
	return b
}

type testHooks struct {
	calls    []string
	loadErr  error
	upgraded bool
}

func (h *testHooks) Run()           { h.calls = append(h.calls, "run") }
func (h *testHooks) Stop()          { h.calls = append(h.calls, "stop") }
func (h *testHooks) EmergencyStop() { h.calls = append(h.calls, "estop") }
func (h *testHooks) Upgrade()       { h.upgraded = true }

func (h *testHooks) LoadParams() error {
	h.calls = append(h.calls, "load")
	return h.loadErr
}

func (h *testHooks) SaveParams() error {
	h.calls = append(h.calls, "save")
	return nil
}

type engineTestEnv struct {
	t       *testing.T
	version *Word
	speed   *Word
	gain    *Word
	table   *Blob
	current *Word
	pos     *Word
	status  *Word
	updates int
	hooks   *testHooks
	engine  *Engine
	port    *memPort
	session *Session
}

func newEngineTestEnv(t *testing.T) *engineTestEnv {
	env := &engineTestEnv{
		t:       t,
		version: NewWord(2, 0x0102),
		speed:   NewWord(2, 500),
		gain:    NewWord(2, 10),
		table:   NewBlob([]byte{1, 2, 3, 4, 5, 6, 7, 8}),
		current: NewWord(2, 0x1234),
		pos:     NewWord(4, 0xa1b2c3d4),
		status:  NewWord(1, 0x5a),
		hooks:   &testHooks{},
		port:    newMemPort(),
	}
	reg := MustNewRegistry(TargetACIM, []*Parameter{
		{ID: 0x00, Value: env.version},
		{ID: 0x04, Range: Unsigned(0, 1000), Step: 1, Value: env.speed, OnUpdate: func() { env.updates++ }},
		{ID: 0x1a, Range: Signed(-100, 100), Step: 1, Value: env.gain},
		{ID: 0x0e, Step: 1, Value: env.table},
	}, []*DataItem{
		{ID: 0x01, Value: env.current},
		{ID: 0x05, Value: env.pos},
		{ID: 0x07, Value: env.status},
	})
	env.engine = NewEngine("test", reg, env.hooks)
	env.session = env.engine.Attach(env.port)
	return env
}

// exchange feeds a command and returns the bytes sent back.
func (e *engineTestEnv) exchange(pkt []byte) []byte {
	n, err := e.session.Write(pkt)
	require.NoError(e.t, err)
	require.Equal(e.t, len(pkt), n)
	return e.port.take()
}

func status(cmd byte, payload ...byte) []byte {
	return NewPacket(TagStatus, []byte{cmd}, payload)
}

func TestIdentifyTarget(t *testing.T) {
	env := newEngineTestEnv(t)
	resp := env.exchange([]byte{0xff, 0x04, 0x00, 0xfd})
	require.Equal(t, []byte{0xfe, 0x05, 0x00, 0x02, 0xfb}, resp)
	require.True(t, Valid(resp))
	require.EqualValues(t, 1, env.engine.Stats().RxPackets)
	require.EqualValues(t, 1, env.engine.Stats().TxPackets)
}

func TestParameterCommands(t *testing.T) {
	env := newEngineTestEnv(t)

	require.Equal(t, status(CmdGetParams, 0x00, 0x04, 0x1a, 0x0e), env.exchange(Command(CmdGetParams)))

	require.Equal(t,
		status(CmdGetParamDesc, 0x02, 0x00, 0x00, 0xe8, 0x03, 0x01, 0x00),
		env.exchange(Command(CmdGetParamDesc, 0x04)))
	require.Equal(t,
		status(CmdGetParamDesc, 0x02, 0x9c, 0xff, 0x64, 0x00, 0x01, 0x00),
		env.exchange(Command(CmdGetParamDesc, 0x1a)))
	require.Equal(t, status(CmdGetParamDesc, 0x08), env.exchange(Command(CmdGetParamDesc, 0x0e)))
	require.Equal(t, status(CmdGetParamDesc, 0x00), env.exchange(Command(CmdGetParamDesc, 0x33)))
	require.Equal(t, status(CmdGetParamDesc, 0x00), env.exchange(Command(CmdGetParamDesc)))

	require.Equal(t, status(CmdGetParamValue, 0x02, 0x01), env.exchange(Command(CmdGetParamValue, 0x00)))
	require.Equal(t, status(CmdGetParamValue, 1, 2, 3, 4, 5, 6, 7, 8), env.exchange(Command(CmdGetParamValue, 0x0e)))
	require.Equal(t, status(CmdGetParamValue), env.exchange(Command(CmdGetParamValue, 0x33)))
	require.Equal(t, status(CmdGetParamValue), env.exchange(Command(CmdGetParamValue, 0x04, 0x00)))
}

func TestSetParameter(t *testing.T) {
	env := newEngineTestEnv(t)

	// a single value byte zero-fills the high byte.
	require.Equal(t, status(CmdSetParamValue), env.exchange(Command(CmdSetParamValue, 0x04, 0x0a)))
	require.EqualValues(t, 0x000a, env.speed.Get())
	require.Equal(t, 1, env.updates)

	require.Equal(t, status(CmdSetParamValue), env.exchange(Command(CmdSetParamValue, 0x04, 0x10, 0x27)))
	require.EqualValues(t, 1000, env.speed.Get())

	// extra bytes are ignored.
	env.exchange(Command(CmdSetParamValue, 0x04, 0x20, 0x00, 0xff, 0xff))
	require.EqualValues(t, 0x20, env.speed.Get())

	// no value bytes writes zero.
	env.exchange(Command(CmdSetParamValue, 0x04))
	require.Zero(t, env.speed.Get())
	require.Equal(t, 4, env.updates)

	env.exchange(Command(CmdSetParamValue, 0x1a, 0x38, 0xff))
	require.EqualValues(t, -100, env.gain.Int())

	env.exchange(Command(CmdSetParamValue, 0x0e, 9, 9))
	require.Equal(t, []byte{9, 9, 0, 0, 0, 0, 0, 0}, env.table.Bytes())

	require.Equal(t, status(CmdSetParamValue), env.exchange(Command(CmdSetParamValue)))
	require.Equal(t, status(CmdSetParamValue), env.exchange(Command(CmdSetParamValue, 0x33, 1)))
}

func TestSetReadOnlyParameter(t *testing.T) {
	env := newEngineTestEnv(t)
	require.Equal(t, status(CmdSetParamValue), env.exchange(Command(CmdSetParamValue, 0x00, 0xff, 0xff)))
	require.EqualValues(t, 0x0102, env.version.Get())
}

func TestHookCommands(t *testing.T) {
	env := newEngineTestEnv(t)
	env.hooks.loadErr = errors.New("no storage")
	for _, cmd := range []byte{CmdRun, CmdStop, CmdEmergencyStop, CmdLoadParams, CmdSaveParams} {
		require.Equal(t, status(cmd), env.exchange(Command(cmd)))
	}
	require.Equal(t, []string{"run", "stop", "estop", "load", "save"}, env.hooks.calls)
}

func TestUnknownCommand(t *testing.T) {
	env := newEngineTestEnv(t)
	require.Empty(t, env.exchange(Command(0x7f, 1, 2)))
	require.Empty(t, env.exchange(Command(CmdDiscoverTarget)))
	require.EqualValues(t, 0, env.engine.Stats().TxPackets)
}

func TestDataItemCommands(t *testing.T) {
	env := newEngineTestEnv(t)
	require.Equal(t, status(CmdGetDataItems, 0x01, 2, 0x05, 4, 0x07, 1), env.exchange(Command(CmdGetDataItems)))

	require.Equal(t, status(CmdEnableDataItem), env.exchange(Command(CmdEnableDataItem, 0x05)))
	require.True(t, env.engine.Enabled(0x05))
	require.Equal(t, status(CmdEnableDataItem), env.exchange(Command(CmdEnableDataItem, 0x08)))
	require.False(t, env.engine.Enabled(0x08))
	env.exchange(Command(CmdEnableDataItem, 0x01, 0x07))
	require.False(t, env.engine.Enabled(0x01))

	require.Equal(t, status(CmdDisableDataItem), env.exchange(Command(CmdDisableDataItem, 0x05)))
	require.False(t, env.engine.Enabled(0x05))
}

func TestTelemetry(t *testing.T) {
	env := newEngineTestEnv(t)
	_, sent := env.engine.SendRealTimeData()
	require.False(t, sent)

	env.exchange(Command(CmdEnableDataItem, 0x05))
	env.exchange(Command(CmdEnableDataItem, 0x01))
	require.Equal(t, status(CmdStartDataStream), env.exchange(Command(CmdStartDataStream)))
	require.True(t, env.engine.Streaming())

	res, sent := env.engine.SendRealTimeData()
	require.True(t, sent)
	require.Equal(t, Delivered, res)
	pkt := env.port.take()
	require.Equal(t, []byte{0xfd, 0x09, 0x34, 0x12, 0xd4, 0xc3, 0xb2, 0xa1}, pkt[:8])
	require.Len(t, pkt, 9)
	require.True(t, Valid(pkt))

	require.Equal(t, status(CmdStopDataStream), env.exchange(Command(CmdStopDataStream)))
	_, sent = env.engine.SendRealTimeData()
	require.False(t, sent)
	require.Empty(t, env.port.take())
}

func TestTelemetryInFlight(t *testing.T) {
	env := newEngineTestEnv(t)
	env.exchange(Command(CmdEnableDataItem, 0x07))
	env.exchange(Command(CmdStartDataStream))

	env.port.avail = 2
	res, sent := env.engine.SendRealTimeData()
	require.True(t, sent)
	require.Equal(t, Queued, res)
	_, sent = env.engine.SendRealTimeData()
	require.False(t, sent)

	env.port.avail = 100
	env.engine.Drain()
	require.Equal(t, NewPacket(TagData, []byte{0x5a}), env.port.take())
	res, sent = env.engine.SendRealTimeData()
	require.True(t, sent)
	require.Equal(t, Delivered, res)
}

func TestTransmitQueue(t *testing.T) {
	port := &memPort{avail: 2}
	e := NewEngineSize("tx", MustNewRegistry(TargetBLDC, nil, nil), nil, DefaultRxSize, 6)
	require.Equal(t, Overflow, e.Transmit(status(CmdRun)))
	require.EqualValues(t, 1, e.Stats().Overflows)

	e.Attach(port)
	require.Equal(t, Queued, e.Transmit(status(CmdRun)))
	require.Equal(t, 2, e.Pending())
	require.Equal(t, []byte{0xfe, 0x04}, port.out.Bytes())

	// nothing is written while bytes are queued.
	port.avail = 10
	require.Equal(t, Queued, e.Transmit(status(CmdStop)))
	require.Equal(t, 6, e.Pending())
	require.Equal(t, Overflow, e.Transmit(status(CmdStop)))
	require.Equal(t, 6, e.Pending())

	e.Drain()
	require.Zero(t, e.Pending())
	require.Equal(t, append(status(CmdRun), status(CmdStop)...), port.take())

	port.err = errors.New("broken")
	require.Equal(t, Overflow, e.Transmit(status(CmdRun)))
	require.Zero(t, e.Pending())
}

func TestAttachReplacesSession(t *testing.T) {
	env := newEngineTestEnv(t)
	env.exchange(Command(CmdEnableDataItem, 0x05))
	env.exchange(Command(CmdStartDataStream))

	first := env.port
	env.port = newMemPort()
	old := env.session
	env.session = env.engine.Attach(env.port)
	require.True(t, first.closed)
	require.False(t, env.engine.Streaming())
	require.True(t, env.engine.Enabled(0x05))

	_, err := old.Write(Command(CmdIDTarget))
	require.ErrorIs(t, err, ErrDetached)
	require.NoError(t, old.Close())
	require.True(t, env.engine.Attached())

	require.Equal(t, status(CmdIDTarget, TargetACIM), env.exchange(Command(CmdIDTarget)))
	require.NoError(t, env.session.Close())
	require.False(t, env.engine.Attached())
	require.False(t, env.port.closed)
}

func TestUpgrade(t *testing.T) {
	env := newEngineTestEnv(t)
	stream := append(Command(CmdUpgrade), Command(CmdIDTarget)...)
	_, err := env.session.Write(stream)
	require.ErrorIs(t, err, ErrUpgrading)
	require.True(t, env.hooks.upgraded)
	require.True(t, env.port.closed)
	require.Empty(t, env.port.take())
	require.True(t, env.engine.Upgrading())
	require.False(t, env.engine.Attached())

	_, err = env.session.Write(Command(CmdIDTarget))
	require.ErrorIs(t, err, ErrUpgrading)
}
