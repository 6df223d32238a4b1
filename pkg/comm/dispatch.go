package comm

import (
	"io"

	"github.com/golang/glog"
)

// dispatch executes a checksum-valid command packet. Requires rxLock.
func (e *Engine) dispatch(pkt []byte) {
	if e.upgraded.Load() {
		return
	}
	e.rxPackets.Add(1)
	cmd, args := pkt[2], pkt[3:len(pkt)-1]
	reg := e.registry
	resp := append(e.resp[:0], TagStatus, 0, cmd)

	if glog.V(4) {
		glog.Infof("%s: command 0x%02x args % x", e.Name, cmd, args)
	}

	switch cmd {
	case CmdIDTarget:
		resp = append(resp, reg.TargetType)
	case CmdUpgrade:
		e.upgrade()
		return
	case CmdGetParams:
		for _, p := range reg.Parameters {
			resp = append(resp, p.ID)
		}
	case CmdGetParamDesc:
		if p := e.argParameter(args, true); p != nil {
			resp = p.describe(resp)
		} else {
			resp = append(resp, 0)
		}
	case CmdGetParamValue:
		if p := e.argParameter(args, true); p != nil {
			n := len(resp)
			resp = resp[:n+p.Size()]
			p.Value.Load(resp[n:])
		}
	case CmdSetParamValue:
		if p := e.argParameter(args, false); p != nil && p.Writable() {
			v := e.value[:p.Size()]
			clear(v)
			copy(v, args[1:])
			p.Value.Store(v)
			p.RangeCheck()
			if p.OnUpdate != nil {
				p.OnUpdate()
			}
		}
	case CmdLoadParams:
		if err := e.hooks.LoadParams(); err != nil {
			glog.Warningf("%s: load parameters: %v", e.Name, err)
		}
	case CmdSaveParams:
		if err := e.hooks.SaveParams(); err != nil {
			glog.Warningf("%s: save parameters: %v", e.Name, err)
		}
	case CmdGetDataItems:
		for _, d := range reg.DataItems {
			resp = append(resp, d.ID, byte(d.Size()))
		}
	case CmdEnableDataItem, CmdDisableDataItem:
		if len(args) == 1 && int(args[0]) < reg.DataItemLimit() {
			e.setEnabled(args[0], cmd == CmdEnableDataItem)
		}
	case CmdStartDataStream:
		// the acknowledgement goes out before the first telemetry packet.
		e.Transmit(append(resp, 0))
		e.streaming.Store(true)
		return
	case CmdStopDataStream:
		e.streaming.Store(false)
	case CmdRun:
		e.hooks.Run()
	case CmdStop:
		e.hooks.Stop()
	case CmdEmergencyStop:
		e.hooks.EmergencyStop()
	default:
		glog.V(4).Infof("%s: unknown command 0x%02x dropped", e.Name, cmd)
		return
	}
	e.Transmit(append(resp, 0))
}

// argParameter looks up the parameter named by the first argument. With
// exact, a request carrying anything beyond the ID is malformed.
func (e *Engine) argParameter(args []byte, exact bool) *Parameter {
	if len(args) == 0 || (exact && len(args) != 1) {
		return nil
	}
	return e.registry.Parameter(args[0])
}

// upgrade tears the connection down and hands over to the Upgrade hook
// without a response. Requires rxLock.
func (e *Engine) upgrade() {
	e.upgraded.Store(true)
	e.streaming.Store(false)
	e.txLock.Lock()
	port := e.port
	e.port = nil
	e.gen.Add(1)
	e.txLock.Unlock()
	if c, ok := port.(io.Closer); ok {
		c.Close()
	}
	glog.Infof("%s: firmware upgrade requested", e.Name)
	e.hooks.Upgrade()
}
