package comm

import "github.com/robotalks/drivelink/pkg/framework"

// SendRealTimeData builds a telemetry packet from the enabled data items
// in registration order and transmits it. It returns false without
// sending when the stream is stopped or the previous telemetry packet
// is still queued.
func (e *Engine) SendRealTimeData() (TransmitResult, bool) {
	if !e.streaming.Load() {
		return Overflow, false
	}
	e.txLock.Lock()
	defer e.txLock.Unlock()
	if e.drained < e.telemetryEnd {
		return Overflow, false
	}
	pkt := append(e.telemetry[:0], TagData, 0)
	for _, item := range e.registry.DataItems {
		if !e.Enabled(item.ID) {
			continue
		}
		n := len(pkt)
		pkt = pkt[:n+item.Size()]
		item.Value.Load(pkt[n:])
	}
	pkt = append(pkt, 0)
	res := e.transmitLocked(pkt)
	if res == Queued {
		e.telemetryEnd = e.queued
	}
	return res, true
}

// Control implements framework.Controller. Every iteration sends one
// telemetry packet.
func (e *Engine) Control(framework.ControlContext) error {
	e.SendRealTimeData()
	return nil
}
